package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/conversation"
	"github.com/hpungsan/banter/internal/db"
	"github.com/hpungsan/banter/internal/store"
)

// stubClient echoes the message back, or blocks on gate when set.
type stubClient struct {
	mu       sync.Mutex
	personas []string
	gate     chan struct{}
	started  chan struct{}
}

func (s *stubClient) Send(ctx context.Context, message, personality string) (string, error) {
	s.mu.Lock()
	s.personas = append(s.personas, personality)
	s.mu.Unlock()
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	return "**echo:** " + message, nil
}

func setupTest(t *testing.T, client conversation.Sender) *Handlers {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	sess, _, err := conversation.Open(context.Background(), conversation.Options{
		Store:  store.New(store.SQLiteKV{DB: database}),
		Client: client,
	})
	if err != nil {
		t.Fatalf("conversation.Open: %v", err)
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}
	return &Handlers{
		session:  sess,
		renderer: NewRenderer(templateSub, "test", nil),
	}
}

func newRouter(t *testing.T, h *Handlers) http.Handler {
	t.Helper()
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		t.Fatalf("static sub-FS: %v", err)
	}
	return h.Routes(staticSub)
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// --- routing ---

func TestRoutes_RootRedirects(t *testing.T) {
	h := setupTest(t, &stubClient{})
	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/chat/general" {
		t.Errorf("Location = %q", loc)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
}

func TestRoutes_Static(t *testing.T) {
	h := setupTest(t, &stubClient{})
	rec := httptest.NewRecorder()
	newRouter(t, h).ServeHTTP(rec, httptest.NewRequest("GET", "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// --- HandleChat ---

func TestHandleChat_Greeting(t *testing.T) {
	h := setupTest(t, &stubClient{})

	req := httptest.NewRequest("GET", "/chat/general", nil)
	req.SetPathValue("category", "general")
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Ask me anything.") {
		t.Error("expected greeting in response")
	}
	if !strings.Contains(body, "Code Help") {
		t.Error("expected category tabs")
	}
	if !strings.Contains(body, `<option value="default" selected>`) {
		t.Error("expected default personality selected")
	}
}

func TestHandleChat_LeavesActiveCategory(t *testing.T) {
	h := setupTest(t, &stubClient{})

	req := httptest.NewRequest("GET", "/chat/jokes", nil)
	req.SetPathValue("category", "jokes")
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if h.session.ActiveCategory() != chat.DefaultCategoryID {
		t.Errorf("active = %q, viewing a page must not switch the shared session", h.session.ActiveCategory())
	}
	if !strings.Contains(rec.Body.String(), "No messages yet.") {
		t.Error("expected empty state")
	}
}

func TestHandleChat_UnknownCategory(t *testing.T) {
	h := setupTest(t, &stubClient{})

	req := httptest.NewRequest("GET", "/chat/pets", nil)
	req.SetPathValue("category", "pets")
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unknown category: pets") {
		t.Error("expected error message")
	}
}

func TestHandleChat_SearchFilter(t *testing.T) {
	h := setupTest(t, &stubClient{})
	if _, err := h.session.Send(context.Background(), "tell me about goroutines"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/chat/general?q=GOROUTINE", nil)
	req.SetPathValue("category", "general")
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "Ask me anything.") {
		t.Error("greeting should be filtered out")
	}
	if !strings.Contains(body, "tell me about goroutines") {
		t.Error("matching user message missing")
	}
	if !strings.Contains(body, "2 of 3 messages") {
		t.Error("expected filter count")
	}

	req = httptest.NewRequest("GET", "/chat/general?q=zzz", nil)
	req.SetPathValue("category", "general")
	rec = httptest.NewRecorder()
	h.HandleChat(rec, req)
	if !strings.Contains(rec.Body.String(), "No messages match") {
		t.Error("expected no-match message")
	}
}

func TestHandleChat_RendersMarkdownSafely(t *testing.T) {
	h := setupTest(t, &stubClient{})
	if _, err := h.session.Send(context.Background(), "<script>alert(1)</script>"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/chat/general", nil)
	req.SetPathValue("category", "general")
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	body := rec.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("raw script must not be rendered")
	}
	if !strings.Contains(body, "<strong>echo:</strong>") {
		t.Error("assistant markdown should render")
	}
}

// --- HandleSend ---

func TestHandleSend_RedirectsAndAppends(t *testing.T) {
	client := &stubClient{}
	h := setupTest(t, client)

	req := postForm("/chat/code/send", url.Values{"message": {"hello"}, "personality": {"concise"}})
	req.SetPathValue("category", "code")
	rec := httptest.NewRecorder()
	h.HandleSend(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/chat/code" {
		t.Errorf("Location = %q", loc)
	}

	msgs := h.session.Snapshot().Chats["code"]
	if len(msgs) != 2 || msgs[0].Content != "hello" || msgs[1].Content != "**echo:** hello" {
		t.Errorf("code history = %+v", msgs)
	}
	if h.session.Personality() != "concise" {
		t.Errorf("personality = %q", h.session.Personality())
	}
	if len(client.personas) != 1 || client.personas[0] == "" {
		t.Errorf("instruction not forwarded: %v", client.personas)
	}
}

func TestHandleSend_TargetsPathCategory(t *testing.T) {
	h := setupTest(t, &stubClient{})
	if err := h.session.SelectCategory("jokes"); err != nil {
		t.Fatal(err)
	}
	h.session.SetDraft("typed in the terminal")

	req := postForm("/chat/code/send", url.Values{"message": {"hello"}})
	req.SetPathValue("category", "code")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleSend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Reply != "**echo:** hello" {
		t.Errorf("reply = %q", resp.Reply)
	}

	snap := h.session.Snapshot()
	if len(snap.Chats["code"]) != 2 || len(snap.Chats["jokes"]) != 0 {
		t.Errorf("code = %d messages, jokes = %d; want 2 and 0", len(snap.Chats["code"]), len(snap.Chats["jokes"]))
	}
	if snap.ActiveCategory != "jokes" {
		t.Errorf("active = %q, want jokes", snap.ActiveCategory)
	}
	if snap.Draft != "typed in the terminal" {
		t.Errorf("draft = %q, want it untouched", snap.Draft)
	}
}

func TestHandleSend_CommandJSON(t *testing.T) {
	client := &stubClient{}
	h := setupTest(t, client)

	req := postForm("/chat/general/send", url.Values{"message": {"/todo buy eggs"}})
	req.SetPathValue("category", "general")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleSend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Outcome  string         `json:"outcome"`
		Messages []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Outcome != "command" {
		t.Errorf("outcome = %q", resp.Outcome)
	}
	if last := resp.Messages[len(resp.Messages)-1].Content; last != `Added to your to-do list: "buy eggs"` {
		t.Errorf("last message = %q", last)
	}
	if len(client.personas) != 0 {
		t.Error("command must not reach the backend")
	}
}

func TestHandleSend_UnknownPersonality(t *testing.T) {
	h := setupTest(t, &stubClient{})

	req := postForm("/chat/general/send", url.Values{"message": {"hi"}, "personality": {"pirate"}})
	req.SetPathValue("category", "general")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleSend(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if len(h.session.Snapshot().Chats["general"]) != 1 {
		t.Error("nothing should be appended")
	}
}

func TestHandleSend_InFlightConflict(t *testing.T) {
	client := &stubClient{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	h := setupTest(t, client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.session.Send(context.Background(), "slow")
	}()
	<-client.started

	req := postForm("/chat/general/send", url.Values{"message": {"second"}})
	req.SetPathValue("category", "general")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleSend(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var resp map[string]map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp["error"]["code"] != "IN_FLIGHT" {
		t.Errorf("code = %v", resp["error"]["code"])
	}

	close(client.gate)
	<-done
}

// --- HandleExport ---

func TestHandleExport(t *testing.T) {
	h := setupTest(t, &stubClient{})
	if _, err := h.session.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/chat/general/export", nil)
	req.SetPathValue("category", "general")
	rec := httptest.NewRecorder()
	h.HandleExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="general-chat.txt"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	want := "Assistant: " + chat.Greeting + "\nUser: hi\nAssistant: **echo:** hi\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}

// --- HandleAPIChat ---

func TestHandleAPIChat(t *testing.T) {
	h := setupTest(t, &stubClient{})
	ctx := context.Background()
	for _, m := range []string{"one", "two", "/reminder call mom"} {
		if _, err := h.session.Send(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest("GET", "/api/chat/general?limit=2", nil)
	req.SetPathValue("category", "general")
	rec := httptest.NewRecorder()
	h.HandleAPIChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Category string         `json:"category"`
		Messages []chat.Message `json:"messages"`
		InFlight bool           `json:"in_flight"`
		Reminder string         `json:"reminder"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Category != "general" || resp.InFlight || resp.Reminder != "call mom" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Messages) != 2 || resp.Messages[1].Content != `Reminder set: "call mom"` {
		t.Errorf("messages = %+v", resp.Messages)
	}
}

func TestHandleAPIChat_NoMatchIsEmptyArray(t *testing.T) {
	h := setupTest(t, &stubClient{})

	req := httptest.NewRequest("GET", "/api/chat/code?q=anything", nil)
	req.SetPathValue("category", "code")
	rec := httptest.NewRecorder()
	h.HandleAPIChat(rec, req)

	if !strings.Contains(rec.Body.String(), `"messages":[]`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleAPIChat_UnknownCategoryJSON(t *testing.T) {
	h := setupTest(t, &stubClient{})

	req := httptest.NewRequest("GET", "/api/chat/pets", nil)
	req.SetPathValue("category", "pets")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.HandleAPIChat(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
