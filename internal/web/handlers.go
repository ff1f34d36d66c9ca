package web

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/conversation"
	"github.com/hpungsan/banter/internal/errors"
	"github.com/hpungsan/banter/internal/export"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	session  *conversation.Session
	renderer *Renderer
	logger   *zap.Logger
}

// category resolves the {category} path value.
func category(r *http.Request) (chat.Category, error) {
	return chat.LookupCategory(r.PathValue("category"))
}

// HandleChat handles GET /chat/{category}: the history (filtered by ?q=) and the composer.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	cat, err := category(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	query := r.URL.Query().Get("q")
	snap := h.session.Snapshot()
	msgs := snap.Chats[cat.ID]

	tabs := make([]CategoryTab, 0, len(chat.Categories()))
	for _, c := range chat.Categories() {
		tabs = append(tabs, CategoryTab{ID: c.ID, Label: c.Label, Active: c.ID == cat.ID})
	}

	personas := h.session.Personalities().All()
	options := make([]PersonalityOption, 0, len(personas))
	for _, p := range personas {
		options = append(options, PersonalityOption{ID: p.ID, Label: p.Label, Selected: p.ID == snap.Personality})
	}

	h.renderer.renderPage(w, "chat", ChatPageData{
		PageData: PageData{
			Title:   cat.Label,
			Version: h.renderer.version,
		},
		Category:      cat,
		Categories:    tabs,
		Personalities: options,
		Messages:      messageViews(slices.Collect(conversation.Filter(msgs, query))),
		Query:         query,
		Draft:         snap.Draft,
		InFlight:      snap.InFlight,
		Reminder:      snap.Reminder,
		Todos:         snap.Todos,
		Total:         len(msgs),
	})
}

// HandleSend handles POST /chat/{category}/send. It blocks until the reply has been appended.
func (h *Handlers) HandleSend(w http.ResponseWriter, r *http.Request) {
	cat, err := category(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	personality := strings.TrimSpace(r.FormValue("personality"))
	outcome, reply, err := h.session.SendTo(r.Context(), cat.ID, personality, r.FormValue("message"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.logger.Debug("web send", zap.String("category", cat.ID), zap.String("outcome", outcome.String()))

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		msgs := h.session.Snapshot().Chats[cat.ID]
		renderJSON(w, http.StatusOK, map[string]any{
			"outcome":  outcome.String(),
			"reply":    reply,
			"messages": msgs,
		})
		return
	}

	http.Redirect(w, r, "/chat/"+url.PathEscape(cat.ID), http.StatusSeeOther)
}

// HandleExport handles GET /chat/{category}/export: the transcript as a text attachment.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	cat, err := category(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	msgs := h.session.Snapshot().Chats[cat.ID]
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(cat.ID)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(chat.Transcript(msgs)))
}

// HandleAPIChat handles GET /api/chat/{category}: a JSON snapshot of one category.
// ?q= filters messages; ?limit= keeps only the most recent N.
func (h *Handlers) HandleAPIChat(w http.ResponseWriter, r *http.Request) {
	cat, err := category(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	snap := h.session.Snapshot()
	msgs := slices.Collect(conversation.Filter(snap.Chats[cat.ID], r.URL.Query().Get("q")))
	if msgs == nil {
		msgs = []chat.Message{}
	}
	if limit := parseIntParam(r, "limit", 0); limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	renderJSON(w, http.StatusOK, map[string]any{
		"category":    cat.ID,
		"label":       cat.Label,
		"messages":    msgs,
		"in_flight":   snap.InFlight,
		"personality": snap.Personality,
		"reminder":    snap.Reminder,
		"todos":       snap.Todos,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
