package chat

import (
	"testing"
	"time"

	"github.com/hpungsan/banter/internal/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"general", "general"},
		{"  Code  ", "code"},
		{"LIFE", "life"},
		{"a \t b\n c", "a b c"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank("") || !IsBlank("  \t\n") {
		t.Error("IsBlank() = false for blank input")
	}
	if IsBlank(" x ") {
		t.Error("IsBlank(\" x \") = true")
	}
}

func TestLookupCategory(t *testing.T) {
	c, err := LookupCategory(" Jokes ")
	if err != nil {
		t.Fatalf("LookupCategory() error = %v", err)
	}
	if c.ID != "jokes" || c.Label != "Jokes" {
		t.Errorf("LookupCategory() = %+v", c)
	}

	_, err = LookupCategory("pets")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("LookupCategory(pets) error = %v, want NOT_FOUND", err)
	}
}

func TestCategoryIDs_Order(t *testing.T) {
	want := []string{"general", "code", "life", "jokes"}
	got := CategoryIDs()
	if len(got) != len(want) {
		t.Fatalf("CategoryIDs() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CategoryIDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNextCategory(t *testing.T) {
	tests := []struct {
		id   string
		step int
		want string
	}{
		{"general", 1, "code"},
		{"jokes", 1, "general"},
		{"general", -1, "jokes"},
		{"life", -1, "code"},
		{"unknown", 1, "code"},
	}
	for _, tt := range tests {
		if got := NextCategory(tt.id, tt.step); got != tt.want {
			t.Errorf("NextCategory(%q, %d) = %q, want %q", tt.id, tt.step, got, tt.want)
		}
	}
}

func TestCategories_ReturnsCopy(t *testing.T) {
	cats := Categories()
	cats[0].Label = "mutated"
	if Categories()[0].Label != "General" {
		t.Error("Categories() exposed internal slice")
	}
}

func TestRoleLabel(t *testing.T) {
	if RoleUser.Label() != "User" || RoleAssistant.Label() != "Assistant" {
		t.Errorf("labels = %q, %q", RoleUser.Label(), RoleAssistant.Label())
	}
}

func TestNewMessage_StoresUTC(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, loc)
	m := NewMessage(RoleUser, "hello", at)
	if m.Timestamp == nil || m.Timestamp.Location() != time.UTC {
		t.Fatalf("Timestamp = %v, want UTC", m.Timestamp)
	}
	if !m.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want instant %v", m.Timestamp, at)
	}
}

func TestTranscript(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, Content: Greeting},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}
	want := "Assistant: " + Greeting + "\nUser: hello\nAssistant: hi there\n"
	if got := Transcript(msgs); got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}
	if got := Transcript(nil); got != "" {
		t.Errorf("Transcript(nil) = %q, want empty", got)
	}
}

func TestChatsClone(t *testing.T) {
	orig := Chats{"general": {{Role: RoleUser, Content: "a"}}}
	cp := orig.Clone()
	cp["general"][0] = Message{Role: RoleUser, Content: "b"}
	cp["code"] = nil
	if orig["general"][0].Content != "a" {
		t.Error("Clone() shares message slices")
	}
	if _, ok := orig["code"]; ok {
		t.Error("Clone() shares map")
	}
}

func TestPersonalities(t *testing.T) {
	p := NewPersonalities(map[string]string{
		"Funny":  "Be hilarious.",
		"pirate": "Talk like a pirate.",
		"  ":     "ignored",
	})

	funny, err := p.Lookup("funny")
	if err != nil {
		t.Fatalf("Lookup(funny) error = %v", err)
	}
	if funny.Instruction != "Be hilarious." {
		t.Errorf("funny.Instruction = %q, want override", funny.Instruction)
	}

	pirate, err := p.Lookup("PIRATE")
	if err != nil {
		t.Fatalf("Lookup(PIRATE) error = %v", err)
	}
	if pirate.Label != "Pirate" || pirate.Instruction != "Talk like a pirate." {
		t.Errorf("pirate = %+v", pirate)
	}

	all := p.All()
	if all[0].ID != "default" || all[len(all)-1].ID != "pirate" {
		t.Errorf("All() order = %v", all)
	}

	def, _ := p.Lookup("default")
	if def.Instruction != "" {
		t.Errorf("default instruction = %q, want empty", def.Instruction)
	}

	if _, err := p.Lookup("nope"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Lookup(nope) error = %v, want NOT_FOUND", err)
	}
}

func TestPersonalities_Next(t *testing.T) {
	p := NewPersonalities(nil)
	if got := p.Next("default"); got != "friendly" {
		t.Errorf("Next(default) = %q, want friendly", got)
	}
	if got := p.Next("concise"); got != "default" {
		t.Errorf("Next(concise) = %q, want wraparound to default", got)
	}
	if got := p.Next("missing"); got != "default" {
		t.Errorf("Next(missing) = %q, want default", got)
	}
}
