package chat

import (
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the capitalized role name used in transcripts ("User", "Assistant").
func (r Role) Label() string {
	s := string(r)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Fixed assistant texts.
const (
	Greeting        = "Hi! I'm your AI assistant. Ask me anything."
	NoResponseText  = "Sorry, no response."
	UnreachableText = "Error: Could not reach the server."
)

// Message is one conversation turn. Messages are values and never mutated after creation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Timestamp is optional; payloads written by older clients may lack it.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// NewMessage creates a message stamped with at (stored as UTC).
func NewMessage(role Role, content string, at time.Time) Message {
	ts := at.UTC()
	return Message{Role: role, Content: content, Timestamp: &ts}
}

// Chats maps a category id to its ordered message history.
type Chats map[string][]Message

// Clone returns a deep copy. Message timestamps are shared since messages are immutable.
func (c Chats) Clone() Chats {
	if c == nil {
		return nil
	}
	out := make(Chats, len(c))
	for id, msgs := range c {
		cp := make([]Message, len(msgs))
		copy(cp, msgs)
		out[id] = cp
	}
	return out
}

// Transcript renders messages as "Role: content" lines, one per message.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role.Label())
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
