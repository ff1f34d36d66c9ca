// Package command recognizes drafts that are local directives rather than chat turns.
package command

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies a recognized command.
type Kind int

const (
	KindNone Kind = iota
	KindReminder
	KindTodo
)

func (k Kind) String() string {
	switch k {
	case KindReminder:
		return "reminder"
	case KindTodo:
		return "todo"
	default:
		return "none"
	}
}

// Prefixes in match order.
const (
	ReminderPrefix = "/reminder "
	TodoPrefix     = "/todo "
)

var prefixes = []struct {
	prefix string
	kind   Kind
}{
	{ReminderPrefix, KindReminder},
	{TodoPrefix, KindTodo},
}

// Notebook receives the side effects of recognized commands.
type Notebook interface {
	SetReminder(ctx context.Context, text string) error
	AddTodo(ctx context.Context, text string) error
}

// Result describes how a draft was interpreted.
type Result struct {
	Handled bool
	Kind    Kind
	// Arg is the trimmed text after the prefix; it may be empty.
	Arg string
	// Reply is the assistant confirmation to append to the conversation.
	Reply string
}

// Parse reports whether draft is a command and returns its argument.
// A bare "/reminder" or "/todo" (nothing after the word) is a command with an empty argument.
func Parse(draft string) (Kind, string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(draft, p.prefix) {
			return p.kind, strings.TrimSpace(draft[len(p.prefix):]), true
		}
		if strings.TrimRight(draft, " \t\r\n") == strings.TrimSuffix(p.prefix, " ") {
			return p.kind, "", true
		}
	}
	return KindNone, "", false
}

// Interpret runs draft against nb when it is a command. Unhandled drafts return a zero
// Result and no error; the caller then treats the draft as a chat turn.
func Interpret(ctx context.Context, draft string, nb Notebook) (Result, error) {
	kind, arg, ok := Parse(draft)
	if !ok {
		return Result{}, nil
	}

	res := Result{Handled: true, Kind: kind, Arg: arg}
	switch kind {
	case KindReminder:
		if err := nb.SetReminder(ctx, arg); err != nil {
			return Result{}, err
		}
		res.Reply = ReminderReply(arg)
	case KindTodo:
		if err := nb.AddTodo(ctx, arg); err != nil {
			return Result{}, err
		}
		res.Reply = TodoReply(arg)
	}
	return res, nil
}

// ReminderReply is the confirmation for a stored reminder.
func ReminderReply(text string) string {
	return fmt.Sprintf(`Reminder set: "%s"`, text)
}

// TodoReply is the confirmation for an added todo.
func TodoReply(text string) string {
	return fmt.Sprintf(`Added to your to-do list: "%s"`, text)
}
