package command

import (
	"context"
	"fmt"
	"testing"
)

type fakeNotebook struct {
	reminder    string
	reminderSet bool
	todos       []string
	err         error
}

func (f *fakeNotebook) SetReminder(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.reminder = text
	f.reminderSet = true
	return nil
}

func (f *fakeNotebook) AddTodo(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.todos = append(f.todos, text)
	return nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		draft    string
		wantKind Kind
		wantArg  string
		wantOK   bool
	}{
		{"reminder", "/reminder buy milk", KindReminder, "buy milk", true},
		{"reminder trims", "/reminder    buy milk  ", KindReminder, "buy milk", true},
		{"todo", "/todo buy eggs", KindTodo, "buy eggs", true},
		{"bare reminder", "/reminder", KindReminder, "", true},
		{"bare todo with trailing space", "/todo   ", KindTodo, "", true},
		{"reminder whitespace only arg", "/reminder \t ", KindReminder, "", true},
		{"plain text", "hello", KindNone, "", false},
		{"no separator", "/reminderbuy", KindNone, "", false},
		{"uppercase", "/TODO x", KindNone, "", false},
		{"leading space", " /todo x", KindNone, "", false},
		{"unknown slash", "/help", KindNone, "", false},
		{"mentions command mid-text", "please /todo x", KindNone, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, arg, ok := Parse(tt.draft)
			if kind != tt.wantKind || arg != tt.wantArg || ok != tt.wantOK {
				t.Errorf("Parse(%q) = (%v, %q, %v), want (%v, %q, %v)",
					tt.draft, kind, arg, ok, tt.wantKind, tt.wantArg, tt.wantOK)
			}
		})
	}
}

func TestInterpret_Reminder(t *testing.T) {
	nb := &fakeNotebook{reminder: "old"}
	res, err := Interpret(context.Background(), "/reminder buy milk", nb)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if !res.Handled || res.Kind != KindReminder {
		t.Fatalf("Interpret() = %+v, want handled reminder", res)
	}
	if nb.reminder != "buy milk" {
		t.Errorf("reminder = %q, want overwrite", nb.reminder)
	}
	if res.Reply != `Reminder set: "buy milk"` {
		t.Errorf("Reply = %q", res.Reply)
	}
}

func TestInterpret_BareReminderStoresEmpty(t *testing.T) {
	nb := &fakeNotebook{reminder: "old"}
	res, err := Interpret(context.Background(), "/reminder", nb)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if !res.Handled || !nb.reminderSet || nb.reminder != "" {
		t.Errorf("bare /reminder: handled=%v set=%v reminder=%q", res.Handled, nb.reminderSet, nb.reminder)
	}
}

func TestInterpret_TodoAppendsDuplicates(t *testing.T) {
	nb := &fakeNotebook{}
	for i := 0; i < 2; i++ {
		if _, err := Interpret(context.Background(), "/todo buy eggs", nb); err != nil {
			t.Fatalf("Interpret() error = %v", err)
		}
	}
	if len(nb.todos) != 2 || nb.todos[0] != "buy eggs" || nb.todos[1] != "buy eggs" {
		t.Errorf("todos = %v, want duplicates preserved", nb.todos)
	}
}

func TestInterpret_RepliesEchoStoredTextAsIs(t *testing.T) {
	tests := []struct {
		draft string
		want  string
	}{
		{`/todo say "hi"`, `Added to your to-do list: "say "hi""`},
		{"/reminder tab\there", "Reminder set: \"tab\there\""},
		{`/reminder C:\temp`, `Reminder set: "C:\temp"`},
	}

	for _, tt := range tests {
		t.Run(tt.draft, func(t *testing.T) {
			res, err := Interpret(context.Background(), tt.draft, &fakeNotebook{})
			if err != nil {
				t.Fatalf("Interpret() error = %v", err)
			}
			if res.Reply != tt.want {
				t.Errorf("Reply = %q, want %q", res.Reply, tt.want)
			}
		})
	}
}

func TestInterpret_Unhandled(t *testing.T) {
	nb := &fakeNotebook{}
	res, err := Interpret(context.Background(), "hello there", nb)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if res.Handled || nb.reminderSet || len(nb.todos) != 0 {
		t.Errorf("unhandled draft touched notebook: %+v", res)
	}
}

func TestInterpret_NotebookError(t *testing.T) {
	nb := &fakeNotebook{err: fmt.Errorf("disk full")}
	res, err := Interpret(context.Background(), "/todo x", nb)
	if err == nil {
		t.Fatal("Interpret() expected error")
	}
	if res.Handled {
		t.Error("Handled = true on notebook failure")
	}
}

func TestKindString(t *testing.T) {
	if KindReminder.String() != "reminder" || KindTodo.String() != "todo" || KindNone.String() != "none" {
		t.Error("Kind.String() mismatch")
	}
}
