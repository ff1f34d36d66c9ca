// Package store persists conversation histories, the reminder and the todo list
// as whole-value snapshots in a key-value medium.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/errors"
)

// Storage keys.
const (
	KeyChats    = "chats"
	KeyReminder = "reminder"
	KeyTodos    = "todos"
)

// PersistedState is everything the store keeps between runs.
type PersistedState struct {
	Chats    chat.Chats
	Reminder string
	Todos    []string
}

// LoadResult is the outcome of Load.
type LoadResult struct {
	State *PersistedState

	// Seeded is true when no chats were stored yet (first run) or the stored chats were unreadable.
	Seeded bool

	// Warnings describe stored values that were unreadable or invalid and were replaced by defaults.
	Warnings []*errors.BanterError
}

// DefaultChats returns the first-run histories: one greeting in general, every other category empty.
func DefaultChats(now time.Time) chat.Chats {
	chats := make(chat.Chats, len(chat.CategoryIDs()))
	for _, id := range chat.CategoryIDs() {
		chats[id] = []chat.Message{}
	}
	chats[chat.DefaultCategoryID] = []chat.Message{
		chat.NewMessage(chat.RoleAssistant, chat.Greeting, now),
	}
	return chats
}

// DefaultState returns the first-run state.
func DefaultState(now time.Time) *PersistedState {
	return &PersistedState{
		Chats: DefaultChats(now),
		Todos: []string{},
	}
}

// Store reads and writes PersistedState through a KV.
type Store struct {
	kv  KV
	now func() time.Time
}

// New creates a Store over kv.
func New(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Load reads the persisted state. Missing or unreadable values fall back to defaults
// and are reported as warnings; only a failing medium returns an error.
func (s *Store) Load(ctx context.Context) (*LoadResult, error) {
	result := &LoadResult{State: &PersistedState{}}

	raw, ok, err := s.kv.Get(ctx, KeyChats)
	if err != nil {
		return nil, err
	}
	if !ok {
		result.State.Chats = DefaultChats(s.now())
		result.Seeded = true
	} else {
		chats, warnings, err := DecodeChats(raw)
		if err != nil {
			result.Warnings = append(result.Warnings, errors.NewStorageCorrupt(KeyChats, err))
			result.State.Chats = DefaultChats(s.now())
			result.Seeded = true
		} else {
			result.Warnings = append(result.Warnings, warnings...)
			result.State.Chats = chats
		}
	}

	reminder, _, err := s.kv.Get(ctx, KeyReminder)
	if err != nil {
		return nil, err
	}
	result.State.Reminder = reminder

	result.State.Todos = []string{}
	rawTodos, ok, err := s.kv.Get(ctx, KeyTodos)
	if err != nil {
		return nil, err
	}
	if ok {
		var todos []string
		if err := json.Unmarshal([]byte(rawTodos), &todos); err != nil {
			result.Warnings = append(result.Warnings, errors.NewStorageCorrupt(KeyTodos, err))
		} else if todos != nil {
			result.State.Todos = todos
		}
	}

	return result, nil
}

// Save writes every part of state.
func (s *Store) Save(ctx context.Context, state *PersistedState) error {
	if err := s.SaveChats(ctx, state.Chats); err != nil {
		return err
	}
	if err := s.SaveReminder(ctx, state.Reminder); err != nil {
		return err
	}
	return s.SaveTodos(ctx, state.Todos)
}

// SaveChats overwrites the stored histories with a full snapshot.
func (s *Store) SaveChats(ctx context.Context, chats chat.Chats) error {
	payload, err := EncodeChats(chats)
	if err != nil {
		return errors.NewInternal(err)
	}
	return s.kv.Put(ctx, KeyChats, payload)
}

// SaveReminder overwrites the stored reminder.
func (s *Store) SaveReminder(ctx context.Context, reminder string) error {
	return s.kv.Put(ctx, KeyReminder, reminder)
}

// SaveTodos overwrites the stored todo list.
func (s *Store) SaveTodos(ctx context.Context, todos []string) error {
	if todos == nil {
		todos = []string{}
	}
	data, err := json.Marshal(todos)
	if err != nil {
		return errors.NewInternal(err)
	}
	return s.kv.Put(ctx, KeyTodos, string(data))
}

// EncodeChats serializes histories deterministically: keys sorted, empty histories as [].
func EncodeChats(chats chat.Chats) (string, error) {
	out := make(map[string][]chat.Message, len(chats))
	for id, msgs := range chats {
		if msgs == nil {
			msgs = []chat.Message{}
		}
		out[id] = msgs
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeChats parses a stored chats payload. A payload that is not a JSON object of message
// arrays is an error. Unknown category keys are dropped with a warning; missing categories
// are filled with empty histories.
func DecodeChats(raw string) (chat.Chats, []*errors.BanterError, error) {
	var decoded map[string][]chat.Message
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, nil, err
	}
	if decoded == nil {
		return nil, nil, fmt.Errorf("chats payload is null")
	}

	var warnings []*errors.BanterError
	unknown := make([]string, 0)
	for id := range decoded {
		if !chat.IsCategory(id) {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		delete(decoded, id)
		warnings = append(warnings, errors.NewStorageCorrupt(KeyChats, fmt.Errorf("unknown category %q dropped", id)))
	}

	chats := make(chat.Chats, len(chat.CategoryIDs()))
	for _, id := range chat.CategoryIDs() {
		msgs := decoded[id]
		if msgs == nil {
			msgs = []chat.Message{}
		}
		chats[id] = msgs
	}
	return chats, warnings, nil
}
