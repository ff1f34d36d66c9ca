package store

import (
	"context"
	"database/sql"
	"sync"

	"github.com/hpungsan/banter/internal/db"
)

// KV is the durable key-value medium the store writes through.
type KV interface {
	// Get returns the value for key; ok is false if the key was never written.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Put overwrites the value for key.
	Put(ctx context.Context, key, value string) error
}

// SQLiteKV stores values in the kv table of a database opened with db.Init.
type SQLiteKV struct {
	DB *sql.DB
}

func (s SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	return db.GetValue(ctx, s.DB, key)
}

func (s SQLiteKV) Put(ctx context.Context, key, value string) error {
	return db.PutValue(ctx, s.DB, key, value)
}

// MemoryKV is a process-local KV, used for ephemeral sessions and tests.
type MemoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
