// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
)

// ErrNoKeys is returned when an entry has neither a program id nor an episode key.
var ErrNoKeys = errors.New("history: entry has no keys")

// Store is the prior-recordings history.
type Store interface {
	// Seen reports whether any of keys has been recorded.
	Seen(ctx context.Context, keys ...string) (bool, error)
	// Record stores e under all of its keys.
	Record(ctx context.Context, e Entry) error
}

// NewStore creates a history store for the given backend. The sqlite
// backend lives with the listings database and is wired by the caller.
func NewStore(backend, dir string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "badger":
		if dir == "" {
			return nil, fmt.Errorf("badger history backend needs a data directory")
		}
		return OpenBadger(filepath.Join(dir, "history"))
	default:
		return nil, fmt.Errorf("unknown history backend: %s (supported: memory, badger)", backend)
	}
}

// MemoryStore is an in-process Store used for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Seen(ctx context.Context, keys ...string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range keys {
		if _, ok := m.entries[k]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keys := e.Keys()
	if len(keys) == 0 {
		return ErrNoKeys
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.entries[k] = e
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
