// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests and diskless devices to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation.
type MockStore struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	sessions []*SessionRecord
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		entries: make(map[string]Entry),
	}
}

func (m *MockStore) Get(ctx context.Context, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return e.Value, nil
}

func (m *MockStore) Set(ctx context.Context, key, value string) error {
	if err := validateEntry(key, value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return ErrNotFound
	}
	delete(m.entries, key)
	return nil
}

func (m *MockStore) RecordSession(ctx context.Context, rec *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Make a copy to avoid external modification
	r := *rec
	m.sessions = append(m.sessions, &r)
	if over := len(m.sessions) - DefaultKeepSessions; over > 0 {
		m.sessions = append(m.sessions[:0:0], m.sessions[over:]...)
	}
	return nil
}

func (m *MockStore) RecentSessions(ctx context.Context, limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*SessionRecord
	for i := len(m.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		r := *m.sessions[i]
		out = append(out, &r)
	}
	return out, nil
}

func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks.
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
