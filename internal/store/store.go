// ABOUTME: Store interfaces and data types for tinymcp persistence
// ABOUTME: Defines the persisted configuration KV and the session history log

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidKey is returned for empty, oversized, or non-UTF-8 keys
var ErrInvalidKey = errors.New("invalid key")

// ErrValueTooLarge is returned when a value exceeds MaxValueSize
var ErrValueTooLarge = errors.New("value too large")

const (
	// MaxKeyLength bounds configuration keys.
	MaxKeyLength = 64
	// MaxValueSize bounds configuration values so any value can be
	// returned inside a single response frame.
	MaxValueSize = 1024
)

// Entry is one persisted configuration value
type Entry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// KV is the persisted configuration collaborator. Implementations are only
// used from a single worker at a time but must tolerate sharing.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, key string) error
}

// SessionRecord summarises one finished client connection
type SessionRecord struct {
	ID         string
	RemoteAddr string
	StartedAt  time.Time
	EndedAt    time.Time
	Requests   int
	Errors     int
	CloseCause string
}

// DefaultKeepSessions is how many session summaries a store retains. Older
// rows are pruned as new ones are recorded.
const DefaultKeepSessions = 200

// SessionLog persists session summaries for diagnostics
type SessionLog interface {
	RecordSession(ctx context.Context, rec *SessionRecord) error
	RecentSessions(ctx context.Context, limit int) ([]*SessionRecord, error)
}

// Store combines every persistence interface.
type Store interface {
	KV
	SessionLog
	Close() error
}

// ValidateKey checks a configuration key.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, MaxKeyLength)
	case !utf8.ValidString(key):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidKey)
	}
	return nil
}

func validateEntry(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrValueTooLarge, len(value), MaxValueSize)
	}
	return nil
}
