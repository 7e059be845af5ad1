// ABOUTME: Tests for the SQLite and in-memory store implementations
// ABOUTME: Covers config upserts, key validation, deletion, and session history

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// implementations runs fn against every Store implementation.
func implementations(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("mock", func(t *testing.T) { fn(t, NewMockStore()) })
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "postgres", Path: ":memory:"})
	assert.Error(t, err)
}

func TestSetAndGet(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "device_name", "bench-1"))

		got, err := s.Get(ctx, "device_name")
		require.NoError(t, err)
		assert.Equal(t, "bench-1", got)

		// Reads do not change state.
		again, err := s.Get(ctx, "device_name")
		require.NoError(t, err)
		assert.Equal(t, got, again)
	})
}

func TestSetOverwrites(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "brightness", "40"))
		require.NoError(t, s.Set(ctx, "brightness", "90"))

		got, err := s.Get(ctx, "brightness")
		require.NoError(t, err)
		assert.Equal(t, "90", got)

		entries, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestGetMissing(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		_, err := s.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestKeyValidation(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		assert.ErrorIs(t, s.Set(ctx, "", "x"), ErrInvalidKey)
		assert.ErrorIs(t, s.Set(ctx, strings.Repeat("k", MaxKeyLength+1), "x"), ErrInvalidKey)
		assert.ErrorIs(t, s.Set(ctx, "ok", strings.Repeat("v", MaxValueSize+1)), ErrValueTooLarge)

		_, err := s.Get(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestListOrderedByKey(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, k := range []string{"zeta", "alpha", "mid"} {
			require.NoError(t, s.Set(ctx, k, k+"-value"))
		}

		entries, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "alpha", entries[0].Key)
		assert.Equal(t, "mid", entries[1].Key)
		assert.Equal(t, "zeta", entries[2].Key)
		assert.Equal(t, "alpha-value", entries[0].Value)
		assert.False(t, entries[0].UpdatedAt.IsZero())
	})
}

func TestDelete(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, "k", "v"))

		require.NoError(t, s.Delete(ctx, "k"))
		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.Delete(ctx, "k"), ErrNotFound)
	})
}

func TestRecentSessions(t *testing.T) {
	implementations(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		for i, id := range []string{"s1", "s2", "s3"} {
			rec := &SessionRecord{
				ID:         id,
				RemoteAddr: "10.0.0.2:5000",
				StartedAt:  base.Add(time.Duration(i) * time.Minute),
				EndedAt:    base.Add(time.Duration(i)*time.Minute + 30*time.Second),
				Requests:   i + 1,
				CloseCause: "peer closed",
			}
			require.NoError(t, s.RecordSession(ctx, rec))
		}

		recent, err := s.RecentSessions(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "s3", recent[0].ID)
		assert.Equal(t, "s2", recent[1].ID)
		assert.Equal(t, 3, recent[0].Requests)
		assert.Equal(t, "peer closed", recent[0].CloseCause)
		assert.True(t, recent[0].EndedAt.Equal(base.Add(2*time.Minute+30*time.Second)))
	})
}

func TestRecordSessionPrunesOldest(t *testing.T) {
	s, err := Open(Options{Path: ":memory:", KeepSessions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordSession(ctx, &SessionRecord{
			ID:        fmt.Sprintf("s%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
		}))
	}

	var rows int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&rows))
	assert.Equal(t, 3, rows)

	recent, err := s.RecentSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "s9", recent[0].ID)
	assert.Equal(t, "s7", recent[2].ID)
}

func TestMockStorePrunesOldest(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	for i := 0; i < DefaultKeepSessions+5; i++ {
		require.NoError(t, m.RecordSession(ctx, &SessionRecord{ID: fmt.Sprintf("s%d", i)}))
	}

	assert.Len(t, m.sessions, DefaultKeepSessions)
	recent, err := m.RecentSessions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("s%d", DefaultKeepSessions+4), recent[0].ID)
}
