// Package store provides persistent storage for the device server using SQLite.
//
// # Architecture
//
// Two small interfaces cover everything the server persists:
//
//   - KV: the configuration values read and written by the config tools
//   - SessionLog: one summary row per finished client connection
//
// SQLiteStore implements both in a single struct. MockStore is an in-memory
// equivalent used by tests and by devices configured without a database.
//
// # SQLite Configuration
//
// Either driver may be selected with Options.Driver:
//
//   - "sqlite": modernc.org/sqlite, pure Go, the default
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//
// The store uses WAL mode and a single connection. Database file locations:
//
//   - Production: /var/lib/tinymcp/tinymcp.db
//   - Development: ~/.local/share/tinymcp/tinymcp.db
//   - Testing: :memory:
//
// # Error Handling
//
//   - ErrNotFound: the key does not exist
//   - ErrInvalidKey: the key is empty, too long, or not UTF-8
//   - ErrValueTooLarge: the value exceeds MaxValueSize
//
// All methods accept context.Context for cancellation support.
package store
