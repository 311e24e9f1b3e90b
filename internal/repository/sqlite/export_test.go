package sqlite

import (
	"database/sql"
	"io"
	"log/slog"
)

// NewForTest wraps an existing database handle, skipping schema initialization.
func NewForTest(db *sql.DB) *Store {
	return &Store{db: db, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
