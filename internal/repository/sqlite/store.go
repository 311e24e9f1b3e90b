package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Houeta/edition-tracker/internal/models"
	"github.com/Houeta/edition-tracker/internal/repository"
)

// Get returns the document stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const opn = "repository.sqlite.Get"

	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM documents WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%s: failed to get document %s: %w", opn, key, err)
	}

	return value, nil
}

// Put inserts or replaces the document stored under key in a single statement.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	const opn = "repository.sqlite.Put"

	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO documents (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("%s: failed to put document %s: %w", opn, key, err)
	}

	return nil
}

// Append adds a stock record to the log stored under key.
func (s *Store) Append(ctx context.Context, key string, rec models.StockRecord) error {
	const opn = "repository.sqlite.Append"

	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO stock_history (key, recorded_at, available_stock) VALUES (?, ?, ?)",
		key, rec.Time.UnixMicro(), rec.Stock,
	)
	if err != nil {
		return fmt.Errorf("%s: failed to append to %s: %w", opn, key, err)
	}

	return nil
}

// Log returns all records stored under key in insertion order.
func (s *Store) Log(ctx context.Context, key string) ([]models.StockRecord, error) {
	const opn = "repository.sqlite.Log"

	rows, err := s.db.QueryContext(
		ctx,
		"SELECT recorded_at, available_stock FROM stock_history WHERE key = ? ORDER BY id",
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query log %s: %w", opn, key, err)
	}
	defer rows.Close()

	var records []models.StockRecord
	for rows.Next() {
		var (
			micros int64
			stock  int
		)
		if err = rows.Scan(&micros, &stock); err != nil {
			return nil, fmt.Errorf("%s: failed to scan record: %w", opn, err)
		}
		records = append(records, models.StockRecord{Time: time.UnixMicro(micros), Stock: stock})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration error: %w", opn, err)
	}

	if len(records) == 0 {
		return nil, repository.ErrNotFound
	}

	return records, nil
}
