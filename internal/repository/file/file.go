// Package file implements a repository.Store on top of a directory tree: documents
// are JSON files and stock history logs are CSV files with a header row.
package file

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Houeta/edition-tracker/internal/models"
	"github.com/Houeta/edition-tracker/internal/repository"
	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

var historyHeader = []string{"datetime", "available_stock"}

// Store keeps documents and logs below a root directory of an afero filesystem.
type Store struct {
	fs  afero.Fs
	log *slog.Logger
}

// NewStore creates a store rooted at dir on the OS filesystem.
func NewStore(log *slog.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return NewStoreFs(log, afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewStoreFs creates a store on an arbitrary filesystem, rooted at its top level.
func NewStoreFs(log *slog.Logger, fsys afero.Fs) *Store {
	return &Store{fs: fsys, log: log}
}

// Get reads the JSON document stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	const opn = "repository.file.Get"

	data, err := afero.ReadFile(s.fs, documentPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%s: failed to read %s: %w", opn, key, err)
	}

	return data, nil
}

// Put writes the document to a temporary file and renames it over the old one,
// so readers never observe a partially written document.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	const opn = "repository.file.Put"
	path := documentPath(key)
	dir := filepath.Dir(path)

	if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%s: failed to create directory %s: %w", opn, dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%s: failed to create temporary file: %w", opn, err)
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(value); err != nil {
		tmp.Close()
		s.removeQuietly(tmpName)
		return fmt.Errorf("%s: failed to write %s: %w", opn, key, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		s.removeQuietly(tmpName)
		return fmt.Errorf("%s: failed to sync %s: %w", opn, key, err)
	}
	if err = tmp.Close(); err != nil {
		s.removeQuietly(tmpName)
		return fmt.Errorf("%s: failed to close %s: %w", opn, key, err)
	}

	if err = s.fs.Rename(tmpName, path); err != nil {
		s.removeQuietly(tmpName)
		return fmt.Errorf("%s: failed to replace %s: %w", opn, key, err)
	}

	return nil
}

// Append adds a CSV row to the log, writing the header row when the log is created.
func (s *Store) Append(_ context.Context, key string, rec models.StockRecord) error {
	const opn = "repository.file.Append"
	path := logPath(key)

	if err := s.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("%s: failed to create directory: %w", opn, err)
	}

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return fmt.Errorf("%s: failed to stat %s: %w", opn, key, err)
	}

	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("%s: failed to open %s: %w", opn, key, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err = w.Write(historyHeader); err != nil {
			return fmt.Errorf("%s: failed to write header: %w", opn, err)
		}
	}
	if err = w.Write([]string{formatTimestamp(rec.Time), strconv.Itoa(rec.Stock)}); err != nil {
		return fmt.Errorf("%s: failed to write record: %w", opn, err)
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return fmt.Errorf("%s: failed to flush %s: %w", opn, key, err)
	}

	return nil
}

// Log parses the CSV log stored under key, skipping the header row.
func (s *Store) Log(_ context.Context, key string) ([]models.StockRecord, error) {
	const opn = "repository.file.Log"

	f, err := s.fs.Open(logPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%s: failed to open %s: %w", opn, key, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(historyHeader)

	var records []models.StockRecord
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read %s: %w", opn, key, err)
		}
		if line == 1 {
			continue
		}

		rec, err := parseRecord(row)
		if err != nil {
			return nil, fmt.Errorf("%s: %s line %d: %w", opn, key, line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// Close is a no-op; the filesystem holds no resources between calls.
func (s *Store) Close() error {
	return nil
}

func (s *Store) removeQuietly(name string) {
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("Failed to remove temporary file", "op", "repository.file.Put", "file", name, "error", err)
	}
}

func documentPath(key string) string {
	return filepath.FromSlash(key) + ".json"
}

func logPath(key string) string {
	return filepath.FromSlash(key) + ".csv"
}

// formatTimestamp renders seconds since epoch with microsecond precision.
func formatTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', -1, 64)
}

func parseRecord(row []string) (models.StockRecord, error) {
	seconds, err := strconv.ParseFloat(row[0], 64)
	if err != nil {
		return models.StockRecord{}, fmt.Errorf("invalid timestamp %q: %w", row[0], err)
	}
	stock, err := strconv.Atoi(row[1])
	if err != nil {
		return models.StockRecord{}, fmt.Errorf("invalid stock %q: %w", row[1], err)
	}

	return models.StockRecord{Time: time.UnixMicro(int64(math.Round(seconds * 1e6))), Stock: stock}, nil
}
