// Package history keeps a permanent ledger of finished downloads in a
// local sqlite database, separate from the live session file.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one finished download.
type Entry struct {
	ID            int64
	URL           string
	FilePath      string
	Size          int64
	Queue         string
	Category      string
	ChecksumState string
	CompletedAt   time.Time
}

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	file_path TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	queue TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	checksum_state TEXT NOT NULL DEFAULT '',
	completed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_completed_at ON downloads(completed_at);
`

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add records a finished download.
func (s *Store) Add(e Entry) error {
	completedAt := e.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO downloads (url, file_path, size, queue, category, checksum_state, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.URL, e.FilePath, e.Size, e.Queue, e.Category, e.ChecksumState, completedAt.UnixMilli(),
	)
	return err
}

// Recent returns the most recently completed downloads, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, url, file_path, size, queue, category, checksum_state, completed_at
		 FROM downloads ORDER BY completed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var completedAt int64
		if err := rows.Scan(&e.ID, &e.URL, &e.FilePath, &e.Size, &e.Queue, &e.Category, &e.ChecksumState, &completedAt); err != nil {
			return nil, err
		}
		e.CompletedAt = time.UnixMilli(completedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune removes entries older than the cutoff. Returns rows removed.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM downloads WHERE completed_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
