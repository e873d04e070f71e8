package reporter

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/telescope-hq/telescope/pkg/telescope/event"
)

const offlineSchema = `
CREATE TABLE IF NOT EXISTS offline_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
`

// SQLiteStore persists failed batches to a local SQLite file so they
// survive process restarts.
type SQLiteStore struct {
	db  *sql.DB
	max int
}

func NewSQLiteStore(path string, max int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating offline dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening offline store: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(offlineSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating offline schema: %w", err)
	}

	return &SQLiteStore{db: db, max: max}, nil
}

// Append inserts a batch and evicts the oldest rows past the bound, both
// inside one transaction so the bound holds even across a crash.
func (s *SQLiteStore) Append(batch event.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshaling batch: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting offline tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO offline_queue (payload, created_at) VALUES (?, ?)",
		payload, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("inserting offline batch: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM offline_queue WHERE id NOT IN (
			SELECT id FROM offline_queue ORDER BY id DESC LIMIT ?
		)`, s.max,
	); err != nil {
		return fmt.Errorf("evicting offline batches: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Load() ([]event.Batch, error) {
	rows, err := s.db.Query("SELECT payload FROM offline_queue ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying offline batches: %w", err)
	}
	defer rows.Close()

	var batches []event.Batch
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning offline batch: %w", err)
		}
		var b event.Batch
		if err := json.Unmarshal(payload, &b); err != nil {
			// A corrupt row is dropped on the next Clear; skip it.
			continue
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM offline_queue"); err != nil {
		return fmt.Errorf("clearing offline queue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Len() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM offline_queue").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting offline batches: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
