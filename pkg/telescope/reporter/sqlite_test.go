package reporter

import (
	"fmt"
	"path/filepath"
	"testing"
)

func setupSQLiteStore(t *testing.T, max int) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offline.db")
	s, err := NewSQLiteStore(path, max)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteStore_BoundedFIFO(t *testing.T) {
	s, _ := setupSQLiteStore(t, 3)

	for i := 0; i < 5; i++ {
		if err := s.Append(batchWithMessage(fmt.Sprintf("b%d", i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := s.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Errorf("Len = %d, want 3", n)
	}

	batches, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("loaded %d batches, want 3", len(batches))
	}
	if batches[0].Events[0].Message != "b2" {
		t.Errorf("oldest surviving batch = %q, want b2", batches[0].Events[0].Message)
	}
	if batches[2].Events[0].Message != "b4" {
		t.Errorf("newest batch = %q, want b4", batches[2].Events[0].Message)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline.db")

	s, err := NewSQLiteStore(path, 100)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	s.Append(batchWithMessage("persisted-1"))
	s.Append(batchWithMessage("persisted-2"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(path, 100)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	batches, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("loaded %d batches after reopen, want 2", len(batches))
	}
	if batches[0].Events[0].Message != "persisted-1" {
		t.Errorf("batch order lost across reopen: %q", batches[0].Events[0].Message)
	}
}

func TestSQLiteStore_Clear(t *testing.T) {
	s, _ := setupSQLiteStore(t, 10)
	s.Append(batchWithMessage("b0"))

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	n, _ := s.Len()
	if n != 0 {
		t.Errorf("Len after Clear = %d, want 0", n)
	}
}

func TestSQLiteStore_SkipsCorruptRows(t *testing.T) {
	s, _ := setupSQLiteStore(t, 10)
	s.Append(batchWithMessage("good"))

	if _, err := s.db.Exec(
		"INSERT INTO offline_queue (payload, created_at) VALUES (?, 0)",
		[]byte("{corrupt"),
	); err != nil {
		t.Fatalf("inserting corrupt row: %v", err)
	}

	batches, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(batches) != 1 || batches[0].Events[0].Message != "good" {
		t.Errorf("corrupt row should be skipped, got %d batches", len(batches))
	}
}
