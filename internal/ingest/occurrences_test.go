package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestTracker(t *testing.T) *Tracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewTracker(client, logger)
}

func TestTracker_CountSince(t *testing.T) {
	tr := setupTestTracker(t)
	ctx := context.Background()
	now := time.Now()

	tr.Record(ctx, "proj-1", now.Add(-10*time.Minute))
	tr.Record(ctx, "proj-1", now.Add(-2*time.Minute))
	tr.Record(ctx, "proj-1", now.Add(-1*time.Minute))

	n, err := tr.CountSince(ctx, "proj-1", now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 occurrences in the last 5 minutes, got %d", n)
	}
}

func TestTracker_CountRange(t *testing.T) {
	tr := setupTestTracker(t)
	ctx := context.Background()
	now := time.Now()

	// Two in the recent window, one in the preceding window
	tr.Record(ctx, "proj-1", now.Add(-8*time.Minute))
	tr.Record(ctx, "proj-1", now.Add(-4*time.Minute))
	tr.Record(ctx, "proj-1", now.Add(-1*time.Minute))

	recent, err := tr.CountRange(ctx, "proj-1", now.Add(-5*time.Minute), now)
	if err != nil {
		t.Fatalf("CountRange: %v", err)
	}
	if recent != 2 {
		t.Errorf("recent window = %d, want 2", recent)
	}

	baseline, err := tr.CountRange(ctx, "proj-1", now.Add(-10*time.Minute), now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("CountRange: %v", err)
	}
	if baseline != 1 {
		t.Errorf("baseline window = %d, want 1", baseline)
	}
}

func TestTracker_ProjectsAreIndependent(t *testing.T) {
	tr := setupTestTracker(t)
	ctx := context.Background()
	now := time.Now()

	tr.Record(ctx, "proj-1", now)

	n, err := tr.CountSince(ctx, "proj-2", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 0 {
		t.Errorf("proj-2 should have no occurrences, got %d", n)
	}
}

func TestTracker_PurgeBefore(t *testing.T) {
	tr := setupTestTracker(t)
	ctx := context.Background()
	now := time.Now()

	tr.Record(ctx, "proj-1", now.Add(-2*time.Hour))
	tr.Record(ctx, "proj-1", now)

	tr.PurgeBefore(ctx, now.Add(-time.Hour))

	n, err := tr.CountSince(ctx, "proj-1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 occurrence after purge, got %d", n)
	}
}
