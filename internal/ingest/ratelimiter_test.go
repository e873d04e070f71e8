package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRateLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewRateLimiter(client, logger), mr
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl, _ := setupTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !rl.Allow(ctx, "proj-1", 5) {
			t.Errorf("report %d should be allowed (limit=5)", i+1)
		}
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl, _ := setupTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rl.Allow(ctx, "proj-1", 3)
	}

	if rl.Allow(ctx, "proj-1", 3) {
		t.Error("report should be blocked when over limit")
	}
}

func TestRateLimiter_ZeroLimitAllowsAll(t *testing.T) {
	rl, _ := setupTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if !rl.Allow(ctx, "proj-1", 0) {
			t.Errorf("report %d should be allowed with limit=0 (disabled)", i+1)
		}
	}
}

func TestRateLimiter_ProjectsAreIndependent(t *testing.T) {
	rl, _ := setupTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "proj-1", 2)
	}
	if rl.Allow(ctx, "proj-1", 2) {
		t.Error("proj-1 should be over its limit")
	}
	if !rl.Allow(ctx, "proj-2", 2) {
		t.Error("proj-2 should have its own window")
	}
}

func TestRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	rl, mr := setupTestRateLimiter(t)
	mr.Close()

	if !rl.Allow(context.Background(), "proj-1", 1) {
		t.Error("limiter should fail open when redis is unreachable")
	}
}
