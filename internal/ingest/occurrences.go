package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker keeps a short-lived time series of error occurrences per project
// in Redis sorted sets (score = unix milliseconds). Alert rules with time
// windows count against it; entries older than the retention horizon are
// trimmed on every write.
type Tracker struct {
	redisClient *redis.Client
	logger      *slog.Logger
	retention   time.Duration
}

func NewTracker(redisClient *redis.Client, logger *slog.Logger) *Tracker {
	return &Tracker{
		redisClient: redisClient,
		logger:      logger,
		retention:   24 * time.Hour,
	}
}

func occKey(dsn string) string {
	return fmt.Sprintf("occ:%s", dsn)
}

// Record registers one error occurrence at t. Best-effort: a Redis failure
// is logged and swallowed, it must never fail ingestion.
func (tr *Tracker) Record(ctx context.Context, dsn string, t time.Time) {
	key := occKey(dsn)
	ms := t.UnixMilli()
	member := fmt.Sprintf("%d:%d", ms, t.UnixNano()%100000)

	pipe := tr.redisClient.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ms), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf",
		strconv.FormatInt(t.Add(-tr.retention).UnixMilli(), 10))
	pipe.Expire(ctx, key, tr.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		tr.logger.Error("failed to record occurrence", "error", err, "dsn", dsn)
	}
}

// CountRange returns the number of occurrences for dsn in [from, to).
func (tr *Tracker) CountRange(ctx context.Context, dsn string, from, to time.Time) (int64, error) {
	n, err := tr.redisClient.ZCount(ctx, occKey(dsn),
		strconv.FormatInt(from.UnixMilli(), 10),
		"("+strconv.FormatInt(to.UnixMilli(), 10),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("counting occurrences: %w", err)
	}
	return n, nil
}

// CountSince returns the number of occurrences for dsn in [since, now].
func (tr *Tracker) CountSince(ctx context.Context, dsn string, since time.Time) (int64, error) {
	n, err := tr.redisClient.ZCount(ctx, occKey(dsn),
		strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting occurrences: %w", err)
	}
	return n, nil
}

// PurgeBefore trims every project's series below the cutoff. Called by the
// retention job; per-write trimming already bounds steady-state growth.
func (tr *Tracker) PurgeBefore(ctx context.Context, cutoff time.Time) {
	var cursor uint64
	max := strconv.FormatInt(cutoff.UnixMilli(), 10)
	for {
		keys, next, err := tr.redisClient.Scan(ctx, cursor, "occ:*", 100).Result()
		if err != nil {
			tr.logger.Error("failed to scan occurrence keys", "error", err)
			return
		}
		for _, key := range keys {
			if err := tr.redisClient.ZRemRangeByScore(ctx, key, "-inf", max).Err(); err != nil {
				tr.logger.Error("failed to trim occurrence series", "error", err, "key", key)
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
