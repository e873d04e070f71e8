package alert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// Breaker is a per-endpoint circuit breaker for webhook notification
// targets, backed by Redis so every server instance sees the same state.
// Transitions: closed → open → half-open → closed.
//
// - Closed: normal operation, failures are counted.
// - Open: notifications to the endpoint are skipped until cooldown.
// - Half-open: one test notification is allowed. Success closes the
//   circuit, failure re-opens it.
type Breaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

func NewBreaker(redisClient *redis.Client, logger *slog.Logger) *Breaker {
	return &Breaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: 5,
		cooldownPeriod:   time.Minute,
	}
}

// brKey hashes the endpoint URL so arbitrary URLs never leak into key
// syntax.
func brKey(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return fmt.Sprintf("alert:cb:ep:%s", hex.EncodeToString(sum[:8]))
}

// Allow checks whether a notification to this endpoint may proceed.
// Fails open on Redis errors: a broken breaker must not silence alerts.
func (b *Breaker) Allow(ctx context.Context, endpoint string) bool {
	key := brKey(endpoint)

	data, err := b.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return true
	}

	switch data["state"] {
	case StateOpen:
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if time.Now().Unix()-lastFailedAt >= int64(b.cooldownPeriod.Seconds()) {
			// Cooldown elapsed: allow one test notification.
			b.redisClient.HSet(ctx, key, "state", StateHalfOpen)
			b.logger.Info("alert endpoint breaker half-open", "endpoint", endpoint)
			return true
		}
		return false

	default:
		return true
	}
}

// RecordSuccess resets the endpoint's circuit to closed.
func (b *Breaker) RecordSuccess(ctx context.Context, endpoint string) {
	key := brKey(endpoint)

	state, _ := b.redisClient.HGet(ctx, key, "state").Result()

	b.redisClient.HSet(ctx, key,
		"state", StateClosed,
		"failures", 0,
	)

	if state == StateHalfOpen {
		b.logger.Info("alert endpoint breaker closed (recovered)", "endpoint", endpoint)
	}
}

// RecordFailure counts one failed notification, opening the circuit at
// the threshold. A failed half-open test re-opens immediately.
func (b *Breaker) RecordFailure(ctx context.Context, endpoint string) {
	key := brKey(endpoint)

	failures, err := b.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		b.logger.Error("failed to record breaker failure", "error", err)
		return
	}

	b.redisClient.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	state, _ := b.redisClient.HGet(ctx, key, "state").Result()

	if state == StateHalfOpen {
		b.redisClient.HSet(ctx, key, "state", StateOpen)
		b.logger.Warn("alert endpoint breaker re-opened (test failed)", "endpoint", endpoint)
	} else if failures >= int64(b.failureThreshold) {
		b.redisClient.HSet(ctx, key, "state", StateOpen)
		b.logger.Warn("alert endpoint breaker opened",
			"endpoint", endpoint,
			"failures", failures,
			"threshold", b.failureThreshold,
		)
	} else if state == "" {
		b.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}
