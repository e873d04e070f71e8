package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds report ingestion per project using a sliding window
// over a Redis sorted set. A Lua script atomically expires old entries,
// checks the count and records the new request.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	window      time.Duration
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window / 1000 + 1)
    return 1
else
    return 0
end
`)

func NewRateLimiter(redisClient *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		window:      time.Minute,
	}
}

func rlKey(dsn string) string {
	return fmt.Sprintf("rl:%s", dsn)
}

// Allow checks whether another report from this project fits in the
// current window. Fails open when Redis is unavailable: dropping telemetry
// because the limiter is down would be worse than letting a burst through.
func (rl *RateLimiter) Allow(ctx context.Context, dsn string, limit int) bool {
	if limit <= 0 {
		return true
	}

	key := rlKey(dsn)
	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%10000)

	result, err := rl.script.Run(ctx, rl.redisClient, []string{key},
		now, rl.window.Milliseconds(), limit, member,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "dsn", dsn)
		return true
	}

	if result == 0 {
		rl.logger.Debug("report rate limited", "dsn", dsn, "limit", limit)
		return false
	}

	return true
}
