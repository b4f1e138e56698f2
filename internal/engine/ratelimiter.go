package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// RateLimiter is a per-key sliding window limiter on Redis. Each admitted
// request is a sorted set member scored by its arrival time in milliseconds.
type RateLimiter struct {
	client *redis.Client
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// KEYS[1] window set; ARGV now_ms, window_ms, limit, member.
// Returns {allowed, count after the call, score of the oldest member}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
    redis.call('ZADD', KEYS[1], now, ARGV[4])
    redis.call('PEXPIRE', KEYS[1], window)
    count = count + 1
    allowed = 1
end

local oldest = now
local first = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if first[2] then
    oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// NewRateLimiter creates a limiter counting requests over window. A
// non-positive window means one second.
func NewRateLimiter(client *redis.Client, window time.Duration, logger *slog.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{client: client, window: window, logger: logger, now: time.Now}
}

func rlKey(key string) string {
	return fmt.Sprintf("trackflow:rl:%s", key)
}

// Allow admits one request for key if fewer than limit were admitted in the
// trailing window. A limit <= 0 disables limiting and Redis errors fail open.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	if limit <= 0 {
		return Decision{Allowed: true}
	}

	now := rl.now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, rl.client, []string{rlKey(key)},
		now, rl.window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil || len(res) != 3 {
		rl.logger.Error("rate limiter script failed", "error", err, "key", key)
		return Decision{Allowed: true, Limit: limit, Remaining: limit}
	}

	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: max(limit-int(res[1]), 0),
	}
	if !d.Allowed {
		d.RetryAfter = max(time.Duration(res[2]+rl.window.Milliseconds()-now)*time.Millisecond, time.Millisecond)
		rl.logger.Debug("rate limited", "key", key, "limit", limit, "retry_after", d.RetryAfter.String())
	}
	return d
}
