package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/metinatakli/seat-reservation/internal/clock"
	"github.com/redis/go-redis/v9"
)

// The bucket lives in one hash per key. The script refills it by whole
// intervals, takes a token if there is one and refreshes the key TTL.
var takeTokenScript = redis.NewScript(`
	-- KEYS[1] = bucket hash
	-- ARGV[1] = now in unix ms, ARGV[2] = capacity, ARGV[3] = refill tokens
	-- ARGV[4] = refill interval in ms, ARGV[5] = ttl in seconds

	local now = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill = tonumber(ARGV[3])
	local interval = tonumber(ARGV[4])

	local state = redis.call("HMGET", KEYS[1], "tokens", "last_refill_ms")
	local tokens = tonumber(state[1])
	local last = tonumber(state[2])

	if tokens == nil or last == nil then
		tokens = capacity
		last = now
	end

	local elapsed = math.max(0, now - last)
	local intervals = math.floor(elapsed / interval)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals * refill)
		last = last + intervals * interval
	end

	local allowed = 0
	local retry = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry = math.max(0, interval - (now - last))
	end

	redis.call("HSET", KEYS[1], "tokens", tokens, "last_refill_ms", last)
	redis.call("EXPIRE", KEYS[1], ARGV[5])

	return {allowed, tokens, retry}
`)

// RedisLimiter shares buckets between every instance using the same Redis.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	clock  clock.Clock
}

func NewRedisLimiter(client *redis.Client, cfg Config, clk clock.Clock) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg, clock: clk}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	ttl := max(1, int64(l.cfg.idleTTL()/time.Second))

	res, err := takeTokenScript.Run(ctx, l.client, []string{l.cfg.KeyPrefix + key},
		l.clock.Now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		ttl,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("take rate limit token: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("take rate limit token: unexpected reply %v", res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Limit:      l.cfg.Capacity,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
