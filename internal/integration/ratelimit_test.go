package integration_test

import (
	"context"
	"time"

	"github.com/metinatakli/seat-reservation/internal/ratelimit"
)

func (s *EngineSuite) TestRedisLimiterSharesBucketsAcrossInstances() {
	ctx := context.Background()
	cfg := ratelimit.Config{Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute, KeyPrefix: "ratelimit:"}

	first := ratelimit.NewRedisLimiter(s.redis, cfg, s.clock)
	second := ratelimit.NewRedisLimiter(s.redis, cfg, s.clock)

	d, err := first.Allow(ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(1, d.Remaining)

	d, err = second.Allow(ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(0, d.Remaining)

	s.clock.Advance(15 * time.Second)

	d, err = first.Allow(ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(45*time.Second, d.RetryAfter)

	d, err = second.Allow(ctx, "10.0.0.2")
	s.Require().NoError(err)
	s.True(d.Allowed, "other clients keep their own bucket")

	ttl, err := s.redis.TTL(ctx, "ratelimit:10.0.0.1").Result()
	s.Require().NoError(err)
	s.Positive(ttl)

	s.clock.Advance(time.Minute)

	d, err = second.Allow(ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(0, d.Remaining)
}
