// Package ratelimit throttles API callers with a token bucket per key. The
// bucket starts full and gains RefillTokens every RefillInterval, up to
// Capacity.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultCapacity       = 100
	DefaultRefillTokens   = 100
	DefaultRefillInterval = 15 * time.Minute
	DefaultKeyPrefix      = "ratelimit:"
)

type Config struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	KeyPrefix      string
}

func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity,
		RefillTokens:   DefaultRefillTokens,
		RefillInterval: DefaultRefillInterval,
		KeyPrefix:      DefaultKeyPrefix,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.New("rate limit capacity must be positive")
	case c.RefillTokens <= 0:
		return errors.New("rate limit refill tokens must be positive")
	case c.RefillInterval <= 0:
		return errors.New("rate limit refill interval must be positive")
	}
	return nil
}

// idleTTL is how long an untouched bucket takes to fill up again. After that
// its state is indistinguishable from a fresh bucket and can be dropped.
func (c Config) idleTTL() time.Duration {
	intervals := (c.Capacity + c.RefillTokens - 1) / c.RefillTokens
	return time.Duration(intervals) * c.RefillInterval
}

// Decision is the outcome of taking one token from a bucket.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is set on denied decisions and tells when the next token
	// arrives.
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
