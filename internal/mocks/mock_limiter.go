package mocks

import (
	"context"

	"github.com/metinatakli/seat-reservation/internal/ratelimit"
	"github.com/stretchr/testify/mock"
)

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(ratelimit.Decision), args.Error(1)
}
