package mocks

import (
	"context"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
	domain.Ledger
}

func (m *MockLedger) Append(ctx context.Context, ev domain.LedgerEvent) (int64, bool, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockLedger) Latest(ctx context.Context, token string) (*domain.Reservation, error) {
	args := m.Called(ctx, token)

	r, _ := args.Get(0).(*domain.Reservation)
	return r, args.Error(1)
}

func (m *MockLedger) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	args := m.Called(ctx, now, limit)

	tokens, _ := args.Get(0).([]string)
	return tokens, args.Error(1)
}

func (m *MockLedger) Live(ctx context.Context) ([]domain.Reservation, error) {
	args := m.Called(ctx)

	live, _ := args.Get(0).([]domain.Reservation)
	return live, args.Error(1)
}
