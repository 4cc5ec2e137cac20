package mocks

import (
	"context"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockSeatMap struct {
	mock.Mock
	domain.SeatMap
}

func (m *MockSeatMap) TryHold(
	ctx context.Context,
	showID int64,
	seats []domain.SeatID,
	token string,
	expiresAt time.Time) error {

	args := m.Called(ctx, showID, seats, token, expiresAt)
	return args.Error(0)
}

func (m *MockSeatMap) Release(ctx context.Context, showID int64, seats []domain.SeatID, token string) error {
	args := m.Called(ctx, showID, seats, token)
	return args.Error(0)
}

func (m *MockSeatMap) Commit(ctx context.Context, showID int64, seats []domain.SeatID, token string) error {
	args := m.Called(ctx, showID, seats, token)
	return args.Error(0)
}

func (m *MockSeatMap) Seats(ctx context.Context, showID int64) (map[domain.SeatID]domain.Seat, error) {
	args := m.Called(ctx, showID)

	seats, _ := args.Get(0).(map[domain.SeatID]domain.Seat)
	return seats, args.Error(1)
}

func (m *MockSeatMap) Shows(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)

	shows, _ := args.Get(0).([]int64)
	return shows, args.Error(1)
}

func (m *MockSeatMap) Load(ctx context.Context, seats []domain.Seat) error {
	args := m.Called(ctx, seats)
	return args.Error(0)
}
