package mocks

import (
	"context"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockShowRepo struct {
	mock.Mock
	domain.ShowRepository
}

func (m *MockShowRepo) GetShow(ctx context.Context, showID int64) (*domain.Show, error) {
	args := m.Called(ctx, showID)

	show, _ := args.Get(0).(*domain.Show)
	return show, args.Error(1)
}
