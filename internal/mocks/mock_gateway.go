package mocks

import (
	"context"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPaymentGateway struct {
	mock.Mock
	domain.PaymentGateway
}

func (m *MockPaymentGateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, req)

	intent, _ := args.Get(0).(*domain.PaymentIntent)
	return intent, args.Error(1)
}

func (m *MockPaymentGateway) GetIntentStatus(ctx context.Context, intentID string) (domain.IntentStatus, error) {
	args := m.Called(ctx, intentID)
	return args.Get(0).(domain.IntentStatus), args.Error(1)
}
