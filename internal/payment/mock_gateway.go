package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/metinatakli/seat-reservation/internal/domain"
)

const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

type mockIntent struct {
	request domain.IntentRequest
	status  domain.IntentStatus
}

// MockGateway is an in-memory gateway for local runs. New intents start in
// the configured initial status, and SetStatus simulates the customer
// completing or abandoning payment.
type MockGateway struct {
	initial domain.IntentStatus
	intents sync.Map
}

func NewMockGateway(initial domain.IntentStatus) *MockGateway {
	if initial == "" {
		initial = domain.IntentPending
	}

	return &MockGateway{initial: initial}
}

func (g *MockGateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.PaymentIntent, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", req.Amount)
	}

	id := "pi_mock_" + uuid.NewString()[:8]
	g.intents.Store(id, &mockIntent{request: req, status: g.initial})

	return &domain.PaymentIntent{
		ID:           id,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, randomAlphanumeric(24)),
		Status:       g.initial,
	}, nil
}

func (g *MockGateway) GetIntentStatus(ctx context.Context, intentID string) (domain.IntentStatus, error) {
	v, ok := g.intents.Load(intentID)
	if !ok {
		return "", fmt.Errorf("no such payment intent: %s", intentID)
	}

	return v.(*mockIntent).status, nil
}

func (g *MockGateway) SetStatus(intentID string, status domain.IntentStatus) error {
	v, ok := g.intents.Load(intentID)
	if !ok {
		return fmt.Errorf("no such payment intent: %s", intentID)
	}

	g.intents.Store(intentID, &mockIntent{request: v.(*mockIntent).request, status: status})

	return nil
}
