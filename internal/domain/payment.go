package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type IntentStatus string

const (
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
	IntentPending   IntentStatus = "pending"
)

type IntentRequest struct {
	Token       string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
}

// PaymentGateway is the external service that settles money. The engine
// only creates intents and reads their status back.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*PaymentIntent, error)
	GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, error)
}
