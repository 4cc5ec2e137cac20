package payment

import (
	"context"
	"errors"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeGateway settles reservations through Stripe PaymentIntents. The API
// key is configured globally through stripe.Key.
type StripeGateway struct{}

func NewStripeGateway(secretKey string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}

	stripe.Key = secretKey

	return &StripeGateway{}, nil
}

func (s *StripeGateway) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(minorUnits(req.Amount)),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(req.Description),
		Metadata: map[string]string{
			"reservation_token": req.Token,
		},
	}

	// retried creates for the same reservation return the same intent
	params.SetIdempotencyKey("reservation-" + req.Token)

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}

	return &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       intentStatus(pi.Status),
	}, nil
}

func (s *StripeGateway) GetIntentStatus(ctx context.Context, intentID string) (domain.IntentStatus, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	}

	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return "", err
	}

	return intentStatus(pi.Status), nil
}

func intentStatus(status stripe.PaymentIntentStatus) domain.IntentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return domain.IntentFailed
	default:
		return domain.IntentPending
	}
}

// minorUnits converts an amount to the currency's smallest unit.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
