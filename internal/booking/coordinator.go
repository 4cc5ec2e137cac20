package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/metinatakli/seat-reservation/internal/clock"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/metinatakli/seat-reservation/internal/metrics"
	"github.com/shopspring/decimal"
)

const DefaultGatewayTimeout = 10 * time.Second

// Holds is the part of the hold manager the coordinator drives.
type Holds interface {
	Get(ctx context.Context, token, requesterID string) (*domain.Reservation, error)
	Abort(ctx context.Context, r *domain.Reservation, kind domain.EventKind, reason string) (bool, error)
	Book(ctx context.Context, r *domain.Reservation) error
	BookingCutoff() time.Duration
}

// Payment is what the client needs to complete payment with the gateway.
type Payment struct {
	Token        string
	IntentID     string
	ClientSecret string
	Amount       decimal.Decimal
	Currency     string
}

// Coordinator drives a held reservation through the payment gateway to a
// permanent booking.
type Coordinator struct {
	ledger   domain.Ledger
	holds    Holds
	gateway  domain.PaymentGateway
	notifier domain.Notifier
	alerter  domain.Alerter
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Recorder

	gatewayTimeout time.Duration
}

type Option func(*Coordinator)

func WithGatewayTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.gatewayTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *Coordinator) {
		c.metrics = rec
	}
}

func NewCoordinator(
	ledger domain.Ledger,
	holds Holds,
	gateway domain.PaymentGateway,
	notifier domain.Notifier,
	alerter domain.Alerter,
	clk clock.Clock,
	opts ...Option) *Coordinator {

	c := &Coordinator{
		ledger:         ledger,
		holds:          holds,
		gateway:        gateway,
		notifier:       notifier,
		alerter:        alerter,
		clock:          clk,
		logger:         slog.New(slog.DiscardHandler),
		metrics:        metrics.Discard(),
		gatewayTimeout: DefaultGatewayTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// gatewayContext detaches a gateway call from the caller, so a client
// disconnect never cancels a call that may already have moved money.
func (c *Coordinator) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.gatewayTimeout)
}

// InitiatePayment creates a gateway intent for the reservation total and
// moves the reservation to AwaitingPayment.
func (c *Coordinator) InitiatePayment(
	ctx context.Context,
	token, requesterID string,
	amount decimal.Decimal) (*Payment, error) {

	r, err := c.holds.Get(ctx, token, requesterID)
	if err != nil {
		return nil, err
	}

	if r.Status != domain.StatusPending {
		return nil, domain.ErrReservationNotPending
	}

	if r.Expired(c.clock.Now()) {
		return nil, domain.ErrReservationExpired
	}

	if !amount.Equal(r.Amount) {
		return nil, fmt.Errorf("%w: expected %s %s", domain.ErrAmountMismatch, r.Amount.StringFixed(2), r.Currency)
	}

	gctx, cancel := c.gatewayContext(ctx)
	defer cancel()

	started := time.Now()
	intent, err := c.gateway.CreateIntent(gctx, domain.IntentRequest{
		Token:       r.Token,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: fmt.Sprintf("Show %d, seats %s", r.ShowID, seatList(r.Seats)),
	})
	c.metrics.GatewayCall(ctx, "create_intent", started, err)

	if err != nil {
		c.logger.Error("failed to create payment intent", "token", r.Token, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	ev := r.Next(domain.EventPaymentInitiated, c.clock.Now())
	ev.IntentID = intent.ID

	_, applied, err := c.ledger.Append(gctx, ev)
	if err != nil {
		return nil, fmt.Errorf("record payment intent: %w", err)
	}
	if !applied {
		c.logger.Warn("payment intent created for a reservation that moved on",
			"token", r.Token,
			"intent_id", intent.ID)
		return nil, domain.ErrReservationNotPending
	}

	c.metrics.PaymentInitiated(ctx)
	c.logger.Info("payment initiated", "token", r.Token, "intent_id", intent.ID)

	return &Payment{
		Token:        r.Token,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       r.Amount,
		Currency:     r.Currency,
	}, nil
}

// ConfirmPayment verifies the payment with the gateway and, on success,
// books the held seats. A reservation that is already confirmed yields
// ErrAlreadyConfirmed without calling the gateway again.
func (c *Coordinator) ConfirmPayment(
	ctx context.Context,
	token, requesterID, gatewayReference string) (*domain.Reservation, error) {

	r, err := c.holds.Get(ctx, token, requesterID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()

	switch {
	case r.Status == domain.StatusConfirmed:
		return nil, domain.ErrAlreadyConfirmed
	case r.Status == domain.StatusExpired:
		return nil, domain.ErrReservationExpired
	case r.Status.IsTerminal():
		return nil, domain.ErrReservationNotPending
	case r.Expired(now):
		return nil, domain.ErrReservationExpired
	case r.Status != domain.StatusAwaitingPayment:
		return nil, domain.ErrReservationNotPending
	}

	if !domain.Bookable(r.ShowStartsAt, now, c.holds.BookingCutoff()) {
		return nil, c.rejectAfterCutoff(ctx, r)
	}

	if gatewayReference != r.IntentID {
		return nil, fmt.Errorf("%w: reference does not match the reservation's payment", domain.ErrGatewayVerificationFailed)
	}

	if err = c.verify(ctx, r); err != nil {
		return nil, err
	}

	// the gateway settled, nothing below may be abandoned halfway
	ctx = context.WithoutCancel(ctx)

	_, applied, err := c.ledger.Append(ctx, r.Next(domain.EventConfirmed, c.clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("record confirmation: %w", err)
	}
	if !applied {
		return nil, c.lostConfirmation(ctx, r)
	}

	if err = c.holds.Book(ctx, r); err != nil {
		integrityErr := &domain.IntegrityError{Token: r.Token, IntentID: r.IntentID, Err: err}
		c.raise(ctx, r, integrityErr)
		return nil, integrityErr
	}

	confirmed, err := c.ledger.Latest(ctx, r.Token)
	if err != nil {
		return nil, err
	}

	c.metrics.Confirmed(ctx)
	c.logger.Info("booking confirmed",
		"token", confirmed.Token,
		"show_id", confirmed.ShowID,
		"seats", confirmed.Seats,
		"intent_id", confirmed.IntentID)

	c.notifier.Notify(domain.BookingConfirmed{
		Token:       confirmed.Token,
		RequesterID: confirmed.RequesterID,
		ShowID:      confirmed.ShowID,
		Seats:       confirmed.Seats,
		Amount:      confirmed.Amount.StringFixed(2),
		Currency:    confirmed.Currency,
		ConfirmedAt: confirmed.UpdatedAt,
	})

	return confirmed, nil
}

func (c *Coordinator) verify(ctx context.Context, r *domain.Reservation) error {
	gctx, cancel := c.gatewayContext(ctx)
	defer cancel()

	started := time.Now()
	status, err := c.gateway.GetIntentStatus(gctx, r.IntentID)
	c.metrics.GatewayCall(ctx, "get_intent_status", started, err)

	if err != nil {
		c.logger.Warn("payment verification failed", "token", r.Token, "intent_id", r.IntentID, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrGatewayVerificationFailed, err)
	}

	if status != domain.IntentSucceeded {
		return fmt.Errorf("%w: payment is %s", domain.ErrGatewayVerificationFailed, status)
	}

	return nil
}

// rejectAfterCutoff cancels a reservation whose show can no longer be
// booked and frees its seats. Any captured money is left to the gateway's
// refund process.
func (c *Coordinator) rejectAfterCutoff(ctx context.Context, r *domain.Reservation) error {
	_, err := c.holds.Abort(context.WithoutCancel(ctx), r, domain.EventCancelled, domain.ReasonBookingCutoff)
	if err != nil {
		c.logger.Error("failed to release reservation after booking cutoff", "token", r.Token, "error", err)
		return err
	}

	c.logger.Info("confirmation rejected after booking cutoff", "token", r.Token, "intent_id", r.IntentID)

	return domain.ErrShowNotBookable
}

// lostConfirmation resolves a confirmation whose ledger append lost a race.
func (c *Coordinator) lostConfirmation(ctx context.Context, r *domain.Reservation) error {
	current, err := c.ledger.Latest(ctx, r.Token)
	if err != nil {
		return err
	}

	if current.Status == domain.StatusConfirmed {
		return domain.ErrAlreadyConfirmed
	}

	// the payment succeeded but the hold was reclaimed in the meantime
	c.raise(ctx, current, fmt.Errorf("payment settled for %s reservation", current.Status))

	return domain.ErrReservationExpired
}

func (c *Coordinator) raise(ctx context.Context, r *domain.Reservation, err error) {
	c.metrics.IntegrityFailure(ctx)
	c.logger.Error("payment captured without booked seats, manual reconciliation required",
		"token", r.Token,
		"show_id", r.ShowID,
		"seats", r.Seats,
		"intent_id", r.IntentID,
		"error", err)

	c.alerter.Alert(ctx, domain.Incident{
		Token:      r.Token,
		ShowID:     r.ShowID,
		IntentID:   r.IntentID,
		Seats:      r.Seats,
		Err:        err,
		DetectedAt: c.clock.Now(),
	})
}

func seatList(seats []domain.SeatID) string {
	labels := make([]string, len(seats))
	for i, s := range seats {
		labels[i] = s.String()
	}

	return strings.Join(labels, ", ")
}
