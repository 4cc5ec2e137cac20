package domain

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	StatusPending         ReservationStatus = "pending"
	StatusAwaitingPayment ReservationStatus = "awaiting_payment"
	StatusConfirmed       ReservationStatus = "confirmed"
	StatusExpired         ReservationStatus = "expired"
	StatusCancelled       ReservationStatus = "cancelled"
)

func (s ReservationStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusExpired || s == StatusCancelled
}

// Reservation is the ledger's folded view of one reservation token.
type Reservation struct {
	Token        string
	ShowID       int64
	RequesterID  string
	Seats        []SeatID
	Status       ReservationStatus
	Amount       decimal.Decimal
	Currency     string
	ShowStartsAt time.Time
	IntentID     string
	Reason       string
	Version      int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// NewToken returns a fresh opaque reservation token.
func NewToken() string {
	return uuid.NewString()
}

// ValidToken reports whether token has the shape of a reservation token.
func ValidToken(token string) bool {
	return uuid.Validate(token) == nil
}

func (r *Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type EventKind string

const (
	EventHeld             EventKind = "held"
	EventPaymentInitiated EventKind = "payment_initiated"
	EventConfirmed        EventKind = "confirmed"
	EventExpired          EventKind = "expired"
	EventCancelled        EventKind = "cancelled"
)

// Cancellation reasons recorded with EventCancelled.
const (
	ReasonClientAbort     = "client_abort"
	ReasonSeatUnavailable = "seat_unavailable"
	ReasonBookingCutoff   = "booking_cutoff"
	ReasonRecovery        = "recovery_conflict"
	ReasonHoldTTL         = "hold_ttl_elapsed"
)

// LedgerEvent is one append-only state transition. ExpectedPrior and
// ExpectedVersion form the optimistic precondition: the event only applies
// when the reservation is currently in that status at that version.
type LedgerEvent struct {
	Seq             int64
	Token           string
	Kind            EventKind
	ExpectedPrior   ReservationStatus
	ExpectedVersion int64

	Hold             *Reservation
	IntentID         string
	GatewayReference string
	Reason           string

	RecordedAt time.Time
}

var transitions = map[EventKind]struct {
	from []ReservationStatus
	to   ReservationStatus
}{
	EventPaymentInitiated: {from: []ReservationStatus{StatusPending}, to: StatusAwaitingPayment},
	EventConfirmed:        {from: []ReservationStatus{StatusAwaitingPayment}, to: StatusConfirmed},
	EventExpired:          {from: []ReservationStatus{StatusPending, StatusAwaitingPayment}, to: StatusExpired},
	EventCancelled:        {from: []ReservationStatus{StatusPending, StatusAwaitingPayment}, to: StatusCancelled},
}

// HeldEvent opens the ledger history of a freshly granted hold.
func HeldEvent(r Reservation) LedgerEvent {
	r.Status = StatusPending
	r.Version = 1
	r.Seats = slices.Clone(r.Seats)

	return LedgerEvent{
		Token:      r.Token,
		Kind:       EventHeld,
		Hold:       &r,
		RecordedAt: r.CreatedAt,
	}
}

// Next builds an event of the given kind whose precondition is the
// reservation's current status and version.
func (r *Reservation) Next(kind EventKind, at time.Time) LedgerEvent {
	return LedgerEvent{
		Token:           r.Token,
		Kind:            kind,
		ExpectedPrior:   r.Status,
		ExpectedVersion: r.Version,
		RecordedAt:      at,
	}
}

// Satisfies reports whether ev's precondition holds for r.
func (r *Reservation) Satisfies(ev LedgerEvent) bool {
	return r.Status == ev.ExpectedPrior && r.Version == ev.ExpectedVersion
}

// Apply folds ev into r and returns the resulting reservation. It does not
// check the optimistic precondition; callers do that with Satisfies.
func (r Reservation) Apply(ev LedgerEvent) (Reservation, error) {
	t, ok := transitions[ev.Kind]
	if !ok {
		return r, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Kind)
	}

	if !slices.Contains(t.from, r.Status) {
		return r, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, t.to)
	}

	r.Status = t.to
	r.Version++
	r.UpdatedAt = ev.RecordedAt

	switch ev.Kind {
	case EventPaymentInitiated:
		r.IntentID = ev.IntentID
	case EventExpired, EventCancelled:
		r.Reason = ev.Reason
	}

	return r, nil
}

// Ledger is the append-only source of truth for reservations. A mismatched
// precondition on Append is reported with applied=false and no error.
type Ledger interface {
	Append(ctx context.Context, ev LedgerEvent) (seq int64, applied bool, err error)
	Latest(ctx context.Context, token string) (*Reservation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	Live(ctx context.Context) ([]Reservation, error)
}
