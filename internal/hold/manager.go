package hold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/metinatakli/seat-reservation/internal/clock"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/metinatakli/seat-reservation/internal/metrics"
)

const (
	DefaultHoldTTL       = 15 * time.Minute
	DefaultBookingCutoff = 15 * time.Minute
	DefaultMaxSeats      = 10
)

// Manager grants time-bounded exclusive holds on seats. Every transition is
// recorded in the ledger before the seat map is touched, so the seat map can
// always be rebuilt from the ledger.
type Manager struct {
	ledger  domain.Ledger
	seats   domain.SeatMap
	shows   domain.ShowRepository
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Recorder

	holdTTL  time.Duration
	cutoff   time.Duration
	maxSeats int
}

type Option func(*Manager)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.holdTTL = d
		}
	}
}

// WithBookingCutoff sets how long before the show start booking closes.
func WithBookingCutoff(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.cutoff = d
		}
	}
}

// WithMaxSeats caps the seats of a single reservation. Zero disables the cap.
func WithMaxSeats(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxSeats = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = rec
	}
}

func NewManager(
	ledger domain.Ledger,
	seats domain.SeatMap,
	shows domain.ShowRepository,
	clk clock.Clock,
	opts ...Option) *Manager {

	m := &Manager{
		ledger:   ledger,
		seats:    seats,
		shows:    shows,
		clock:    clk,
		logger:   slog.New(slog.DiscardHandler),
		metrics:  metrics.Discard(),
		holdTTL:  DefaultHoldTTL,
		cutoff:   DefaultBookingCutoff,
		maxSeats: DefaultMaxSeats,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) BookingCutoff() time.Duration {
	return m.cutoff
}

// Reserve validates the requested seats against the catalog and takes an
// all-or-nothing hold on them for the configured TTL.
func (m *Manager) Reserve(
	ctx context.Context,
	showID int64,
	seats []domain.SeatID,
	requesterID string) (*domain.Reservation, error) {

	show, err := m.shows.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}

	if err = domain.ValidateSeatSet(seats, show.Seats, m.maxSeats); err != nil {
		m.metrics.HoldRejected(ctx, "invalid_seat_set")
		return nil, err
	}

	now := m.clock.Now()
	if !domain.Bookable(show.StartTime, now, m.cutoff) {
		m.metrics.HoldRejected(ctx, "booking_cutoff")
		return nil, domain.ErrShowNotBookable
	}

	held := domain.HeldEvent(domain.Reservation{
		Token:        domain.NewToken(),
		ShowID:       show.ID,
		RequesterID:  requesterID,
		Seats:        domain.SortSeats(seats),
		Amount:       show.Total(len(seats)),
		Currency:     show.Currency,
		ShowStartsAt: show.StartTime,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.holdTTL),
		UpdatedAt:    now,
	})
	r := held.Hold

	_, applied, err := m.ledger.Append(ctx, held)
	if err != nil {
		return nil, fmt.Errorf("record hold: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("record hold: token %s is already in use", r.Token)
	}

	// a lost reply may still have applied the hold
	err = m.seats.TryHold(context.WithoutCancel(ctx), r.ShowID, r.Seats, r.Token, r.ExpiresAt)
	if err != nil {
		m.abandon(ctx, r, domain.ReasonSeatUnavailable)

		if errors.Is(err, domain.ErrSeatUnavailable) {
			m.metrics.HoldRejected(ctx, "seat_unavailable")
			return nil, err
		}

		if releaseErr := m.releaseSeats(ctx, r); releaseErr != nil {
			m.logger.Warn("seats of abandoned hold left for reconciliation",
				"token", r.Token,
				"show_id", r.ShowID,
				"error", releaseErr)
		}

		return nil, fmt.Errorf("hold seats: %w", err)
	}

	m.metrics.HoldGranted(ctx, len(r.Seats))
	m.logger.Info("seats held",
		"token", r.Token,
		"show_id", r.ShowID,
		"seats", r.Seats,
		"expires_at", r.ExpiresAt)

	return r, nil
}

// abandon closes the ledger entry of a hold that never reached the seat map.
func (m *Manager) abandon(ctx context.Context, r *domain.Reservation, reason string) {
	ev := r.Next(domain.EventCancelled, m.clock.Now())
	ev.Reason = reason

	_, _, err := m.ledger.Append(context.WithoutCancel(ctx), ev)
	if err != nil {
		m.logger.Error("failed to close abandoned hold",
			"token", r.Token,
			"reason", reason,
			"error", err)
	}
}

// Get returns the reservation if it belongs to requesterID.
func (m *Manager) Get(ctx context.Context, token, requesterID string) (*domain.Reservation, error) {
	r, err := m.ledger.Latest(ctx, token)
	if err != nil {
		return nil, err
	}

	if r.RequesterID != requesterID {
		return nil, domain.ErrNotOwner
	}

	return r, nil
}

// Release cancels a reservation on behalf of its owner and frees its seats.
// Releasing an already cancelled reservation succeeds again.
func (m *Manager) Release(ctx context.Context, token, requesterID string) error {
	r, err := m.Get(ctx, token, requesterID)
	if err != nil {
		return err
	}

	for {
		switch r.Status {
		case domain.StatusConfirmed:
			return domain.ErrAlreadyConfirmed
		case domain.StatusExpired:
			return domain.ErrReservationExpired
		case domain.StatusCancelled:
			return m.releaseSeats(ctx, r)
		}

		applied, err := m.Abort(ctx, r, domain.EventCancelled, domain.ReasonClientAbort)
		if err != nil || applied {
			return err
		}

		// lost a race with another transition, look again
		r, err = m.ledger.Latest(ctx, token)
		if err != nil {
			return err
		}
	}
}

// Abort moves r to the terminal state of kind (Expired or Cancelled) and
// frees its seats. It reports false when r was changed concurrently, in
// which case nothing is released.
func (m *Manager) Abort(
	ctx context.Context,
	r *domain.Reservation,
	kind domain.EventKind,
	reason string) (bool, error) {

	ev := r.Next(kind, m.clock.Now())
	ev.Reason = reason

	_, applied, err := m.ledger.Append(ctx, ev)
	if err != nil {
		return false, fmt.Errorf("record %s: %w", kind, err)
	}
	if !applied {
		return false, nil
	}

	if kind == domain.EventExpired {
		m.metrics.Expired(ctx, 1)
	} else {
		m.metrics.Cancelled(ctx, reason)
	}

	m.logger.Info("reservation closed",
		"token", r.Token,
		"show_id", r.ShowID,
		"event", kind,
		"reason", reason)

	return true, m.releaseSeats(ctx, r)
}

// releaseSeats frees r's seats. Seats that r no longer holds are left alone.
// The ledger already closed r, so the release outlives the caller's context.
func (m *Manager) releaseSeats(ctx context.Context, r *domain.Reservation) error {
	err := m.seats.Release(context.WithoutCancel(ctx), r.ShowID, r.Seats, r.Token)
	if errors.Is(err, domain.ErrTokenMismatch) {
		m.logger.Debug("seats already released", "token", r.Token, "show_id", r.ShowID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("release seats: %w", err)
	}

	return nil
}

// Book turns the seats held by r into permanent bookings.
func (m *Manager) Book(ctx context.Context, r *domain.Reservation) error {
	return m.seats.Commit(ctx, r.ShowID, r.Seats, r.Token)
}

// Availability returns the catalog seats of a show with their current state.
func (m *Manager) Availability(ctx context.Context, showID int64) (*domain.Show, []domain.Seat, error) {
	show, err := m.shows.GetShow(ctx, showID)
	if err != nil {
		return nil, nil, err
	}

	occupied, err := m.seats.Seats(ctx, showID)
	if err != nil {
		return nil, nil, err
	}

	seats := make([]domain.Seat, 0, len(show.Seats))
	for _, id := range domain.SortSeats(show.Seats) {
		seat, ok := occupied[id]
		if !ok {
			seat = domain.Seat{ShowID: showID, ID: id, State: domain.SeatAvailable}
		}
		seats = append(seats, seat)
	}

	return show, seats, nil
}
