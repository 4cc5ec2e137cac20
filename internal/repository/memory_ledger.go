package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
)

// MemoryLedger is a process-local Ledger. Its history does not survive a
// restart, so it is meant for tests and single-node demos.
type MemoryLedger struct {
	mu           sync.Mutex
	reservations map[string]domain.Reservation
	events       []domain.LedgerEvent
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		reservations: make(map[string]domain.Reservation),
	}
}

func (l *MemoryLedger) Append(ctx context.Context, ev domain.LedgerEvent) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Kind == domain.EventHeld {
		if ev.Hold == nil {
			return 0, false, fmt.Errorf("%w: held event without reservation", domain.ErrInvalidTransition)
		}

		if _, exists := l.reservations[ev.Token]; exists {
			return 0, false, nil
		}

		r := *ev.Hold
		r.Seats = slices.Clone(r.Seats)

		return l.record(ev, r), true, nil
	}

	current, ok := l.reservations[ev.Token]
	if !ok {
		return 0, false, domain.ErrReservationNotFound
	}

	if !current.Satisfies(ev) {
		return 0, false, nil
	}

	next, err := current.Apply(ev)
	if err != nil {
		return 0, false, err
	}

	return l.record(ev, next), true, nil
}

func (l *MemoryLedger) record(ev domain.LedgerEvent, r domain.Reservation) int64 {
	ev.Seq = int64(len(l.events)) + 1
	l.events = append(l.events, ev)
	l.reservations[r.Token] = r

	return ev.Seq
}

func (l *MemoryLedger) Latest(ctx context.Context, token string) (*domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.reservations[token]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}

	r.Seats = slices.Clone(r.Seats)

	return &r, nil
}

func (l *MemoryLedger) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expired []domain.Reservation
	for _, r := range l.reservations {
		if !r.Status.IsTerminal() && r.Expired(now) {
			expired = append(expired, r)
		}
	}

	slices.SortFunc(expired, func(a, b domain.Reservation) int {
		return cmp.Or(a.ExpiresAt.Compare(b.ExpiresAt), cmp.Compare(a.Token, b.Token))
	})

	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	tokens := make([]string, 0, len(expired))
	for _, r := range expired {
		tokens = append(tokens, r.Token)
	}

	return tokens, nil
}

func (l *MemoryLedger) Live(ctx context.Context) ([]domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var live []domain.Reservation
	for _, r := range l.reservations {
		if r.Status == domain.StatusConfirmed || !r.Status.IsTerminal() {
			r.Seats = slices.Clone(r.Seats)
			live = append(live, r)
		}
	}

	slices.SortFunc(live, func(a, b domain.Reservation) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.Token, b.Token))
	})

	return live, nil
}

// Events returns the recorded history of token in append order.
func (l *MemoryLedger) Events(token string) []domain.LedgerEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	var events []domain.LedgerEvent
	for _, ev := range l.events {
		if ev.Token == token {
			events = append(events, ev)
		}
	}

	return events
}
