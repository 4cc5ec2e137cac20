package hold

import (
	"context"
	"errors"
	"fmt"

	"github.com/metinatakli/seat-reservation/internal/domain"
)

// Reconcile frees seats still held under a reservation the ledger has
// already closed, which happens when a seat map call failed after taking
// effect. Only holds past their expiry are inspected; open reservations are
// left to the expiry sweep and confirmed ones to manual reconciliation.
// It returns the number of seats released.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	shows, err := m.seats.Shows(ctx)
	if err != nil {
		return 0, fmt.Errorf("list seat maps: %w", err)
	}

	now := m.clock.Now()

	var (
		released int
		errs     []error
	)

	for _, showID := range shows {
		occupied, err := m.seats.Seats(ctx, showID)
		if err != nil {
			errs = append(errs, fmt.Errorf("read seat map of show %d: %w", showID, err))
			continue
		}

		lapsed := make(map[string][]domain.SeatID)
		for _, seat := range occupied {
			if seat.State == domain.SeatHeld && now.After(seat.ExpiresAt) {
				lapsed[seat.Token] = append(lapsed[seat.Token], seat.ID)
			}
		}

		for token, seats := range lapsed {
			r, err := m.ledger.Latest(ctx, token)
			switch {
			case errors.Is(err, domain.ErrReservationNotFound):
			case err != nil:
				errs = append(errs, err)
				continue
			case r.Status != domain.StatusCancelled && r.Status != domain.StatusExpired:
				continue
			}

			err = m.seats.Release(ctx, showID, seats, token)
			if errors.Is(err, domain.ErrTokenMismatch) {
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("release stranded seats of %s: %w", token, err))
				continue
			}

			released += len(seats)
			m.logger.Warn("released seats stranded under a closed reservation",
				"token", token,
				"show_id", showID,
				"seats", domain.SortSeats(seats))
		}
	}

	return released, errors.Join(errs...)
}
