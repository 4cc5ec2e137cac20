package hold

import (
	"context"
	"fmt"

	"github.com/metinatakli/seat-reservation/internal/domain"
)

// Rebuild replaces the seat map with the projection of the live ledger
// reservations. Confirmed bookings are placed first, then open holds in
// creation order. A hold that collides with seats already placed is
// cancelled in the ledger. It returns the number of reservations loaded.
func (m *Manager) Rebuild(ctx context.Context) (int, error) {
	live, err := m.ledger.Live(ctx)
	if err != nil {
		return 0, fmt.Errorf("list live reservations: %w", err)
	}

	var (
		projection []domain.Seat
		loaded     int
		taken      = make(map[int64]map[domain.SeatID]string)
	)

	place := func(r domain.Reservation, state domain.SeatState) bool {
		show, ok := taken[r.ShowID]
		if !ok {
			show = make(map[domain.SeatID]string)
			taken[r.ShowID] = show
		}

		for _, id := range r.Seats {
			if owner, busy := show[id]; busy {
				m.logger.Warn("seat conflict while rebuilding seat map",
					"token", r.Token,
					"show_id", r.ShowID,
					"seat", id,
					"owner", owner)
				return false
			}
		}

		for _, id := range r.Seats {
			show[id] = r.Token

			seat := domain.Seat{ShowID: r.ShowID, ID: id, State: state, Token: r.Token}
			if state == domain.SeatHeld {
				seat.ExpiresAt = r.ExpiresAt
			}
			projection = append(projection, seat)
		}

		loaded++
		return true
	}

	for _, r := range live {
		if r.Status == domain.StatusConfirmed && !place(r, domain.SeatBooked) {
			m.logger.Error("confirmed reservations overlap, manual reconciliation required",
				"token", r.Token,
				"show_id", r.ShowID)
		}
	}

	var conflicted []domain.Reservation
	for _, r := range live {
		if r.Status != domain.StatusConfirmed && !place(r, domain.SeatHeld) {
			conflicted = append(conflicted, r)
		}
	}

	if err = m.seats.Load(ctx, projection); err != nil {
		return 0, fmt.Errorf("load seat map: %w", err)
	}

	for _, r := range conflicted {
		ev := r.Next(domain.EventCancelled, m.clock.Now())
		ev.Reason = domain.ReasonRecovery

		if _, _, err = m.ledger.Append(ctx, ev); err != nil {
			return loaded, fmt.Errorf("cancel conflicting hold %s: %w", r.Token, err)
		}

		m.metrics.Cancelled(ctx, domain.ReasonRecovery)
	}

	m.logger.Info("seat map rebuilt from ledger",
		"reservations", loaded,
		"seats", len(projection),
		"cancelled", len(conflicted))

	return loaded, nil
}
