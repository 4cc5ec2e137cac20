package seatmap

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
)

// inventory is the occupied part of one show's seat grid. Seats that are
// absent from the map are available.
type inventory struct {
	mu    sync.Mutex
	seats map[domain.SeatID]domain.Seat
}

// MemorySeatMap keeps the projection in process memory with one mutex per
// show, so shows never contend with each other.
type MemorySeatMap struct {
	mu    sync.RWMutex
	shows map[int64]*inventory
}

func NewMemorySeatMap() *MemorySeatMap {
	return &MemorySeatMap{
		shows: make(map[int64]*inventory),
	}
}

func (m *MemorySeatMap) show(showID int64) *inventory {
	m.mu.RLock()
	inv, ok := m.shows[showID]
	m.mu.RUnlock()
	if ok {
		return inv
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if inv, ok = m.shows[showID]; !ok {
		inv = &inventory{seats: make(map[domain.SeatID]domain.Seat)}
		m.shows[showID] = inv
	}

	return inv
}

func (m *MemorySeatMap) TryHold(
	ctx context.Context,
	showID int64,
	seats []domain.SeatID,
	token string,
	expiresAt time.Time) error {

	ordered := domain.SortSeats(seats)
	inv := m.show(showID)

	inv.mu.Lock()
	defer inv.mu.Unlock()

	var conflicts []domain.SeatID
	for _, id := range ordered {
		if _, taken := inv.seats[id]; taken {
			conflicts = append(conflicts, id)
		}
	}

	if len(conflicts) > 0 {
		return &domain.SeatUnavailableError{Seats: conflicts}
	}

	for _, id := range ordered {
		inv.seats[id] = domain.Seat{
			ShowID:    showID,
			ID:        id,
			State:     domain.SeatHeld,
			Token:     token,
			ExpiresAt: expiresAt,
		}
	}

	return nil
}

func (m *MemorySeatMap) Release(ctx context.Context, showID int64, seats []domain.SeatID, token string) error {
	ordered := domain.SortSeats(seats)
	inv := m.show(showID)

	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, id := range ordered {
		seat, ok := inv.seats[id]
		if !ok || seat.State != domain.SeatHeld || seat.Token != token {
			return fmt.Errorf("release seat %s: %w", id, domain.ErrTokenMismatch)
		}
	}

	for _, id := range ordered {
		delete(inv.seats, id)
	}

	return nil
}

func (m *MemorySeatMap) Commit(ctx context.Context, showID int64, seats []domain.SeatID, token string) error {
	ordered := domain.SortSeats(seats)
	inv := m.show(showID)

	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, id := range ordered {
		if err := checkCommittable(inv.seats[id], id, token); err != nil {
			return err
		}
	}

	for _, id := range ordered {
		inv.seats[id] = domain.Seat{
			ShowID: showID,
			ID:     id,
			State:  domain.SeatBooked,
			Token:  token,
		}
	}

	return nil
}

// checkCommittable accepts seats held by token and seats already booked by
// token, so a repeated commit is a no-op.
func checkCommittable(seat domain.Seat, id domain.SeatID, token string) error {
	switch {
	case seat.State == domain.SeatHeld && seat.Token == token:
		return nil
	case seat.State == domain.SeatBooked && seat.Token == token:
		return nil
	case seat.State == domain.SeatHeld:
		return fmt.Errorf("commit seat %s: %w", id, domain.ErrTokenMismatch)
	default:
		return fmt.Errorf("commit seat %s in state %q: %w", id, stateOf(seat), domain.ErrInvalidState)
	}
}

func stateOf(seat domain.Seat) domain.SeatState {
	if seat.State == "" {
		return domain.SeatAvailable
	}

	return seat.State
}

func (m *MemorySeatMap) Seats(ctx context.Context, showID int64) (map[domain.SeatID]domain.Seat, error) {
	inv := m.show(showID)

	inv.mu.Lock()
	defer inv.mu.Unlock()

	seats := make(map[domain.SeatID]domain.Seat, len(inv.seats))
	for id, seat := range inv.seats {
		seats[id] = seat
	}

	return seats, nil
}

func (m *MemorySeatMap) Shows(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var shows []int64
	for showID, inv := range m.shows {
		inv.mu.Lock()
		occupied := len(inv.seats) > 0
		inv.mu.Unlock()

		if occupied {
			shows = append(shows, showID)
		}
	}

	slices.Sort(shows)

	return shows, nil
}

// Load replaces the whole projection.
func (m *MemorySeatMap) Load(ctx context.Context, seats []domain.Seat) error {
	shows := make(map[int64]*inventory)

	for _, seat := range seats {
		inv, ok := shows[seat.ShowID]
		if !ok {
			inv = &inventory{seats: make(map[domain.SeatID]domain.Seat)}
			shows[seat.ShowID] = inv
		}
		inv.seats[seat.ID] = seat
	}

	m.mu.Lock()
	m.shows = shows
	m.mu.Unlock()

	return nil
}
