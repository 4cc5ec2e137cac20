package integration_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/shopspring/decimal"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.BookingConfirmed
}

func (n *recordingNotifier) Notify(event domain.BookingConfirmed) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []domain.BookingConfirmed {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]domain.BookingConfirmed(nil), n.events...)
}

type recordingAlerter struct {
	mu        sync.Mutex
	incidents []domain.Incident
}

func (a *recordingAlerter) Alert(ctx context.Context, incident domain.Incident) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.incidents = append(a.incidents, incident)
}

func (a *recordingAlerter) Incidents() []domain.Incident {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]domain.Incident(nil), a.incidents...)
}

// seedShow inserts a show starting at startTime with rows A.. of
// seatsPerRow seats each and returns its id.
func seedShow(ctx context.Context, db *pgxpool.Pool, startTime time.Time, price string, rows []string, seatsPerRow int) (int64, error) {
	var id int64

	err := db.QueryRow(ctx, `
		INSERT INTO shows (movie_title, theater_name, start_time, price, currency)
		VALUES ('Test Movie', 'Test Theater', $1, $2, 'usd')
		RETURNING id`, startTime, decimal.RequireFromString(price)).Scan(&id)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		for n := 1; n <= seatsPerRow; n++ {
			_, err = db.Exec(ctx, `INSERT INTO show_seats (show_id, seat_row, seat_number) VALUES ($1, $2, $3)`, id, row, n)
			if err != nil {
				return 0, err
			}
		}
	}

	return id, nil
}

func seatIDs(labels ...string) []domain.SeatID {
	seats := make([]domain.SeatID, len(labels))
	for i, label := range labels {
		seat, err := domain.ParseSeatID(label)
		if err != nil {
			panic(err)
		}
		seats[i] = seat
	}

	return seats
}
