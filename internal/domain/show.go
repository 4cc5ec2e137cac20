package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Show is the catalog metadata the engine reads at hold time.
type Show struct {
	ID          int64
	MovieTitle  string
	TheaterName string
	StartTime   time.Time
	Price       decimal.Decimal
	Currency    string
	Seats       []SeatID
}

// BookingDeadline is the last instant at which the show can still be booked.
func (s *Show) BookingDeadline(cutoff time.Duration) time.Time {
	return s.StartTime.Add(-cutoff)
}

// Total returns the price of n seats.
func (s *Show) Total(n int) decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(n)))
}

// Bookable reports whether booking is open at now for the given cutoff.
func Bookable(startsAt, now time.Time, cutoff time.Duration) bool {
	return !now.After(startsAt.Add(-cutoff))
}

type ShowRepository interface {
	GetShow(ctx context.Context, showID int64) (*Show, error)
}
