package domain

import (
	"context"
	"time"
)

// BookingConfirmed is emitted once a reservation has been committed.
type BookingConfirmed struct {
	Token       string    `json:"token"`
	RequesterID string    `json:"requester_id"`
	ShowID      int64     `json:"show_id"`
	Seats       []SeatID  `json:"seats"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Notifier accepts events without blocking the caller and without
// acknowledging delivery.
type Notifier interface {
	Notify(event BookingConfirmed)
}

// Incident describes a failure that needs an operator.
type Incident struct {
	Token      string
	ShowID     int64
	IntentID   string
	Seats      []SeatID
	Err        error
	DetectedAt time.Time
}

type Alerter interface {
	Alert(ctx context.Context, incident Incident)
}
