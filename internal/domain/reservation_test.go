package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservation_Apply(t *testing.T) {
	at := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		from       ReservationStatus
		event      LedgerEvent
		wantStatus ReservationStatus
		wantErr    bool
	}{
		{
			name:       "pending to awaiting payment",
			from:       StatusPending,
			event:      LedgerEvent{Kind: EventPaymentInitiated, IntentID: "pi_1"},
			wantStatus: StatusAwaitingPayment,
		},
		{
			name:       "awaiting payment to confirmed",
			from:       StatusAwaitingPayment,
			event:      LedgerEvent{Kind: EventConfirmed},
			wantStatus: StatusConfirmed,
		},
		{
			name:       "pending to expired",
			from:       StatusPending,
			event:      LedgerEvent{Kind: EventExpired, Reason: ReasonHoldTTL},
			wantStatus: StatusExpired,
		},
		{
			name:       "awaiting payment to cancelled",
			from:       StatusAwaitingPayment,
			event:      LedgerEvent{Kind: EventCancelled, Reason: ReasonBookingCutoff},
			wantStatus: StatusCancelled,
		},
		{name: "pending cannot confirm", from: StatusPending, event: LedgerEvent{Kind: EventConfirmed}, wantErr: true},
		{name: "confirmed is terminal", from: StatusConfirmed, event: LedgerEvent{Kind: EventCancelled}, wantErr: true},
		{name: "expired is terminal", from: StatusExpired, event: LedgerEvent{Kind: EventConfirmed}, wantErr: true},
		{name: "held cannot be re-applied", from: StatusPending, event: LedgerEvent{Kind: EventHeld}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reservation{Token: "t", Status: tt.from, Version: 3}
			tt.event.RecordedAt = at

			got, err := r.Apply(tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, r, got)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.EqualValues(t, 4, got.Version)
			assert.Equal(t, at, got.UpdatedAt)
			assert.Equal(t, tt.event.IntentID, got.IntentID)
			assert.Equal(t, tt.event.Reason, got.Reason)
		})
	}
}

func TestReservation_NextAndSatisfies(t *testing.T) {
	r := Reservation{Token: "t", Status: StatusPending, Version: 1}
	ev := r.Next(EventPaymentInitiated, time.Now())

	assert.True(t, r.Satisfies(ev))

	advanced, err := r.Apply(ev)
	require.NoError(t, err)
	assert.False(t, advanced.Satisfies(ev))
}

func TestReservation_Expired(t *testing.T) {
	deadline := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	r := Reservation{ExpiresAt: deadline}

	assert.False(t, r.Expired(deadline.Add(-time.Nanosecond)))
	assert.True(t, r.Expired(deadline))
	assert.True(t, r.Expired(deadline.Add(time.Second)))
}

func TestHeldEvent(t *testing.T) {
	seats := []SeatID{{Row: "A", Number: 1}}
	r := Reservation{Token: "t", Seats: seats, Status: StatusCancelled, Version: 9}

	ev := HeldEvent(r)

	require.NotNil(t, ev.Hold)
	assert.Equal(t, EventHeld, ev.Kind)
	assert.Equal(t, StatusPending, ev.Hold.Status)
	assert.EqualValues(t, 1, ev.Hold.Version)

	seats[0].Number = 2
	assert.Equal(t, 1, ev.Hold.Seats[0].Number, "the event must own its seat list")
}

func TestBookable(t *testing.T) {
	start := time.Date(2030, 1, 1, 20, 0, 0, 0, time.UTC)
	cutoff := 15 * time.Minute

	assert.True(t, Bookable(start, start.Add(-time.Hour), cutoff))
	assert.True(t, Bookable(start, start.Add(-cutoff), cutoff), "exactly at the cutoff is still bookable")
	assert.False(t, Bookable(start, start.Add(-cutoff+time.Second), cutoff))
	assert.False(t, Bookable(start, start.Add(time.Minute), cutoff))
}
