package repository

import (
	"context"
	"testing"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerEpoch = time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)

func newHold(token string, createdAt time.Time, ttl time.Duration) domain.Reservation {
	return domain.Reservation{
		Token:        token,
		ShowID:       1,
		RequesterID:  "user-1",
		Seats:        []domain.SeatID{{Row: "A", Number: 1}},
		Amount:       decimal.RequireFromString("12.50"),
		Currency:     "usd",
		ShowStartsAt: createdAt.Add(24 * time.Hour),
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(ttl),
	}
}

func TestMemoryLedger_AppendHeld(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	seq, applied, err := ledger.Append(ctx, domain.HeldEvent(newHold("t1", ledgerEpoch, time.Minute)))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.EqualValues(t, 1, seq)

	_, applied, err = ledger.Append(ctx, domain.HeldEvent(newHold("t1", ledgerEpoch, time.Minute)))
	require.NoError(t, err)
	assert.False(t, applied, "a token can only be opened once")

	r, err := ledger.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, r.Status)
	assert.EqualValues(t, 1, r.Version)
}

func TestMemoryLedger_AppendPrecondition(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	_, _, err := ledger.Append(ctx, domain.HeldEvent(newHold("t1", ledgerEpoch, time.Minute)))
	require.NoError(t, err)

	r, err := ledger.Latest(ctx, "t1")
	require.NoError(t, err)

	initiated := r.Next(domain.EventPaymentInitiated, ledgerEpoch.Add(time.Second))
	initiated.IntentID = "pi_1"

	expired := r.Next(domain.EventExpired, ledgerEpoch.Add(2*time.Second))
	expired.Reason = domain.ReasonHoldTTL

	_, applied, err := ledger.Append(ctx, initiated)
	require.NoError(t, err)
	require.True(t, applied)

	_, applied, err = ledger.Append(ctx, expired)
	require.NoError(t, err)
	assert.False(t, applied, "an event built against a stale version must be rejected")

	_, applied, err = ledger.Append(ctx, initiated)
	require.NoError(t, err)
	assert.False(t, applied, "a replayed event is a no-op")

	r, err = ledger.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingPayment, r.Status)
	assert.Equal(t, "pi_1", r.IntentID)
	assert.EqualValues(t, 2, r.Version)
	assert.Len(t, ledger.Events("t1"), 2)
}

func TestMemoryLedger_AppendErrors(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	_, _, err := ledger.Append(ctx, domain.LedgerEvent{Token: "missing", Kind: domain.EventCancelled})
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	_, _, err = ledger.Append(ctx, domain.LedgerEvent{Token: "t1", Kind: domain.EventHeld})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, _, err = ledger.Append(ctx, domain.HeldEvent(newHold("t1", ledgerEpoch, time.Minute)))
	require.NoError(t, err)

	r, err := ledger.Latest(ctx, "t1")
	require.NoError(t, err)

	_, _, err = ledger.Append(ctx, r.Next(domain.EventConfirmed, ledgerEpoch))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending cannot jump straight to confirmed")
}

func TestMemoryLedger_ListExpired(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	holds := []domain.Reservation{
		newHold("late", ledgerEpoch, 3*time.Minute),
		newHold("early", ledgerEpoch, time.Minute),
		newHold("fresh", ledgerEpoch, time.Hour),
		newHold("cancelled", ledgerEpoch, time.Minute),
	}
	for _, h := range holds {
		_, _, err := ledger.Append(ctx, domain.HeldEvent(h))
		require.NoError(t, err)
	}

	r, err := ledger.Latest(ctx, "cancelled")
	require.NoError(t, err)
	_, applied, err := ledger.Append(ctx, r.Next(domain.EventCancelled, ledgerEpoch))
	require.NoError(t, err)
	require.True(t, applied)

	now := ledgerEpoch.Add(10 * time.Minute)

	tokens, err := ledger.ListExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, tokens)

	tokens, err = ledger.ListExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, tokens)

	tokens, err = ledger.ListExpired(ctx, ledgerEpoch.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, tokens, "a hold expires exactly at its deadline")
}

func TestMemoryLedger_Live(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()

	for i, token := range []string{"second", "first", "gone"} {
		created := ledgerEpoch.Add(time.Duration(2-i) * time.Second)
		_, _, err := ledger.Append(ctx, domain.HeldEvent(newHold(token, created, time.Minute)))
		require.NoError(t, err)
	}

	r, err := ledger.Latest(ctx, "gone")
	require.NoError(t, err)
	_, _, err = ledger.Append(ctx, r.Next(domain.EventExpired, ledgerEpoch))
	require.NoError(t, err)

	live, err := ledger.Live(ctx)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "first", live[0].Token)
	assert.Equal(t, "second", live[1].Token)
}
