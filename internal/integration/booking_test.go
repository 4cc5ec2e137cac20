package integration_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/metinatakli/seat-reservation/internal/hold"
	"github.com/metinatakli/seat-reservation/internal/seatmap"
	"github.com/metinatakli/seat-reservation/internal/worker"
	"github.com/shopspring/decimal"
)

func (s *EngineSuite) TestRedisSeatMapHoldReleaseCommit() {
	ctx := context.Background()
	expiresAt := s.clock.Now().Add(15 * time.Minute)

	s.Require().NoError(s.seats.TryHold(ctx, 1, seatIDs("A1", "A2"), "tok-1", expiresAt))

	err := s.seats.TryHold(ctx, 1, seatIDs("A2", "A3"), "tok-2", expiresAt)
	var unavailable *domain.SeatUnavailableError
	s.Require().ErrorAs(err, &unavailable)
	s.Equal(seatIDs("A2"), unavailable.Seats)

	seats, err := s.seats.Seats(ctx, 1)
	s.Require().NoError(err)
	s.Len(seats, 2, "a rejected hold must not leave partial state")
	s.Equal(domain.SeatHeld, seats[seatIDs("A1")[0]].State)
	s.True(expiresAt.Equal(seats[seatIDs("A1")[0]].ExpiresAt))

	s.ErrorIs(s.seats.Release(ctx, 1, seatIDs("A1"), "tok-2"), domain.ErrTokenMismatch)

	s.Require().NoError(s.seats.Commit(ctx, 1, seatIDs("A1", "A2"), "tok-1"))
	s.Require().NoError(s.seats.Commit(ctx, 1, seatIDs("A1", "A2"), "tok-1"))

	seats, err = s.seats.Seats(ctx, 1)
	s.Require().NoError(err)
	s.Equal(domain.SeatBooked, seats[seatIDs("A2")[0]].State)

	s.Error(s.seats.Release(ctx, 1, seatIDs("A1"), "tok-1"), "booked seats are never released")

	s.Require().NoError(s.seats.TryHold(ctx, 2, seatIDs("A1"), "tok-3", expiresAt))
	s.Require().NoError(s.seats.Release(ctx, 2, seatIDs("A1"), "tok-3"))
	s.ErrorIs(s.seats.Release(ctx, 2, seatIDs("A1"), "tok-3"), domain.ErrTokenMismatch)

	seats, err = s.seats.Seats(ctx, 2)
	s.Require().NoError(err)
	s.Empty(seats)

	shows, err := s.seats.Shows(ctx)
	s.Require().NoError(err)
	s.Equal([]int64{1}, shows, "a show without occupied seats has no seat map")
}

func (s *EngineSuite) TestReconcileReleasesSeatsOfClosedReservations() {
	ctx := context.Background()

	showID, err := seedShow(ctx, s.db, s.clock.Now().Add(2*time.Hour), "10.00", []string{"A"}, 2)
	s.Require().NoError(err)

	r, err := s.holds.Reserve(ctx, showID, seatIDs("A1"), "user-1")
	s.Require().NoError(err)

	// close the reservation in the ledger only, as a lost release would
	ev := r.Next(domain.EventCancelled, s.clock.Now())
	ev.Reason = domain.ReasonClientAbort
	_, applied, err := s.ledger.Append(ctx, ev)
	s.Require().NoError(err)
	s.Require().True(applied)

	s.clock.Advance(hold.DefaultHoldTTL + time.Second)

	n, err := s.holds.Reconcile(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.holds.Reserve(ctx, showID, seatIDs("A1"), "user-2")
	s.NoError(err)
}

func (s *EngineSuite) TestReserveAndConfirm() {
	ctx := context.Background()

	showID, err := seedShow(ctx, s.db, s.clock.Now().Add(2*time.Hour), "15.00", []string{"A", "B"}, 3)
	s.Require().NoError(err)

	r, err := s.holds.Reserve(ctx, showID, seatIDs("B2", "A1"), "user-1")
	s.Require().NoError(err)
	s.Equal(seatIDs("A1", "B2"), r.Seats)
	s.True(decimal.RequireFromString("30").Equal(r.Amount))

	_, err = s.holds.Reserve(ctx, showID, seatIDs("A1"), "user-2")
	s.ErrorIs(err, domain.ErrSeatUnavailable)

	p, err := s.coordinator.InitiatePayment(ctx, r.Token, "user-1", decimal.RequireFromString("30.00"))
	s.Require().NoError(err)
	s.NotEmpty(p.ClientSecret)

	confirmed, err := s.coordinator.ConfirmPayment(ctx, r.Token, "user-1", p.IntentID)
	s.Require().NoError(err)
	s.Equal(domain.StatusConfirmed, confirmed.Status)

	_, err = s.coordinator.ConfirmPayment(ctx, r.Token, "user-1", p.IntentID)
	s.ErrorIs(err, domain.ErrAlreadyConfirmed)

	_, seats, err := s.holds.Availability(ctx, showID)
	s.Require().NoError(err)

	states := make(map[string]domain.SeatState)
	for _, seat := range seats {
		states[seat.ID.String()] = seat.State
	}
	s.Equal(domain.SeatBooked, states["A1"])
	s.Equal(domain.SeatBooked, states["B2"])
	s.Equal(domain.SeatAvailable, states["A2"])

	events := s.notifier.Events()
	s.Require().Len(events, 1)
	s.Equal(r.Token, events[0].Token)
	s.Equal("30.00", events[0].Amount)
	s.Empty(s.alerter.Incidents())
}

func (s *EngineSuite) TestConcurrentReservationsNeverDoubleBook() {
	ctx := context.Background()

	showID, err := seedShow(ctx, s.db, s.clock.Now().Add(2*time.Hour), "10.00", []string{"A"}, 3)
	s.Require().NoError(err)

	const requesters = 24

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)

	for i := range requesters {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// every request overlaps on A2
			seats := seatIDs("A2", fmt.Sprintf("A%d", 1+2*(i%2)))

			r, err := s.holds.Reserve(ctx, showID, seats, fmt.Sprintf("user-%d", i))
			if err != nil {
				s.ErrorIs(err, domain.ErrSeatUnavailable)
				return
			}

			mu.Lock()
			winners = append(winners, r.Token)
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Require().Len(winners, 1)

	live, err := s.ledger.Live(ctx)
	s.Require().NoError(err)
	s.Require().Len(live, 1, "rejected holds must be closed in the ledger")
	s.Equal(winners[0], live[0].Token)
}

func (s *EngineSuite) TestSweeperReclaimsExpiredHolds() {
	ctx := context.Background()

	showID, err := seedShow(ctx, s.db, s.clock.Now().Add(2*time.Hour), "10.00", []string{"A"}, 2)
	s.Require().NoError(err)

	r, err := s.holds.Reserve(ctx, showID, seatIDs("A1"), "user-1")
	s.Require().NoError(err)

	s.clock.Advance(15 * time.Minute)

	sweeper := worker.NewExpiryWorker(s.ledger, s.holds, s.clock, worker.DefaultExpiryWorkerConfig(), slog.New(slog.DiscardHandler))

	n, err := sweeper.Sweep(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	expired, err := s.ledger.Latest(ctx, r.Token)
	s.Require().NoError(err)
	s.Equal(domain.StatusExpired, expired.Status)

	_, err = s.holds.Reserve(ctx, showID, seatIDs("A1"), "user-2")
	s.Require().NoError(err)

	_, err = s.coordinator.InitiatePayment(ctx, r.Token, "user-1", decimal.RequireFromString("10"))
	s.ErrorIs(err, domain.ErrReservationNotPending)
}

func (s *EngineSuite) TestRebuildRestoresSeatMapFromLedger() {
	ctx := context.Background()

	showID, err := seedShow(ctx, s.db, s.clock.Now().Add(2*time.Hour), "10.00", []string{"A"}, 3)
	s.Require().NoError(err)

	held, err := s.holds.Reserve(ctx, showID, seatIDs("A1"), "user-1")
	s.Require().NoError(err)

	booked, err := s.holds.Reserve(ctx, showID, seatIDs("A2"), "user-2")
	s.Require().NoError(err)

	p, err := s.coordinator.InitiatePayment(ctx, booked.Token, "user-2", booked.Amount)
	s.Require().NoError(err)
	_, err = s.coordinator.ConfirmPayment(ctx, booked.Token, "user-2", p.IntentID)
	s.Require().NoError(err)

	// a restart with an empty seat map
	s.Require().NoError(s.redis.FlushAll(ctx).Err())
	restarted := s.newHoldManager(seatmap.NewRedisSeatMap(s.redis))

	restored, err := restarted.Rebuild(ctx)
	s.Require().NoError(err)
	s.Equal(2, restored)

	_, err = restarted.Reserve(ctx, showID, seatIDs("A1"), "user-3")
	s.ErrorIs(err, domain.ErrSeatUnavailable)

	_, err = restarted.Reserve(ctx, showID, seatIDs("A2"), "user-3")
	s.ErrorIs(err, domain.ErrSeatUnavailable)

	s.Require().NoError(restarted.Release(ctx, held.Token, "user-1"))

	_, err = restarted.Reserve(ctx, showID, seatIDs("A1"), "user-3")
	s.NoError(err)

	var unavailable *domain.SeatUnavailableError
	_, err = restarted.Reserve(ctx, showID, seatIDs("A2", "A3"), "user-4")
	s.True(errors.As(err, &unavailable))
}
