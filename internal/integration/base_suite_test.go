package integration_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/seat-reservation/internal/booking"
	"github.com/metinatakli/seat-reservation/internal/clock"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/metinatakli/seat-reservation/internal/hold"
	"github.com/metinatakli/seat-reservation/internal/payment"
	"github.com/metinatakli/seat-reservation/internal/repository"
	"github.com/metinatakli/seat-reservation/internal/seatmap"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
)

const (
	dbName         = "seat_reservation"
	dbUser         = "test_user"
	dbPassword     = "test_password"
	dbImageName    = "postgres:17-alpine"
	cacheImageName = "redis:7"
)

// BaseSuite runs the booking engine against PostgreSQL and Redis
// containers. Each test starts from empty tables and an empty Redis.
type BaseSuite struct {
	suite.Suite
	dbContainer    *PostgresContainer
	cacheContainer *RedisContainer

	db    *pgxpool.Pool
	redis *redis.Client

	clock       *clock.Manual
	ledger      *repository.PostgresLedger
	shows       *repository.PostgresShowRepository
	seats       *seatmap.RedisSeatMap
	gateway     *payment.MockGateway
	notifier    *recordingNotifier
	alerter     *recordingAlerter
	holds       *hold.Manager
	coordinator *booking.Coordinator
}

func (s *BaseSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("integration tests need docker, skipped in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := getDbContainer(ctx)
	s.Require().NoError(err, "failed to start postgres container")
	s.dbContainer = postgresContainer

	redisContainer, err := getCacheContainer(ctx)
	s.Require().NoError(err, "failed to start redis container")
	s.cacheContainer = redisContainer

	s.db, err = pgxpool.New(ctx, postgresContainer.ConnectionString)
	s.Require().NoError(err)

	s.redis = redis.NewClient(&redis.Options{Addr: redisContainer.Addr})
	s.Require().NoError(s.redis.Ping(ctx).Err())
}

func (s *BaseSuite) SetupTest() {
	ctx := context.Background()

	_, err := s.db.Exec(ctx, "TRUNCATE reservation_events, reservations, show_seats, shows RESTART IDENTITY CASCADE")
	s.Require().NoError(err)
	s.Require().NoError(s.redis.FlushAll(ctx).Err())

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	s.clock = clock.NewManual(time.Now().UTC().Truncate(time.Second))
	s.ledger = repository.NewPostgresLedger(s.db)
	s.shows = repository.NewPostgresShowRepository(s.db)
	s.seats = seatmap.NewRedisSeatMap(s.redis)
	s.gateway = payment.NewMockGateway(domain.IntentSucceeded)
	s.notifier = &recordingNotifier{}
	s.alerter = &recordingAlerter{}

	s.holds = s.newHoldManager(s.seats)
	s.coordinator = booking.NewCoordinator(s.ledger, s.holds, s.gateway, s.notifier, s.alerter, s.clock,
		booking.WithLogger(logger))
}

func (s *BaseSuite) newHoldManager(seats domain.SeatMap) *hold.Manager {
	return hold.NewManager(s.ledger, seats, s.shows, s.clock, hold.WithMaxSeats(4))
}

func (s *BaseSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.dbContainer != nil {
		if err := testcontainers.TerminateContainer(s.dbContainer.Container); err != nil {
			s.T().Logf("failed to terminate container: %s", err)
		}
	}
	if s.cacheContainer != nil {
		if err := testcontainers.TerminateContainer(s.cacheContainer.Container); err != nil {
			s.T().Logf("failed to terminate container: %s", err)
		}
	}
}
