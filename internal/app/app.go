package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/v2"
	"github.com/exaring/otelpgx"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/seat-reservation/internal/alert"
	"github.com/metinatakli/seat-reservation/internal/booking"
	"github.com/metinatakli/seat-reservation/internal/clock"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/metinatakli/seat-reservation/internal/hold"
	"github.com/metinatakli/seat-reservation/internal/mailer"
	"github.com/metinatakli/seat-reservation/internal/metrics"
	"github.com/metinatakli/seat-reservation/internal/notify"
	"github.com/metinatakli/seat-reservation/internal/payment"
	"github.com/metinatakli/seat-reservation/internal/ratelimit"
	"github.com/metinatakli/seat-reservation/internal/repository"
	"github.com/metinatakli/seat-reservation/internal/seatmap"
	appvalidator "github.com/metinatakli/seat-reservation/internal/validator"
	"github.com/metinatakli/seat-reservation/internal/vcs"
	"github.com/metinatakli/seat-reservation/internal/worker"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"golang.org/x/sync/errgroup"
)

var (
	version = vcs.Version()
)

type application struct {
	config         config
	logger         *slog.Logger
	validator      *validator.Validate
	sessionManager *scs.SessionManager

	holds       *hold.Manager
	coordinator *booking.Coordinator
	sweeper     *worker.ExpiryWorker
	dispatcher  *notify.Dispatcher
	limiter     ratelimit.Limiter
}

type config struct {
	port int
	env  string
	db   struct {
		dsn          string
		maxOpenConns int
		maxIdleTime  time.Duration
	}
	redis struct {
		url          string
		maxOpenConns int
		maxIdleConns int
		maxIdleTime  time.Duration
	}
	smtp struct {
		host     string
		port     int
		username string
		password string
		sender   string
	}
	stripe struct {
		secretKey string
	}
	amqp struct {
		url string
	}
	jwt struct {
		secret string
	}
	booking struct {
		holdTTL        time.Duration
		cutoff         time.Duration
		gatewayTimeout time.Duration
		maxSeats       int
		currency       string
	}
	sweeper struct {
		interval  time.Duration
		batchSize int
	}
	backends struct {
		ledger      string
		seatMap     string
		gateway     string
		catalogFile string
	}
	limiter struct {
		enabled bool
		backend string
		ratelimit.Config
	}
	alertRecipient   string
	notifyBuffer     int
	otelCollectorUrl string
}

func Run() error {
	var cfg config

	flag.IntVar(&cfg.port, "port", 3000, "server port")
	flag.StringVar(&cfg.env, "env", "dev", "Environment (dev|staging|prod)")

	flag.StringVar(&cfg.db.dsn, "db-dsn", "", "PostgreSQL DSN")
	flag.IntVar(&cfg.db.maxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.DurationVar(&cfg.db.maxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	flag.StringVar(&cfg.redis.url, "redis-url", "", "Redis URL")
	flag.IntVar(&cfg.redis.maxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	flag.IntVar(&cfg.redis.maxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	flag.DurationVar(&cfg.redis.maxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	flag.StringVar(&cfg.smtp.host, "smtp-host", "sandbox.smtp.mailtrap.io", "SMTP host")
	flag.IntVar(&cfg.smtp.port, "smtp-port", 2525, "SMTP port")
	flag.StringVar(&cfg.smtp.username, "smtp-username", "", "SMTP username")
	flag.StringVar(&cfg.smtp.password, "smtp-password", "", "SMTP password")
	flag.StringVar(&cfg.smtp.sender, "smtp-sender", "Seat Reservation <no-reply@seats.metinatakli.net>", "SMTP sender")
	flag.StringVar(&cfg.alertRecipient, "alert-recipient", "", "E-mail address receiving booking integrity alerts")

	flag.StringVar(&cfg.stripe.secretKey, "stripe-key", "", "Stripe secret key")
	flag.StringVar(&cfg.amqp.url, "amqp-url", "", "RabbitMQ URL for booking notifications (log only when empty)")
	flag.IntVar(&cfg.notifyBuffer, "notify-buffer", notify.DefaultBufferSize, "Pending booking notifications kept in memory")
	flag.StringVar(&cfg.jwt.secret, "jwt-secret", "", "HMAC secret for bearer tokens (bearer auth disabled when empty)")
	flag.StringVar(&cfg.otelCollectorUrl, "otel-collector-url", "", "OpenTelemetry collector gRPC endpoint")

	flag.DurationVar(&cfg.booking.holdTTL, "hold-ttl", hold.DefaultHoldTTL, "How long selected seats stay held")
	flag.DurationVar(&cfg.booking.cutoff, "booking-cutoff", hold.DefaultBookingCutoff, "Booking closes this long before the show starts")
	flag.DurationVar(&cfg.booking.gatewayTimeout, "gateway-timeout", booking.DefaultGatewayTimeout, "Timeout of a single payment gateway call")
	flag.IntVar(&cfg.booking.maxSeats, "max-seats", hold.DefaultMaxSeats, "Maximum seats per reservation (0 for no limit)")
	flag.StringVar(&cfg.booking.currency, "currency", "usd", "Currency of catalog shows without one")

	flag.DurationVar(&cfg.sweeper.interval, "sweep-interval", 5*time.Second, "Expiry sweep interval")
	flag.IntVar(&cfg.sweeper.batchSize, "sweep-batch", 100, "Maximum reservations expired per sweep")

	flag.StringVar(&cfg.backends.ledger, "ledger", "postgres", "Reservation ledger backend (postgres|memory)")
	flag.StringVar(&cfg.backends.seatMap, "seatmap", "redis", "Seat map backend (redis|memory)")
	flag.StringVar(&cfg.backends.gateway, "gateway", "stripe", "Payment gateway (stripe|mock)")
	flag.StringVar(&cfg.backends.catalogFile, "catalog-file", "", "JSON show catalog (read from PostgreSQL when empty)")

	flag.BoolVar(&cfg.limiter.enabled, "limiter-enabled", true, "Enable the per-client API rate limiter")
	flag.StringVar(&cfg.limiter.backend, "limiter-backend", "redis", "Rate limiter backend (redis|memory), memory when Redis is not configured")
	flag.IntVar(&cfg.limiter.Capacity, "limiter-capacity", ratelimit.DefaultCapacity, "Requests a client may burst")
	flag.IntVar(&cfg.limiter.RefillTokens, "limiter-refill", ratelimit.DefaultRefillTokens, "Requests regained per refill interval")
	flag.DurationVar(&cfg.limiter.RefillInterval, "limiter-interval", ratelimit.DefaultRefillInterval, "Rate limiter refill interval")
	cfg.limiter.KeyPrefix = ratelimit.DefaultKeyPrefix

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	textHandler := slog.NewTextHandler(os.Stdout, nil)

	app := &application{
		config:    cfg,
		logger:    slog.New(textHandler),
		validator: appvalidator.NewValidator(),
	}

	shutdownTelemetry, err := app.initTelemetry()
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	if cfg.otelCollectorUrl != "" {
		app.logger = slog.New(newFanoutHandler(textHandler, otelslog.NewHandler(serviceName)))
	}

	rec, err := metrics.New()
	if err != nil {
		return err
	}

	var db *pgxpool.Pool
	if cfg.backends.ledger == "postgres" || cfg.backends.catalogFile == "" {
		db, err = newDatabasePool(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.redis.url != "" {
		redisClient, err = newRedisClient(cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	ledger, err := newLedger(cfg, db)
	if err != nil {
		return err
	}

	shows, err := newShowRepository(cfg, db)
	if err != nil {
		return err
	}

	seats, err := newSeatMap(cfg, redisClient)
	if err != nil {
		return err
	}

	app.limiter, err = newLimiter(cfg, redisClient)
	if err != nil {
		return err
	}

	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}

	var sender notify.Sender = notify.LogSender{Logger: app.logger}
	if cfg.amqp.url != "" {
		publisher := notify.NewAMQPPublisher(cfg.amqp.url)
		defer publisher.Close()
		sender = publisher
	}
	app.dispatcher = notify.NewDispatcher(sender, cfg.notifyBuffer, app.logger, notify.WithMetrics(rec))

	alerter := alert.Multi{alert.NewLogAlerter(app.logger)}
	if cfg.alertRecipient != "" {
		m := mailer.NewSMTPMailer(cfg.smtp.host, cfg.smtp.port, cfg.smtp.username, cfg.smtp.password, cfg.smtp.sender)
		alerter = append(alerter, alert.NewMailAlerter(m, cfg.alertRecipient, app.logger))
	}

	clk := clock.System{}

	app.holds = hold.NewManager(ledger, seats, shows, clk,
		hold.WithHoldTTL(cfg.booking.holdTTL),
		hold.WithBookingCutoff(cfg.booking.cutoff),
		hold.WithMaxSeats(cfg.booking.maxSeats),
		hold.WithLogger(app.logger),
		hold.WithMetrics(rec))

	app.coordinator = booking.NewCoordinator(ledger, app.holds, gateway, app.dispatcher, alerter, clk,
		booking.WithGatewayTimeout(cfg.booking.gatewayTimeout),
		booking.WithLogger(app.logger),
		booking.WithMetrics(rec))

	app.sweeper = worker.NewExpiryWorker(ledger, app.holds, clk, worker.ExpiryWorkerConfig{
		Interval:  cfg.sweeper.interval,
		BatchSize: cfg.sweeper.batchSize,
	}, app.logger)

	app.sessionManager = newSessionManager(redisClient)

	if _, err = app.holds.Rebuild(context.Background()); err != nil {
		return fmt.Errorf("rebuild seat map: %w", err)
	}

	return app.run()
}

func newLedger(cfg config, db *pgxpool.Pool) (domain.Ledger, error) {
	switch cfg.backends.ledger {
	case "postgres":
		return repository.NewPostgresLedger(db), nil
	case "memory":
		return repository.NewMemoryLedger(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.backends.ledger)
	}
}

func newShowRepository(cfg config, db *pgxpool.Pool) (domain.ShowRepository, error) {
	if cfg.backends.catalogFile == "" {
		return repository.NewPostgresShowRepository(db), nil
	}

	shows, err := repository.LoadShowsFile(cfg.backends.catalogFile, cfg.booking.currency)
	if err != nil {
		return nil, err
	}

	return repository.NewMemoryShowRepository(shows...), nil
}

func newSeatMap(cfg config, client *redis.Client) (domain.SeatMap, error) {
	switch cfg.backends.seatMap {
	case "redis":
		if client == nil {
			return nil, errors.New("redis seat map requires -redis-url")
		}
		return seatmap.NewRedisSeatMap(client), nil
	case "memory":
		return seatmap.NewMemorySeatMap(), nil
	default:
		return nil, fmt.Errorf("unknown seat map backend %q", cfg.backends.seatMap)
	}
}

func newLimiter(cfg config, client *redis.Client) (ratelimit.Limiter, error) {
	if !cfg.limiter.enabled {
		return nil, nil
	}
	if err := cfg.limiter.Validate(); err != nil {
		return nil, err
	}

	switch cfg.limiter.backend {
	case "redis":
		if client != nil {
			return ratelimit.NewRedisLimiter(client, cfg.limiter.Config, clock.System{}), nil
		}
		return ratelimit.NewMemoryLimiter(cfg.limiter.Config, clock.System{}), nil
	case "memory":
		return ratelimit.NewMemoryLimiter(cfg.limiter.Config, clock.System{}), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter backend %q", cfg.limiter.backend)
	}
}

func newGateway(cfg config) (domain.PaymentGateway, error) {
	switch cfg.backends.gateway {
	case "stripe":
		return payment.NewStripeGateway(cfg.stripe.secretKey)
	case "mock":
		return payment.NewMockGateway(domain.IntentSucceeded), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.backends.gateway)
	}
}

// newSessionManager keeps sessions in Redis when a client is available and
// in process memory otherwise.
func newSessionManager(client *redis.Client) *scs.SessionManager {
	sessionManager := scs.New()

	if client != nil {
		sessionManager.Store = goredisstore.New(client)
	}
	sessionManager.IdleTimeout = 20 * time.Minute
	sessionManager.Cookie.Name = "session_id"

	return sessionManager
}

func newRedisClient(cfg config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.redis.url,
		MaxIdleConns:    cfg.redis.maxIdleConns,
		MaxActiveConns:  cfg.redis.maxOpenConns,
		ConnMaxIdleTime: cfg.redis.maxIdleTime,
	})

	if err := errors.Join(redisotel.InstrumentTracing(rdb), redisotel.InstrumentMetrics(rdb)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func newDatabasePool(cfg config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.db.dsn)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.db.maxIdleTime
	config.MaxConns = int32(cfg.db.maxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// run serves HTTP until SIGINT or SIGTERM, together with the expiry sweeper
// and the notification dispatcher.
func (app *application) run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.port),
		Handler:      app.routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if err := app.sweeper.Start(gctx); err != nil {
		return err
	}
	defer app.sweeper.Stop()

	g.Go(func() error {
		return app.dispatcher.Run(gctx)
	})

	g.Go(func() error {
		app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.env)

		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}
