package notify

import (
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	"github.com/metinatakli/seat-reservation/internal/domain"
	"github.com/metinatakli/seat-reservation/internal/metrics"
)

const (
	DefaultBufferSize = 256
	defaultMaxTries   = 5
)

// Sender delivers a single event to its destination.
type Sender interface {
	Send(ctx context.Context, event domain.BookingConfirmed) error
}

// Dispatcher queues booking events in a bounded buffer and delivers them
// from Run. Notify never blocks: when the buffer is full the event is dropped.
type Dispatcher struct {
	events   chan domain.BookingConfirmed
	sender   Sender
	logger   *slog.Logger
	metrics  *metrics.Recorder
	maxTries uint
	backOff  func() backoff.BackOff
}

type Option func(*Dispatcher)

func WithMaxTries(n uint) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxTries = n
		}
	}
}

// WithBackOff replaces the exponential retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(d *Dispatcher) {
		d.backOff = newBackOff
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(d *Dispatcher) {
		d.metrics = rec
	}
}

func NewDispatcher(sender Sender, bufferSize int, logger *slog.Logger, opts ...Option) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	d := &Dispatcher{
		events:   make(chan domain.BookingConfirmed, bufferSize),
		sender:   sender,
		logger:   logger,
		metrics:  metrics.Discard(),
		maxTries: defaultMaxTries,
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Dispatcher) Notify(event domain.BookingConfirmed) {
	select {
	case d.events <- event:
	default:
		d.metrics.NotificationDropped(context.Background(), "buffer_full")
		d.logger.Warn("notification buffer full, dropping booking event", "token", event.Token)
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.events); n > 0 {
				d.logger.Warn("undelivered booking events discarded on shutdown", "count", n)
			}
			return nil
		case event := <-d.events:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.BookingConfirmed) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.sender.Send(ctx, event)
	}, backoff.WithBackOff(d.backOff()), backoff.WithMaxTries(d.maxTries))

	if err != nil {
		d.metrics.NotificationDropped(ctx, "delivery_failed")
		d.logger.Error("failed to deliver booking event", "token", event.Token, "error", err)
		return
	}

	d.logger.Debug("booking event delivered", "token", event.Token)
}

// LogSender writes events to the log. It stands in for a broker in local runs.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, event domain.BookingConfirmed) error {
	s.Logger.InfoContext(ctx, "booking confirmed",
		"token", event.Token,
		"requester_id", event.RequesterID,
		"show_id", event.ShowID,
		"seats", event.Seats,
		"amount", event.Amount,
		"currency", event.Currency)

	return nil
}
