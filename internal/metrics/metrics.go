package metrics

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/metinatakli/seat-reservation"

// Recorder counts reservation lifecycle events. A Recorder built before a
// meter provider is installed records into the no-op provider.
type Recorder struct {
	holdsGranted      metric.Int64Counter
	holdsRejected     metric.Int64Counter
	paymentsInitiated metric.Int64Counter
	confirmations     metric.Int64Counter
	expirations       metric.Int64Counter
	cancellations     metric.Int64Counter
	integrityFailures metric.Int64Counter
	notificationsLost metric.Int64Counter
	gatewayLatency    metric.Float64Histogram
}

func New() (*Recorder, error) {
	return NewWithMeter(otel.Meter(meterName))
}

// Discard returns a Recorder that drops every measurement.
func Discard() *Recorder {
	r, err := NewWithMeter(noop.NewMeterProvider().Meter(meterName))
	if err != nil {
		panic(err)
	}

	return r
}

func NewWithMeter(meter metric.Meter) (*Recorder, error) {
	var (
		r    Recorder
		err  error
		errs []error
	)

	counter := func(name, description string) metric.Int64Counter {
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit("1"))
		errs = append(errs, err)
		return c
	}

	r.holdsGranted = counter("seat_holds_granted_total", "Seat holds granted")
	r.holdsRejected = counter("seat_holds_rejected_total", "Seat hold requests rejected")
	r.paymentsInitiated = counter("payments_initiated_total", "Gateway payment intents created")
	r.confirmations = counter("booking_confirmations_total", "Reservations confirmed")
	r.expirations = counter("reservation_expirations_total", "Reservations expired by the sweeper")
	r.cancellations = counter("reservation_cancellations_total", "Reservations cancelled")
	r.integrityFailures = counter("booking_integrity_failures_total", "Captured payments whose seats could not be booked")
	r.notificationsLost = counter("notifications_dropped_total", "Booking notifications that were never delivered")

	r.gatewayLatency, err = meter.Float64Histogram(
		"payment_gateway_duration_seconds",
		metric.WithDescription("Payment gateway call latency"),
		metric.WithUnit("s"),
	)
	errs = append(errs, err)

	if err = errors.Join(errs...); err != nil {
		return nil, err
	}

	return &r, nil
}

func (r *Recorder) HoldGranted(ctx context.Context, seats int) {
	r.holdsGranted.Add(ctx, int64(seats))
}

func (r *Recorder) HoldRejected(ctx context.Context, reason string) {
	r.holdsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) PaymentInitiated(ctx context.Context) {
	r.paymentsInitiated.Add(ctx, 1)
}

func (r *Recorder) Confirmed(ctx context.Context) {
	r.confirmations.Add(ctx, 1)
}

func (r *Recorder) Expired(ctx context.Context, n int) {
	r.expirations.Add(ctx, int64(n))
}

func (r *Recorder) Cancelled(ctx context.Context, reason string) {
	r.cancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) IntegrityFailure(ctx context.Context) {
	r.integrityFailures.Add(ctx, 1)
}

func (r *Recorder) NotificationDropped(ctx context.Context, cause string) {
	r.notificationsLost.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// GatewayCall records the latency of one gateway operation.
func (r *Recorder) GatewayCall(ctx context.Context, operation string, started time.Time, err error) {
	r.gatewayLatency.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	))
}
