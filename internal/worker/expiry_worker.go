package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/metinatakli/seat-reservation/internal/clock"
	"github.com/metinatakli/seat-reservation/internal/domain"
)

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// Interval between two sweeps
	Interval time.Duration
	// BatchSize caps the reservations expired by one sweep
	BatchSize int
}

func DefaultExpiryWorkerConfig() ExpiryWorkerConfig {
	return ExpiryWorkerConfig{
		Interval:  5 * time.Second,
		BatchSize: 100,
	}
}

// Reclaimer closes a reservation and frees its seats. Abort reports false
// when the reservation changed concurrently. Reconcile frees seats left held
// under reservations that are already closed.
type Reclaimer interface {
	Abort(ctx context.Context, r *domain.Reservation, kind domain.EventKind, reason string) (bool, error)
	Reconcile(ctx context.Context) (int, error)
}

// ExpiryWorker periodically moves reservations whose hold elapsed to Expired
// and returns their seats to the show.
type ExpiryWorker struct {
	ledger    domain.Ledger
	reclaimer Reclaimer
	clock     clock.Clock
	config    ExpiryWorkerConfig
	logger    *slog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// stats
	totalExpired   int64
	totalSkipped    int64
	totalReconciled int64
	lastSweepTime   time.Time
	lastSweepCount int
}

type ExpiryWorkerStats struct {
	IsRunning       bool      `json:"running"`
	TotalExpired    int64     `json:"totalExpired"`
	TotalSkipped    int64     `json:"totalSkipped"`
	TotalReconciled int64     `json:"totalReconciled"`
	LastSweepTime   time.Time `json:"lastSweepTime"`
	LastSweepCount  int       `json:"lastSweepCount"`
}

func NewExpiryWorker(
	ledger domain.Ledger,
	reclaimer Reclaimer,
	clk clock.Clock,
	config ExpiryWorkerConfig,
	logger *slog.Logger) *ExpiryWorker {

	defaults := DefaultExpiryWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &ExpiryWorker{
		ledger:    ledger,
		reclaimer: reclaimer,
		clock:     clk,
		config:    config,
		logger:    logger,
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("expiry worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	w.logger.Info("starting expiry worker", "interval", w.config.Interval, "batch_size", w.config.BatchSize)

	w.wg.Add(1)
	go w.run(ctx, stopCh)

	return nil
}

// Stop blocks until the running sweep, if any, has finished.
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("expiry worker stopped")
}

func (w *ExpiryWorker) run(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("expiry sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.running && w.stopCh == stopCh {
				w.running = false
				close(w.stopCh)
			}
			w.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires every reservation whose hold elapsed and returns how many
// it expired. A reservation confirmed or released concurrently is skipped.
// Each sweep ends by reconciling seats stranded under closed reservations.
func (w *ExpiryWorker) Sweep(ctx context.Context) (int, error) {
	now := w.clock.Now()

	tokens, err := w.ledger.ListExpired(ctx, now, w.config.BatchSize)
	if err != nil {
		return 0, err
	}

	var (
		expired, skipped int
		errs             []error
	)

	for _, token := range tokens {
		r, err := w.ledger.Latest(ctx, token)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if r.Status.IsTerminal() || !r.Expired(now) {
			skipped++
			continue
		}

		applied, err := w.reclaimer.Abort(ctx, r, domain.EventExpired, domain.ReasonHoldTTL)
		if err != nil {
			w.logger.Error("failed to expire reservation", "token", token, "error", err)
			errs = append(errs, err)
			continue
		}

		if !applied {
			skipped++
			continue
		}

		expired++
	}

	reconciled, err := w.reclaimer.Reconcile(ctx)
	if err != nil {
		w.logger.Error("seat map reconciliation failed", "error", err)
		errs = append(errs, err)
	}

	w.mu.Lock()
	w.totalExpired += int64(expired)
	w.totalSkipped += int64(skipped)
	w.totalReconciled += int64(reconciled)
	w.lastSweepTime = now
	w.lastSweepCount = expired
	w.mu.Unlock()

	if expired > 0 {
		w.logger.Info("expired reservations reclaimed", "count", expired, "skipped", skipped)
	}

	return expired, errors.Join(errs...)
}

func (w *ExpiryWorker) Stats() ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return ExpiryWorkerStats{
		IsRunning:       w.running,
		TotalExpired:    w.totalExpired,
		TotalSkipped:    w.totalSkipped,
		TotalReconciled: w.totalReconciled,
		LastSweepTime:   w.lastSweepTime,
		LastSweepCount:  w.lastSweepCount,
	}
}
