// Package worker runs the request lifecycle's background jobs.
package worker

import (
	"context"
	"log/slog"
	"time"

	"transplant/internal/sla"
)

type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

type NearBreachLister interface {
	NearBreach(ctx context.Context) ([]sla.Snapshot, error)
}

type NearBreachGauge interface {
	SetNearBreach(n int)
}

// ExpirySweeper expires overdue pending requests on a fixed interval and
// refreshes the near-breach gauge. A failed sweep is logged and retried on
// the next tick; it never affects request handling.
type ExpirySweeper struct {
	expirer  Expirer
	sla      NearBreachLister
	gauge    NearBreachGauge
	interval time.Duration
	logger   *slog.Logger
	clock    func() time.Time
}

type Option func(*ExpirySweeper)

func WithInterval(d time.Duration) Option {
	return func(w *ExpirySweeper) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *ExpirySweeper) {
		w.logger = logger
	}
}

func WithGauge(g NearBreachGauge) Option {
	return func(w *ExpirySweeper) {
		w.gauge = g
	}
}

func WithClock(clock func() time.Time) Option {
	return func(w *ExpirySweeper) {
		w.clock = clock
	}
}

func NewExpirySweeper(expirer Expirer, nearBreach NearBreachLister, opts ...Option) *ExpirySweeper {
	w := &ExpirySweeper{
		expirer:  expirer,
		sla:      nearBreach,
		interval: time.Minute,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.Sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep performs one pass.
func (w *ExpirySweeper) Sweep(ctx context.Context) {
	expired, err := w.expirer.ExpireDue(ctx, w.clock().UTC())
	if err != nil {
		w.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	} else if expired > 0 {
		w.logger.InfoContext(ctx, "expired overdue requests", "count", expired)
	}

	if w.sla == nil || w.gauge == nil {
		return
	}
	near, err := w.sla.NearBreach(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "near-breach scan failed", "error", err)
		return
	}
	w.gauge.SetNearBreach(len(near))
	for _, snap := range near {
		w.logger.WarnContext(ctx, "critical request approaching SLA deadline",
			"request", snap.RequestID, "hours_elapsed", snap.HoursElapsed, "deadline", snap.Deadline)
	}
}
