package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"transplant/internal/platform/metrics"
	"transplant/pkg/platform/circuit"
)

// Dispatcher sends notifications on background goroutines. The primary sink
// is guarded by a circuit breaker; while it is open, or when a send fails,
// the fallback sink receives the notification instead.
type Dispatcher struct {
	primary  Sink
	fallback Sink
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration

	wg sync.WaitGroup
}

type Option func(*Dispatcher)

func WithFallback(s Sink) Option {
	return func(d *Dispatcher) {
		d.fallback = s
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(d *Dispatcher) {
		d.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func NewDispatcher(primary Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		primary: primary,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.breaker == nil {
		d.breaker = circuit.New("notifications", circuit.WithCooldown(30*time.Second))
	}
	return d
}

// Notify validates n and hands it to a background goroutine. It never blocks
// on delivery and never returns an error; failures are logged and counted.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	if err := n.Validate(); err != nil {
		d.logger.WarnContext(ctx, "dropping invalid notification",
			"error", err,
			"type", n.Type,
			"audience", n.Audience,
		)
		d.metrics.IncNotificationFailure(string(n.Audience))
		return
	}
	// Detach from the caller's cancellation; keep its values for logging.
	sendCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(sendCtx, n)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.breaker.Allow() {
		err := d.primary.Send(ctx, n)
		if err == nil {
			if _, change := d.breaker.RecordSuccess(); change.Closed {
				d.logger.InfoContext(ctx, "notification sink recovered", "breaker", d.breaker.Name())
			}
			return
		}
		_, change := d.breaker.RecordFailure()
		if change.Opened {
			d.logger.WarnContext(ctx, "notification sink circuit opened", "breaker", d.breaker.Name())
		}
		d.logger.ErrorContext(ctx, "failed to send notification",
			"error", err,
			"type", n.Type,
			"audience", n.Audience,
		)
		d.metrics.IncNotificationFailure(string(n.Audience))
	}

	if d.fallback == nil {
		return
	}
	if err := d.fallback.Send(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "fallback notification sink failed",
			"error", err,
			"type", n.Type,
		)
	}
}

// Close waits for in-flight deliveries.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}
