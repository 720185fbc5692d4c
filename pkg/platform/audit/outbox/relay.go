package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// PublishedCounter is notified of each published batch. Optional.
type PublishedCounter interface {
	AddOutboxPublished(n int)
}

// Relay moves committed outbox rows to Kafka. Rows are claimed with
// FOR UPDATE SKIP LOCKED so several replicas can run the relay at once, and
// marked published only after the broker acknowledged them.
type Relay struct {
	db        *sql.DB
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   PublishedCounter
	clock     func() time.Time
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m PublishedCounter) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(r *Relay) {
		r.clock = clock
	}
}

func NewRelay(db *sql.DB, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		db:        db,
		producer:  producer,
		topic:     topic,
		batchSize: 100,
		interval:  time.Second,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Batch failures are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.PublishBatch(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "outbox relay batch failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.DebugContext(ctx, "outbox relay published batch", "count", n)
			}
		}
	}
}

type row struct {
	id          uuid.UUID
	aggregateID string
	eventType   string
	payload     []byte
}

// PublishBatch publishes one batch and returns how many rows were marked.
func (r *Relay) PublishBatch(ctx context.Context) (int, error) {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	rows, err := sqlTx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox rows: %w", err)
	}
	var batch []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.id, &rw.aggregateID, &rw.eventType, &rw.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, rw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, 0, len(batch))
	for _, rw := range batch {
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(rw.aggregateID),
			Value: rw.payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(rw.eventType)},
				{Key: "outbox_id", Value: []byte(rw.id.String())},
			},
		})
	}
	if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return 0, fmt.Errorf("produce outbox records: %w", err)
	}

	now := r.clock()
	for _, rw := range batch {
		if _, err := sqlTx.ExecContext(ctx,
			`UPDATE outbox SET published_at = $2 WHERE id = $1`, rw.id, now); err != nil {
			return 0, fmt.Errorf("mark outbox row published: %w", err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	if r.metrics != nil {
		r.metrics.AddOutboxPublished(len(batch))
	}
	return len(batch), nil
}
