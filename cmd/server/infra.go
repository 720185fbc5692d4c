package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/twmb/franz-go/pkg/kgo"

	"transplant/internal/disclosure"
	donorService "transplant/internal/donor/service"
	donorStore "transplant/internal/donor/store/donor"
	profileStore "transplant/internal/donor/store/profile"
	"transplant/internal/notification"
	"transplant/internal/notification/sink"
	"transplant/internal/platform/config"
	"transplant/internal/platform/kafka"
	"transplant/internal/platform/metrics"
	"transplant/internal/platform/objectstore"
	"transplant/internal/platform/postgres"
	"transplant/internal/platform/redis"
	"transplant/internal/request/sequence"
	requestService "transplant/internal/request/service"
	requestStore "transplant/internal/request/store/request"
	transplantStore "transplant/internal/request/store/transplant"
	"transplant/internal/sla"
	"transplant/pkg/platform/audit"
	"transplant/pkg/platform/audit/outbox"
	"transplant/pkg/platform/audit/publisher"
	auditmemory "transplant/pkg/platform/audit/store/memory"
	auditpostgres "transplant/pkg/platform/audit/store/postgres"
	"transplant/pkg/platform/circuit"
	"transplant/pkg/platform/tx"
)

// infra holds the external connections. Every field is optional; a nil
// connection selects the in-memory or logging implementation.
type infra struct {
	db     *sql.DB
	redis  *redis.Client
	kafka  *kgo.Client
	rabbit *amqp.Connection
	mq     *sink.RabbitMQ
	bucket disclosure.BundleStorage
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		in.db = db
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.redis = rc

	// The outbox only exists in Postgres, so Kafka without a database has
	// nothing to relay.
	if in.db != nil {
		kc, err := kafka.NewClient(cfg.Kafka)
		if err != nil {
			in.Close()
			return nil, err
		}
		if kc != nil {
			if err := kafka.EnsureTopics(ctx, kc, cfg.Kafka.AuditTopic); err != nil {
				kc.Close()
				in.Close()
				return nil, err
			}
			in.kafka = kc
		}
	}

	if cfg.RabbitMQ.URL != "" {
		mq, conn, err := sink.DialRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			// Notifications fall back to the log sink until restart.
			log.Warn("rabbitmq unavailable, notifications will be logged only", "error", err)
		} else {
			in.mq, in.rabbit = mq, conn
		}
	}
	return in, nil
}

func (in *infra) backend() string {
	if in.db != nil {
		return "postgres"
	}
	return "memory"
}

// Close releases connections in reverse order of opening.
func (in *infra) Close() {
	if in.rabbit != nil {
		_ = in.rabbit.Close()
	}
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

// Health pings every configured dependency.
func (in *infra) Health(ctx context.Context) error {
	var errs []error
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if in.kafka != nil {
		if err := kafka.Health(ctx, in.kafka); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	}
	if in.rabbit != nil && in.rabbit.IsClosed() {
		errs = append(errs, errors.New("rabbitmq: connection closed"))
	}
	if p, ok := in.bucket.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("object storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// requestBackend is the union of what the request services read and write.
type requestBackend interface {
	requestService.RequestStore
	sla.RequestStore
	disclosure.RequestStore
}

type stores struct {
	requests    requestBackend
	transplants requestService.TransplantStore
	donors      donorService.DonorStore
	profiles    donorService.ProfileStore
	sequence    requestService.Sequence
	audit       audit.Store
	runner      tx.Runner
}

func newStores(in *infra, cfg config.Config) stores {
	var st stores
	if in.db != nil {
		st = stores{
			requests:    requestStore.NewPostgres(in.db),
			transplants: transplantStore.NewPostgres(in.db),
			donors:      donorStore.NewPostgres(in.db),
			profiles:    profileStore.NewPostgres(in.db),
			sequence:    sequence.NewPostgres(in.db),
			audit:       auditpostgres.New(in.db),
			runner:      tx.NewPostgresRunner(in.db, cfg.Postgres.TxTimeout),
		}
	} else {
		st = stores{
			requests:    requestStore.NewInMemory(),
			transplants: transplantStore.NewInMemory(),
			donors:      donorStore.NewInMemory(),
			profiles:    profileStore.NewInMemory(),
			sequence:    sequence.NewMemory(),
			audit:       auditmemory.NewInMemoryStore(),
			runner:      tx.NewMemoryRunner(),
		}
	}
	// Redis takes over the year counter when configured so several replicas
	// share one sequence even on the in-memory backend.
	if in.redis != nil {
		st.sequence = sequence.NewRedis(in.redis)
	}
	return st
}

// Audit entries are written synchronously so they commit or roll back with
// the transition that produced them.
func newAuditPublisher(store audit.Store, log *slog.Logger) *publisher.Publisher {
	return publisher.NewPublisher(store, publisher.WithLogger(log))
}

func newNotifier(in *infra, log *slog.Logger, m *metrics.Metrics) *notification.Dispatcher {
	logSink := sink.NewLog(log)
	if in.mq == nil {
		return notification.NewDispatcher(logSink,
			notification.WithLogger(log),
			notification.WithMetrics(m),
		)
	}
	return notification.NewDispatcher(in.mq,
		notification.WithFallback(logSink),
		notification.WithBreaker(circuit.New("rabbitmq",
			circuit.WithFailureThreshold(5),
			circuit.WithCooldown(30*time.Second),
		)),
		notification.WithLogger(log),
		notification.WithMetrics(m),
	)
}

func newBundleStorage(cfg config.Config) (disclosure.BundleStorage, error) {
	if cfg.MinIO.Endpoint == "" {
		return objectstore.Static{BaseURL: "http://localhost:9000/" + cfg.MinIO.Bucket, Expiry: cfg.MinIO.URLExpiry}, nil
	}
	return objectstore.NewMinio(cfg.MinIO)
}

func newOutboxRelay(in *infra, cfg config.KafkaConfig, log *slog.Logger, m *metrics.Metrics) *outbox.Relay {
	if in.db == nil || in.kafka == nil {
		return nil
	}
	return outbox.NewRelay(in.db, in.kafka, cfg.AuditTopic,
		outbox.WithBatchSize(cfg.RelayBatchSize),
		outbox.WithInterval(cfg.RelayInterval),
		outbox.WithLogger(log),
		outbox.WithMetrics(m),
	)
}
