package publisher

import (
	"context"
	"log/slog"
	"time"

	audit "transplant/pkg/platform/audit"
)

// Publisher records audit entries. Emit writes through to the store, which
// joins the caller's transaction, so an entry commits or rolls back with the
// change it describes.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	clock  func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		p.clock = clock
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), clock: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = p.clock()
	}
	if err := p.store.Append(ctx, entry); err != nil {
		p.logger.ErrorContext(ctx, "failed to append audit entry",
			"action", entry.ActionType, "entity_type", entry.EntityType, "entity_id", entry.EntityID, "error", err)
		return err
	}
	return nil
}

func (p *Publisher) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	return p.store.ListByEntity(ctx, entityType, entityID)
}

func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	return p.store.ListRecent(ctx, limit)
}
