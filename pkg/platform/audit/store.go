package audit

import "context"

// Store persists audit entries. Implementations are append-only.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}
