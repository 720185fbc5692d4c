package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "transplant/pkg/domain"
	audit "transplant/pkg/platform/audit"
	txcontext "transplant/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL. Append writes the entry to
// audit_log and a copy to the outbox in the caller's transaction; the outbox
// relay publishes it to Kafka afterwards.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// OutboxPayload is the JSON published to Kafka for each entry.
type OutboxPayload struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	ActionType  string          `json:"action_type"`
	PerformedBy audit.Performer `json:"performed_by"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Details     string          `json:"details,omitempty"`
	Timestamp   string          `json:"timestamp"`
	RequestID   string          `json:"request_id,omitempty"`
	Client      string          `json:"client,omitempty"`
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	if uuid.UUID(entry.ID) == uuid.Nil {
		entry.ID = id.EntryID(uuid.New())
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	exec := txcontext.Pick(ctx, s.db)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO audit_log (id, action_type, performer_id, performer_name, performer_role,
			entity_type, entity_id, details, request_id, client, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(entry.ID),
		string(entry.ActionType),
		entry.PerformedBy.ID,
		entry.PerformedBy.Name,
		string(entry.PerformedBy.Role),
		string(entry.EntityType),
		entry.EntityID,
		entry.Details,
		entry.RequestID,
		entry.Client,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(OutboxPayload{
		ID:          entry.ID.String(),
		Category:    string(entry.ActionType.Category()),
		ActionType:  string(entry.ActionType),
		PerformedBy: entry.PerformedBy,
		EntityType:  string(entry.EntityType),
		EntityID:    entry.EntityID,
		Details:     entry.Details,
		Timestamp:   entry.Timestamp.UTC().Format(time.RFC3339Nano),
		RequestID:   entry.RequestID,
		Client:      entry.Client,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		string(entry.EntityType),
		entry.EntityID,
		string(entry.ActionType),
		payload,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

const selectEntry = `
	SELECT id, action_type, performer_id, performer_name, performer_role,
		entity_type, entity_id, details, request_id, client, created_at
	FROM audit_log`

func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		selectEntry+` WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at ASC, id ASC`,
		string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return scanEntries(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		selectEntry+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit entries: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	defer rows.Close()
	var out []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			entryID uuid.UUID
			action  string
			role    string
			entity  string
		)
		if err := rows.Scan(&entryID, &action, &e.PerformedBy.ID, &e.PerformedBy.Name, &role,
			&entity, &e.EntityID, &e.Details, &e.RequestID, &e.Client, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.EntryID(entryID)
		e.ActionType = audit.ActionType(action)
		e.PerformedBy.Role = id.Role(role)
		e.EntityType = audit.EntityType(entity)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
