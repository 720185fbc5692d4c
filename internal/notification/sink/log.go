package sink

import (
	"context"
	"log/slog"

	"transplant/internal/notification"
)

// Log writes notifications to the structured log. Used when no broker is
// configured and as the dispatcher fallback.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, n notification.Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"audience", n.Audience,
		"recipient_id", n.RecipientID,
		"type", n.Type,
		"title", n.Title,
		"entity_type", n.Related.EntityType,
		"entity_id", n.Related.EntityID,
	)
	return nil
}
