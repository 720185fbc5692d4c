package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transplant/internal/notification"
)

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestRabbitMQ_Send(t *testing.T) {
	ch := &fakeChannel{}
	s := NewRabbitMQ(ch, "notifications")
	n := notification.ToDonor("user-1", notification.TypeConsentRequest, "Access request", "A hospital asked for access",
		notification.Related{EntityType: "donor", EntityID: "d-1"})

	require.NoError(t, s.Send(context.Background(), n))

	assert.Equal(t, "notifications", ch.exchange)
	assert.Equal(t, "donor", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)

	var decoded notification.Notification
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, n, decoded)
}

func TestRabbitMQ_SendError(t *testing.T) {
	s := NewRabbitMQ(&fakeChannel{err: errors.New("channel closed")}, "notifications")
	err := s.Send(context.Background(), notification.ToAdmins(notification.TypeSystem, "t", "m", notification.Related{}))
	assert.ErrorContains(t, err, "channel closed")
}
