package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"transplant/internal/notification"
)

// Publisher is the subset of *amqp.Channel the sink uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQ publishes notifications as JSON to a topic exchange, routed by audience.
type RabbitMQ struct {
	mu       sync.Mutex
	channel  Publisher
	exchange string
	clock    func() time.Time
}

func NewRabbitMQ(channel Publisher, exchange string) *RabbitMQ {
	return &RabbitMQ{channel: channel, exchange: exchange, clock: time.Now}
}

// DialRabbitMQ connects, declares the exchange, and returns the sink with the
// connection so the caller can close it on shutdown.
func DialRabbitMQ(url, exchange string) (*RabbitMQ, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return NewRabbitMQ(ch, exchange), conn, nil
}

func (r *RabbitMQ) Send(ctx context.Context, n notification.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    r.clock(),
		Type:         string(n.Type),
		Body:         body,
	}
	// Channels are not safe for concurrent publishing.
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.channel.PublishWithContext(ctx, r.exchange, string(n.Audience), false, false, msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
