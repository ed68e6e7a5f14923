package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange is the topic exchange events are published to.
	DefaultExchange = "events"
	// DefaultRoutingKey is used for application.sent events.
	DefaultRoutingKey = EventApplicationSent
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as persistent JSON messages to a RabbitMQ topic
// exchange.
type AMQPSink struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	pub        publisher
	exchange   string
	routingKey string
}

// DialAMQP connects to url and declares exchange as a durable topic exchange.
func DialAMQP(url, exchange, routingKey string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	s := newAMQPSink(ch, exchange, routingKey)
	s.conn, s.channel = conn, ch
	return s, nil
}

func newAMQPSink(pub publisher, exchange, routingKey string) *AMQPSink {
	return &AMQPSink{pub: pub, exchange: exchange, routingKey: routingKey}
}

func (s *AMQPSink) Name() string { return "amqp" }

// Publish sends ev. application.sent events use the configured routing key;
// other types are routed by their own name.
func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	key := ev.Type
	if key == EventApplicationSent || key == "" {
		key = s.routingKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pub.PublishWithContext(ctx, s.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	})
}

// IsConnected reports whether the broker connection is still open.
func (s *AMQPSink) IsConnected() bool {
	return s.conn != nil && !s.conn.IsClosed()
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		_ = s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
