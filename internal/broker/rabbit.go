// Package broker publishes committed events to RabbitMQ for consumers
// outside the realtime stream: CRMs, analytics, anything that wants the
// booking feed without holding an SSE connection.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"korty/internal/config"
	"korty/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *zerolog.Logger
}

// NewPublisher dials the broker and declares a durable topic exchange.
func NewPublisher(cfg config.AMQPConfig, logger *zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "korty.events"
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Publish sends one envelope to the exchange. Alias kinds are skipped: they
// exist for legacy stream clients, broker consumers bind on the stable
// vocabulary.
func (p *Publisher) Publish(ctx context.Context, env *events.Envelope) error {
	if events.Alias(env.Kind) == "" {
		return nil
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	return p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(env), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%d", env.ID),
		Timestamp:    env.CreatedAt,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RoutingKey maps kind and room onto the topic grammar: booking:created in
// club:club-1 becomes booking.created.club.club-1, so consumers can bind
// booking.created.# or #.club.club-1.
func RoutingKey(env *events.Envelope) string {
	r := strings.NewReplacer(":", ".")
	return r.Replace(env.Kind) + "." + r.Replace(env.Room)
}
