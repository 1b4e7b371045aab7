// Package events publishes transaction change notifications to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/port"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("events")

const publishTimeout = 5 * time.Second

// Publisher sends one persistent JSON message per event to a durable direct
// exchange, routed by event kind.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

var _ port.EventPublisher = (*Publisher)(nil)

// NewPublisher dials url and declares exchange.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("event publisher connected", zap.String("exchange", exchange))
	return &Publisher{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

// Encode builds the AMQP message for evt.
func Encode(evt domain.TransactionEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.TransactionID,
		Type:         evt.Kind,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	}, nil
}

// Publish sends evt. Channels are not safe for concurrent publishing, so
// calls are serialized.
func (p *Publisher) Publish(ctx context.Context, evt domain.TransactionEvent) error {
	ctx, span := tracer.Start(ctx, "events.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.kind", evt.Kind),
		attribute.String("transaction.id", evt.TransactionID),
	)

	msg, err := Encode(evt)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		evt.Kind,   // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Kind, err)
	}

	p.logger.Debug("event published",
		zap.String("kind", evt.Kind),
		zap.String("transaction_id", evt.TransactionID),
		zap.String("exchange", p.exchange),
	)
	return nil
}

// Close shuts the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Noop discards every event. It is used when no broker is configured.
type Noop struct{}

var _ port.EventPublisher = Noop{}

func (Noop) Publish(context.Context, domain.TransactionEvent) error { return nil }
