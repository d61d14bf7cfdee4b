package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/makeasinger/musicvideo/internal/model"
)

const (
	RoutingKeyEvent  = "musicvideo.event"
	RoutingKeyStaged = "musicvideo.staged"
)

// EventMessage is the body published for every terminal job event
type EventMessage struct {
	JobID      string          `json:"jobId"`
	Kind       model.EventKind `json:"kind"`
	Payload    interface{}     `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// StagedMessage announces artifacts staged under pending/ for an external consumer
type StagedMessage struct {
	JobID      string    `json:"jobId"`
	RequestKey string    `json:"requestKey"`
	AudioKey   string    `json:"audioKey"`
	StagedAt   time.Time `json:"stagedAt"`
}

// Publisher mirrors job events to a RabbitMQ topic exchange. A nil
// *Publisher is valid and publishes nothing.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *slog.Logger
}

// Dial connects to the broker and declares the exchange
func Dial(url, exchange string, log *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange, log: log.With("component", "handoff")}, nil
}

// PublishEvent mirrors a terminal event
func (p *Publisher) PublishEvent(ctx context.Context, jobID string, ev model.Event) error {
	if p == nil {
		return nil
	}
	return p.publish(ctx, RoutingKeyEvent, EventMessage{
		JobID:      jobID,
		Kind:       ev.Kind,
		Payload:    ev.Payload,
		OccurredAt: time.Now().UTC(),
	})
}

// PublishStaged announces staged hand-off artifacts
func (p *Publisher) PublishStaged(ctx context.Context, msg StagedMessage) error {
	if p == nil {
		return nil
	}
	if msg.StagedAt.IsZero() {
		msg.StagedAt = time.Now().UTC()
	}
	return p.publish(ctx, RoutingKeyStaged, msg)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", routingKey, err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.Debug("published", "routing_key", routingKey, "bytes", len(data))
	return nil
}

// Close releases the channel and connection
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.channel.Close()
	return p.conn.Close()
}
