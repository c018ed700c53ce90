package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names double as event types.
const (
	QueueBookingConfirmed = "booking.confirmed"
	QueueBookingCancelled = "booking.cancelled"
)

// Event is published after a booking is committed or cancelled. It carries
// enough for downstream consumers to notify or invoice without reading the
// primary store.
type Event struct {
	Type         string `json:"type"`
	BookingID    string `json:"booking_id"`
	Reference    string `json:"reference,omitempty"`
	ContractID   string `json:"contract_id"`
	PoolKey      string `json:"pool_key"`
	Quantity     int    `json:"quantity"`
	Status       string `json:"status"`
	CheckIn      string `json:"check_in"`
	CheckOut     string `json:"check_out"`
	TotalSelling string `json:"total_selling"`
	Currency     string `json:"currency"`
	OccurredAt   string `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// =============================================================================
// RABBITMQ
// =============================================================================

// AMQPPublisher publishes persistent JSON messages to durable queues on
// the default exchange, routing key = queue name.
type AMQPPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

// NewAMQPPublisher dials the broker and declares both booking queues.
func NewAMQPPublisher(url string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	for _, q := range []string{QueueBookingConfirmed, QueueBookingCancelled} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq declare %s: %w", q, err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{conn: conn, ch: ch, log: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", e.Type, false, false, msg); err != nil {
		p.log.Error("publish failed", "queue", e.Type, "booking_id", e.BookingID, "error", err)
		return fmt.Errorf("rabbitmq publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}
