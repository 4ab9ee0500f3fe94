package rabbitmq

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"circles-service/internal/telemetry"
)

// Publisher publishes audit events for the circles service.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Mode identifies how a publisher was set up.
type Mode string

const (
	ModeAMQP Mode = "amqp"
	ModeNoop Mode = "noop"
)

// NewPublisher connects to RabbitMQ and declares the audit exchange. When the
// broker is unreachable or AMQP is disabled, audit events degrade to log lines
// through the noop fallback instead of failing requests.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return noop("empty amqp url")
	}
	p, err := connect(amqpURL, exchange)
	if err != nil {
		return noop(err.Error())
	}
	log.Printf("rabbitmq connected exchange=%s", exchange)
	return p
}

func connect(amqpURL, exchange string) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func noop(reason string) Publisher {
	log.Printf("rabbitmq disabled, audit falls back to logs: %s", reason)
	return noopPublisher{reason: reason}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		AppId:        "circles-service",
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq publish failed key=%s: %v", routingKey, err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if envelope, ok := asAuditEnvelope(event); ok {
		log.Printf("audit (noop) key=%s type=%s request_id=%s level=%s text=%q",
			routingKey, envelope.EventType, envelope.RequestID, envelope.Payload.Level, envelope.Payload.Text)
		return nil
	}
	log.Printf("audit (noop) key=%s", routingKey)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

func asAuditEnvelope(event any) (telemetry.AuditEnvelope, bool) {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope, true
	case *telemetry.AuditEnvelope:
		return *envelope, true
	default:
		return telemetry.AuditEnvelope{}, false
	}
}

// Describe reports the publisher mode and, for the noop fallback, why AMQP is
// unavailable.
func Describe(p Publisher) (Mode, string) {
	switch publisher := p.(type) {
	case noopPublisher:
		return ModeNoop, publisher.reason
	case *noopPublisher:
		return ModeNoop, publisher.reason
	default:
		return ModeAMQP, ""
	}
}
