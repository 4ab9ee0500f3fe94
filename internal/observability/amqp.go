package observability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers group socket events to the message bus.
type Publisher interface {
	PublishGroupSocketEvent(ctx context.Context, event GroupSocketEvent) error
}

// AMQPPublisher publishes socket events on a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares the durable topic exchange
// socket events are routed through.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, ch, err := dialTopicExchange(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func dialTopicExchange(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// PublishGroupSocketEvent serializes the event and publishes it with its
// correlation headers.
func (p *AMQPPublisher) PublishGroupSocketEvent(ctx context.Context, event GroupSocketEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	for key, value := range event.Headers() {
		headers[key] = value
	}

	return p.channel.PublishWithContext(ctx, p.exchange, GroupSocketRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		AppId:        event.Service,
		Headers:      headers,
	})
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var defaultPublisher Publisher

// SetPublisher installs the process-wide socket event publisher. Events are
// dropped silently when none is configured.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent hands the event to the configured publisher, counting failures.
func PublishEvent(ctx context.Context, event GroupSocketEvent) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishGroupSocketEvent(ctx, event)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
