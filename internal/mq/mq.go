package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
)

// Publisher defines a minimal interface for publishing lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

// NopPublisher drops every event. Used when EVENTS_TRANSPORT=none.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }

// RoutingKey names the event for a job card entering status. Every accepted transition emits
// one, so consumers can bind "jobcard.#" for the whole lifecycle or a single key such as
// "jobcard.invoiced" for billing.
func RoutingKey(status models.JobStatus) string {
	return "jobcard." + string(status)
}

// RabbitPublisher sends lifecycle events to a durable topic exchange. The routing key is the
// RoutingKey of the new status and the body is the JSON event.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      logger.Logger

	mu      sync.Mutex // amqp channels are not safe for concurrent publishes
	channel *amqp091.Channel
}

// NewRabbitPublisher dials RabbitMQ and declares the exchange.
func NewRabbitPublisher(url, exchange string, log logger.Logger) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	log.Info("publishing job card events", "exchange", exchange)
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

// Publish sends one persistent event.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if p == nil {
		return nil
	}
	msg, err := eventMessage(routingKey, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Wrapf(p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg),
		"publish %s", routingKey)
}

// eventMessage wraps the JSON body with the metadata consumers use for deduplication.
func eventMessage(routingKey string, payload any, now time.Time) (amqp091.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp091.Publishing{}, errors.Wrapf(err, "encode %s", routingKey)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Type:         routingKey,
		AppId:        "jobcard-api",
		Timestamp:    now,
		Body:         body,
	}, nil
}

// Close shuts the channel and connection.
func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.log.Warn("close rabbitmq channel", "error", err)
	}
	return p.conn.Close()
}
