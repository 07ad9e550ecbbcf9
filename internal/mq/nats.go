package mq

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

// headerCarrier lets the otel propagator write trace context into NATS headers.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSPublisher publishes events on <prefix>.<routingKey>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("jobcard-api"))
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return NewNATSPublisherWithConn(nc, prefix), nil
}

// NewNATSPublisherWithConn wraps an existing connection.
func NewNATSPublisherWithConn(nc *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the full subject for a routing key.
func (p *NATSPublisher) Subject(routingKey string) string {
	if p.prefix == "" {
		return routingKey
	}
	return p.prefix + "." + routingKey
}

// Publish sends payload as JSON with the caller's trace context in the headers.
func (p *NATSPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: p.Subject(routingKey), Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return p.nc.PublishMsg(msg)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
