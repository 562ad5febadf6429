// Package eventbus wraps a JetStream connection used as the Dispatcher's
// durable echo: every successfully processed raw event is republished
// onto a DOMAIN_EVENTS.<type> subject, independent of the per-tenant
// websocket fanout. Adapted from go-core's natsclient
// (Client/ProvisionStreams), narrowed from its generic
// outbox/domain-event subjects to the webhook event types this broker
// processes.
package eventbus

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamName is the durable stream capturing every processed webhook
	// event as a secondary echo of the Raw Event queue.
	StreamName = "DOMAIN_EVENTS"
	// SubjectWildcard matches every per-type subject the Client publishes.
	SubjectWildcard = "DOMAIN_EVENTS.>"
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// NewClient connects to NATS and initializes a JetStream context.
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("initialize JetStream: %w", err)
	}

	logger.Info("NATS JetStream connected", zap.String("url", url))
	return &Client{Conn: nc, JS: js, Log: logger}, nil
}

// Close drains pending publishes and subscriptions before closing,
// falling back to a hard close if draining itself fails.
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}

// ProvisionStream idempotently ensures the DOMAIN_EVENTS stream exists.
func (c *Client) ProvisionStream() error {
	_, err := c.JS.StreamInfo(StreamName)
	if err == nil {
		c.Log.Info("NATS stream already exists", zap.String("stream", StreamName))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectWildcard},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}
	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	c.Log.Info("NATS stream provisioned", zap.String("stream", StreamName))
	return nil
}

// Publish echoes a processed raw event's payload onto
// DOMAIN_EVENTS.<eventType>. Publish failures are the caller's concern:
// the Dispatcher logs and continues rather than failing the event, since
// this echo is a secondary channel and must never block the primary
// queue.
func (c *Client) Publish(eventType string, payload []byte) error {
	subject := StreamName + "." + eventType
	_, err := c.JS.Publish(subject, payload)
	return err
}
