package natsutil

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"

	"github.com/plantbuddy/project/internal/messaging"
	"github.com/plantbuddy/project/internal/platform/config"
)

type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

// ConnectJetStream connects once and makes sure the care stream exists.
func ConnectJetStream(url string) (*Client, error) {
	conn, err := nats.Connect(url, nats.Name("plantbuddy"))
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	if err := messaging.EnsureStreams(js); err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, JS: js}, nil
}

// ConnectWithRetry retries ConnectJetStream with exponential backoff until
// cfg.ConnectTimeout elapses or ctx is done.
func ConnectWithRetry(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger) (*Client, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cfg.ConnectTimeout

	var client *Client
	err := backoff.RetryNotify(func() error {
		c, err := ConnectJetStream(cfg.URL)
		if err != nil {
			return err
		}
		client = c
		return nil
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Warn("nats not ready", "url", cfg.URL, "error", err, "retry_in", wait)
	})
	if err != nil {
		return nil, fmt.Errorf("connect jetstream timeout after %s: %w", cfg.ConnectTimeout, err)
	}
	return client, nil
}

func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
	c.Conn.Close()
}

type JetStreamPublisher struct {
	JS nats.JetStreamContext
}

func (p JetStreamPublisher) Publish(subject string, payload []byte) error {
	_, err := p.JS.Publish(subject, payload)
	return err
}
