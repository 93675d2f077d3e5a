// Package natsutil connects the node to NATS and prepares the JetStream
// resources the transport gateway needs.
package natsutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bazaar-mp/project/internal/messaging"
	"github.com/bazaar-mp/project/internal/platform/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const clientName = "market-node"

// Client bundles the connection, its JetStream context and the message
// history bucket.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	KV   nats.KeyValue
}

func options(logger *zap.Logger) []nats.Option {
	logger = logging.OrNop(logger)
	return []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrlRedacted()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Warn("nats async error", fields...)
		}),
	}
}

// ConnectJetStream dials url and ensures the market stream and message
// bucket exist.
func ConnectJetStream(url string, logger *zap.Logger) (*Client, error) {
	conn, err := nats.Connect(url, options(logger)...)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*Client, error) {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		return fail(err)
	}
	if err := messaging.EnsureStreams(js); err != nil {
		return fail(fmt.Errorf("ensure streams: %w", err))
	}
	kv, err := js.KeyValue(messaging.MessageBucket)
	if err != nil {
		return fail(fmt.Errorf("message bucket: %w", err))
	}
	return &Client{Conn: conn, JS: js, KV: kv}, nil
}

// ConnectJetStreamWithRetry retries ConnectJetStream until it succeeds,
// timeout elapses or ctx is done.
func ConnectJetStreamWithRetry(ctx context.Context, url string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	logger = logging.OrNop(logger)
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ConnectJetStream(url, logger)
		if err == nil {
			return client, nil
		}
		lastErr = err
		logger.Debug("waiting for jetstream", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("connect jetstream timeout after %s: %w", timeout, lastErr)
}

// Ready reports an error unless the connection is up.
func (c *Client) Ready() error {
	if c == nil || c.Conn == nil {
		return errors.New("nats connection is nil")
	}
	if status := c.Conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", status.String())
	}
	return nil
}

func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
	c.Conn.Close()
}

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, payload []byte) error
}
