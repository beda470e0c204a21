// Package natsclient manages the NATS connection the object-store
// storage backend runs over: connect with retry, status tracking, and
// clean shutdown.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/semledger/errors"
)

// ConnectionStatus tracks the client connection lifecycle.
type ConnectionStatus int32

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusClosed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client wraps a NATS connection with reconnect policy and status
// tracking. Safe for concurrent use.
type Client struct {
	url  string
	name string

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	logger *slog.Logger

	mu     sync.RWMutex
	conn   *nats.Conn
	status atomic.Int32
	closed atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithName sets the client connection name reported to the server.
func WithName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// WithConnectTimeout sets the initial connection timeout.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxReconnects sets the reconnect attempt limit, -1 for infinite.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the wait between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.reconnectWait = d
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates an unconnected client for the given server URL.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "natsclient", "NewClient", "server url")
	}
	c := &Client{
		url:           url,
		name:          "semledger",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		logger:        slog.Default().With("component", "natsclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status.Store(int32(StatusDisconnected))
	return c, nil
}

// Connect establishes the connection, honoring ctx for cancellation.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New("natsclient: client is closed")
	}
	c.status.Store(int32(StatusConnecting))

	opts := []nats.Option{
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(int32(StatusDisconnected))
			c.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.status.Store(int32(StatusConnected))
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		done <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			c.status.Store(int32(StatusDisconnected))
			return errors.WrapTransient(r.err, "natsclient", "Connect", "dialing "+c.url)
		}
		c.mu.Lock()
		c.conn = r.conn
		c.mu.Unlock()
		c.status.Store(int32(StatusConnected))
		c.logger.Debug("nats connected", "url", c.url)
		return nil
	}
}

// Conn returns the underlying connection, nil before Connect.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// URL returns the configured server URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

// IsHealthy reports whether the connection is up.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	return conn != nil && conn.IsConnected()
}

// Close drains and closes the connection. Idempotent.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.status.Store(int32(StatusClosed))

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := conn.Drain(); err != nil {
			c.logger.Warn("nats drain failed, closing hard", "error", err)
			conn.Close()
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}
