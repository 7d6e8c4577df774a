// Package wsconn provides a WebSocket client with automatic reconnection,
// bounded exponential backoff, keep-alive pings, and idle-timeout detection.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/venuelabs/crossarb/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// MessageHandler receives every inbound message.
type MessageHandler func(ctx context.Context, msg []byte)

// StateChangeHandler is notified on every state transition. err is non-nil
// for transitions caused by a failure.
type StateChangeHandler func(state State, err error)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // connection name for logging/metrics
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	ReadTimeout    time.Duration // no data within this window forces a reconnect
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults for the given endpoint.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0,
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1 << 20, // 1 MiB
	}
}

// Client is a reconnecting WebSocket client.
type Client struct {
	config Config

	conn   *websocket.Conn
	connMu sync.RWMutex

	state   State
	stateMu sync.RWMutex

	onMessage     MessageHandler
	onStateChange StateChangeHandler
	handlersMu    sync.RWMutex

	writeMu sync.Mutex

	reconnects atomic.Int32
	closed     atomic.Bool
	closeOnce  sync.Once
	done       chan struct{}
}

// New creates a new client. The connection is not established until Connect.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("wsconn: empty url"))
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &Client{
		config: cfg,
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}, nil
}

// OnMessage registers the inbound message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlersMu.Lock()
	c.onMessage = h
	c.handlersMu.Unlock()
}

// OnStateChange registers the state transition handler.
func (c *Client) OnStateChange(h StateChangeHandler) {
	c.handlersMu.Lock()
	c.onStateChange = h
	c.handlersMu.Unlock()
}

// Connect performs a single connection attempt and starts the read and
// ping loops on success.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return apperror.New(apperror.CodeWebSocketClosed,
			apperror.WithContext("wsconn: client closed"))
	}

	c.setState(StateConnecting, nil)

	conn, _, err := websocket.Dial(ctx, c.config.URL, nil) //nolint:bodyclose // drained by the library
	if err != nil {
		c.setState(StateDisconnected, err)
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext("wsconn: dial "+c.config.Name))
	}

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setState(StateConnected, nil)

	go c.readLoop(ctx)
	if c.config.PingInterval > 0 {
		go c.pingLoop(ctx)
	}

	return nil
}

// ConnectWithRetry attempts to connect, retrying with exponential backoff
// up to MaxReconnects attempts (0 = retry until ctx is cancelled).
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	backoff := c.config.InitialBackoff
	attempt := 0

	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}

		attempt++
		if c.config.MaxReconnects > 0 && attempt >= c.config.MaxReconnects {
			c.setState(StateFailed, err)
			return apperror.New(apperror.CodeFeedFailed,
				apperror.WithCause(err),
				apperror.WithContext("wsconn: max connect attempts reached"))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return apperror.New(apperror.CodeWebSocketClosed)
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}
}

// Send writes a text message. Safe for concurrent use.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext("wsconn: not connected"))
	}

	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err))
	}
	return nil
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeInvalidFormat, apperror.WithCause(err))
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected returns true while the connection is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Reconnects returns the number of reconnect cycles performed.
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}

// Close shuts the client down. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, "client closing")
			c.conn = nil
		}
		c.connMu.Unlock()

		c.setState(StateClosed, nil)
	})
	return nil
}

// readLoop reads until the connection drops, then hands off to reconnect.
// A read that sees no data within ReadTimeout counts as a dead connection
// even without an explicit close frame.
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		readCtx := ctx
		var cancel context.CancelFunc
		if c.config.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, c.config.ReadTimeout)
		}

		_, data, err := conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			if c.closed.Load() || ctx.Err() != nil {
				return
			}
			c.handleDisconnect(ctx, err)
			return
		}

		c.handlersMu.RLock()
		handler := c.onMessage
		c.handlersMu.RUnlock()
		if handler != nil {
			handler(ctx, data)
		}
	}
}

// pingLoop keeps the connection alive while it is established.
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil || c.State() != StateConnected {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				// Read loop will observe the dead connection.
				return
			}
		}
	}
}

// handleDisconnect runs the reconnect cycle with bounded backoff. After
// MaxReconnects failed cycles the client transitions to StateFailed once
// and stops retrying.
func (c *Client) handleDisconnect(ctx context.Context, cause error) {
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusAbnormalClosure, "reconnecting")
		c.conn = nil
	}
	c.connMu.Unlock()

	c.setState(StateReconnecting, cause)

	backoff := c.config.InitialBackoff
	attempt := 0

	for {
		if c.config.MaxReconnects > 0 && attempt >= c.config.MaxReconnects {
			c.setState(StateFailed, errors.Join(cause,
				apperror.New(apperror.CodeFeedFailed,
					apperror.WithContext("wsconn: max reconnect attempts reached"))))
			return
		}

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		attempt++
		c.reconnects.Add(1)

		if err := c.Connect(ctx); err == nil {
			return
		}

		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
	}
}

func (c *Client) setState(state State, err error) {
	c.stateMu.Lock()
	prev := c.state
	c.state = state
	c.stateMu.Unlock()

	if prev == state {
		return
	}

	c.handlersMu.RLock()
	handler := c.onStateChange
	c.handlersMu.RUnlock()
	if handler != nil {
		handler(state, err)
	}
}
