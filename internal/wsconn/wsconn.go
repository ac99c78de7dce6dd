// Package wsconn provides a production-grade WebSocket client with reconnection.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// MessageHandler is invoked for every received message.
type MessageHandler func(ctx context.Context, msg []byte)

// ReconnectHandler is invoked after a successful reconnect, before the read
// loop resumes. Subscription frames should be re-sent here.
type ReconnectHandler func(ctx context.Context) error

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // identifies the connection in errors
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int           // 0 = infinite
	PingInterval   time.Duration // 0 disables pings
	BufferSize     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0, // infinite
		PingInterval:   30 * time.Second,
		BufferSize:     100,
	}
}

// Client is a WebSocket client with automatic reconnection.
type Client struct {
	config Config

	conn   *websocket.Conn
	connMu sync.Mutex

	state   State
	stateMu sync.RWMutex

	onMessage   MessageHandler
	onReconnect ReconnectHandler
	handlerMu   sync.RWMutex

	messages   chan []byte
	done       chan struct{}
	closed     atomic.Bool
	reconnects atomic.Int32
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("wsconn: url is required")
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}

	return &Client{
		config:   config,
		state:    StateDisconnected,
		messages: make(chan []byte, config.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// OnMessage registers the message handler. Must be called before Connect.
// When set, messages are dispatched to the handler instead of Messages().
func (c *Client) OnMessage(h MessageHandler) {
	c.handlerMu.Lock()
	c.onMessage = h
	c.handlerMu.Unlock()
}

// OnReconnect registers the reconnect handler.
func (c *Client) OnReconnect(h ReconnectHandler) {
	c.handlerMu.Lock()
	c.onReconnect = h
	c.handlerMu.Unlock()
}

// Connect establishes the WebSocket connection and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New("wsconn: client is closed")
	}

	c.setState(StateConnecting)

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.setState(StateConnected)

	go c.readLoop(ctx)
	if c.config.PingInterval > 0 {
		go c.pingLoop(ctx)
	}

	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 22) // 4 MiB, JSON-RPC block headers are small but bursty

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	return nil
}

// Send sends a text message through the WebSocket.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return errors.New("wsconn: not connected")
	}

	return conn.Write(ctx, websocket.MessageText, msg)
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(ctx, data)
}

// Messages returns the channel for receiving messages. Only populated when
// no OnMessage handler is registered.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is currently connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Reconnects returns how many reconnect attempts have been made.
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}

// Close gracefully closes the WebSocket connection.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}

	c.setState(StateDisconnected)
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			if c.closed.Load() || ctx.Err() != nil {
				return
			}
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	c.handlerMu.RLock()
	handler := c.onMessage
	c.handlerMu.RUnlock()

	if handler != nil {
		handler(ctx, data)
		return
	}

	select {
	case c.messages <- data:
	default:
		// buffer full, drop the oldest message to keep the feed moving
		select {
		case <-c.messages:
		default:
		}
		select {
		case c.messages <- data:
		default:
		}
	}
}

// reconnect attempts to re-establish the connection with exponential backoff.
// Returns false when the client is closed or the reconnect budget is spent.
func (c *Client) reconnect(ctx context.Context) bool {
	c.setState(StateReconnecting)

	backoff := c.config.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 1; ; attempt++ {
		if c.config.MaxReconnects > 0 && int(c.reconnects.Load()) >= c.config.MaxReconnects {
			c.setState(StateDisconnected)
			return false
		}

		select {
		case <-c.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		c.reconnects.Add(1)

		if err := c.dial(ctx); err != nil {
			backoff *= 2
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
			continue
		}

		c.handlerMu.RLock()
		onReconnect := c.onReconnect
		c.handlerMu.RUnlock()

		if onReconnect != nil {
			if err := onReconnect(ctx); err != nil {
				// resubscription failed, treat as a failed attempt
				c.connMu.Lock()
				if c.conn != nil {
					_ = c.conn.Close(websocket.StatusNormalClosure, "resubscribe failed")
					c.conn = nil
				}
				c.connMu.Unlock()
				continue
			}
		}

		c.setState(StateConnected)
		return true
	}
}

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
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn == nil || c.State() != StateConnected {
				continue
			}

			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}
