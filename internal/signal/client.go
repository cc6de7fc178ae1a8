package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wrtcplay/native/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// DefaultPingInterval is the keep-alive period while connected.
const DefaultPingInterval = 3 * time.Second

const writeWait = 5 * time.Second

// ErrClosed is returned by operations on a closed Client.
var ErrClosed = errors.New("signal: client closed")

// State is the connection state of a Client.
type State int

const (
	// StateDisconnected means there is no connection and no dial in progress.
	StateDisconnected State = iota
	// StateConnecting means a dial is in progress and sends are queued.
	StateConnecting
	// StateConnected means sends are written directly to the socket.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config configures a Client.
type Config struct {
	URL          string
	PingInterval time.Duration
	// Dialer defaults to websocket.DefaultDialer.
	Dialer Dialer
}

// Client manages the websocket connection to the signaling server.
//
// Sends issued while disconnected trigger a single reconnect; every send made
// before it completes is queued and written in order once connected.
type Client struct {
	url          string
	pingInterval time.Duration
	dialer       Dialer
	handler      domain.Handler

	// ctx bounds reconnect dials and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	pending [][]byte
	stop    chan struct{} // closed to end the current connection's goroutines
	closed  bool
	dials   int
}

// NewClient creates a disconnected signaling client.
func NewClient(cfg Config, handler domain.Handler) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:          cfg.URL,
		pingInterval: cfg.PingInterval,
		dialer:       cfg.Dialer,
		handler:      handler,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dials returns how many connection attempts have been made.
func (c *Client) Dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

// Connect dials the signaling websocket and starts the read and ping loops.
// On success the handler is told OnConnected; on failure OnTransportError.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		if c.fail(err) {
			c.handler.OnTransportError(err)
		}
		return err
	}
	c.handler.OnConnected()
	return nil
}

// Send writes env, reconnecting first if the connection is down. A failed
// write drops the connection and queues env for the reconnect it starts.
// An error is returned only for marshal failures or a closed client;
// reconnect failures are reported through the handler.
func (c *Client) Send(env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Command, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state {
	case StateConnected:
		conn, stop := c.conn, c.stop
		err := c.writeLocked(conn, data)
		if err == nil {
			c.mu.Unlock()
			return nil
		}
		c.detachLocked(stop)
		c.pending = append(c.pending, data)
		c.state = StateConnecting
		c.mu.Unlock()

		conn.Close()
		log.Warn().Err(err).Str("module", "signal").Str("command", string(env.Command)).Msg("write error, reconnecting")
		go c.reconnect()
		return nil

	case StateConnecting:
		c.pending = append(c.pending, data)
		c.mu.Unlock()
		return nil

	default:
		c.pending = append(c.pending, data)
		c.state = StateConnecting
		c.mu.Unlock()
		log.Info().Str("module", "signal").Str("command", string(env.Command)).Msg("not connected, reconnecting before send")
		go c.reconnect()
		return nil
	}
}

// Close shuts down the websocket connection. No handler callbacks are made
// after Close returns.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateDisconnected
	c.pending = nil
	conn := c.conn
	c.detachLocked(c.stop)
	c.mu.Unlock()
	c.cancel()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		conn.Close()
	}
}

func (c *Client) reconnect() {
	if err := c.dial(c.ctx); err != nil {
		if c.fail(err) {
			c.handler.OnTransportError(err)
		}
	}
}

// dial connects and, on success, flushes pending sends and starts the
// connection goroutines. The state must already be StateConnecting.
// If a pending send cannot be written the connection is dropped, the
// unsent data stays queued and an error is returned.
func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	c.dials++
	c.mu.Unlock()

	log.Info().Str("module", "signal").Str("url", c.url).Msg("connecting")

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.state = StateConnected
	stop := make(chan struct{})
	c.stop = stop

	pending := c.pending
	c.pending = nil
	for i, data := range pending {
		if err := c.writeLocked(conn, data); err != nil {
			c.detachLocked(stop)
			c.pending = pending[i:]
			c.state = StateConnecting
			c.mu.Unlock()
			conn.Close()
			return fmt.Errorf("replay pending sends: %w", err)
		}
	}
	c.mu.Unlock()

	if len(pending) > 0 {
		log.Debug().Str("module", "signal").Int("count", len(pending)).Msg("replayed pending sends")
	}

	go c.readLoop(conn, stop)
	go c.pingLoop(conn, stop)
	return nil
}

// fail records a failed dial. It reports whether the handler should hear
// about it.
func (c *Client) fail(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if n := len(c.pending); n > 0 {
		log.Warn().Err(err).Str("module", "signal").Int("dropped", n).Msg("reconnect failed, dropping pending sends")
	}
	c.pending = nil
	c.state = StateDisconnected
	return true
}

// detachLocked forgets the current connection and stops its goroutines if
// stop still belongs to it. c.mu must be held.
func (c *Client) detachLocked(stop chan struct{}) {
	c.conn = nil
	if stop != nil && c.stop == stop {
		close(stop)
		c.stop = nil
	}
}

// writeLocked writes one text frame. c.mu must be held.
func (c *Client) writeLocked(conn *websocket.Conn, data []byte) error {
	log.Debug().Str("module", "signal").RawJSON("msg", data).Msg(">>>")
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn, stop, err)
			return
		}

		log.Debug().Str("module", "signal").Bytes("msg", data).Msg("<<<")

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("unmarshal error")
			continue
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		if env.Command == domain.CommandPong {
			log.Debug().Str("module", "signal").Msg("pong")
			continue
		}
		c.handler.OnCommand(env)
	}
}

// lost handles the end of conn. It is a no-op if conn is no longer current.
func (c *Client) lost(conn *websocket.Conn, stop chan struct{}, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.detachLocked(stop)
	c.state = StateDisconnected
	c.mu.Unlock()

	conn.Close()
	if IsNormalClose(err) {
		log.Info().Str("module", "signal").Msg("connection closed by server")
		err = nil
	} else {
		log.Warn().Err(err).Str("module", "signal").Msg("connection lost")
	}
	c.handler.OnTransportClosed(err)
}

func (c *Client) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(domain.Envelope{Command: domain.CommandPing})

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != conn {
				c.mu.Unlock()
				return
			}
			err := c.writeLocked(conn, ping)
			c.mu.Unlock()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("ping error")
				return
			}
		}
	}
}

// IsNormalClose reports whether err is a clean websocket close.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
