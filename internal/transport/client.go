package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxcall/voxcall/internal/observability"
	"github.com/voxcall/voxcall/internal/protocol"
	"github.com/voxcall/voxcall/internal/reliability"
)

// State describes the transport connection lifecycle.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
	StateFailed       State = "failed"
)

var ErrClosed = errors.New("transport closed")

// Handler receives one parsed inbound message. Registration is last-wins:
// exactly one handler per message type.
type Handler func(msg any)

// StateHandler is fan-out: every registered subscriber sees every transition.
type StateHandler func(state State)

// Conn is the subset of *websocket.Conn the client depends on.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type DialFunc func(ctx context.Context, endpoint string) (Conn, error)

func defaultDial(ctx context.Context, endpoint string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial chat websocket: %w", err)
	}
	return conn, nil
}

type Options struct {
	Endpoint    string
	BaseDelay   time.Duration
	MaxAttempts int
	Dial        DialFunc
	Metrics     *observability.Metrics
}

// Client owns one websocket channel to the chat endpoint and recreates it
// with linear backoff after abnormal closures.
type Client struct {
	opts Options

	mu        sync.Mutex
	conn      Conn
	connGen   uint64
	state     State
	attempts  int
	retry     *time.Timer
	closed    bool
	runCtx    context.Context
	dialingMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[protocol.MessageType]Handler

	subsMu sync.RWMutex
	subs   []StateHandler

	writeMu sync.Mutex
}

func NewClient(opts Options) *Client {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2500 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Dial == nil {
		opts.Dial = defaultDial
	}
	return &Client{
		opts:     opts,
		state:    StateDisconnected,
		handlers: make(map[protocol.MessageType]Handler),
	}
}

// OnMessage registers the handler for one message type. The last
// registration for a given type wins; there is no fan-out here.
func (c *Client) OnMessage(t protocol.MessageType, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[t] = h
}

// OnStateChange subscribes to connection state transitions. All subscribers
// are invoked for every transition.
func (c *Client) OnStateChange(h StateHandler) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs = append(c.subs, h)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect opens the channel. Any previously open channel is closed first
// rather than abandoned. A dial failure schedules the usual backoff retries
// before returning the error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.runCtx = ctx
	c.closeCurrentLocked()
	c.mu.Unlock()

	return c.dial(ctx, true)
}

func (c *Client) dial(ctx context.Context, fromConnect bool) error {
	// One dial at a time; a reconnect timer and an explicit Connect must not
	// race into two live channels.
	c.dialingMu.Lock()
	defer c.dialingMu.Unlock()

	conn, err := c.opts.Dial(ctx, c.opts.Endpoint)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		notify := c.scheduleReconnectLocked()
		c.mu.Unlock()
		notify()
		if fromConnect {
			return err
		}
		return nil
	}

	// A channel installed while this dial was in flight (a racing Connect
	// or retry) must not be left live behind the new one.
	c.closeCurrentLocked()
	c.conn = conn
	c.connGen++
	gen := c.connGen
	c.attempts = 0
	notify := c.setStateLocked(StateConnected)
	c.mu.Unlock()
	notify()

	go c.readLoop(gen, conn)
	return nil
}

// Close shuts the channel down cleanly and cancels any pending reconnect.
// A close event observed after Close must not schedule a reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.closeCurrentLocked()
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	notify()
	return nil
}

func (c *Client) closeCurrentLocked() {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	_ = c.conn.Close()
	c.conn = nil
	// Invalidate the old read loop so its exit cannot schedule a reconnect.
	c.connGen++
}

// Send serializes msg to a text frame. It reports failure instead of
// returning an error: a send while the channel is not open is an expected
// condition, not an exception.
func (c *Client) Send(msg any) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("transport: marshal outbound message: %v", err)
		return false
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateConnected && conn != nil
	c.mu.Unlock()
	if !open {
		return false
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		log.Printf("transport: write failed: %v", err)
		return false
	}

	if c.opts.Metrics != nil {
		if mt, ok := protocol.TypeOf(msg); ok {
			c.opts.Metrics.WSMessages.WithLabelValues("out", string(mt)).Inc()
		}
	}
	return true
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) handleReadError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.connGen {
		// A superseded channel; its closure is not an event.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connGen++

	if c.closed {
		c.mu.Unlock()
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && !reliability.IsAbnormalCloseCode(closeErr.Code) {
		notify := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify()
		return
	}

	notify := c.scheduleReconnectLocked()
	c.mu.Unlock()
	notify()
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// parks the transport in the terminal failed state once attempts run out.
// Callers hold c.mu and must invoke the returned notify func after unlocking.
func (c *Client) scheduleReconnectLocked() func() {
	c.attempts++
	if c.attempts > c.opts.MaxAttempts {
		log.Printf("transport: giving up after %d reconnect attempts", c.opts.MaxAttempts)
		return c.setStateLocked(StateFailed)
	}

	delay := reliability.LinearBackoff(c.attempts, c.opts.BaseDelay, 0)
	if c.opts.Metrics != nil {
		c.opts.Metrics.ReconnectAttempts.Inc()
	}
	log.Printf("transport: reconnect attempt %d/%d in %s", c.attempts, c.opts.MaxAttempts, delay)

	ctx := c.runCtx
	c.retry = time.AfterFunc(delay, func() {
		if ctx != nil && ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		_ = c.dial(ctx, false)
	})
	return c.setStateLocked(StateReconnecting)
}

func (c *Client) setStateLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	if c.opts.Metrics != nil {
		c.opts.Metrics.StateChanges.WithLabelValues(string(s)).Inc()
	}

	c.subsMu.RLock()
	subs := make([]StateHandler, len(c.subs))
	copy(subs, c.subs)
	c.subsMu.RUnlock()

	return func() {
		for _, sub := range subs {
			sub(s)
		}
	}
}

// dispatch delivers one inbound frame to its registered handler, preserving
// channel FIFO order. Malformed frames and unknown types are logged and
// dropped; neither is fatal.
func (c *Client) dispatch(raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("transport: dropping malformed frame: %v", err)
		return
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.WSMessages.WithLabelValues("in", string(env.Type)).Inc()
	}

	msg, err := protocol.ParseServerMessage(raw)
	if errors.Is(err, protocol.ErrUnsupportedType) {
		log.Printf("transport: ignoring unknown message type %q", env.Type)
		return
	}
	if err != nil {
		log.Printf("transport: dropping invalid %q frame: %v", env.Type, err)
		return
	}

	c.handlersMu.RLock()
	h := c.handlers[env.Type]
	c.handlersMu.RUnlock()
	if h == nil {
		log.Printf("transport: no handler for message type %q", env.Type)
		return
	}
	h(msg)
}
