package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ctgmonitor/internal/clock"
	"ctgmonitor/internal/domain"
	"ctgmonitor/internal/logging"

	"github.com/gorilla/websocket"
)

const (
	// DefaultReconnectInterval is the fixed delay between reconnect attempts.
	DefaultReconnectInterval = 3 * time.Second
	// DefaultMaxReconnectAttempts bounds consecutive reconnects after an unrequested close.
	DefaultMaxReconnectAttempts = 5
	// DefaultMaxPayload is the largest frame handed to Decode; bigger frames are dropped as undecodable.
	DefaultMaxPayload = 1 << 20
)

var (
	// ErrDecode marks payloads that could not be decoded; they are dropped.
	ErrDecode = errors.New("decode-error")
	// ErrTransport marks dial/read failures of the underlying connection.
	ErrTransport = errors.New("transport-error")
	// ErrReconnectExhausted marks a client that stopped retrying until Connect is called again.
	ErrReconnectExhausted = errors.New("reconnect-exhausted")
)

// Event is one lifecycle transition reported by a Source.
type Event string

const (
	EventConnecting Event = "connecting"
	EventOpen       Event = "open"
	EventClose      Event = "close"
	EventError      Event = "error"
	EventExhausted  Event = "exhausted"
)

// Status maps lifecycle event to connection status.
// Params: none.
// Returns: status recorded by the store.
func (e Event) Status() domain.ConnectionStatus {
	switch e {
	case EventConnecting:
		return domain.StatusConnecting
	case EventOpen:
		return domain.StatusConnected
	case EventError, EventExhausted:
		return domain.StatusError
	default:
		return domain.StatusDisconnected
	}
}

// Source is the contract shared by real and mock stream transports.
type Source interface {
	Connect()
	Disconnect()
	IsConnected() bool
}

// Conn is the read side of one established connection.
type Conn interface {
	ReadMessage() (messageType int, payload []byte, err error)
	Close() error
}

// Dialer opens connections; implementations must honour ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Recorder receives transport counters.
type Recorder interface {
	MessageReceived(stream domain.StreamKind)
	DecodeFailed(stream domain.StreamKind)
	ReconnectScheduled(stream domain.StreamKind)
}

type nopRecorder struct{}

func (nopRecorder) MessageReceived(domain.StreamKind)    {}
func (nopRecorder) DecodeFailed(domain.StreamKind)       {}
func (nopRecorder) ReconnectScheduled(domain.StreamKind) {}

// Options configures one Client.
// Params: endpoint, decoder, handlers, reconnect policy, and injectable collaborators.
// Returns: client construction input.
type Options[T any] struct {
	Stream               domain.StreamKind
	URL                  string
	Decode               func([]byte) (T, error)
	OnMessage            func(T)
	OnEvent              func(Event)
	OnError              func(error)
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	MaxPayload           int
	Dialer               Dialer
	Clock                clock.Clock
	Logger               *slog.Logger
	Recorder             Recorder
}

// Client maintains one logical websocket connection with bounded fixed-interval reconnect.
// Params: Options supplied at construction.
// Returns: Source delivering decoded messages in arrival order.
type Client[T any] struct {
	opts   Options[T]
	logger *slog.Logger

	mu          sync.Mutex
	generation  uint64
	conn        Conn
	dialing     bool
	cancelDial  context.CancelFunc
	timer       clock.Timer
	attempts    int
	intentional bool
	exhausted   bool
	connected   bool
}

// NewClient builds a disconnected client.
// Params: options; Decode and OnMessage are required, other fields have defaults.
// Returns: client or configuration error.
func NewClient[T any](opts Options[T]) (*Client[T], error) {
	if opts.Decode == nil {
		return nil, errors.New("transport: decode func is required")
	}
	if opts.OnMessage == nil {
		return nil, errors.New("transport: message handler is required")
	}
	if opts.URL == "" {
		return nil, errors.New("transport: url is required")
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebsocketDialer(nil)
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Client[T]{
		opts:   opts,
		logger: logging.ForStream(opts.Logger, "transport", opts.Stream).With("url", opts.URL),
	}, nil
}

// Connect starts a dial unless one is already open or in flight.
// Params: none.
// Returns: none; progress is reported through OnEvent.
func (c *Client[T]) Connect() {
	c.mu.Lock()
	c.intentional = false
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.exhausted {
		c.exhausted = false
		c.attempts = 0
	}
	generation, ctx := c.beginDialLocked()
	c.mu.Unlock()

	c.emit(EventConnecting)
	go c.dial(ctx, generation)
}

// Disconnect tears the connection down and suppresses reconnects.
// Params: none.
// Returns: none; reports close once torn down.
func (c *Client[T]) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.dialing = false
	c.connected = false
	c.attempts = 0
	c.exhausted = false
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("close connection", "err", err)
		}
	}
	c.logger.Info("stream disconnected")
	c.emit(EventClose)
}

// IsConnected reports whether the connection is currently open.
func (c *Client[T]) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Attempts returns the number of reconnects scheduled since the last open.
func (c *Client[T]) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// beginDialLocked bumps generation and marks a dial in flight; caller holds c.mu.
func (c *Client[T]) beginDialLocked() (uint64, context.Context) {
	c.generation++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.dialing = true
	return c.generation, ctx
}

func (c *Client[T]) dial(ctx context.Context, generation uint64) {
	conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL)

	c.mu.Lock()
	if generation != c.generation || c.intentional {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		c.reportError(fmt.Errorf("%w: dial %s: %v", ErrTransport, c.opts.URL, err))
		c.handleClose(generation)
		return
	}
	c.conn = conn
	c.connected = true
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("stream connected")
	c.emit(EventOpen)
	c.readLoop(conn, generation)
}

func (c *Client[T]) readLoop(conn Conn, generation uint64) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := generation != c.generation
			if !stale {
				c.conn = nil
				c.connected = false
			}
			c.mu.Unlock()
			if stale {
				return
			}
			_ = conn.Close()
			if !isNormalClose(err) {
				c.reportError(fmt.Errorf("%w: read: %v", ErrTransport, err))
			}
			c.handleClose(generation)
			return
		}

		if len(payload) > c.opts.MaxPayload {
			c.opts.Recorder.DecodeFailed(c.opts.Stream)
			c.logger.Warn("drop oversized message", "err", ErrDecode, "bytes", len(payload), "limit", c.opts.MaxPayload)
			continue
		}
		message, err := c.opts.Decode(payload)
		if err != nil {
			c.opts.Recorder.DecodeFailed(c.opts.Stream)
			c.logger.Warn("drop undecodable message", "err", fmt.Errorf("%w: %v", ErrDecode, err), "bytes", len(payload))
			continue
		}

		c.mu.Lock()
		stale := generation != c.generation
		c.mu.Unlock()
		if stale {
			return
		}
		c.opts.Recorder.MessageReceived(c.opts.Stream)
		c.opts.OnMessage(message)
	}
}

// handleClose reports close and schedules the next reconnect or gives up.
func (c *Client[T]) handleClose(generation uint64) {
	c.logger.Info("stream closed")
	c.emit(EventClose)

	c.mu.Lock()
	if generation != c.generation || c.intentional {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.exhausted = true
		attempts := c.attempts
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted", "attempts", attempts)
		c.reportError(fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempts))
		c.emit(EventExhausted)
		return
	}
	c.attempts++
	attempt := c.attempts
	c.timer = c.opts.Clock.AfterFunc(c.opts.ReconnectInterval, func() {
		c.reconnect(generation)
	})
	c.mu.Unlock()

	c.opts.Recorder.ReconnectScheduled(c.opts.Stream)
	c.logger.Info("reconnect scheduled", "attempt", attempt, "max_attempts", c.opts.MaxReconnectAttempts, "in", c.opts.ReconnectInterval)
}

func (c *Client[T]) reconnect(generation uint64) {
	c.mu.Lock()
	if generation != c.generation || c.intentional || c.conn != nil || c.dialing {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	next, ctx := c.beginDialLocked()
	c.mu.Unlock()

	c.emit(EventConnecting)
	go c.dial(ctx, next)
}

func (c *Client[T]) reportError(err error) {
	c.logger.Warn("stream transport error", "err", err)
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
	if !errors.Is(err, ErrReconnectExhausted) {
		c.emit(EventError)
	}
}

func (c *Client[T]) emit(event Event) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(event)
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
