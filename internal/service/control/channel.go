package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"voice-session-orchestrator/internal/observability/metrics"
)

// ErrChannelNotOpen is returned by Send before the channel reports ready or
// after it has been closed.
var ErrChannelNotOpen = errors.New("control channel not open")

// Conn is an ordered, reliable, bidirectional message connection. Both the
// data-channel and the websocket transports satisfy it.
type Conn interface {
	// Send writes one complete message. Delivery is ordered and reliable.
	Send(data []byte) error
	// Close tears the connection down. Idempotent.
	Close() error
}

// Handler receives decoded inbound protocol messages.
type Handler func(Message)

// Channel speaks the control protocol over a Conn.
//
// Lifecycle: New → Bind(conn) → HandleOpen (transport signals ready) →
// Open(ctx) resolves → Send/receive → Close. Sends before ready or after
// close fail with ErrChannelNotOpen.
type Channel struct {
	writeMu sync.Mutex
	conn    Conn

	ready  chan struct{}
	opened atomic.Bool
	closed atomic.Bool

	handlerMu sync.RWMutex
	handler   Handler

	metrics *metrics.Metrics
}

// New creates an unbound channel.
func New() *Channel {
	return &Channel{
		ready:   make(chan struct{}),
		metrics: metrics.DefaultMetrics,
	}
}

// Bind attaches the underlying connection. Called by the transport once the
// channel object exists (a data channel may be bound before it is open).
func (c *Channel) Bind(conn Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
}

// SetHandler installs the inbound message handler.
func (c *Channel) SetHandler(h Handler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// HandleOpen marks the channel ready. Called by the transport when the
// underlying connection reports open. Idempotent.
func (c *Channel) HandleOpen() {
	if c.opened.CompareAndSwap(false, true) {
		close(c.ready)
	}
}

// HandleRaw decodes one inbound wire message and dispatches it by type.
// Unknown types are logged and ignored, never fatal.
func (c *Channel) HandleRaw(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		log.Warn().Err(err).Msg("Discarding undecodable control message")
		return
	}

	switch msg.Type {
	case TypeSessionCreated, TypeConversationItemCreated,
		TypeResponseAudioDelta, TypeResponseAudioDone, TypeError:
		c.metrics.RecordControlMessage(msg.Type, "inbound")
	default:
		c.metrics.RecordControlMessage("unknown", "inbound")
		log.Debug().Str("type", msg.Type).Msg("Ignoring unknown control message type")
		return
	}

	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	if h != nil {
		h(msg)
	}
}

// Open blocks until the channel reports ready, the context expires, or the
// channel is closed.
func (c *Channel) Open(ctx context.Context) error {
	select {
	case <-c.ready:
		if c.closed.Load() {
			return ErrChannelNotOpen
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsOpen reports whether the channel is ready and not closed.
func (c *Channel) IsOpen() bool {
	return c.opened.Load() && !c.closed.Load()
}

// Send encodes and writes one protocol message.
func (c *Channel) Send(msg Message) error {
	if !c.IsOpen() {
		return ErrChannelNotOpen
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	conn := c.conn
	defer c.writeMu.Unlock()

	if conn == nil || c.closed.Load() {
		return ErrChannelNotOpen
	}
	if err := conn.Send(data); err != nil {
		return err
	}
	c.metrics.RecordControlMessage(msg.Type, "outbound")
	return nil
}

// Close tears the channel down. Idempotent; safe before Bind or Open.
func (c *Channel) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.writeMu.Lock()
	conn := c.conn
	c.conn = nil
	c.writeMu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("Error closing control connection")
		}
	}
}
