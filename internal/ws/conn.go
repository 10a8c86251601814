// Package ws adapts gorilla/websocket connections to the hub: read and
// write pumps, per-connection dispatch, and handshake authentication.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbenevides/hermes/internal/protocol"
	"github.com/mbenevides/hermes/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Conn is one live websocket connection bound to a conversation.
//
// Frames read off the socket are handed to a per-connection dispatch
// goroutine through a channel, so persistence calls never run on the read
// loop and a slow write stalls only this connection. Outbound delivery
// goes through a buffered send channel drained by the write pump.
type Conn struct {
	id             string
	identity       registry.Identity
	conversationID int64

	sock    *websocket.Conn
	send    chan []byte
	inbound chan []byte
	limiter *rate.Limiter
	logger  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}

	// Optional instrumentation hooks.
	onFrame        func()
	onFrameDropped func()
}

// Options tunes per-connection buffers and limits.
type Options struct {
	SendBuffer   int
	FramesPerSec float64
	FrameBurst   int

	// OnFrame is called for every frame read off the socket; OnFrameDropped
	// for frames discarded by the rate limiter.
	OnFrame        func()
	OnFrameDropped func()
}

// NewConn wraps an upgraded socket for an authenticated user.
func NewConn(id string, identity registry.Identity, conversationID int64, sock *websocket.Conn, opts Options, logger *zap.Logger) *Conn {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.FramesPerSec <= 0 {
		opts.FramesPerSec = 20
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = 40
	}
	return &Conn{
		id:             id,
		identity:       identity,
		conversationID: conversationID,
		sock:           sock,
		send:           make(chan []byte, opts.SendBuffer),
		inbound:        make(chan []byte, 32),
		limiter:        rate.NewLimiter(rate.Limit(opts.FramesPerSec), opts.FrameBurst),
		logger:         logger,
		done:           make(chan struct{}),
		onFrame:        opts.OnFrame,
		onFrameDropped: opts.OnFrameDropped,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) UserID() int64 { return c.identity.UserID }

func (c *Conn) Identity() registry.Identity { return c.identity }

func (c *Conn) ConversationID() int64 { return c.conversationID }

// Send enqueues a payload for the write pump. It never blocks; a full
// buffer or closed connection reports an error so the bus can count the
// drop.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

// Run starts the write pump and dispatch loop, then blocks reading frames
// until the peer goes away. It returns once the connection is finished;
// callers perform registry and presence cleanup after it returns.
func (c *Conn) Run(d *protocol.Dispatcher) {
	go c.writePump()
	go c.dispatchLoop(d)
	c.readPump()
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

func (c *Conn) readPump() {
	defer func() {
		close(c.inbound)
		c.Close()
	}()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if c.onFrame != nil {
			c.onFrame()
		}
		if !c.limiter.Allow() {
			c.logger.Warn("inbound frame rate limited", zap.String("conn_id", c.id))
			if c.onFrameDropped != nil {
				c.onFrameDropped()
			}
			continue
		}
		select {
		case c.inbound <- data:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) dispatchLoop(d *protocol.Dispatcher) {
	for data := range c.inbound {
		d.Dispatch(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
