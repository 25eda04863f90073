// Package wsconn wraps a gorilla websocket connection with a buffered
// outbound queue drained by a single writer goroutine.
//
// Send never blocks: a full queue or a closed connection is reported to
// the caller, which lets a broadcaster treat a slow peer as a send failure
// instead of stalling on it.
package wsconn

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Send after the connection has closed.
	ErrClosed = errors.New("wsconn: connection closed")
	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("wsconn: send buffer full")
)

// Options tunes a connection.
type Options struct {
	SendBuffer     int           // queued outbound messages
	WriteWait      time.Duration // deadline for one write
	PongWait       time.Duration // read deadline, extended by every pong
	PingPeriod     time.Duration // must be less than PongWait
	MaxMessageSize int64         // largest inbound message accepted
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	return o
}

// Conn is a websocket connection with a non-blocking Send.
type Conn struct {
	id     string
	ws     *websocket.Conn
	opts   Options
	logger *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New wraps ws and starts its writer goroutine. The caller must eventually
// call Close.
func New(ws *websocket.Conn, opts Options, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	c := &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		opts:   opts,
		logger: logger,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}

	ws.SetReadLimit(opts.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.writePump()
	return c
}

// ID returns a random identifier unique to this connection.
func (c *Conn) ID() string { return c.id }

// Send queues payload as a text message.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadMessage blocks for the next text message from the peer. Binary
// messages are skipped.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage {
			return data, nil
		}
	}
}

// Done is closed once the connection has been closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close stops the writer, sends a close frame and closes the socket.
// It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait))
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed",
					zap.String("conn", c.id),
					zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// NewUpgrader returns an upgrader that accepts the given origins. An empty
// list keeps gorilla's same-origin check; "*" accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(allowedOrigins) == 0 {
		return u
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimSpace(o))] = true
	}
	u.CheckOrigin = func(r *http.Request) bool {
		if allowed["*"] {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed[strings.ToLower(origin)]
	}
	return u
}

// IsUnexpectedClose reports whether err is a close other than a normal
// shutdown by the peer.
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}
