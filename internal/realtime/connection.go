package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Connection is one live websocket client. Outbound frames go through a
// bounded buffer drained by writePump; Deliver never blocks.
type Connection struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newConnection(id string, ws *websocket.Conn, bufferSize int, logger zerolog.Logger) *Connection {
	return &Connection{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, bufferSize),
		logger: logger.With().Str("conn", id).Logger(),
		done:   make(chan struct{}),
	}
}

// ID returns the transport-assigned connection id.
func (c *Connection) ID() string { return c.id }

// Deliver queues a frame for sending. A full buffer or a closed connection
// drops the frame.
func (c *Connection) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Done is closed once the connection has been shut.
func (c *Connection) Done() <-chan struct{} { return c.done }

// shut stops the write pump and closes the socket. Safe to call repeatedly.
func (c *Connection) shut() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	if err := c.ws.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("error closing connection")
	}
}

// closeWithMessage sends a close frame before shutting the connection.
func (c *Connection) closeWithMessage(code int, text string, writeWait time.Duration) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("failed to send close frame")
	}
	c.shut()
}

// writePump owns all writes to the socket except close control frames.
func (c *Connection) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.shut()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed, closing connection")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed, closing connection")
				return
			}
		case <-c.done:
			return
		}
	}
}
