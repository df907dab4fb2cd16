package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// outboundBuffer is how many payloads may queue per client before the
	// client counts as too slow and is dropped.
	outboundBuffer = 32
	writeTimeout   = 5 * time.Second
)

// Client wraps a websocket connection as a hub Subscriber. Gorilla
// connections allow a single concurrent writer, so every outbound message
// is queued and written by one goroutine.
type Client struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

// NewClient constructs a client and starts its write loop.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	c := &Client{
		conn: conn,
		out:  make(chan []byte, outboundBuffer),
		done: make(chan struct{}),
		log:  logger,
	}
	go c.writeLoop()
	return c
}

// Send queues a payload without blocking. It reports false when the client
// is closed; a full queue closes the client rather than stalling the caller.
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- payload:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn("dropping slow websocket client")
		c.Close()
		return false
	}
}

// Close stops the write loop; the loop closes the connection on exit.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Warn("websocket write failed", "error", err)
				c.Close()
				return
			}
		}
	}
}
