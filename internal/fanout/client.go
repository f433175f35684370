// Package fanout implements the two local WebSocket servers that serve
// browser clients: the tick/candle feed (spec §4.6) and the order-book
// feed (spec §4.7). Both share the same connection lifecycle — a send
// channel drained by a write pump, a read pump translating client JSON
// into actions — adapted from the teacher's session-client pattern.
package fanout

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 64

	textMessage = 1
	pingMessage = 9
)

// wsConn narrows *websocket.Conn to what a fanout client needs, so tests
// can substitute a fake transport instead of a real socket.
type wsConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

var clientIDCounter uint64

// client is one connected browser session. Both fan-out servers embed it
// and layer their own registration state (selected symbol, timeframe) on
// top (spec §3's ClientRegistration).
type client struct {
	id     uint64
	conn   wsConn
	sendCh chan []byte
	done   chan struct{}

	closeOnce sync.Once
}

func newClient(conn wsConn) *client {
	return &client{
		id:     atomic.AddUint64(&clientIDCounter, 1),
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// send enqueues data for delivery. Returns false if the client's buffer is
// full, in which case the message is dropped rather than blocking.
func (c *client) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump drains sendCh to the socket and pings on an idle ticker. It
// owns the connection's write side exclusively, per gorilla's one-writer
// rule.
func writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case data, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(textMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(pingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump reads client frames until the socket errors or closes, handing
// each payload to onMessage. Bad JSON is the caller's concern: this loop
// never breaks the connection over a malformed frame.
func readPump(c *client, onMessage func([]byte)) {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		onMessage(data)
	}
}
