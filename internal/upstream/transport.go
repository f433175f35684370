package upstream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn the session engine depends on.
// Narrowing it to an interface lets tests substitute a fake transport
// instead of dialing a real socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// dialFunc opens a new wsConn to url.
type dialFunc func(ctx context.Context, url string) (wsConn, error)

func defaultDial(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
