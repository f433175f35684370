package fanout

import (
	"io"
	"time"
)

// fakeConn is a minimal wsConn that never yields real client reads,
// letting tests drive a registered connection purely through its sendCh.
type fakeConn struct {
	writes [][]byte
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, io.EOF }
func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.writes = append(f.writes, data)
	return nil
}
func (f *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }
func (f *fakeConn) SetReadLimit(limit int64)           {}
func (f *fakeConn) SetPongHandler(h func(string) error) {}
func (f *fakeConn) Close() error                       { f.closed = true; return nil }
