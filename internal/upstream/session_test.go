package upstream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// fakeConn replays a scripted sequence of reads and records writes, so the
// session engine's connect/auth/subscribe/stream path can be exercised
// without a real socket.
type fakeConn struct {
	reads   [][]byte
	idx     int
	writes  []string
	closed  bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	if f.idx >= len(f.reads) {
		return 0, nil, io.EOF
	}
	msg := f.reads[f.idx]
	f.idx++
	return 1, msg, nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.writes = append(f.writes, "json")
	return nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error               { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error              { return nil }
func (f *fakeConn) Close() error                                    { f.closed = true; return nil }

func TestSessionHappyPathEmitsTrade(t *testing.T) {
	conn := &fakeConn{
		reads: [][]byte{
			[]byte(`{"ev":"status","message":"connected"}`),             // welcome
			[]byte(`[{"status":"auth_success"}]`),                       // auth reply
			[]byte(`[{"ev":"T","sym":"AAPL","p":150.25,"s":10,"t":1,"x":4}]`), // stream
		},
	}
	s := NewTradeSession(Config{
		Endpoint: "wss://fake/stocks",
		APIKey:   "key",
		dial:     func(ctx context.Context, url string) (wsConn, error) { return conn, nil },
	})
	s.Subscribe("AAPL")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case trade := <-s.TradeCh:
		if trade.Symbol != "AAPL" || trade.Price != 150.25 {
			t.Fatalf("unexpected trade: %+v", trade)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trade")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}

	if len(conn.writes) < 2 {
		t.Fatalf("expected at least auth+subscribe writes, got %d", len(conn.writes))
	}
}

func TestSessionAuthFailureIsFatal(t *testing.T) {
	conn := &fakeConn{
		reads: [][]byte{
			[]byte(`{"ev":"status"}`),
			[]byte(`[{"status":"auth_failed"}]`),
		},
	}
	s := NewTradeSession(Config{
		Endpoint: "wss://fake/stocks",
		APIKey:   "bad-key",
		dial:     func(ctx context.Context, url string) (wsConn, error) { return conn, nil },
	})

	err := s.Run(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if s.State() != Failed {
		t.Fatalf("expected Failed state, got %v", s.State())
	}
}

func TestSessionStopEndsRunCleanly(t *testing.T) {
	conn := &fakeConn{
		reads: [][]byte{
			[]byte(`{"ev":"status"}`),
			[]byte(`[{"status":"auth_success"}]`),
		},
	}
	s := NewTradeSession(Config{
		Endpoint: "wss://fake/stocks",
		APIKey:   "key",
		dial:     func(ctx context.Context, url string) (wsConn, error) { return conn, nil },
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}
