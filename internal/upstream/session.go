// Package upstream implements the authenticated, auto-reconnecting
// streaming session shared by the trade and quote feeds (spec §4.2): a
// single state machine — DISCONNECTED → CONNECTING → AUTHENTICATING →
// SUBSCRIBING → STREAMING, ending in FAILED on a fatal error or back in
// DISCONNECTED on stop/cancel — driving one upstream WebSocket connection
// with exponential backoff reconnection. The CLOSING state is defined but
// Run never enters it.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ndrandal/marketfeed/internal/model"
	"github.com/ndrandal/marketfeed/internal/symbol"
)

// Kind selects which half of the feed a session drives: it determines the
// subscribe-channel builder and which event records are dispatched.
type Kind int

const (
	KindTrade Kind = iota
	KindQuote
)

// ErrAuthFailed is returned by Run when the provider rejects credentials.
// It is fatal: the caller must not restart the session.
var ErrAuthFailed = fmt.Errorf("upstream: authentication rejected")

// ErrReconnectCapExceeded is returned by Run when the reconnect counter
// exceeds the configured maximum without a stable connection.
var ErrReconnectCapExceeded = fmt.Errorf("upstream: reconnect cap exceeded")

// Config configures a Session.
type Config struct {
	Endpoint          string
	APIKey            string
	HeartbeatInterval time.Duration // default 30s
	PongTimeout       time.Duration // default 10s
	MaxReconnect      int           // default 50

	dial dialFunc // overridable in tests; nil means defaultDial
}

// Session is the shared trade/quote upstream engine. Construct via
// NewTradeSession or NewQuoteSession.
type Session struct {
	cfg  Config
	kind Kind

	mu      sync.Mutex
	state   State
	symbols map[string]symbol.Classification
	n       int    // reconnect counter
	conn    wsConn // set while STREAMING; used by Subscribe/Unsubscribe

	stopOnce sync.Once
	stopCh   chan struct{}

	TradeCh chan model.Trade
	QuoteCh chan model.Quote
}

func newSession(cfg Config, kind Kind) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10 * time.Second
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = 50
	}
	if cfg.dial == nil {
		cfg.dial = defaultDial
	}
	return &Session{
		cfg:     cfg,
		kind:    kind,
		state:   Disconnected,
		symbols: make(map[string]symbol.Classification),
		stopCh:  make(chan struct{}),
		TradeCh: make(chan model.Trade, 256),
		QuoteCh: make(chan model.Quote, 256),
	}
}

// NewTradeSession creates a Session that emits normalized trades on TradeCh.
func NewTradeSession(cfg Config) *Session { return newSession(cfg, KindTrade) }

// NewQuoteSession creates a Session that emits normalized quotes on QuoteCh.
func NewQuoteSession(cfg Config) *Session { return newSession(cfg, KindQuote) }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Subscribe adds sym to the tracked set. If the session is currently
// streaming, a subscribe frame is sent on the live connection immediately;
// otherwise the symbol is picked up on the next SUBSCRIBING phase.
func (s *Session) Subscribe(sym string) error {
	c := symbol.Classify(sym)
	s.mu.Lock()
	s.symbols[c.Ticker] = c
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return s.sendSubscribe(conn, []symbol.Classification{c}, "subscribe")
	}
	return nil
}

// Unsubscribe removes sym from the tracked set, sending an unsubscribe
// frame on the live connection if currently streaming.
func (s *Session) Unsubscribe(sym string) error {
	c := symbol.Classify(sym)
	s.mu.Lock()
	delete(s.symbols, c.Ticker)
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return s.sendSubscribe(conn, []symbol.Classification{c}, "unsubscribe")
	}
	return nil
}

func (s *Session) channelFor(c symbol.Classification) string {
	if s.kind == KindQuote {
		return c.QuoteChannel()
	}
	return c.TradeChannel()
}

func (s *Session) sendSubscribe(conn wsConn, classes []symbol.Classification, action string) error {
	if len(classes) == 0 {
		return nil
	}
	channels := make([]string, 0, len(classes))
	for _, c := range classes {
		channels = append(channels, s.channelFor(c))
	}
	joined := channels[0]
	for _, c := range channels[1:] {
		joined += "," + c
	}
	return conn.WriteJSON(map[string]string{"action": action, "params": joined})
}

// Stop terminates the session. The read loop exits and no further
// reconnection is attempted.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Run drives the connect/stream/reconnect loop until ctx is cancelled,
// Stop is called, or a fatal error (auth rejection, reconnect cap) occurs.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.setState(Disconnected)
			return ctx.Err()
		case <-s.stopCh:
			s.setState(Disconnected)
			return nil
		default:
		}

		s.setState(Connecting)
		var streamedStart time.Time
		receivedAny := false
		err := s.connectAndStream(ctx, &receivedAny, &streamedStart)

		select {
		case <-ctx.Done():
			s.setState(Disconnected)
			return ctx.Err()
		case <-s.stopCh:
			s.setState(Disconnected)
			return nil
		default:
		}

		if err == ErrAuthFailed {
			s.setState(Failed)
			return err
		}

		var streamedFor time.Duration
		if !streamedStart.IsZero() {
			streamedFor = time.Since(streamedStart)
		}
		s.mu.Lock()
		s.n = nextReconnectCount(s.n, streamedFor, receivedAny)
		n := s.n
		s.mu.Unlock()

		if exceedsReconnectCap(n, s.cfg.MaxReconnect) {
			s.setState(Failed)
			return ErrReconnectCapExceeded
		}

		log.Printf("upstream session %s: disconnected (%v), reconnecting in %v (attempt %d)", s.cfg.Endpoint, err, backoffFor(n), n)

		select {
		case <-ctx.Done():
			s.setState(Disconnected)
			return ctx.Err()
		case <-s.stopCh:
			s.setState(Disconnected)
			return nil
		case <-time.After(backoffFor(n)):
		}
	}
}

func (s *Session) connectAndStream(ctx context.Context, receivedAny *bool, streamedStart *time.Time) error {
	conn, err := s.cfg.dial(ctx, s.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	// Welcome frame: content ignored.
	conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatInterval + s.cfg.PongTimeout))
	if _, _, err := conn.ReadMessage(); err != nil {
		return fmt.Errorf("welcome: %w", err)
	}

	s.setState(Authenticating)
	if err := conn.WriteJSON(map[string]string{"action": "auth", "params": s.cfg.APIKey}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatInterval + s.cfg.PongTimeout))
	_, authMsg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	if failed, checkErr := authRejected(authMsg); checkErr == nil && failed {
		return ErrAuthFailed
	}

	s.setState(Subscribing)
	s.mu.Lock()
	classes := make([]symbol.Classification, 0, len(s.symbols))
	for _, c := range s.symbols {
		classes = append(classes, c)
	}
	s.mu.Unlock()
	if err := s.sendSubscribe(conn, classes, "subscribe"); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(Streaming)
	*streamedStart = time.Now()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go s.pingLoop(heartbeatCtx, conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatInterval + s.cfg.PongTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		*receivedAny = true
		s.dispatchFrame(data)
	}
}

func (s *Session) pingLoop(ctx context.Context, conn wsConn) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.PongTimeout))
			if err := conn.WriteMessage(9 /* websocket.PingMessage */, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) dispatchFrame(data []byte) {
	records, err := parseFrame(data)
	if err != nil {
		log.Printf("upstream: malformed frame dropped: %v", err)
		return
	}
	for _, raw := range records {
		ev, err := eventKind(raw)
		if err != nil {
			log.Printf("upstream: malformed record dropped: %v", err)
			continue
		}
		switch {
		case isTradeEvent(ev) && s.kind == KindTrade:
			t, err := decodeTrade(raw)
			if err != nil {
				log.Printf("upstream: trade decode failed: %v", err)
				continue
			}
			select {
			case s.TradeCh <- t:
			default:
				log.Printf("upstream: trade channel full, dropping event for %s", t.Symbol)
			}
		case isQuoteEvent(ev) && s.kind == KindQuote:
			q, err := decodeQuote(raw)
			if err != nil {
				log.Printf("upstream: quote decode failed: %v", err)
				continue
			}
			select {
			case s.QuoteCh <- q:
			default:
				log.Printf("upstream: quote channel full, dropping event for %s", q.Symbol)
			}
		default:
			// Other event types (status, informational) are logged and ignored.
		}
	}
}

func authRejected(data []byte) (bool, error) {
	var replies []authReply
	if err := json.Unmarshal(data, &replies); err != nil {
		var single authReply
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return false, err
		}
		replies = []authReply{single}
	}
	for _, r := range replies {
		if r.Status == "auth_failed" {
			return true, nil
		}
	}
	return false, nil
}
