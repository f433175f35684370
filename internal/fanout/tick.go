package fanout

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ndrandal/marketfeed/internal/providerclient"
	"github.com/ndrandal/marketfeed/internal/replay"
	"github.com/ndrandal/marketfeed/internal/sessionclock"
	"github.com/ndrandal/marketfeed/internal/symbol"
)

var tickUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const defaultTimeframe = 60

// HistoryFetcher is the subset of *providerclient.Client TickFanoutServer
// needs to expand a set_timeframe request into bars.
type HistoryFetcher interface {
	Aggregates(ctx context.Context, ticker string, mult int, unit, from, to string) ([]providerclient.Bar, error)
}

// tickConn is one registered browser session on the tick feed: the shared
// client plus its selected symbol/timeframe (spec §3 ClientRegistration).
type tickConn struct {
	*client
	mu        sync.Mutex
	symbol    string
	timeframe int
}

// TickFanoutServer serves the trade-tick / candle feed (spec §4.6).
type TickFanoutServer struct {
	history HistoryFetcher

	mu            sync.RWMutex
	symbols       []string
	defaultSymbol string
	buf           *replay.Buffer
	conns         map[uint64]*tickConn
}

// NewTickFanoutServer creates a server for the given registered symbols.
// buf is the shared replay buffer; history is used to serve set_timeframe
// requests (may be nil if history expansion is not needed).
func NewTickFanoutServer(symbols []string, buf *replay.Buffer, history HistoryFetcher) *TickFanoutServer {
	var def string
	if len(symbols) > 0 {
		def = symbols[0]
	}
	return &TickFanoutServer{
		history:       history,
		symbols:       append([]string(nil), symbols...),
		defaultSymbol: def,
		buf:           buf,
		conns:         make(map[uint64]*tickConn),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers a client.
func (s *TickFanoutServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := tickUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("fanout: tick upgrade error: %v", err)
		return
	}
	s.register(conn)
}

func (s *TickFanoutServer) register(conn wsConn) *tickConn {
	tc := &tickConn{client: newClient(conn), symbol: s.defaultSymbol, timeframe: defaultTimeframe}

	s.mu.Lock()
	s.conns[tc.id] = tc
	s.mu.Unlock()

	s.sendSymbols(tc)
	s.sendInit(tc)
	s.sendSession(tc)

	go writePump(tc.client)
	go readPump(tc.client, func(data []byte) { s.handleMessage(tc, data) })
	go func() {
		<-tc.done
		s.mu.Lock()
		delete(s.conns, tc.id)
		s.mu.Unlock()
	}()
	return tc
}

type tickAction struct {
	Action    string `json:"action"`
	Symbol    string `json:"symbol"`
	Timeframe int    `json:"timeframe"`
}

func (s *TickFanoutServer) handleMessage(tc *tickConn, data []byte) {
	var a tickAction
	if err := json.Unmarshal(data, &a); err != nil {
		return // spec §7: bad client JSON is ignored, connection kept
	}
	switch a.Action {
	case "subscribe":
		if !s.isRegistered(a.Symbol) {
			return
		}
		tc.mu.Lock()
		tc.symbol = a.Symbol
		tc.mu.Unlock()
		s.sendInit(tc)
		s.sendSession(tc)
	case "set_timeframe":
		if a.Timeframe <= 0 {
			return
		}
		tc.mu.Lock()
		tc.timeframe = a.Timeframe
		tc.mu.Unlock()
		s.sendHistoryFrame(tc, a.Timeframe)
	}
}

func (s *TickFanoutServer) isRegistered(sym string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sy := range s.symbols {
		if sy == sym {
			return true
		}
	}
	return false
}

func (s *TickFanoutServer) sendSymbols(tc *tickConn) {
	s.mu.RLock()
	syms := append([]string(nil), s.symbols...)
	s.mu.RUnlock()
	s.sendJSON(tc, map[string]interface{}{"type": "symbols", "symbols": syms})
}

type initPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

func (s *TickFanoutServer) sendInit(tc *tickConn) {
	tc.mu.Lock()
	sym := tc.symbol
	tc.mu.Unlock()

	pts := s.buf.Snapshot(sym)
	data := make([]initPoint, 0, len(pts))
	for _, p := range pts {
		data = append(data, initPoint{Time: p.TimeSec, Value: p.Value})
	}
	s.sendJSON(tc, map[string]interface{}{"type": "init", "symbol": sym, "data": data})
}

func (s *TickFanoutServer) sendSession(tc *tickConn) {
	s.sendJSON(tc, sessionclock.FrameAt(time.Now()))
}

// BroadcastSession pushes a session-clock frame to every connected client,
// used by the periodic session watcher (spec §4.8) to announce transitions.
func (s *TickFanoutServer) BroadcastSession(frame sessionclock.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tc := range s.conns {
		if !tc.send(data) {
			log.Printf("fanout: tick client %d buffer full, dropping session frame", tc.id)
		}
	}
}

func (s *TickFanoutServer) sendJSON(tc *tickConn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if !tc.send(data) {
		log.Printf("fanout: tick client %d buffer full, dropping frame", tc.id)
	}
}

// RegisterTick applies an incoming trade price to the replay buffer and
// broadcasts it to every client currently selecting sym (spec §4.6).
func (s *TickFanoutServer) RegisterTick(sym string, price float64, timestampMs int64) {
	sec := timestampMs / 1000
	ts := time.UnixMilli(timestampMs)
	if symbol.Classify(sym).Kind == symbol.Equity && !sessionclock.ExtendedHours(ts) {
		return
	}
	s.buf.Record(sym, sec, price)

	frame, err := json.Marshal(map[string]interface{}{
		"type": "tick", "symbol": sym, "time": sec, "value": price,
	})
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tc := range s.conns {
		tc.mu.Lock()
		selected := tc.symbol == sym
		tc.mu.Unlock()
		if selected {
			if !tc.send(frame) {
				log.Printf("fanout: tick client %d buffer full, dropping tick", tc.id)
			}
		}
	}
}

// timeframeParams maps a timeframe in seconds to the provider's
// (multiplier, unit) aggregate parameters (spec §4.6).
func timeframeParams(t int) (mult int, unit string) {
	switch {
	case t < 60:
		return t, "second"
	case t < 3600:
		return t / 60, "minute"
	default:
		return t / 3600, "hour"
	}
}

// historyWindowDays computes the calendar-day lookback bounded to
// [3, 60] for a set_timeframe request (spec §4.6).
func historyWindowDays(t int) int {
	const tradingSeconds = 6.5 * 3600
	raw := math.Ceil(500*float64(t)/tradingSeconds)*1.5 + 3
	d := int(math.Ceil(raw))
	if d < 3 {
		d = 3
	}
	if d > 60 {
		d = 60
	}
	return d
}

// expandBar turns one OHLC bar into four same-second points, in the
// order open, high, low, close (spec §4.6).
func expandBar(b providerclient.Bar) []initPoint {
	sec := b.TimestampMs / 1000
	return []initPoint{
		{Time: sec, Value: b.Open},
		{Time: sec, Value: b.High},
		{Time: sec, Value: b.Low},
		{Time: sec, Value: b.Close},
	}
}

func (s *TickFanoutServer) sendHistoryFrame(tc *tickConn, timeframe int) {
	if s.history == nil {
		return
	}
	tc.mu.Lock()
	sym := tc.symbol
	tc.mu.Unlock()

	mult, unit := timeframeParams(timeframe)
	days := historyWindowDays(timeframe)
	now := time.Now()
	from := now.AddDate(0, 0, -days).Format("2006-01-02")
	to := now.Format("2006-01-02")

	c := symbol.Classify(sym)
	ctx, cancel := context.WithTimeout(context.Background(), providerclient.HistoryTimeout)
	defer cancel()
	bars, err := s.history.Aggregates(ctx, c.ProviderTicker, mult, unit, from, to)
	if err != nil {
		log.Printf("fanout: history fetch failed for %s: %v", sym, err)
		return
	}

	points := make([]initPoint, 0, len(bars)*4)
	for _, b := range bars {
		if c.Kind == symbol.Equity && !sessionclock.ExtendedHours(time.UnixMilli(b.TimestampMs)) {
			continue
		}
		points = append(points, expandBar(b)...)
	}
	if len(points) > 500 {
		points = points[len(points)-500:]
	}

	s.sendJSON(tc, map[string]interface{}{
		"type": "init", "symbol": sym, "data": points,
		"timeframe": timeframe, "source": "history",
		"candles_loaded": len(bars),
	})
}
