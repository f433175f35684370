package fanout

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ndrandal/marketfeed/internal/orderbook"
)

var bookUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DefaultThrottle is the minimum interval between outbound broadcasts for
// a given symbol (spec §4.7).
const DefaultThrottle = 100 * time.Millisecond

type bookConn struct {
	*client
	mu     sync.Mutex
	symbol string
}

// symbolThrottle tracks, per symbol, the last broadcast time and the most
// recently cached snapshot — spec §4.7's most-recent-wins throttle: a
// snapshot arriving inside the quiet window updates the cache silently;
// the next one after the window is broadcast in full.
type symbolThrottle struct {
	mu       sync.Mutex
	lastSent time.Time
	cached   orderbook.Snapshot
	hasCache bool
}

// BookFanoutServer serves the Level-2 book feed (spec §4.7).
type BookFanoutServer struct {
	throttle time.Duration

	mu        sync.RWMutex
	symbols   []string
	defSymbol string
	conns     map[uint64]*bookConn
	bySymbol  map[string]*symbolThrottle
}

// NewBookFanoutServer creates a server for the given registered symbols.
func NewBookFanoutServer(symbols []string, throttle time.Duration) *BookFanoutServer {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	var def string
	if len(symbols) > 0 {
		def = symbols[0]
	}
	return &BookFanoutServer{
		throttle:  throttle,
		symbols:   append([]string(nil), symbols...),
		defSymbol: def,
		conns:     make(map[uint64]*bookConn),
		bySymbol:  make(map[string]*symbolThrottle),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers a client.
func (s *BookFanoutServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := bookUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("fanout: book upgrade error: %v", err)
		return
	}
	s.register(conn)
}

func (s *BookFanoutServer) register(conn wsConn) *bookConn {
	bc := &bookConn{client: newClient(conn), symbol: s.defSymbol}

	s.mu.Lock()
	s.conns[bc.id] = bc
	s.mu.Unlock()

	s.sendSymbols(bc)
	s.sendCachedOrEmpty(bc, bc.symbol)

	go writePump(bc.client)
	go readPump(bc.client, func(data []byte) { s.handleMessage(bc, data) })
	go func() {
		<-bc.done
		s.mu.Lock()
		delete(s.conns, bc.id)
		s.mu.Unlock()
	}()
	return bc
}

type bookAction struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

func (s *BookFanoutServer) handleMessage(bc *bookConn, data []byte) {
	var a bookAction
	if err := json.Unmarshal(data, &a); err != nil {
		return
	}
	if a.Action != "subscribe" {
		return
	}
	bc.mu.Lock()
	bc.symbol = a.Symbol
	bc.mu.Unlock()
	s.sendCachedOrEmpty(bc, a.Symbol)
}

func (s *BookFanoutServer) sendSymbols(bc *bookConn) {
	s.mu.RLock()
	syms := append([]string(nil), s.symbols...)
	s.mu.RUnlock()
	s.sendJSON(bc, map[string]interface{}{"type": "symbols", "symbols": syms})
}

// sendCachedOrEmpty sends the last cached snapshot for sym, or an empty
// book frame if none exists yet (spec §4.7, §7).
func (s *BookFanoutServer) sendCachedOrEmpty(bc *bookConn, sym string) {
	s.mu.RLock()
	th := s.bySymbol[sym]
	s.mu.RUnlock()

	if th != nil {
		th.mu.Lock()
		snap, ok := th.cached, th.hasCache
		th.mu.Unlock()
		if ok {
			s.sendJSON(bc, bookFrame(snap))
			return
		}
	}
	s.sendJSON(bc, emptyBookFrame(sym))
}

func (s *BookFanoutServer) sendJSON(bc *bookConn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if !bc.send(data) {
		log.Printf("fanout: book client %d buffer full, dropping frame", bc.id)
	}
}

// PublishSnapshot applies the throttle rule for snap.Symbol: if the quiet
// window since the last broadcast hasn't elapsed, the cache is updated
// silently; otherwise the snapshot is broadcast immediately to every
// client currently selecting that symbol.
func (s *BookFanoutServer) PublishSnapshot(snap orderbook.Snapshot, now time.Time) {
	s.mu.Lock()
	th, ok := s.bySymbol[snap.Symbol]
	if !ok {
		th = &symbolThrottle{}
		s.bySymbol[snap.Symbol] = th
	}
	s.mu.Unlock()

	th.mu.Lock()
	th.cached = snap
	th.hasCache = true
	shouldBroadcast := now.Sub(th.lastSent) >= s.throttle
	if shouldBroadcast {
		th.lastSent = now
	}
	th.mu.Unlock()

	if !shouldBroadcast {
		return
	}
	s.broadcast(snap)
}

func (s *BookFanoutServer) broadcast(snap orderbook.Snapshot) {
	data, err := json.Marshal(bookFrame(snap))
	if err != nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, bc := range s.conns {
		bc.mu.Lock()
		selected := bc.symbol == snap.Symbol
		bc.mu.Unlock()
		if selected {
			if !bc.send(data) {
				log.Printf("fanout: book client %d buffer full, dropping snapshot", bc.id)
			}
		}
	}
}

type bookLevel struct {
	Precio      float64 `json:"precio"`
	Tamano      float64 `json:"tamano"`
	Acumulado   float64 `json:"acumulado"`
	Exchanges   []int   `json:"exchanges"`
	Interpolado bool    `json:"interpolado,omitempty"`
}

func toBookLevels(levels []orderbook.Level) []bookLevel {
	out := make([]bookLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, bookLevel{
			Precio: l.Price, Tamano: l.Size, Acumulado: l.Cumulative,
			Exchanges: l.Venues, Interpolado: l.Synthetic,
		})
	}
	return out
}

func bookFrame(snap orderbook.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"type": "book", "symbol": snap.Symbol,
		"bids": toBookLevels(snap.Bids), "asks": toBookLevels(snap.Asks),
		"best_bid": snap.BestBid, "best_ask": snap.BestAsk,
		"spread": snap.Spread, "mid_price": snap.Mid,
		"updates": snap.Updates,
		"num_exchanges_bid": snap.VenuesBid, "num_exchanges_ask": snap.VenuesAsk,
	}
}

func emptyBookFrame(sym string) map[string]interface{} {
	return map[string]interface{}{
		"type": "book", "symbol": sym,
		"bids": []bookLevel{}, "asks": []bookLevel{},
		"best_bid": 0, "best_ask": 0, "spread": 0, "mid_price": 0,
		"updates": 0, "num_exchanges_bid": 0, "num_exchanges_ask": 0,
	}
}
