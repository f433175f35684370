// Package synthbook generates a placeholder Level-2 book for equity
// symbols while the market is closed (spec §4.5), so the book fan-out has
// something to show before the real quote stream takes over.
package synthbook

import (
	"context"
	"log"
	"time"

	"github.com/ndrandal/marketfeed/internal/orderbook"
	"github.com/ndrandal/marketfeed/internal/rng"
	"github.com/ndrandal/marketfeed/internal/sessionclock"
)

const (
	levels      = 20
	minSpread   = 0.01
	maxSpread   = 0.03
	step        = 0.01
	minLevelQty = 100
	maxLevelQty = 800
)

// venueIDs is the fixed small set of venue ids picked per level.
var venueIDs = []int{1, 7, 11, 19}

// PriceSource supplies the last known price for a symbol; zero or
// negative means "unknown", so no book is produced.
type PriceSource func(symbol string) float64

// Generator runs the periodic synthetic-book task (spec §4.5): every
// interval (default 5s), while the session clock reports CLOSED, it
// builds a book for each configured symbol and hands it to Publish.
type Generator struct {
	Symbols  []string
	Price    PriceSource
	Publish  func(orderbook.Snapshot)
	Interval time.Duration
	rnd      *rng.Source
}

// New creates a Generator. rnd seeds the size jitter; pass nil for a
// time-seeded source.
func New(symbols []string, price PriceSource, publish func(orderbook.Snapshot), rnd *rng.Source) *Generator {
	if rnd == nil {
		rnd = rng.New(0)
	}
	return &Generator{Symbols: symbols, Price: price, Publish: publish, Interval: 5 * time.Second, rnd: rnd}
}

// Run drives the periodic generation loop until ctx is cancelled. It stops
// emitting the instant the session clock reports any open state; real
// quote streams take over from there.
func (g *Generator) Run(ctx context.Context) {
	interval := g.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.tick(now)
		}
	}
}

func (g *Generator) tick(now time.Time) {
	if sessionclock.Classify(now) != sessionclock.Closed {
		return
	}
	for _, sym := range g.Symbols {
		price := g.Price(sym)
		if price <= 0 {
			continue
		}
		snap := g.Build(sym, price)
		if g.Publish != nil {
			g.Publish(snap)
		} else {
			log.Printf("synthbook: no publisher configured, dropping snapshot for %s", sym)
		}
	}
}

// Build constructs a synthetic 20-level book centered on price, per
// spec §4.5's spread/step/size formulas.
func (g *Generator) Build(sym string, price float64) orderbook.Snapshot {
	spread := minSpread + g.rnd.Float64()*(maxSpread-minSpread)
	bestBid := price - spread/2
	bestAsk := price + spread/2

	bids := make([]orderbook.Level, levels)
	asks := make([]orderbook.Level, levels)
	var cumBid, cumAsk float64
	for i := 0; i < levels; i++ {
		size := float64(g.rnd.IntRange(minLevelQty, maxLevelQty)) * (1 + float64(i)/3)
		venue := venueIDs[i%len(venueIDs)]

		cumBid += size
		bids[i] = orderbook.Level{Price: bestBid - step*float64(i), Size: size, Cumulative: cumBid, Venues: []int{venue}}

		cumAsk += size
		asks[i] = orderbook.Level{Price: bestAsk + step*float64(i), Size: size, Cumulative: cumAsk, Venues: []int{venue}}
	}

	return orderbook.Snapshot{
		Symbol: sym, Bids: bids, Asks: asks,
		BestBid: bestBid, BestAsk: bestAsk, Spread: spread, Mid: price,
	}
}
