// Package orderbook aggregates per-venue Level-2 quotes into a single
// merged depth snapshot per symbol, with staleness eviction and synthetic
// depth padding for visual continuity beyond the real quoted levels.
package orderbook

import (
	"sort"
	"sync"
	"time"

	"github.com/ndrandal/marketfeed/internal/model"
)

// Aggregator owns per-symbol, per-venue book state and produces merged
// snapshots on demand. Safe for concurrent use.
type Aggregator struct {
	mu sync.Mutex

	bids map[string]map[int]venueEntry // symbol -> venueID -> entry
	asks map[string]map[int]venueEntry
	updates map[string]uint64

	staleWindow time.Duration
	maxLevels   int
	rnd         Randomness
}

// NewAggregator creates an Aggregator. staleWindow is the max age of a
// per-venue quote before it's excluded from snapshots; maxLevels truncates
// both sides after synthetic padding (0 = unlimited).
func NewAggregator(staleWindow time.Duration, maxLevels int, rnd Randomness) *Aggregator {
	return &Aggregator{
		bids:        make(map[string]map[int]venueEntry),
		asks:        make(map[string]map[int]venueEntry),
		updates:     make(map[string]uint64),
		staleWindow: staleWindow,
		maxLevels:   maxLevels,
		rnd:         rnd,
	}
}

// ApplyQuote applies one venue's quote. Zero-price sides are ignored.
// Returns true if the quote changed stored state (a no-op duplicate quote
// returns false and produces no snapshot-worthy change).
func (a *Aggregator) ApplyQuote(q model.Quote, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := false

	if q.BidPrice > 0 {
		if a.bids[q.Symbol] == nil {
			a.bids[q.Symbol] = make(map[int]venueEntry)
		}
		prev, existed := a.bids[q.Symbol][q.BidVenue]
		next := venueEntry{Price: q.BidPrice, Size: q.BidSize, LastUpdateMs: q.TimestampMs}
		if !existed || prev.Price != next.Price || prev.Size != next.Size {
			changed = true
		}
		a.bids[q.Symbol][q.BidVenue] = next
	}

	if q.AskPrice > 0 {
		if a.asks[q.Symbol] == nil {
			a.asks[q.Symbol] = make(map[int]venueEntry)
		}
		prev, existed := a.asks[q.Symbol][q.AskVenue]
		next := venueEntry{Price: q.AskPrice, Size: q.AskSize, LastUpdateMs: q.TimestampMs}
		if !existed || prev.Price != next.Price || prev.Size != next.Size {
			changed = true
		}
		a.asks[q.Symbol][q.AskVenue] = next
	}

	if changed {
		a.updates[q.Symbol]++
	}
	return changed
}

// UpdateCount returns the monotonic per-symbol change counter.
func (a *Aggregator) UpdateCount(symbol string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updates[symbol]
}

type realLevel struct {
	price  float64
	size   float64
	venues []int
}

func partitionByPrice(entries map[int]venueEntry, now time.Time, staleWindow time.Duration) []realLevel {
	byPrice := make(map[float64]*realLevel)
	cutoff := now.Add(-staleWindow).UnixMilli()
	for venueID, e := range entries {
		if e.LastUpdateMs < cutoff {
			continue
		}
		lvl, ok := byPrice[e.Price]
		if !ok {
			lvl = &realLevel{price: e.Price}
			byPrice[e.Price] = lvl
		}
		lvl.size += e.Size
		lvl.venues = append(lvl.venues, venueID)
	}
	out := make([]realLevel, 0, len(byPrice))
	for _, lvl := range byPrice {
		out = append(out, *lvl)
	}
	return out
}

// SnapshotFor assembles the current merged snapshot for symbol. It is a
// pure function of stored state and now (plus the injected RNG for
// synthetic noise).
func (a *Aggregator) SnapshotFor(symbol string, now time.Time) Snapshot {
	a.mu.Lock()
	bidEntries := a.bids[symbol]
	askEntries := a.asks[symbol]
	updates := a.updates[symbol]
	venuesBid, venuesAsk := len(bidEntries), len(askEntries)
	realBids := partitionByPrice(bidEntries, now, a.staleWindow)
	realAsks := partitionByPrice(askEntries, now, a.staleWindow)
	a.mu.Unlock()

	sort.Slice(realBids, func(i, j int) bool { return realBids[i].price > realBids[j].price })
	sort.Slice(realAsks, func(i, j int) bool { return realAsks[i].price < realAsks[j].price })

	var bestBid, bestAsk float64
	if len(realBids) > 0 {
		bestBid = realBids[0].price
	}
	if len(realAsks) > 0 {
		bestAsk = realAsks[0].price
	}
	step := displayStep(bestBid, bestAsk)

	bidLevels := assembleSide(realBids, step, -1, a.rnd)
	askLevels := assembleSide(realAsks, step, 1, a.rnd)

	bidLevels = withCumulative(truncate(bidLevels, a.maxLevels))
	askLevels = withCumulative(truncate(askLevels, a.maxLevels))

	snap := Snapshot{
		Symbol:    symbol,
		Bids:      bidLevels,
		Asks:      askLevels,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		Updates:   updates,
		VenuesBid: venuesBid,
		VenuesAsk: venuesAsk,
	}
	if bestBid > 0 && bestAsk > 0 {
		snap.Spread = bestAsk - bestBid
		snap.Mid = (bestBid + bestAsk) / 2
	}
	return snap
}


// assembleSide converts real levels into the final Level slice: real
// levels, interpolated gaps, and extrapolated outer padding, in
// inside-to-outside order. direction is -1 for bids (descending), +1 for
// asks (ascending).
func assembleSide(real []realLevel, step float64, direction int, rnd Randomness) []Level {
	if len(real) == 0 {
		return nil
	}

	levels := make([]Level, 0, len(real)*2)
	for i, r := range real {
		levels = append(levels, Level{Price: r.price, Size: r.size, Venues: r.venues})
		if i+1 < len(real) {
			lo, hi := Level{Price: r.price, Size: r.size}, Level{Price: real[i+1].price, Size: real[i+1].size}
			ascending := direction > 0
			if !ascending {
				lo, hi = hi, lo
			}
			gapFill := interpolate(lo, hi, step, ascending)
			levels = append(levels, gapFill...)
		}
	}

	var prevOuter Level
	if len(real) >= 2 {
		prevOuter = Level{Price: real[len(real)-2].price, Size: real[len(real)-2].size}
	}
	outer := Level{Price: real[len(real)-1].price, Size: real[len(real)-1].size}
	levels = append(levels, extrapolate(outer, prevOuter, step, direction, rnd)...)

	return levels
}
