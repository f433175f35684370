// Package ohlc aggregates a per-symbol trade stream into fixed-width
// open/high/low/close/volume bars, closing a bar only when a trade
// belonging to a later bucket arrives (no timer-driven close).
package ohlc

import (
	"sync"

	"github.com/ndrandal/marketfeed/internal/model"
)

// Bar is one closed or in-progress OHLC candle.
type Bar struct {
	Symbol      string
	BucketStart int64 // seconds, multiple of the aggregator's interval
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      int64
	TradeCount  int64
}

type barState struct {
	bar    Bar
	bucket int64
}

// Aggregator accumulates bars per symbol at a single configured interval.
// It is safe for concurrent use; the per-symbol mutation path is funneled
// through a mutex rather than per-symbol goroutines, matching the
// "preferred: single owner task, else per-symbol mutex" guidance for this
// kind of shared state.
type Aggregator struct {
	intervalSeconds int64

	mu      sync.Mutex
	active  map[string]*barState
	history map[string][]Bar
}

// NewAggregator creates an Aggregator bucketing trades into bars of the
// given width.
func NewAggregator(intervalSeconds int64) *Aggregator {
	if intervalSeconds <= 0 {
		intervalSeconds = 60
	}
	return &Aggregator{
		intervalSeconds: intervalSeconds,
		active:          make(map[string]*barState),
		history:         make(map[string][]Bar),
	}
}

func bucketOf(timestampMs, intervalSeconds int64) int64 {
	return (timestampMs / 1000) / intervalSeconds
}

// Observe feeds one trade into the aggregator. If it closes the
// in-progress bar for that symbol, the closed bar is returned.
func (a *Aggregator) Observe(t model.Trade) (Bar, bool) {
	bucket := bucketOf(t.TimestampMs, a.intervalSeconds)

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.active[t.Symbol]
	if !ok {
		a.active[t.Symbol] = &barState{
			bucket: bucket,
			bar: Bar{
				Symbol:      t.Symbol,
				BucketStart: bucket * a.intervalSeconds,
				Open:        t.Price,
				High:        t.Price,
				Low:         t.Price,
				Close:       t.Price,
				Volume:      t.Size,
				TradeCount:  1,
			},
		}
		return Bar{}, false
	}

	switch {
	case bucket < st.bucket:
		// Out-of-order trade for an already-closed window: discarded.
		return Bar{}, false

	case bucket == st.bucket:
		if t.Price > st.bar.High {
			st.bar.High = t.Price
		}
		if t.Price < st.bar.Low {
			st.bar.Low = t.Price
		}
		st.bar.Close = t.Price
		st.bar.Volume += t.Size
		st.bar.TradeCount++
		return Bar{}, false

	default:
		closed := st.bar
		a.history[t.Symbol] = append(a.history[t.Symbol], closed)
		a.active[t.Symbol] = &barState{
			bucket: bucket,
			bar: Bar{
				Symbol:      t.Symbol,
				BucketStart: bucket * a.intervalSeconds,
				Open:        t.Price,
				High:        t.Price,
				Low:         t.Price,
				Close:       t.Price,
				Volume:      t.Size,
				TradeCount:  1,
			},
		}
		return closed, true
	}
}

// HistoryFor returns the ordered sequence of closed bars for symbol.
func (a *Aggregator) HistoryFor(symbol string) []Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Bar, len(a.history[symbol]))
	copy(out, a.history[symbol])
	return out
}

// InProgress returns the current in-progress bar for symbol, if any.
func (a *Aggregator) InProgress(symbol string) (Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.active[symbol]
	if !ok {
		return Bar{}, false
	}
	return st.bar, true
}
