// Package restpoller emulates the push feed with periodic REST calls for
// symbols whose streaming session is unavailable (spec §4.4): per symbol per
// cycle, it tries a last-trade lookup and falls back to the previous
// aggregate, emits a trade on price change, and synthesizes a shallow book
// snapshot around the observed price.
package restpoller

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/ndrandal/marketfeed/internal/model"
	"github.com/ndrandal/marketfeed/internal/orderbook"
	"github.com/ndrandal/marketfeed/internal/providerclient"
	"github.com/ndrandal/marketfeed/internal/rng"
	"github.com/ndrandal/marketfeed/internal/symbol"
)

const (
	levelsPerSide  = 15
	spreadFraction = 0.0001 // 0.01% of price
	minStep        = 0.01
	stepFraction   = 0.00005
	minSize        = 0.001
	maxSize        = 0.5
	depthStep      = 0.3
)

// Provider is the subset of *providerclient.Client the poller depends on.
type Provider interface {
	LastTrade(ctx context.Context, ticker string) (price float64, timestampMs int64, err error)
	PrevAggregate(ctx context.Context, ticker string) (providerclient.Bar, error)
}

// Poller periodically refreshes a fixed set of symbols via REST.
type Poller struct {
	provider Provider
	period   time.Duration
	rnd      *rng.Source

	TradeCh chan model.Trade
	BookCh  chan orderbook.Snapshot

	mu        sync.Mutex
	lastPrice map[string]float64
}

// New creates a Poller. period is the per-symbol polling cadence (default
// 5s if zero). rnd seeds the synthetic-book noise; pass nil for a
// time-seeded source.
func New(provider Provider, period time.Duration, rnd *rng.Source) *Poller {
	if period <= 0 {
		period = 5 * time.Second
	}
	if rnd == nil {
		rnd = rng.New(0)
	}
	return &Poller{
		provider:  provider,
		period:    period,
		rnd:       rnd,
		TradeCh:   make(chan model.Trade, 256),
		BookCh:    make(chan orderbook.Snapshot, 256),
		lastPrice: make(map[string]float64),
	}
}

// Run polls every configured symbol once per period until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, symbols []string) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range symbols {
				p.pollOnce(ctx, sym)
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, sym string) {
	c := symbol.Classify(sym)
	price, tsMs, ok := p.fetch(ctx, c.ProviderTicker)
	if !ok || price <= 0 {
		return
	}

	p.mu.Lock()
	prev, seen := p.lastPrice[c.Ticker]
	changed := !seen || prev != price
	p.lastPrice[c.Ticker] = price
	p.mu.Unlock()

	if changed {
		select {
		case p.TradeCh <- model.Trade{Symbol: c.Ticker, Price: price, TimestampMs: tsMs}:
		default:
			log.Printf("restpoller: trade channel full, dropping %s", c.Ticker)
		}
	}

	snap := p.synthesizeBook(c.Ticker, price)
	select {
	case p.BookCh <- snap:
	default:
		log.Printf("restpoller: book channel full, dropping %s", c.Ticker)
	}
}

func (p *Poller) fetch(ctx context.Context, ticker string) (price float64, timestampMs int64, ok bool) {
	price, timestampMs, err := p.provider.LastTrade(ctx, ticker)
	if err == nil && price > 0 {
		return price, timestampMs, true
	}
	b, err := p.provider.PrevAggregate(ctx, ticker)
	if err != nil || b.Close <= 0 {
		return 0, 0, false
	}
	return b.Close, b.TimestampMs, true
}

var _ Provider = (*providerclient.Client)(nil)

// synthesizeBook builds a shallow synthetic snapshot centered on price, per
// spec §4.4's fixed spread/step/size formulas.
func (p *Poller) synthesizeBook(sym string, price float64) orderbook.Snapshot {
	spread := price * spreadFraction
	step := math.Max(minStep, price*stepFraction)
	bestBid := price - spread/2
	bestAsk := price + spread/2

	bids := make([]orderbook.Level, 0, levelsPerSide)
	asks := make([]orderbook.Level, 0, levelsPerSide)
	var cumBid, cumAsk float64
	for i := 0; i < levelsPerSide; i++ {
		depthMult := 1 + depthStep*float64(i)
		size := (minSize + p.rnd.Float64()*(maxSize-minSize)) * depthMult

		bidPrice := bestBid - step*float64(i)
		if bidPrice > 0 {
			cumBid += size
			bids = append(bids, orderbook.Level{Price: bidPrice, Size: size, Cumulative: cumBid, Synthetic: true})
		}

		askPrice := bestAsk + step*float64(i)
		cumAsk += size
		asks = append(asks, orderbook.Level{Price: askPrice, Size: size, Cumulative: cumAsk, Synthetic: true})
	}

	return orderbook.Snapshot{
		Symbol:  sym,
		Bids:    bids,
		Asks:    asks,
		BestBid: bestBid,
		BestAsk: bestAsk,
		Spread:  spread,
		Mid:     price,
	}
}
