// Package bootstrap implements HistoricalBootstrap: a one-shot REST load
// of recent bars into the replay buffer for each configured symbol,
// performed once at startup before any live feed attaches (spec §4.4/§5).
package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/ndrandal/marketfeed/internal/providerclient"
	"github.com/ndrandal/marketfeed/internal/replay"
	"github.com/ndrandal/marketfeed/internal/symbol"
)

// defaultTimeframeSeconds matches the tick fan-out's default client
// timeframe (60s), so a freshly connecting client's first "init" frame is
// populated rather than empty.
const defaultTimeframeSeconds = 60

// defaultLookbackDays bounds how far back the one-shot load reaches.
const defaultLookbackDays = 5

// Fetcher is the subset of *providerclient.Client the bootstrap needs.
type Fetcher interface {
	Aggregates(ctx context.Context, ticker string, mult int, unit, from, to string) ([]providerclient.Bar, error)
}

// Load fetches up to defaultLookbackDays of minute bars for every symbol
// and seeds buf with one point per bar close, bounded overall by
// providerclient.BootstrapTimeout. A per-symbol failure is logged and
// skipped; it never aborts the remaining symbols.
func Load(ctx context.Context, fetcher Fetcher, buf *replay.Buffer, symbols []string) {
	ctx, cancel := context.WithTimeout(ctx, providerclient.BootstrapTimeout)
	defer cancel()

	now := time.Now()
	from := now.AddDate(0, 0, -defaultLookbackDays).Format("2006-01-02")
	to := now.Format("2006-01-02")

	for _, sym := range symbols {
		select {
		case <-ctx.Done():
			log.Printf("bootstrap: cancelled before loading %s: %v", sym, ctx.Err())
			return
		default:
		}

		c := symbol.Classify(sym)
		bars, err := fetcher.Aggregates(ctx, c.ProviderTicker, 1, "minute", from, to)
		if err != nil {
			log.Printf("bootstrap: %s: %v", sym, err)
			continue
		}

		points := make([]replay.Point, 0, len(bars))
		for _, b := range bars {
			points = append(points, replay.Point{TimeSec: b.TimestampMs / 1000, Value: b.Close})
		}
		buf.Replace(c.Ticker, points)
	}
}
