// Command feedserver is the Supervisor: it wires every component — upstream
// sessions, REST poller, historical bootstrap, aggregators, synthetic book,
// session clock, and the two local fan-out servers — and drives their
// shared lifecycle (spec §5, §6).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ndrandal/marketfeed/internal/bootstrap"
	"github.com/ndrandal/marketfeed/internal/config"
	"github.com/ndrandal/marketfeed/internal/fanout"
	"github.com/ndrandal/marketfeed/internal/ohlc"
	"github.com/ndrandal/marketfeed/internal/orderbook"
	"github.com/ndrandal/marketfeed/internal/providerclient"
	"github.com/ndrandal/marketfeed/internal/replay"
	"github.com/ndrandal/marketfeed/internal/restpoller"
	"github.com/ndrandal/marketfeed/internal/rng"
	"github.com/ndrandal/marketfeed/internal/sessionclock"
	"github.com/ndrandal/marketfeed/internal/symbol"
	"github.com/ndrandal/marketfeed/internal/synthbook"
	"github.com/ndrandal/marketfeed/internal/upstream"
)

// Exit codes (spec §6).
const (
	exitClean            = 0
	exitConfigMissing    = 1
	exitAuthFatal        = 2
	exitReconnectExceeded = 3
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(exitConfigMissing)
	}
	if len(cfg.Symbols) == 0 {
		log.Println("no symbols configured (SIMBOLOS); nothing to stream")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	stocks, cryptos := symbol.Partition(cfg.Symbols)
	log.Printf("classified %d equity, %d crypto symbols", len(stocks), len(cryptos))

	provider := providerclient.New("https://api.polygon.io", cfg.PolygonAPIKey)
	buf := replay.New(cfg.ReplayHighWatermark, cfg.ReplayLowWatermark)
	ohlcAgg := ohlc.NewAggregator(60)
	bookAgg := orderbook.NewAggregator(cfg.StaleWindow, cfg.MaxBookLevels, rng.New(cfg.Seed))

	log.Println("running historical bootstrap")
	bootstrap.Load(ctx, provider, buf, cfg.Symbols)

	tickServer := fanout.NewTickFanoutServer(cfg.Symbols, buf, provider)
	bookServer := fanout.NewBookFanoutServer(cfg.Symbols, cfg.BookThrottle)

	var wg sync.WaitGroup
	fatal := make(chan int, 1)
	lastPrice := newPriceTracker()

	for _, sym := range stocks {
		startTradeSession(ctx, &wg, cfg, sym, symbol.Classify(sym).Endpoint, ohlcAgg, tickServer, lastPrice, fatal)
		startQuoteSession(ctx, &wg, cfg, sym, symbol.Classify(sym).Endpoint, bookAgg, bookServer, fatal)
	}
	for _, sym := range cryptos {
		c := symbol.Classify(sym)
		startTradeSession(ctx, &wg, cfg, sym, c.Endpoint, ohlcAgg, tickServer, lastPrice, fatal)
		startQuoteSession(ctx, &wg, cfg, sym, c.Endpoint, bookAgg, bookServer, fatal)
	}

	if len(cfg.RESTFallbackSymbols) > 0 {
		poller := restpoller.New(provider, cfg.PollPeriod, rng.New(cfg.Seed))
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx, cfg.RESTFallbackSymbols)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-poller.TradeCh:
					_, _ = ohlcAgg.Observe(t)
					lastPrice.Set(t.Symbol, t.Price)
					tickServer.RegisterTick(t.Symbol, t.Price, t.TimestampMs)
				case snap := <-poller.BookCh:
					bookServer.PublishSnapshot(snap, time.Now())
				}
			}
		}()
	}

	generator := synthbook.New(stocks, lastPrice.Get, func(snap orderbook.Snapshot) {
		bookServer.PublishSnapshot(snap, time.Now())
	}, rng.New(cfg.Seed))
	wg.Add(1)
	go func() {
		defer wg.Done()
		generator.Interval = cfg.SynthBookInterval
		generator.Run(ctx)
	}()

	watcher := &sessionclock.Watcher{Broadcast: tickServer.BroadcastSession}
	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(ctx)
	}()

	chartAddr := addr(cfg.ChartPort)
	bookAddr := addr(cfg.OrderBookPort)

	chartSrv := &http.Server{Addr: chartAddr, Handler: tickServer}
	bookSrv := &http.Server{Addr: bookAddr, Handler: bookServer}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		chartSrv.Shutdown(shutdownCtx)
		bookSrv.Shutdown(shutdownCtx)
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		log.Printf("tick fan-out listening on ws://%s", chartAddr)
		if err := chartSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("tick fan-out server error: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		log.Printf("book fan-out listening on ws://%s", bookAddr)
		if err := bookSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("book fan-out server error: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
	case code := <-fatal:
		log.Printf("fatal session error, exiting with code %d", code)
		cancel()
		wg.Wait()
		os.Exit(code)
	}
	wg.Wait()
	os.Exit(exitClean)
}

func addr(port int) string {
	return "0.0.0.0:" + strconv.Itoa(port)
}

func startTradeSession(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, sym, endpoint string, agg *ohlc.Aggregator, tickServer *fanout.TickFanoutServer, lastPrice *priceTracker, fatal chan<- int) {
	s := upstream.NewTradeSession(upstream.Config{
		Endpoint:          endpoint,
		APIKey:            cfg.PolygonAPIKey,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PongTimeout:       cfg.PongTimeout,
		MaxReconnect:      cfg.ReconnectMaxN,
	})
	s.Subscribe(sym)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-s.TradeCh:
				_, _ = agg.Observe(t)
				lastPrice.Set(t.Symbol, t.Price)
				tickServer.RegisterTick(t.Symbol, t.Price, t.TimestampMs)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSessionUntilFatal(ctx, s, fatal)
	}()
}

func startQuoteSession(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, sym, endpoint string, agg *orderbook.Aggregator, bookServer *fanout.BookFanoutServer, fatal chan<- int) {
	s := upstream.NewQuoteSession(upstream.Config{
		Endpoint:          endpoint,
		APIKey:            cfg.PolygonAPIKey,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PongTimeout:       cfg.PongTimeout,
		MaxReconnect:      cfg.ReconnectMaxN,
	})
	s.Subscribe(sym)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case q := <-s.QuoteCh:
				now := time.Now()
				if agg.ApplyQuote(q, now) {
					bookServer.PublishSnapshot(agg.SnapshotFor(q.Symbol, now), now)
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSessionUntilFatal(ctx, s, fatal)
	}()
}

func runSessionUntilFatal(ctx context.Context, s *upstream.Session, fatal chan<- int) {
	err := s.Run(ctx)
	if err == nil || err == context.Canceled {
		return
	}
	switch err {
	case upstream.ErrAuthFailed:
		select {
		case fatal <- exitAuthFatal:
		default:
		}
	case upstream.ErrReconnectCapExceeded:
		log.Printf("session exhausted reconnect attempts (state %s); shutting down", s.State())
		select {
		case fatal <- exitReconnectExceeded:
		default:
		}
	default:
		log.Printf("session ended: %v", err)
	}
}

// priceTracker holds the last observed trade price per symbol, feeding
// SyntheticEquityBook's PriceSource.
type priceTracker struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func newPriceTracker() *priceTracker {
	return &priceTracker{prices: make(map[string]float64)}
}

func (p *priceTracker) Set(symbol string, price float64) {
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

func (p *priceTracker) Get(symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prices[symbol]
}
