package ohlc

import (
	"testing"

	"github.com/ndrandal/marketfeed/internal/model"
)

func trade(symbol string, price float64, size int64, ts int64) model.Trade {
	return model.Trade{Symbol: symbol, Price: price, Size: size, TimestampMs: ts}
}

func TestOHLCCloseScenario(t *testing.T) {
	a := NewAggregator(60)

	if _, closed := a.Observe(trade("AAPL", 150.00, 10, 60000)); closed {
		t.Fatal("first trade should not close a bar")
	}
	if _, closed := a.Observe(trade("AAPL", 151.00, 5, 65000)); closed {
		t.Fatal("second trade in same bucket should not close a bar")
	}
	if _, closed := a.Observe(trade("AAPL", 149.50, 7, 90000)); closed {
		t.Fatal("third trade in same bucket should not close a bar")
	}

	bar, closed := a.Observe(trade("AAPL", 150.25, 3, 120000))
	if !closed {
		t.Fatal("fourth trade should close bucket 60")
	}
	if bar.BucketStart != 60 || bar.Open != 150 || bar.High != 151 || bar.Low != 149.5 ||
		bar.Close != 149.5 || bar.Volume != 22 || bar.TradeCount != 3 {
		t.Fatalf("unexpected closed bar: %+v", bar)
	}

	inProgress, ok := a.InProgress("AAPL")
	if !ok || inProgress.BucketStart != 120 || inProgress.Open != 150.25 {
		t.Fatalf("expected in-progress bucket 120, got %+v (ok=%v)", inProgress, ok)
	}

	history := a.HistoryFor("AAPL")
	if len(history) != 1 {
		t.Fatalf("expected 1 closed bar in history, got %d", len(history))
	}
}

func TestOHLCInvariants(t *testing.T) {
	a := NewAggregator(60)
	trades := []model.Trade{
		trade("TSLA", 100, 1, 0),
		trade("TSLA", 105, 2, 1000),
		trade("TSLA", 95, 3, 2000),
		trade("TSLA", 101, 1, 61000),
	}
	var lastClosed Bar
	for _, tr := range trades {
		if b, closed := a.Observe(tr); closed {
			lastClosed = b
		}
	}
	if lastClosed.Low > lastClosed.Open || lastClosed.Open > lastClosed.High {
		t.Fatalf("low<=open<=high violated: %+v", lastClosed)
	}
	if lastClosed.Low > lastClosed.Close || lastClosed.Close > lastClosed.High {
		t.Fatalf("low<=close<=high violated: %+v", lastClosed)
	}
	if lastClosed.Volume != 6 {
		t.Fatalf("expected volume 6, got %d", lastClosed.Volume)
	}
	if lastClosed.TradeCount != 3 {
		t.Fatalf("expected trade count 3, got %d", lastClosed.TradeCount)
	}
}

func TestOHLCOutOfOrderDiscarded(t *testing.T) {
	a := NewAggregator(60)
	a.Observe(trade("MSFT", 100, 1, 0))
	a.Observe(trade("MSFT", 110, 1, 61000)) // closes bucket 0, opens bucket 1
	a.Observe(trade("MSFT", 999, 1, 30000)) // bucket 0 again: stale, must be discarded

	bar, ok := a.InProgress("MSFT")
	if !ok {
		t.Fatal("expected in-progress bar")
	}
	if bar.Open != 110 || bar.High != 110 {
		t.Fatalf("out-of-order trade mutated current bar: %+v", bar)
	}
}

func TestOHLCGapsProduceNoBar(t *testing.T) {
	a := NewAggregator(60)
	a.Observe(trade("NFLX", 100, 1, 0))
	// Jump far ahead: bucket 0 closes, a fresh bucket opens, no bar for
	// the empty buckets in between.
	bar, closed := a.Observe(trade("NFLX", 200, 1, 600000))
	if !closed || bar.BucketStart != 0 {
		t.Fatalf("expected bucket 0 to close, got closed=%v bar=%+v", closed, bar)
	}
	history := a.HistoryFor("NFLX")
	if len(history) != 1 {
		t.Fatalf("expected exactly 1 closed bar despite the gap, got %d", len(history))
	}
}

func TestIdempotentReobservationWithinBucket(t *testing.T) {
	a := NewAggregator(60)
	a.Observe(trade("GOOG", 100, 1, 0))
	a.Observe(trade("GOOG", 100, 1, 500))
	bar, _ := a.InProgress("GOOG")
	if bar.High != 100 || bar.Low != 100 {
		t.Fatalf("re-feeding unchanged price should not move high/low: %+v", bar)
	}
}
