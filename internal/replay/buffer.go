// Package replay implements the per-symbol, second-indexed price buffer
// that backs the tick fan-out's "init" replay (spec §3, §4.6); set_timeframe
// history is fetched over REST and does not read it. It holds at most one price per second per
// symbol, trimmed from the oldest end once it grows past a high watermark.
package replay

import (
	"sort"
	"sync"
)

// Default high/low watermarks (spec §3): once a symbol's buffer exceeds
// WHi entries, the oldest entries are discarded down to WLo.
const (
	WHi = 50_000
	WLo = 40_000
)

// Point is one second-of-epoch/price observation.
type Point struct {
	TimeSec int64
	Value   float64
}

// Buffer is a bounded, per-symbol replay store. Zero value is not usable;
// construct with New.
type Buffer struct {
	mu      sync.RWMutex
	hi, lo  int
	streams map[string]map[int64]float64
}

// New creates a Buffer with the given watermarks. hi<=0 or lo<=0 (or
// lo>=hi) fall back to the spec defaults.
func New(hi, lo int) *Buffer {
	if hi <= 0 || lo <= 0 || lo >= hi {
		hi, lo = WHi, WLo
	}
	return &Buffer{
		hi:      hi,
		lo:      lo,
		streams: make(map[string]map[int64]float64),
	}
}

// Record overwrites the price for (symbol, sec) and trims the symbol's
// stream down to the low watermark if it has grown past the high one.
func (b *Buffer) Record(symbol string, sec int64, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stream, ok := b.streams[symbol]
	if !ok {
		stream = make(map[int64]float64)
		b.streams[symbol] = stream
	}
	stream[sec] = price

	if len(stream) > b.hi {
		b.trim(stream)
	}
}

// trim discards the oldest entries, retaining the newest b.lo. Caller
// must hold b.mu.
func (b *Buffer) trim(stream map[int64]float64) {
	secs := make([]int64, 0, len(stream))
	for s := range stream {
		secs = append(secs, s)
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] < secs[j] })

	drop := len(secs) - b.lo
	for i := 0; i < drop; i++ {
		delete(stream, secs[i])
	}
}

// Snapshot returns the symbol's points sorted ascending by time.
func (b *Buffer) Snapshot(symbol string) []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stream := b.streams[symbol]
	points := make([]Point, 0, len(stream))
	for sec, price := range stream {
		points = append(points, Point{TimeSec: sec, Value: price})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].TimeSec < points[j].TimeSec })
	return points
}

// Len reports the current number of entries retained for symbol.
func (b *Buffer) Len(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams[symbol])
}

// Replace overwrites a symbol's entire buffer, used by the historical
// bootstrap to seed bars before the live feed attaches.
func (b *Buffer) Replace(symbol string, points []Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stream := make(map[int64]float64, len(points))
	for _, p := range points {
		stream[p.TimeSec] = p.Value
	}
	b.streams[symbol] = stream
	if len(stream) > b.hi {
		b.trim(stream)
	}
}
