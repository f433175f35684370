// Package rng provides a small seedable pseudo-random source used wherever
// this module needs reproducible noise: synthetic order-book depth padding,
// REST-poller size jitter, and size/spread jitter for synthetic books.
package rng

import (
	"sync"
	"time"
)

// Source is a seedable PRNG using PCG-XSH-RR. It is safe for concurrent use.
type Source struct {
	mu    sync.Mutex
	state uint64
	inc   uint64
}

// New creates a PRNG with the given seed. If seed is 0, the current time is used.
func New(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := &Source{}
	r.inc = uint64(seed)<<1 | 1
	r.state = 0
	r.step()
	r.state += uint64(seed)
	r.step()
	return r
}

func (r *Source) step() {
	r.state = r.state*6364136223846793005 + r.inc
}

func (r *Source) uint32() uint32 {
	r.mu.Lock()
	old := r.state
	r.step()
	r.mu.Unlock()

	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

// Float64 returns a uniformly distributed float64 in [0, 1).
func (r *Source) Float64() float64 {
	return float64(r.uint32()) / (1 << 32)
}

// Intn returns a uniformly distributed int in [0, n). n<=0 always returns 0.
func (r *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.uint32() % uint32(n))
}

// IntRange returns a uniformly distributed int in [lo, hi].
func (r *Source) IntRange(lo, hi int) int {
	if lo >= hi {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}
