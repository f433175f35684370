package orderbook

import "testing"

func TestDisplayStepPicksReferenceAndSnapsUp(t *testing.T) {
	step := displayStep(100, 0)
	if step != 0.05 {
		t.Fatalf("expected step 0.05 for ref 100 (raw 0.04), got %v", step)
	}
}

func TestDisplayStepFallsBackTo100(t *testing.T) {
	step := displayStep(0, 0)
	if step != 0.05 {
		t.Fatalf("expected fallback ref 100 to also snap to 0.05, got %v", step)
	}
}

func TestSnapRoundsToNearestMultiple(t *testing.T) {
	if got := snap(100.0234, 0.01); got != 100.02 {
		t.Fatalf("expected 100.02, got %v", got)
	}
}

func TestInterpolateCapsPerGap(t *testing.T) {
	lo := Level{Price: 100, Size: 10}
	hi := Level{Price: 200, Size: 20}
	out := interpolate(lo, hi, 0.01, true)
	if len(out) != maxSyntheticPerGap {
		t.Fatalf("expected gap fill capped at %d, got %d", maxSyntheticPerGap, len(out))
	}
	for _, lvl := range out {
		if !lvl.Synthetic {
			t.Fatal("interpolated levels must be flagged synthetic")
		}
		if lvl.Size < 1 {
			t.Fatalf("synthetic size must be >=1, got %v", lvl.Size)
		}
	}
}

func TestInterpolateNoGapReturnsNil(t *testing.T) {
	lo := Level{Price: 100, Size: 10}
	hi := Level{Price: 100.01, Size: 10}
	out := interpolate(lo, hi, 0.01, true)
	if out != nil {
		t.Fatalf("adjacent levels one step apart should need no fill, got %d", len(out))
	}
}

func TestExtrapolateStopsAtZeroOnBidSide(t *testing.T) {
	out := extrapolate(Level{Price: 0.02, Size: 10}, Level{Price: 0.03, Size: 10}, 0.01, -1, fixedRNG{0.5})
	for _, lvl := range out {
		if lvl.Price <= 0 {
			t.Fatalf("bid-side extrapolation must stop at/above 0, got %v", lvl.Price)
		}
	}
}

func TestExtrapolateDecaysAndFlagsSynthetic(t *testing.T) {
	out := extrapolate(Level{Price: 100, Size: 100}, Level{Price: 99, Size: 100}, 1, 1, fixedRNG{0.5})
	if len(out) == 0 {
		t.Fatal("expected extrapolated levels")
	}
	for _, lvl := range out {
		if !lvl.Synthetic {
			t.Fatal("extrapolated levels must be flagged synthetic")
		}
		if lvl.Size < 1 {
			t.Fatalf("extrapolated size clamped to >=1, got %v", lvl.Size)
		}
	}
	// Sizes should trend downward (decay dominates noise over many steps).
	if out[len(out)-1].Size >= out[0].Size {
		t.Fatalf("expected overall decay from %v to %v", out[0].Size, out[len(out)-1].Size)
	}
}

func TestWithCumulativeMonotonic(t *testing.T) {
	levels := []Level{{Size: 3}, {Size: 5}, {Size: 2}}
	out := withCumulative(levels)
	if out[0].Cumulative != 3 || out[1].Cumulative != 8 || out[2].Cumulative != 10 {
		t.Fatalf("unexpected cumulative sequence: %+v", out)
	}
}

func TestTruncateRespectsMax(t *testing.T) {
	levels := make([]Level, 10)
	if got := truncate(levels, 5); len(got) != 5 {
		t.Fatalf("expected 5 levels, got %d", len(got))
	}
	if got := truncate(levels, 0); len(got) != 10 {
		t.Fatalf("0 means unlimited, expected 10, got %d", len(got))
	}
}
