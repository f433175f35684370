package orderbook

import "math"

// Randomness is the injectable noise source for synthetic depth padding.
// Satisfied by *rng.Source; kept as a narrow interface here so tests can
// supply a fixed sequence.
type Randomness interface {
	Float64() float64 // uniform in [0, 1)
}

// niceLadder is the fixed set of "round" price steps a display step snaps
// up to, so synthetic levels line up the way a human trader would expect.
var niceLadder = []float64{
	0.001, 0.002, 0.005,
	0.01, 0.02, 0.05,
	0.10, 0.20, 0.50,
	1, 2, 5, 10, 20, 50,
}

// displayStep picks the reference price (best real bid, else best real
// ask, else 100) and snaps 0.04% of it up to the next ladder rung.
func displayStep(bestBid, bestAsk float64) float64 {
	ref := bestBid
	if ref <= 0 {
		ref = bestAsk
	}
	if ref <= 0 {
		ref = 100
	}
	raw := ref * 0.0004
	for _, step := range niceLadder {
		if step >= raw {
			return step
		}
	}
	return niceLadder[len(niceLadder)-1]
}

// snap rounds p to the nearest multiple of step, to 6 decimal places.
func snap(p, step float64) float64 {
	if step <= 0 {
		return p
	}
	rounded := math.Round(p/step) * step
	return math.Round(rounded*1e6) / 1e6
}

const maxSyntheticPerGap = 60
const maxSyntheticExtrapolation = 60

// interpolate fills the gap between two adjacent real levels on one side
// with up to maxSyntheticPerGap synthetic levels spaced by step. shape
// peaks at the midpoint of the gap and tapers toward either end.
func interpolate(lo, hi Level, step float64, ascending bool) []Level {
	if step <= 0 {
		return nil
	}
	gap := math.Abs(hi.Price - lo.Price)
	n := int(gap/step) - 1
	if n <= 0 {
		return nil
	}
	if n > maxSyntheticPerGap {
		n = maxSyntheticPerGap
	}

	out := make([]Level, 0, n)
	for i := 1; i <= n; i++ {
		frac := float64(i) / float64(n+1)
		price := lo.Price + (hi.Price-lo.Price)*frac
		if !ascending {
			price = hi.Price + (lo.Price-hi.Price)*frac
		}
		// Triangular shape: peaks at frac=0.5 with value 1.0, tapers to
		// 0.3 at either edge.
		dist := math.Abs(frac - 0.5) * 2 // 0 at center, 1 at edges
		shape := 1.0 - dist*0.7
		size := math.Max(1, math.Floor(((lo.Size+hi.Size)/2)*shape*0.4))
		out = append(out, Level{Price: snap(price, step), Size: size, Synthetic: true})
	}
	return out
}

// extrapolate appends up to maxSyntheticExtrapolation synthetic levels
// beyond the outermost real level, decaying size exponentially with
// multiplicative noise from rnd. direction is +1 to step prices upward
// (ask side) or -1 downward (bid side, stopping at/below 0).
func extrapolate(outer Level, prevOuter Level, step float64, direction int, rnd Randomness) []Level {
	if step <= 0 {
		return nil
	}
	size := outer.Size
	if prevOuter.Size > 0 {
		size = (outer.Size + prevOuter.Size) / 2
	}
	price := outer.Price

	out := make([]Level, 0, maxSyntheticExtrapolation)
	for i := 0; i < maxSyntheticExtrapolation; i++ {
		price += step * float64(direction)
		if direction < 0 && price <= 0 {
			break
		}
		size *= 0.85
		noise := 1 + (rnd.Float64()*0.4 - 0.2) // uniform in [0.8, 1.2]
		size = math.Max(1, size*noise)
		out = append(out, Level{Price: snap(price, step), Size: math.Floor(size), Synthetic: true})
	}
	return out
}

// withCumulative walks levels outward from the inside (index 0, nearest
// the touch) and fills in each level's cumulative size.
func withCumulative(levels []Level) []Level {
	var running float64
	for i := range levels {
		running += levels[i].Size
		levels[i].Cumulative = running
	}
	return levels
}

func truncate(levels []Level, max int) []Level {
	if max <= 0 || len(levels) <= max {
		return levels
	}
	return levels[:max]
}
