package orderbook

// Level is one price point in an assembled snapshot: either a real level
// backed by one or more venue quotes, or a synthetic level inserted for
// visual continuity (see Synthetic).
type Level struct {
	Price      float64
	Size       float64
	Cumulative float64
	Venues     []int
	Synthetic  bool
}

// Snapshot is the merged, display-ready view of one symbol's book.
type Snapshot struct {
	Symbol    string
	Bids      []Level // descending price
	Asks      []Level // ascending price
	BestBid   float64
	BestAsk   float64
	Spread    float64
	Mid       float64
	Updates   uint64
	VenuesBid int // unfiltered venue count, for telemetry
	VenuesAsk int
}

type venueEntry struct {
	Price        float64
	Size         float64
	LastUpdateMs int64
}
