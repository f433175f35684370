// Package model holds the wire-independent data types shared across the
// upstream session, aggregator, and fan-out layers.
package model

// Trade is a single normalized trade print.
type Trade struct {
	Symbol       string
	Price        float64
	Size         int64
	TimestampMs  int64
	VenueID      int
	Conditions   []int
}

// Quote is a normalized bid/ask update from one venue. Either side may be
// absent, signalled by a zero price.
type Quote struct {
	Symbol      string
	BidPrice    float64
	BidSize     float64
	AskPrice    float64
	AskSize     float64
	BidVenue    int
	AskVenue    int
	TimestampMs int64
}
