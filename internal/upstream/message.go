package upstream

import (
	"encoding/json"
	"fmt"

	"github.com/ndrandal/marketfeed/internal/model"
	"github.com/ndrandal/marketfeed/internal/symbol"
)

type authReply struct {
	Status string `json:"status"`
}

type eventEnvelope struct {
	Ev string `json:"ev"`
}

type rawTrade struct {
	Ev  string  `json:"ev"`
	Sym string  `json:"sym"`
	P   float64 `json:"p"`
	S   int64   `json:"s"`
	T   int64   `json:"t"`
	X   int     `json:"x"`
	C   []int   `json:"c"`
}

type rawQuote struct {
	Ev string  `json:"ev"`
	Sym string `json:"sym"`
	Bp float64 `json:"bp"`
	Bs float64 `json:"bs"`
	Ap float64 `json:"ap"`
	As float64 `json:"as"`
	Bx int     `json:"bx"`
	Ax int     `json:"ax"`
	T  int64   `json:"t"`
}

// parseFrame splits a received message into its individual event records.
func parseFrame(data []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	return records, nil
}

func eventKind(raw json.RawMessage) (string, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("parse event envelope: %w", err)
	}
	return env.Ev, nil
}

func decodeTrade(raw json.RawMessage) (model.Trade, error) {
	var rt rawTrade
	if err := json.Unmarshal(raw, &rt); err != nil {
		return model.Trade{}, fmt.Errorf("decode trade: %w", err)
	}
	return model.Trade{
		Symbol:      symbol.Normalize(rt.Sym),
		Price:       rt.P,
		Size:        rt.S,
		TimestampMs: rt.T,
		VenueID:     rt.X,
		Conditions:  rt.C,
	}, nil
}

func decodeQuote(raw json.RawMessage) (model.Quote, error) {
	var rq rawQuote
	if err := json.Unmarshal(raw, &rq); err != nil {
		return model.Quote{}, fmt.Errorf("decode quote: %w", err)
	}
	return model.Quote{
		Symbol:      symbol.Normalize(rq.Sym),
		BidPrice:    rq.Bp,
		BidSize:     rq.Bs,
		AskPrice:    rq.Ap,
		AskSize:     rq.As,
		BidVenue:    rq.Bx,
		AskVenue:    rq.Ax,
		TimestampMs: rq.T,
	}, nil
}

func isTradeEvent(ev string) bool { return ev == "T" || ev == "XT" }
func isQuoteEvent(ev string) bool { return ev == "Q" || ev == "XQ" }
