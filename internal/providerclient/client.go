// Package providerclient wraps the upstream market-data REST API: bar
// aggregates, last-trade, and previous-aggregate lookups (spec §6). It is a
// thin resty client with per-call timeouts and retry on 5xx/transport errors,
// shared by the historical bootstrap and the REST poller.
package providerclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Default, history-reload, and full-bootstrap timeouts (spec §5).
const (
	DefaultTimeout   = 8 * time.Second
	HistoryTimeout   = 15 * time.Second
	BootstrapTimeout = 30 * time.Second
)

// Client is the REST client for the upstream market-data provider.
type Client struct {
	http *resty.Client
}

// New creates a Client against baseURL, authenticating every request with
// apiKey as the "apiKey" query parameter.
func New(baseURL, apiKey string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetQueryParam("apiKey", apiKey)
	return &Client{http: http}
}

// Bar is a single OHLCV aggregate as returned by the provider.
type Bar struct {
	TimestampMs int64   `json:"t"`
	Open        float64 `json:"o"`
	High        float64 `json:"h"`
	Low         float64 `json:"l"`
	Close       float64 `json:"c"`
	Volume      float64 `json:"v"`
}

type aggregatesResponse struct {
	Results []Bar `json:"results"`
}

type lastTradeResponse struct {
	Results struct {
		Price       float64 `json:"p"`
		TimestampNs int64   `json:"t"`
	} `json:"results"`
}

// Aggregates fetches up to 5,000 bars for ticker between from and to
// (calendar days, inclusive) at the given multiplier/unit.
func (c *Client) Aggregates(ctx context.Context, ticker string, mult int, unit, from, to string) ([]Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, HistoryTimeout)
	defer cancel()

	var body aggregatesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"ticker": ticker,
			"mult":   fmt.Sprintf("%d", mult),
			"unit":   unit,
			"from":   from,
			"to":     to,
		}).
		SetQueryParam("adjusted", "true").
		SetQueryParam("sort", "asc").
		SetQueryParam("limit", "5000").
		SetResult(&body).
		Get("/v2/aggs/ticker/{ticker}/range/{mult}/{unit}/{from}/{to}")
	if err != nil {
		return nil, fmt.Errorf("aggregates %s: %w", ticker, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("aggregates %s: status %d", ticker, resp.StatusCode())
	}
	return body.Results, nil
}

// LastTrade fetches the most recent trade price for ticker. The returned
// timestamp is normalized to milliseconds regardless of the provider's
// native precision (ns/µs/ms).
func (c *Client) LastTrade(ctx context.Context, ticker string) (price float64, timestampMs int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var body lastTradeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("ticker", ticker).
		SetResult(&body).
		Get("/v2/last/trade/{ticker}")
	if err != nil {
		return 0, 0, fmt.Errorf("last trade %s: %w", ticker, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, 0, fmt.Errorf("last trade %s: status %d", ticker, resp.StatusCode())
	}
	return body.Results.Price, normalizeToMillis(body.Results.TimestampNs), nil
}

// PrevAggregate fetches the previous day's aggregate bar for ticker, used as
// a fallback when LastTrade is unavailable.
func (c *Client) PrevAggregate(ctx context.Context, ticker string) (Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var body aggregatesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("ticker", ticker).
		SetQueryParam("adjusted", "true").
		SetResult(&body).
		Get("/v2/aggs/ticker/{ticker}/prev")
	if err != nil {
		return Bar{}, fmt.Errorf("prev aggregate %s: %w", ticker, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Bar{}, fmt.Errorf("prev aggregate %s: status %d", ticker, resp.StatusCode())
	}
	if len(body.Results) == 0 {
		return Bar{}, fmt.Errorf("prev aggregate %s: empty result", ticker)
	}
	return body.Results[0], nil
}

// normalizeToMillis converts a timestamp of unknown precision (seconds,
// milliseconds, microseconds, or nanoseconds) to milliseconds by magnitude.
func normalizeToMillis(ts int64) int64 {
	switch {
	case ts > 1e17: // nanoseconds
		return ts / 1_000_000
	case ts > 1e14: // microseconds
		return ts / 1_000
	case ts > 1e11: // already milliseconds
		return ts
	default: // seconds
		return ts * 1000
	}
}
