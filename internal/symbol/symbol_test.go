package symbol

import "testing"

func TestClassifyEquity(t *testing.T) {
	c := Classify("AAPL")
	if c.Kind != Equity {
		t.Fatalf("expected Equity, got %v", c.Kind)
	}
	if c.Ticker != "AAPL" || c.ProviderTicker != "AAPL" {
		t.Fatalf("unexpected ticker fields: %+v", c)
	}
	if c.Endpoint != wsStocks {
		t.Fatalf("expected stocks endpoint, got %s", c.Endpoint)
	}
}

func TestClassifyCryptoForms(t *testing.T) {
	for _, in := range []string{"BTCUSD", "btcusd", "BTC-USD", "X:BTCUSD", " X:BTC-USD "} {
		c := Classify(in)
		if c.Kind != Crypto {
			t.Fatalf("%q: expected Crypto, got %v", in, c.Kind)
		}
		if c.Ticker != "BTCUSD" {
			t.Fatalf("%q: expected normalized BTCUSD, got %s", in, c.Ticker)
		}
		if c.ProviderTicker != "X:BTCUSD" {
			t.Fatalf("%q: expected provider ticker X:BTCUSD, got %s", in, c.ProviderTicker)
		}
	}
}

func TestClassifyFX(t *testing.T) {
	c := Classify("EURUSD")
	if c.Kind != FX {
		t.Fatalf("expected FX, got %v", c.Kind)
	}
	if c.ProviderTicker != "C:EURUSD" {
		t.Fatalf("expected C:EURUSD, got %s", c.ProviderTicker)
	}
	if c.Endpoint != wsForex {
		t.Fatalf("expected forex endpoint, got %s", c.Endpoint)
	}
}

func TestClassifyFXMetals(t *testing.T) {
	c := Classify("XAUUSD")
	if c.Kind != FX {
		t.Fatalf("expected XAUUSD to classify as FX, got %v", c.Kind)
	}
}

func TestClassifyUnknownSixLetterFallsBackToEquity(t *testing.T) {
	// Not a known base/quote pair in either table, and not a crypto pair.
	c := Classify("ZZZYYY")
	if c.Kind != Equity {
		t.Fatalf("expected Equity fallback, got %v", c.Kind)
	}
}

func TestTradeAndQuoteChannels(t *testing.T) {
	cases := []struct {
		sym        string
		wantTrade  string
		wantQuote  string
	}{
		{"AAPL", "T.AAPL", "Q.AAPL"},
		{"BTCUSD", "XT.X:BTCUSD", "XQ.X:BTCUSD"},
		{"EURUSD", "CA.C:EURUSD", "CQ.C:EURUSD"},
	}
	for _, tc := range cases {
		c := Classify(tc.sym)
		if got := c.TradeChannel(); got != tc.wantTrade {
			t.Errorf("%s: trade channel = %s, want %s", tc.sym, got, tc.wantTrade)
		}
		if got := c.QuoteChannel(); got != tc.wantQuote {
			t.Errorf("%s: quote channel = %s, want %s", tc.sym, got, tc.wantQuote)
		}
	}
}

func TestDisplayLabel(t *testing.T) {
	if got := Classify("BTCUSD").DisplayLabel(); got != "BTC/USD" {
		t.Fatalf("expected BTC/USD, got %s", got)
	}
	if got := Classify("AAPL").DisplayLabel(); got != "AAPL" {
		t.Fatalf("expected AAPL, got %s", got)
	}
}

func TestPartition(t *testing.T) {
	stocks, cryptos := Partition([]string{"AAPL", "TSLA", "BTCUSD", "ETHUSD"})
	if len(stocks) != 2 || stocks[0] != "AAPL" || stocks[1] != "TSLA" {
		t.Fatalf("unexpected stocks: %v", stocks)
	}
	if len(cryptos) != 2 || cryptos[0] != "BTCUSD" || cryptos[1] != "ETHUSD" {
		t.Fatalf("unexpected cryptos: %v", cryptos)
	}
}

func TestNormalizeStripsPrefixAndHyphen(t *testing.T) {
	if got := Normalize("X:BTC-USD"); got != "BTCUSD" {
		t.Fatalf("expected BTCUSD, got %s", got)
	}
}
