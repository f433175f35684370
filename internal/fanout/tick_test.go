package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ndrandal/marketfeed/internal/providerclient"
	"github.com/ndrandal/marketfeed/internal/replay"
)

func TestTimeframeParams(t *testing.T) {
	cases := []struct {
		t        int
		mult     int
		wantUnit string
	}{
		{30, 30, "second"},
		{60, 1, "minute"},
		{300, 5, "minute"},
		{3600, 1, "hour"},
		{7200, 2, "hour"},
	}
	for _, c := range cases {
		mult, unit := timeframeParams(c.t)
		if mult != c.mult || unit != c.wantUnit {
			t.Errorf("timeframeParams(%d) = (%d,%s), want (%d,%s)", c.t, mult, unit, c.mult, c.wantUnit)
		}
	}
}

func TestHistoryWindowDaysBounds(t *testing.T) {
	if d := historyWindowDays(1); d < 3 {
		t.Fatalf("expected floor of 3 days, got %d", d)
	}
	if d := historyWindowDays(3600 * 24); d > 60 {
		t.Fatalf("expected cap of 60 days, got %d", d)
	}
}

func TestExpandBarOrderIsOHLC(t *testing.T) {
	b := providerclient.Bar{TimestampMs: 1000, Open: 1, High: 4, Low: 0.5, Close: 2}
	pts := expandBar(b)
	want := []float64{1, 4, 0.5, 2}
	if len(pts) != 4 {
		t.Fatalf("expected 4 points, got %d", len(pts))
	}
	for i, w := range want {
		if pts[i].Value != w || pts[i].Time != 1 {
			t.Errorf("point %d = %+v, want value %v at time 1", i, pts[i], w)
		}
	}
}

func newTestTickServer(symbols []string) *TickFanoutServer {
	return NewTickFanoutServer(symbols, replay.New(0, 0), nil)
}

func TestRegisterTickBroadcastsToSelectedClientsOnly(t *testing.T) {
	s := newTestTickServer([]string{"AAPL", "MSFT"})
	selected := &tickConn{client: newClient(&fakeConn{}), symbol: "AAPL"}
	other := &tickConn{client: newClient(&fakeConn{}), symbol: "MSFT"}
	s.conns[selected.id] = selected
	s.conns[other.id] = other

	// 05:00 ET on a weekday (pre-market, inside extended hours) so the equity
	// filter doesn't drop it
	ts := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC).UnixMilli()
	s.RegisterTick("AAPL", 150.0, ts)

	select {
	case data := <-selected.sendCh:
		var frame map[string]interface{}
		json.Unmarshal(data, &frame)
		if frame["symbol"] != "AAPL" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	default:
		t.Fatal("expected tick delivered to AAPL-selecting client")
	}

	select {
	case data := <-other.sendCh:
		t.Fatalf("MSFT-selecting client should not receive AAPL tick, got %s", data)
	default:
	}
}

func TestRegisterTickDropsEquityOutsideExtendedHours(t *testing.T) {
	s := newTestTickServer([]string{"AAPL"})
	tc := &tickConn{client: newClient(&fakeConn{}), symbol: "AAPL"}
	s.conns[tc.id] = tc

	// 2026-03-04 02:00 UTC is 21:00 ET on the previous day (22:00 under DST),
	// outside [4,20) ET either way.
	ts := time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC).UnixMilli()
	s.RegisterTick("AAPL", 150.0, ts)

	if s.buf.Len("AAPL") != 0 {
		t.Fatal("expected tick outside extended hours to be dropped from replay buffer")
	}
}

func TestRegisterTickRecordsIntoReplayBuffer(t *testing.T) {
	s := newTestTickServer([]string{"X:BTCUSD"})
	ts := time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC).UnixMilli()
	s.RegisterTick("BTCUSD", 50000, ts)
	if s.buf.Len("BTCUSD") != 1 {
		t.Fatal("expected crypto tick to be recorded regardless of hour")
	}
}
