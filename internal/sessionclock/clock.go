// Package sessionclock classifies wall-clock time into equity trading
// sessions (spec §4.8) and drives the periodic broadcast that keeps tick
// clients informed of session transitions.
package sessionclock

import (
	"log"
	"os"
	"time"

	_ "time/tzdata" // embed the IANA database so America/New_York resolves without an OS copy
)

// Session is a position in the equity trading day.
type Session int

const (
	Closed Session = iota
	PreMarket
	Regular
	AfterHours
)

func (s Session) String() string {
	switch s {
	case PreMarket:
		return "PRE_MARKET"
	case Regular:
		return "REGULAR"
	case AfterHours:
		return "AFTER_HOURS"
	default:
		return "CLOSED"
	}
}

// zoneName is the venue calendar zone; loaded once at package init.
const zoneName = "America/New_York"

var location = mustLoadLocation(zoneName)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fatal at startup per spec §7 ("clock/timezone unavailable"), with
		// the configuration exit code rather than a bare panic.
		log.Printf("sessionclock: load location %s: %v", name, err)
		os.Exit(1)
	}
	return loc
}

// Classify returns the trading session active at instant t, evaluated in
// the America/New_York zone. It is a pure function of t.
func Classify(t time.Time) Session {
	local := t.In(location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return Closed
	}
	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes < 4*60:
		return Closed
	case minutes < 9*60+30:
		return PreMarket
	case minutes < 16*60:
		return Regular
	case minutes < 20*60:
		return AfterHours
	default:
		return Closed
	}
}

// ExtendedHours reports whether t falls within the extended-hours window
// used to filter equity ticks and bars (spec §6): weekday and local hour
// in [4, 20).
func ExtendedHours(t time.Time) bool {
	local := t.In(location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	h := local.Hour()
	return h >= 4 && h < 20
}

// Label returns a short human-readable label paired with the broadcast
// frame's "label" field.
func (s Session) Label() string {
	switch s {
	case PreMarket:
		return "Pre-Market"
	case Regular:
		return "Market Open"
	case AfterHours:
		return "After Hours"
	default:
		return "Closed"
	}
}

// Frame is the periodic session broadcast payload (spec §6, type "session").
type Frame struct {
	Type      string `json:"type"`
	Session   string `json:"session"`
	Label     string `json:"label"`
	TimeET    string `json:"time_et"`
	IsWeekend bool   `json:"is_weekend"`
	IsOpen    bool   `json:"is_open"`
}

// FrameAt builds the broadcast frame for instant t.
func FrameAt(t time.Time) Frame {
	local := t.In(location)
	sess := Classify(t)
	return Frame{
		Type:      "session",
		Session:   sess.String(),
		Label:     sess.Label(),
		TimeET:    local.Format("15:04:05"),
		IsWeekend: local.Weekday() == time.Saturday || local.Weekday() == time.Sunday,
		IsOpen:    sess == Regular,
	}
}
