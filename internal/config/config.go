// Package config loads the server's configuration from a key=value
// environment file (blank lines and "#" comments ignored, surrounding
// quotes stripped from values) plus process environment overrides.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the server needs to start.
type Config struct {
	// Spec-named keys (see spec.md §6).
	PolygonAPIKey string
	Symbols       []string
	ChartPort     int
	OrderBookPort int

	// Upstream session tuning.
	HeartbeatInterval time.Duration
	PongTimeout       time.Duration
	ReconnectMaxN     int

	// Order book aggregation.
	StaleWindow     time.Duration
	MaxBookLevels   int

	// Fan-out.
	BookThrottle time.Duration
	DefaultTimeframe time.Duration

	// REST.
	RESTTimeout         time.Duration
	HistoryReloadTimeout time.Duration
	BootstrapTimeout    time.Duration
	PollPeriod          time.Duration
	RESTFallbackSymbols []string

	// Replay buffer watermarks.
	ReplayHighWatermark int
	ReplayLowWatermark  int

	// Session clock.
	SessionBroadcastInterval time.Duration

	// Synthetic book.
	SynthBookInterval time.Duration

	// PRNG seed (0 = time-seeded).
	Seed int64
}

// Load reads the environment file named by -env (default ".env") and
// overlays any already-exported process environment variables, then
// parses every recognized option.
func Load() (*Config, error) {
	envFile := flag.String("env", envStr("FEED_ENV_FILE", ".env"), "path to the key=value environment file")
	flag.Parse()

	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", *envFile, err)
		}
	}

	c := &Config{
		PolygonAPIKey: os.Getenv("POLYGON_API_KEY"),
		ChartPort:     envInt("CHART_PORT", 8765),
		OrderBookPort: envInt("ORDERBOOK_PORT", 8766),

		HeartbeatInterval: time.Duration(envInt("HEARTBEAT_INTERVAL_SEC", 30)) * time.Second,
		PongTimeout:       time.Duration(envInt("PONG_TIMEOUT_SEC", 10)) * time.Second,
		ReconnectMaxN:     envInt("RECONNECT_MAX_N", 50),

		StaleWindow:   time.Duration(envInt("STALE_WINDOW_SEC", 30)) * time.Second,
		MaxBookLevels: envInt("MAX_BOOK_LEVELS", 0),

		BookThrottle:     time.Duration(envInt("BOOK_THROTTLE_MS", 100)) * time.Millisecond,
		DefaultTimeframe: time.Duration(envInt("DEFAULT_TIMEFRAME_SEC", 60)) * time.Second,

		RESTTimeout:          time.Duration(envInt("REST_TIMEOUT_SEC", 8)) * time.Second,
		HistoryReloadTimeout: time.Duration(envInt("HISTORY_RELOAD_TIMEOUT_SEC", 15)) * time.Second,
		BootstrapTimeout:     time.Duration(envInt("BOOTSTRAP_TIMEOUT_SEC", 30)) * time.Second,
		PollPeriod:           time.Duration(envInt("POLL_PERIOD_SEC", 5)) * time.Second,

		ReplayHighWatermark: envInt("REPLAY_HIGH_WATERMARK", 50000),
		ReplayLowWatermark:  envInt("REPLAY_LOW_WATERMARK", 40000),

		SessionBroadcastInterval: time.Duration(envInt("SESSION_BROADCAST_SEC", 30)) * time.Second,
		SynthBookInterval:        time.Duration(envInt("SYNTH_BOOK_INTERVAL_SEC", 5)) * time.Second,

		Seed: envInt64("FEED_SEED", 0),
	}

	if raw := os.Getenv("SIMBOLOS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				c.Symbols = append(c.Symbols, s)
			}
		}
	}
	if raw := os.Getenv("REST_FALLBACK_SYMBOLS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				c.RESTFallbackSymbols = append(c.RESTFallbackSymbols, s)
			}
		}
	}

	if c.PolygonAPIKey == "" {
		return nil, fmt.Errorf("POLYGON_API_KEY is required")
	}

	return c, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
