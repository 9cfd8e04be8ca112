package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Store.Path != "data/ohlcv.db" || c.Store.Codec != "zstd" {
		t.Errorf("unexpected store defaults %+v", c.Store)
	}
	if len(c.Market.Symbols) != 1 || c.Market.Symbols[0] != "BTCUSDT" {
		t.Errorf("unexpected symbols %v", c.Market.Symbols)
	}
	if c.Sync.PollInterval != 5*time.Minute || c.Sync.MaxRetries != 3 {
		t.Errorf("unexpected sync defaults %+v", c.Sync)
	}
	if c.Chart.Lookback != 15*24*time.Hour || c.Chart.WindowSize != 200 {
		t.Errorf("unexpected chart defaults %+v", c.Chart)
	}
	if c.Redis.Enabled {
		t.Error("redis should be disabled by default")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
store:
  codec: lz4
market:
  symbols: [ETHUSDT, SOLUSDT]
sync:
  poll_interval: 30s
chart:
  timeframe: 15
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Log.Level != "debug" || c.Store.Codec != "lz4" {
		t.Errorf("file values not applied: %+v %+v", c.Log, c.Store)
	}
	if len(c.Market.Symbols) != 2 || c.Market.Symbols[1] != "SOLUSDT" {
		t.Errorf("unexpected symbols %v", c.Market.Symbols)
	}
	if c.Sync.PollInterval != 30*time.Second || c.Chart.Timeframe != 15 {
		t.Errorf("unexpected values %v %d", c.Sync.PollInterval, c.Chart.Timeframe)
	}
	// untouched keys keep their defaults
	if c.Store.Path != "data/ohlcv.db" || c.Sync.MaxRetries != 3 {
		t.Errorf("defaults lost: %+v", c)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "chart:\n  timeframe: 15\n")
	t.Setenv("NOHLCV_CHART_TIMEFRAME", "240")
	t.Setenv("NOHLCV_MARKET_SYMBOLS", "btcusdt, ethusdt")
	t.Setenv("NOHLCV_REDIS_ENABLED", "true")
	t.Setenv("NOHLCV_SYNC_LOOKBACK", "48h")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Chart.Timeframe != 240 {
		t.Errorf("expected timeframe 240, got %d", c.Chart.Timeframe)
	}
	if len(c.Market.Symbols) != 2 || c.Market.Symbols[0] != "BTCUSDT" || c.Market.Symbols[1] != "ETHUSDT" {
		t.Errorf("unexpected symbols %v", c.Market.Symbols)
	}
	if !c.Redis.Enabled || c.Sync.Lookback != 48*time.Hour {
		t.Errorf("env not applied: %+v %+v", c.Redis, c.Sync)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  [2]string
	}{
		{name: "timeframe too large", body: "chart:\n  timeframe: 2000\n"},
		{name: "unknown codec", body: "store:\n  codec: xz\n"},
		{name: "bad log level", body: "log:\n  level: loud\n"},
		{name: "empty symbols", body: "market:\n  symbols: []\n"},
		{name: "bad yaml", body: "chart: [\n"},
		{name: "bad env int", env: [2]string{"NOHLCV_CHART_TIMEFRAME", "hourly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env[0] != "" {
				t.Setenv(tt.env[0], tt.env[1])
			}
			if _, err := Load(writeFile(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
