package di

import (
	"path/filepath"
	"testing"

	"github.com/sdlab1/n-ohlcv/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Store.Path = filepath.Join(t.TempDir(), "db", "ohlcv.db")
	cfg.Log.Level = "error"
	return cfg
}

func TestInitializeSyncApp(t *testing.T) {
	app, cleanup, err := InitializeSyncApp(testConfig(t), "syncd")
	if err != nil {
		t.Fatalf("InitializeSyncApp: %v", err)
	}
	defer cleanup()
	if app.Store == nil || app.Engine == nil || app.MetricsServer == nil {
		t.Errorf("incomplete graph: %+v", app)
	}
	if app.Redis != nil || app.Publisher != nil {
		t.Error("redis and publisher should be nil when disabled")
	}
}

func TestInitializeChartApp(t *testing.T) {
	app, cleanup, err := InitializeChartApp(testConfig(t), "chartd")
	if err != nil {
		t.Fatalf("InitializeChartApp: %v", err)
	}
	defer cleanup()
	if app.Session.Symbol() != "BTCUSDT" || app.Session.Timeframe() != 60 {
		t.Errorf("unexpected session %s/%d", app.Session.Symbol(), app.Session.Timeframe())
	}
	if app.Server == nil || app.Handler == nil {
		t.Error("missing http server")
	}
}

func TestInitialize_BadCodec(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Codec = "xz"
	if _, _, err := InitializeSyncApp(cfg, "syncd"); err == nil {
		t.Error("expected error for unknown codec")
	}
}
