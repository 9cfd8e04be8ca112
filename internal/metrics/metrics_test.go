package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/internal/marketdata/syncer"
)

func TestMetrics_Observers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("BTCUSDT")
	m.ObserveRequest("BTCUSDT")
	m.ObserveRetry("BTCUSDT", 0, fmt.Errorf("fetch: %w", syncer.ErrRateLimited))
	m.ObserveRetry("BTCUSDT", 1, fmt.Errorf("connection reset"))
	m.ObserveReject("ETHUSDT", &syncer.ConsistencyError{Symbol: "ETHUSDT"})
	m.ObserveBlock("BTCUSDT", 0, 1_700_000_000_000)
	m.ObserveCommit("BTCUSDT", 1000, 9000, 2*time.Millisecond)
	m.ObserveRebuild("BTCUSDT", 200, 40*time.Millisecond)

	if v := testutil.ToFloat64(m.FetchRequests.WithLabelValues("BTCUSDT")); v != 2 {
		t.Errorf("expected 2 requests, got %v", v)
	}
	if v := testutil.ToFloat64(m.FetchRetries.WithLabelValues("BTCUSDT")); v != 2 {
		t.Errorf("expected 2 retries, got %v", v)
	}
	if v := testutil.ToFloat64(m.RateLimited); v != 1 {
		t.Errorf("expected 1 rate limit, got %v", v)
	}
	if v := testutil.ToFloat64(m.ConsistencyErrors.WithLabelValues("ETHUSDT")); v != 1 {
		t.Errorf("expected 1 consistency error, got %v", v)
	}
	if v := testutil.ToFloat64(m.LastBlockTime.WithLabelValues("BTCUSDT")); v != 1_700_000_000 {
		t.Errorf("unexpected last block time %v", v)
	}
	if n := testutil.CollectAndCount(m.SQLiteCommitDur); n != 1 {
		t.Errorf("expected commit histogram, got %d series", n)
	}
}

func TestMetrics_BlockEventsHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.BlockEventsHeld.Inc()
	m.BlockEventsHeld.Inc()

	if v := testutil.ToFloat64(m.BlockEventsHeld); v != 2 {
		t.Errorf("expected 2 held events, got %v", v)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range families {
		if strings.Contains(mf.GetName(), "dropped") {
			t.Errorf("unexpected metric %s", mf.GetName())
		}
		if mf.GetName() == "nohlcv_block_events_held_total" {
			found = true
		}
	}
	if !found {
		t.Error("held counter not registered")
	}
}

func TestMetrics_BreakerState(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetBreakerState(1)
	m.SetBreakerState(2)
	m.SetBreakerState(0)
	if v := testutil.ToFloat64(m.RedisCircuitBreakerTrips); v != 1 {
		t.Errorf("expected 1 trip, got %v", v)
	}
	if v := testutil.ToFloat64(m.RedisCircuitBreakerState); v != 0 {
		t.Errorf("expected closed state, got %v", v)
	}
}

func TestHealthStatus_Report(t *testing.T) {
	h := NewHealthStatus()
	if r, ok := h.Report(); ok || r.Status != "unhealthy" {
		t.Errorf("fresh status should be unhealthy, got %s", r.Status)
	}

	h.SetSQLiteOK(true)
	if r, ok := h.Report(); !ok || r.Status != "healthy" {
		t.Errorf("expected healthy, got %s", r.Status)
	}

	h.SetRedisEnabled(true)
	if r, ok := h.Report(); ok || r.Status != "degraded" {
		t.Errorf("redis down should degrade, got %s", r.Status)
	}

	h.SetRedisEnabled(false)
	h.SetSyncError(fmt.Errorf("gap"))
	if r, _ := h.Report(); r.Status != "degraded" || r.LastSyncError != "gap" {
		t.Errorf("sync error should degrade, got %+v", r)
	}
	h.SetSyncError(nil)

	h.SetLastBlock(1_700_000_000_000)
	h.SetLastBlock(1_600_000_000_000)
	if r, _ := h.Report(); r.LastBlockTime != time.UnixMilli(1_700_000_000_000).UTC().Format(time.RFC3339) {
		t.Errorf("last block moved backwards: %s", r.LastBlockTime)
	}
}

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveRequest("BTCUSDT")
	h := NewHealthStatus()
	h.SetSQLiteOK(true)

	srv := httptest.NewServer(NewServer(":0", h, reg, zerolog.Nop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `nohlcv_fetch_requests_total{symbol="BTCUSDT"} 1`) {
		t.Errorf("metric missing from scrape:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var report map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report["status"] != "healthy" {
		t.Errorf("unexpected report %v", report)
	}
}
