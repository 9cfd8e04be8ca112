package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool      `json:"sqlite_ok"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	Symbols        []string  `json:"symbols"`
	LastBlockTime  time.Time `json:"last_block_time"`
	LastSyncError  string    `json:"last_sync_error"`

	// Liveness check results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// SetLastBlock records the newest persisted candle open time (ms).
func (h *HealthStatus) SetLastBlock(lastTS int64) {
	t := time.UnixMilli(lastTS).UTC()
	h.mu.Lock()
	if t.After(h.LastBlockTime) {
		h.LastBlockTime = t
	}
	h.mu.Unlock()
}

// SetSyncError records the latest sync failure; nil clears it.
func (h *HealthStatus) SetSyncError(err error) {
	h.mu.Lock()
	if err == nil {
		h.LastSyncError = ""
	} else {
		h.LastSyncError = err.Error()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs the dependency checks once and then every
// interval until ctx is done. rdb may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(checkCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(checkCtx, sqlDB)
		}
	}
	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// HealthReport is the /healthz body.
type HealthReport struct {
	Status          string   `json:"status"`
	Uptime          string   `json:"uptime"`
	SQLiteOK        bool     `json:"sqlite_ok"`
	SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
	RedisEnabled    bool     `json:"redis_enabled"`
	RedisConnected  bool     `json:"redis_connected"`
	RedisLatencyMs  float64  `json:"redis_latency_ms"`
	Symbols         []string `json:"symbols"`
	LastBlockTime   string   `json:"last_block_time"`
	BlockAge        string   `json:"block_age"`
	LastSyncError   string   `json:"last_sync_error,omitempty"`
	LastCheckAt     string   `json:"last_check_at"`
}

// Report returns the current health and whether it is fully healthy.
func (h *HealthStatus) Report() (HealthReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	ok := true
	if !h.SQLiteOK || (h.RedisEnabled && !h.RedisConnected) || h.LastSyncError != "" {
		status, ok = "degraded", false
	}
	if !h.SQLiteOK && (!h.RedisEnabled || !h.RedisConnected) {
		status = "unhealthy"
	}

	blockAge := ""
	lastBlock := ""
	if !h.LastBlockTime.IsZero() {
		lastBlock = h.LastBlockTime.Format(time.RFC3339)
		blockAge = time.Since(h.LastBlockTime).Round(time.Second).String()
	}

	return HealthReport{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		Symbols:         h.Symbols,
		LastBlockTime:   lastBlock,
		BlockAge:        blockAge,
		LastSyncError:   h.LastSyncError,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}, ok
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, ok := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}
