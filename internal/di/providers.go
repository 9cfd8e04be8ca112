// Package di builds the daemons' object graphs with google/wire.
package di

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/config"
	"github.com/sdlab1/n-ohlcv/internal/api"
	"github.com/sdlab1/n-ohlcv/internal/logger"
	"github.com/sdlab1/n-ohlcv/internal/marketdata/binance"
	"github.com/sdlab1/n-ohlcv/internal/marketdata/syncer"
	"github.com/sdlab1/n-ohlcv/internal/metrics"
	"github.com/sdlab1/n-ohlcv/internal/model"
	"github.com/sdlab1/n-ohlcv/internal/session"
	"github.com/sdlab1/n-ohlcv/internal/store/codec"
	"github.com/sdlab1/n-ohlcv/internal/store/redis"
	"github.com/sdlab1/n-ohlcv/internal/store/sqlite"
)

// ServiceName labels the logs of a binary.
type ServiceName string

// SyncApp is the ingestion daemon's graph.
type SyncApp struct {
	Config        *config.Config
	Log           zerolog.Logger
	Store         *sqlite.Store
	Engine        *syncer.Engine
	Redis         *goredis.Client  // nil when disabled
	Publisher     *redis.Publisher // nil when disabled
	Health        *metrics.HealthStatus
	MetricsServer *metrics.Server
}

// ChartApp is the chart server's graph.
type ChartApp struct {
	Config  *config.Config
	Log     zerolog.Logger
	Store   *sqlite.Store
	Engine  *syncer.Engine
	Redis   *goredis.Client // nil when disabled
	Health  *metrics.HealthStatus
	Session *session.Session
	Handler *api.Handler
	Server  *api.Server
}

func ProvideLogger(cfg *config.Config, service ServiceName) zerolog.Logger {
	return logger.Init(string(service), cfg.Log.Level, cfg.Log.Format)
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.NewMetrics(reg)
}

func ProvideHealth(cfg *config.Config) *metrics.HealthStatus {
	h := metrics.NewHealthStatus()
	h.SetRedisEnabled(cfg.Redis.Enabled)
	h.SetSymbols(cfg.Market.Symbols)
	return h
}

func ProvideCodec(cfg *config.Config) (*codec.Codec, func(), error) {
	kind, err := codec.ParseKind(cfg.Store.Codec)
	if err != nil {
		return nil, nil, err
	}
	c, err := codec.New(kind, cfg.Store.Level)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

func ProvideStore(cfg *config.Config, c *codec.Codec, m *metrics.Metrics, log zerolog.Logger) (*sqlite.Store, func(), error) {
	s, err := sqlite.Open(sqlite.Config{
		Path:         cfg.Store.Path,
		ReadConns:    cfg.Store.ReadConns,
		BusyTimeout:  cfg.Store.BusyTimeout,
		CreateParent: true,
	}, c, log)
	if err != nil {
		return nil, nil, err
	}
	s.OnCommit = m.ObserveCommit
	cleanup := func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}
	return s, cleanup, nil
}

func ProvidePriceScale(cfg *config.Config) model.PriceScale {
	return model.NewPriceScale(cfg.Market.PriceDigits)
}

func ProvideBinanceClient(cfg *config.Config, scale model.PriceScale, log zerolog.Logger) *binance.Client {
	return binance.New(binance.Config{
		BaseURL: cfg.Market.BaseURL,
		Timeout: cfg.Market.Timeout,
		Scale:   scale,
	}, log)
}

// ProvideRedisClient connects when Redis is enabled and returns nil
// otherwise.
func ProvideRedisClient(cfg *config.Config, log zerolog.Logger) (*goredis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.Connect(context.Background(), redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { client.Close() }, nil
}

// ProvidePublisher returns nil without a Redis client.
func ProvidePublisher(client *goredis.Client, m *metrics.Metrics, log zerolog.Logger) *redis.Publisher {
	if client == nil {
		return nil
	}
	br := redis.NewBreaker(5, 10*time.Second)
	br.OnStateChange = func(_, to redis.State) { m.SetBreakerState(int(to)) }
	p := redis.NewPublisher(client, br, log)
	p.OnHold = m.BlockEventsHeld.Inc
	return p
}

func ProvideSyncEngine(
	cfg *config.Config,
	store model.BlockWriter,
	source model.KlineSource,
	pub *redis.Publisher,
	health *metrics.HealthStatus,
	m *metrics.Metrics,
	log zerolog.Logger,
) *syncer.Engine {
	e := syncer.New(syncer.Config{
		RequestPause: cfg.Sync.RequestPause,
		PollInterval: cfg.Sync.PollInterval,
		MaxRetries:   cfg.Sync.MaxRetries,
		BackoffBase:  cfg.Sync.BackoffBase,
		BackoffMax:   cfg.Sync.BackoffMax,
	}, store, source, log)

	e.OnRequest = m.ObserveRequest
	e.OnRetry = m.ObserveRetry
	e.OnReject = func(symbol string, err *syncer.ConsistencyError) {
		m.ObserveReject(symbol, err)
		health.SetSyncError(err)
	}
	e.OnBlock = func(symbol string, blockStart, lastTS int64) {
		m.ObserveBlock(symbol, blockStart, lastTS)
		health.SetLastBlock(lastTS)
		health.SetSyncError(nil)
		if pub != nil {
			pub.OnBlock(symbol, blockStart, lastTS)
		}
	}
	return e
}

func ProvideMetricsServer(cfg *config.Config, health *metrics.HealthStatus, reg *prometheus.Registry, log zerolog.Logger) *metrics.Server {
	return metrics.NewServer(cfg.Metrics.Addr, health, reg, log)
}

func ProvideSession(cfg *config.Config, store model.BlockReader, engine session.Syncer, scale model.PriceScale, m *metrics.Metrics, log zerolog.Logger) (*session.Session, error) {
	if err := session.ValidateTimeframe(cfg.Chart.Timeframe); err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	s := session.New(session.Config{
		Symbol:     cfg.Chart.Symbol,
		Timeframe:  cfg.Chart.Timeframe,
		RSIPeriod:  cfg.Chart.RSIPeriod,
		WindowSize: cfg.Chart.WindowSize,
		Scale:      scale,
	}, store, engine, log)
	s.OnRebuild = m.ObserveRebuild
	return s, nil
}

func ProvideHandler(cfg *config.Config, chart api.Chart, m *metrics.Metrics, log zerolog.Logger) *api.Handler {
	return api.NewHandler(chart, cfg.Chart.Lookback, m, log)
}

func ProvideHTTPServer(cfg *config.Config, h *api.Handler, reg *prometheus.Registry, log zerolog.Logger) *api.Server {
	return api.NewServer(cfg.HTTP.Addr, h, reg, log)
}
