//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/sdlab1/n-ohlcv/config"
	"github.com/sdlab1/n-ohlcv/internal/api"
	"github.com/sdlab1/n-ohlcv/internal/marketdata/binance"
	"github.com/sdlab1/n-ohlcv/internal/marketdata/syncer"
	"github.com/sdlab1/n-ohlcv/internal/model"
	"github.com/sdlab1/n-ohlcv/internal/session"
	"github.com/sdlab1/n-ohlcv/internal/store/sqlite"
)

var ingestSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideHealth,
	ProvideCodec,
	ProvideStore,
	ProvidePriceScale,
	ProvideBinanceClient,
	ProvideRedisClient,
	ProvidePublisher,
	ProvideSyncEngine,
	wire.Bind(new(model.BlockWriter), new(*sqlite.Store)),
	wire.Bind(new(model.KlineSource), new(*binance.Client)),
)

// InitializeSyncApp builds the ingestion daemon.
func InitializeSyncApp(cfg *config.Config, service ServiceName) (*SyncApp, func(), error) {
	wire.Build(
		ingestSet,
		ProvideMetricsServer,
		wire.Struct(new(SyncApp), "*"),
	)
	return nil, nil, nil
}

// InitializeChartApp builds the chart server.
func InitializeChartApp(cfg *config.Config, service ServiceName) (*ChartApp, func(), error) {
	wire.Build(
		ingestSet,
		ProvideSession,
		ProvideHandler,
		ProvideHTTPServer,
		wire.Bind(new(model.BlockReader), new(*sqlite.Store)),
		wire.Bind(new(session.Syncer), new(*syncer.Engine)),
		wire.Bind(new(api.Chart), new(*session.Session)),
		wire.Struct(new(ChartApp), "*"),
	)
	return nil, nil, nil
}
