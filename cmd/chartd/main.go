// cmd/chartd serves the chart session of one symbol over HTTP. The window is
// rebuilt at startup, on request, and whenever a new block is persisted:
// either by an in-process ingest loop (--ingest) or by syncd, announced
// over Redis.
//
// Usage:
//
//	go run ./cmd/chartd --config=config.yaml --ingest
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdlab1/n-ohlcv/config"
	"github.com/sdlab1/n-ohlcv/internal/di"
	"github.com/sdlab1/n-ohlcv/internal/store/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to YAML config (defaults + NOHLCV_* env when empty)")
	ingest := flag.Bool("ingest", false, "Run continuous sync for the chart symbol in this process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[chartd] %v\n", err)
		return 1
	}

	app, cleanup, err := di.InitializeChartApp(cfg, "chartd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "[chartd] init failed: %v\n", err)
		return 1
	}
	defer cleanup()
	log := app.Log
	symbol := cfg.Chart.Symbol

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app.Health.SetSQLiteOK(true)
	app.Health.StartLivenessChecker(ctx, app.Redis, app.Store.DB(), 10*time.Second)

	// One pending refresh is enough: a rebuild always covers the newest
	// persisted block.
	refreshCh := make(chan struct{}, 1)
	requestRefresh := func() {
		select {
		case refreshCh <- struct{}{}:
		default:
		}
	}

	if *ingest {
		onBlock := app.Engine.OnBlock
		app.Engine.OnBlock = func(sym string, blockStart, lastTS int64) {
			if onBlock != nil {
				onBlock(sym, blockStart, lastTS)
			}
			if sym == symbol {
				requestRefresh()
			}
		}
		go func() {
			if err := app.Engine.RunForever(ctx, symbol, cfg.Sync.Lookback); err != nil {
				app.Health.SetSyncError(err)
				log.Error().Err(err).Str("symbol", symbol).Msg("ingest stopped")
			}
		}()
	}

	if app.Redis != nil {
		if ev, ok, err := redis.LastBlock(ctx, app.Redis, symbol); err != nil {
			log.Warn().Err(err).Msg("read last announced block")
		} else if ok {
			stored, _ := app.Store.LastTimestamp(ctx, symbol)
			log.Info().Int64("announced_last_ts", ev.LastTS).Int64("stored_last_ts", stored).Msg("last announced block")
		}
		events, err := redis.Subscribe(ctx, app.Redis, []string{symbol}, log)
		if err != nil {
			log.Error().Err(err).Msg("block events unavailable, refreshing on request only")
		} else {
			go func() {
				for ev := range events {
					log.Debug().Str("symbol", ev.Symbol).Int64("last_ts", ev.LastTS).Msg("block event")
					requestRefresh()
				}
			}()
		}
	}

	if err := app.Handler.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial rebuild failed, serving an empty window")
	} else {
		log.Info().
			Str("symbol", symbol).
			Int("timeframe", app.Session.Timeframe()).
			Int("bars", app.Session.Window().Len()).
			Msg("initial window ready")
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-refreshCh:
				start := time.Now()
				if err := app.Handler.Refresh(ctx); err != nil {
					if ctx.Err() == nil {
						log.Warn().Err(err).Msg("refresh after new block failed")
					}
					continue
				}
				log.Debug().Dur("took", time.Since(start)).Msg("window refreshed")
			}
		}
	}()

	app.Server.Start()
	log.Info().Str("addr", cfg.HTTP.Addr).Str("symbol", symbol).Bool("ingest", *ingest).Msg("chartd ready")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := app.Server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	log.Info().Msg("shutdown complete")
	return 0
}
