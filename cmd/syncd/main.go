// cmd/syncd keeps the block store of every configured symbol up to date:
// a backfill over the configured lookback, then a poll every interval.
//
// Usage:
//
//	go run ./cmd/syncd --config=config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
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
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[syncd] %v\n", err)
		return 1
	}

	app, cleanup, err := di.InitializeSyncApp(cfg, "syncd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "[syncd] init failed: %v\n", err)
		return 1
	}
	defer cleanup()
	log := app.Log

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app.Health.SetSQLiteOK(true)
	app.Health.StartLivenessChecker(ctx, app.Redis, app.Store.DB(), 10*time.Second)
	app.MetricsServer.Start()

	log.Info().
		Strs("symbols", cfg.Market.Symbols).
		Dur("lookback", cfg.Sync.Lookback).
		Dur("poll_interval", cfg.Sync.PollInterval).
		Bool("redis", app.Redis != nil).
		Msg("syncd starting")

	errCh := make(chan error, len(cfg.Market.Symbols))
	var wg sync.WaitGroup
	for _, symbol := range cfg.Market.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			errCh <- syncSymbol(ctx, app, symbol)
		}(symbol)
	}
	go func() {
		wg.Wait()
		close(errCh)
	}()

	code := 0
	for err := range errCh {
		if err != nil {
			log.Error().Err(err).Msg("symbol stopped, shutting down")
			code = 1
			cancel()
		}
	}

	log.Info().Msg("shutdown signal received, cleaning up...")
	if app.Publisher != nil {
		if n := app.Publisher.Pending(); n > 0 {
			log.Warn().Int("held_events", n).Msg("block events not delivered to Redis")
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.MetricsServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("metrics server shutdown")
	}
	log.Info().Msg("shutdown complete")
	return code
}

// syncSymbol runs continuous ingestion for one symbol. With Redis enabled it
// first takes the symbol's writer lease and stops if the lease is lost.
func syncSymbol(ctx context.Context, app *di.SyncApp, symbol string) error {
	log := app.Log.With().Str("symbol", symbol).Logger()

	if app.Redis != nil {
		lock := redis.NewLock(app.Redis, symbol, app.Config.Redis.LockTTL)
		if err := lock.Acquire(ctx); err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		log.Info().Str("key", lock.Key()).Dur("ttl", lock.TTL()).Msg("writer lock acquired")
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil {
				log.Warn().Err(err).Msg("release writer lock")
			}
		}()

		lockCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		kept := make(chan error, 1)
		go func() {
			err := lock.Keep(lockCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("writer lock lost")
				cancel()
			}
			kept <- err
		}()

		err := app.Engine.RunForever(lockCtx, symbol, app.Config.Sync.Lookback)
		cancel()
		log.Info().Int("pending_candles", app.Engine.Pending(symbol)).Msg("ingestion stopped")
		if keepErr := <-kept; keepErr != nil && !errors.Is(keepErr, context.Canceled) {
			return fmt.Errorf("%s: %w", symbol, keepErr)
		}
		if err != nil {
			app.Health.SetSyncError(err)
		}
		return err
	}

	err := app.Engine.RunForever(ctx, symbol, app.Config.Sync.Lookback)
	log.Info().Int("pending_candles", app.Engine.Pending(symbol)).Msg("ingestion stopped")
	if err != nil {
		app.Health.SetSyncError(err)
		return err
	}
	return nil
}
