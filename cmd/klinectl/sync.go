package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/config"
	"github.com/sdlab1/n-ohlcv/internal/di"
)

func runSync(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	symbol := fs.String("symbol", cfg.Chart.Symbol, "Symbol to sync")
	lookback := fs.Duration("lookback", cfg.Sync.Lookback, "Range length ending now (ignored with --from)")
	from := fs.String("from", "", "Range start (RFC 3339, YYYY-MM-DD or unix ms)")
	to := fs.String("to", "", "Range end, exclusive (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now().UTC()
	end, err := parseTime(*to, now)
	if err != nil {
		return err
	}
	start, err := parseTime(*from, end.Add(-*lookback))
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("empty range %s .. %s", start, end)
	}

	// Block events are only published by syncd.
	cfg.Redis.Enabled = false
	app, cleanup, err := di.InitializeSyncApp(cfg, "klinectl")
	if err != nil {
		return err
	}
	defer cleanup()

	began := time.Now()
	res, err := app.Engine.Sync(ctx, *symbol, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return err
	}
	last, err := app.Store.LastTimestamp(ctx, *symbol)
	if err != nil {
		return err
	}
	log.Debug().Int("tail", len(res.Tail)).Msg("sync finished")

	printSummary("SYNC COMPLETE", [][2]string{
		{"Symbol", *symbol},
		{"From", formatMs(start.UnixMilli())},
		{"To", formatMs(end.UnixMilli())},
		{"Requests", fmt.Sprint(res.Requests)},
		{"Blocks persisted", fmt.Sprint(res.Persisted)},
		{"Unpersisted tail", fmt.Sprint(len(res.Tail))},
		{"Last candle", formatMs(last)},
		{"Took", time.Since(began).Round(time.Millisecond).String()},
	})
	return nil
}
