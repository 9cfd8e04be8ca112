package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/config"
	"github.com/sdlab1/n-ohlcv/internal/model"
)

func runInspect(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	symbol := fs.String("symbol", cfg.Chart.Symbol, "Symbol to inspect")
	verify := fs.Bool("verify", false, "Decode every block and check it")
	list := fs.Bool("list", false, "Print each block start")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	starts, err := store.BlockStarts(ctx, *symbol)
	if err != nil {
		return err
	}
	first, err := store.FirstTimestamp(ctx, *symbol)
	if err != nil {
		return err
	}
	last, err := store.LastTimestamp(ctx, *symbol)
	if err != nil {
		return err
	}

	// Blocks missing between first and last are holes left by a later
	// backfill start or by an import.
	holes := 0
	for i := 1; i < len(starts); i++ {
		holes += int((starts[i]-starts[i-1])/model.BlockSpanMs) - 1
	}

	bad := 0
	for _, bs := range starts {
		if *list {
			fmt.Printf("  %s  %d\n", formatMs(bs), bs)
		}
		if !*verify {
			continue
		}
		candles, ok, err := store.GetBlock(ctx, *symbol, bs)
		if err == nil && !ok {
			err = fmt.Errorf("listed but not found")
		}
		if err == nil {
			err = model.ValidateBlock(bs, candles)
		}
		if err != nil {
			bad++
			log.Error().Err(err).Int64("block_start", bs).Msg("bad block")
		}
	}

	lastClose := "-"
	if n := len(starts); n > 0 {
		candles, ok, err := store.GetBlock(ctx, *symbol, starts[n-1])
		if err == nil && ok && len(candles) > 0 {
			lastClose = model.NewPriceScale(cfg.Market.PriceDigits).String(candles[len(candles)-1].Close)
		}
	}

	rows := [][2]string{
		{"Symbol", *symbol},
		{"Blocks", fmt.Sprint(len(starts))},
		{"Candles", fmt.Sprint(len(starts) * model.BlockSize)},
		{"First block", formatMs(first)},
		{"Last candle", formatMs(last)},
		{"Last close", lastClose},
		{"Holes (blocks)", fmt.Sprint(holes)},
	}
	if *verify {
		rows = append(rows, [2]string{"Bad blocks", fmt.Sprint(bad)})
	}
	printSummary("STORE "+cfg.Store.Path, rows)
	if bad > 0 {
		return fmt.Errorf("%d bad blocks", bad)
	}
	return nil
}
