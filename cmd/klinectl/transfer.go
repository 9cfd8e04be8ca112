package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/config"
	"github.com/sdlab1/n-ohlcv/internal/export"
	"github.com/sdlab1/n-ohlcv/internal/marketdata/resample"
	"github.com/sdlab1/n-ohlcv/internal/model"
	"github.com/sdlab1/n-ohlcv/internal/store/sqlite"
)

func runExport(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	symbol := fs.String("symbol", cfg.Chart.Symbol, "Symbol to export")
	out := fs.String("out", "", "Output Parquet file (required)")
	from := fs.String("from", "", "Range start (default: first stored block)")
	to := fs.String("to", "", "Range end, exclusive (default: everything stored)")
	timeframe := fs.Int("timeframe", 0, "Resample to N-minute bars with RSI (0 exports raw 1m candles)")
	rsiPeriod := fs.Int("rsi", cfg.Chart.RSIPeriod, "RSI period for bar export")
	checkpoint := fs.String("checkpoint", "", "Bar export only: continue from and update this checkpoint file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("--out is required")
	}
	if *timeframe < 0 || *timeframe > resample.MaxTimeframe {
		return fmt.Errorf("timeframe %d out of range 1..%d", *timeframe, resample.MaxTimeframe)
	}
	if *checkpoint != "" && *timeframe == 0 {
		return errors.New("--checkpoint needs --timeframe")
	}
	startT, err := parseTime(*from, time.UnixMilli(0))
	if err != nil {
		return err
	}
	endT, err := parseTime(*to, time.UnixMilli(math.MaxInt64))
	if err != nil {
		return err
	}

	var cp export.Checkpoint
	resumed := false
	if *checkpoint != "" {
		if cp, resumed, err = export.LoadCheckpoint(*checkpoint); err != nil {
			return err
		}
	}
	start := startT.UnixMilli()
	if resumed {
		if cp.Symbol != *symbol || cp.Timeframe != *timeframe {
			return fmt.Errorf("checkpoint is for %s/%dm, not %s/%dm", cp.Symbol, cp.Timeframe, *symbol, *timeframe)
		}
		if *from != "" {
			return errors.New("--from conflicts with an existing checkpoint")
		}
		start = cp.Next
	}

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	candles, blocks, err := loadRange(ctx, store, *symbol, start, endT.UnixMilli())
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("no stored candles for %s in range", *symbol)
	}
	if i := model.CheckContiguous(candles); i >= 0 && *checkpoint != "" {
		return fmt.Errorf("stored candles have a gap at %s; a checkpointed export needs a contiguous run", formatMs(candles[i].OpenTime))
	}
	if resumed && candles[0].OpenTime != cp.Next {
		return fmt.Errorf("checkpoint continues at %s but the store resumes at %s", formatMs(cp.Next), formatMs(candles[0].OpenTime))
	}

	scale := model.NewPriceScale(cfg.Market.PriceDigits)
	rows := [][2]string{
		{"Symbol", *symbol},
		{"Blocks read", fmt.Sprint(blocks)},
		{"Candles", fmt.Sprint(len(candles))},
	}
	if *timeframe == 0 {
		if err := export.WriteCandles(*out, *symbol, scale, candles); err != nil {
			return err
		}
	} else {
		r := resample.New(*timeframe, scale, *rsiPeriod)
		if resumed {
			st, err := cp.IndicatorState()
			if err != nil {
				return err
			}
			if err := r.Resume(cp.Remainder, st); err != nil {
				return err
			}
		}
		// With a checkpoint the unfinished bar stays in the carry instead
		// of being written as a live bar.
		bars := r.Feed(candles, *checkpoint == "")
		if err := export.WriteBars(*out, *symbol, *timeframe, bars); err != nil {
			return err
		}
		rows = append(rows,
			[2]string{"Timeframe", fmt.Sprintf("%dm", *timeframe)},
			[2]string{"Bars", fmt.Sprint(len(bars))},
		)
		if *checkpoint != "" {
			next, err := export.NewCheckpoint(*symbol, *timeframe, candles[len(candles)-1].OpenTime, r.Remainder(), r.IndicatorState())
			if err != nil {
				return err
			}
			if err := export.SaveCheckpoint(*checkpoint, next); err != nil {
				return err
			}
			rows = append(rows, [2]string{"Next candle", formatMs(next.Next)})
		}
	}
	rows = append(rows, [2]string{"Written to", *out})
	printSummary("EXPORT COMPLETE", rows)
	return nil
}

// loadRange concatenates the stored blocks overlapping [start, end) and
// cuts the result to the range.
func loadRange(ctx context.Context, store *sqlite.Store, symbol string, start, end int64) ([]model.Candle, int, error) {
	starts, err := store.BlockStarts(ctx, symbol)
	if err != nil {
		return nil, 0, err
	}
	var out []model.Candle
	blocks := 0
	for _, bs := range starts {
		if bs+model.BlockSpanMs <= start || bs >= end {
			continue
		}
		candles, ok, err := store.GetBlock(ctx, symbol, bs)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		blocks++
		for _, c := range candles {
			if c.OpenTime >= start && c.OpenTime < end {
				out = append(out, c)
			}
		}
	}
	return out, blocks, nil
}

func runImport(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	in := fs.String("in", "", "Input Parquet file of 1m candles (required)")
	as := fs.String("symbol", "", "Store under this symbol instead of the file's")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("--in is required")
	}

	symbol, scale, candles, err := export.ReadCandles(*in)
	if err != nil {
		return err
	}
	if want := cfg.Market.PriceDigits; scale.Digits != want {
		return fmt.Errorf("%s uses %d price digits, store uses %d", *in, scale.Digits, want)
	}
	if *as != "" {
		symbol = *as
	}

	blocks, skipped := export.SplitBlocks(candles)
	if len(blocks) == 0 {
		return fmt.Errorf("%s holds no complete block (%d candles)", *in, len(candles))
	}

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, b := range blocks {
		if err := store.InsertBlock(ctx, symbol, b[0].OpenTime, b); err != nil {
			return err
		}
	}
	log.Info().Str("symbol", symbol).Int("blocks", len(blocks)).Int("skipped", skipped).Msg("import done")

	printSummary("IMPORT COMPLETE", [][2]string{
		{"Symbol", symbol},
		{"Candles read", fmt.Sprint(len(candles))},
		{"Blocks stored", fmt.Sprint(len(blocks))},
		{"Candles skipped", fmt.Sprint(skipped)},
		{"First block", blocks[0][0].Time().Format("2006-01-02 15:04")},
	})
	return nil
}
