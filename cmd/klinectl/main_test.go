package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/config"
	"github.com/sdlab1/n-ohlcv/internal/export"
	"github.com/sdlab1/n-ohlcv/internal/model"
)

func TestParseTime(t *testing.T) {
	def := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"", def, true},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-05T10:30", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), true},
		{"2024-03-05T10:30:00+02:00", time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC), true},
		{"1700000000000", time.UnixMilli(1700000000000).UTC(), true},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in, def)
		if (err == nil) != tt.ok {
			t.Errorf("parseTime(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Store.Path = filepath.Join(t.TempDir(), "ohlcv.db")
	return cfg
}

func candles(from int64, n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := int64(100_000 + i%50)
		out[i] = model.Candle{OpenTime: from + int64(i)*model.MinuteMs, Open: p, High: p + 5, Low: p - 5, Close: p + 1, Volume: 2}
	}
	return out
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	log := zerolog.Nop()
	dir := t.TempDir()
	scale := model.NewPriceScale(cfg.Market.PriceDigits)

	// 30 leading candles before the first block boundary, then two blocks
	// and a partial third.
	first := 28335 * model.BlockSpanMs
	src := candles(first-30*model.MinuteMs, 30+2*model.BlockSize+400)
	in := filepath.Join(dir, "in.parquet")
	if err := export.WriteCandles(in, "ETHUSDT", scale, src); err != nil {
		t.Fatal(err)
	}

	if err := runImport(ctx, cfg, log, []string{"--in=" + in}); err != nil {
		t.Fatalf("import: %v", err)
	}

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		t.Fatal(err)
	}
	starts, err := store.BlockStarts(ctx, "ETHUSDT")
	closeStore()
	if err != nil {
		t.Fatal(err)
	}
	if len(starts) != 2 || starts[0] != first {
		t.Fatalf("block starts = %v, want 2 from %d", starts, first)
	}

	out := filepath.Join(dir, "out.parquet")
	if err := runExport(ctx, cfg, log, []string{"--symbol=ETHUSDT", "--out=" + out}); err != nil {
		t.Fatalf("export: %v", err)
	}
	sym, gotScale, got, err := export.ReadCandles(out)
	if err != nil {
		t.Fatal(err)
	}
	if sym != "ETHUSDT" || gotScale.Digits != scale.Digits {
		t.Errorf("header = %s/%d", sym, gotScale.Digits)
	}
	want := src[30 : 30+2*model.BlockSize]
	if len(got) != len(want) {
		t.Fatalf("exported %d candles, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candle %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExportBarsRange(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	log := zerolog.Nop()

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		t.Fatal(err)
	}
	first := 28335 * model.BlockSpanMs
	if err := store.InsertBlock(ctx, "BTCUSDT", first, candles(first, model.BlockSize)); err != nil {
		t.Fatal(err)
	}
	loaded, blocks, err := loadRange(ctx, store, "BTCUSDT", first+60*model.MinuteMs, first+180*model.MinuteMs)
	closeStore()
	if err != nil {
		t.Fatal(err)
	}
	if blocks != 1 || len(loaded) != 120 || loaded[0].OpenTime != first+60*model.MinuteMs {
		t.Fatalf("loadRange = %d candles from %d blocks", len(loaded), blocks)
	}

	out := filepath.Join(t.TempDir(), "bars.parquet")
	args := []string{"--out=" + out, "--timeframe=60", "--from=" + time.UnixMilli(first).UTC().Format(time.RFC3339)}
	if err := runExport(ctx, cfg, log, args); err != nil {
		t.Fatalf("export bars: %v", err)
	}
	if err := runExport(ctx, cfg, log, []string{"--out=" + out, "--timeframe=2000"}); err == nil {
		t.Error("timeframe 2000 accepted")
	}
	if err := runExport(ctx, cfg, log, []string{"--symbol=XRPUSDT", "--out=" + out}); err == nil {
		t.Error("export of an empty symbol succeeded")
	}
}

func TestExportCheckpointMatchesOneShot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	log := zerolog.Nop()
	dir := t.TempDir()

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		t.Fatal(err)
	}
	first := 28335 * model.BlockSpanMs
	src := candles(first, 2*model.BlockSize)
	for i := 0; i < 2; i++ {
		bs := first + int64(i)*model.BlockSpanMs
		if err := store.InsertBlock(ctx, "BTCUSDT", bs, src[i*model.BlockSize:(i+1)*model.BlockSize]); err != nil {
			t.Fatal(err)
		}
	}
	closeStore()

	readBars := func(path string) []export.BarRow {
		t.Helper()
		rows, err := parquet.ReadFile[export.BarRow](path)
		if err != nil {
			t.Fatal(err)
		}
		return rows
	}

	whole := filepath.Join(dir, "whole.parquet")
	if err := runExport(ctx, cfg, log, []string{"--out=" + whole, "--timeframe=60", "--checkpoint=" + filepath.Join(dir, "whole.ckpt")}); err != nil {
		t.Fatalf("one-shot export: %v", err)
	}

	ckpt := filepath.Join(dir, "split.ckpt")
	mid := time.UnixMilli(first + model.BlockSpanMs).UTC().Format(time.RFC3339)
	part1, part2 := filepath.Join(dir, "p1.parquet"), filepath.Join(dir, "p2.parquet")
	if err := runExport(ctx, cfg, log, []string{"--out=" + part1, "--timeframe=60", "--checkpoint=" + ckpt, "--to=" + mid}); err != nil {
		t.Fatalf("first part: %v", err)
	}
	cp, ok, err := export.LoadCheckpoint(ckpt)
	if err != nil || !ok {
		t.Fatalf("checkpoint: ok=%v err=%v", ok, err)
	}
	if cp.Next != first+model.BlockSpanMs || len(cp.Remainder) != 40 {
		t.Fatalf("checkpoint next=%d remainder=%d", cp.Next, len(cp.Remainder))
	}
	if err := runExport(ctx, cfg, log, []string{"--out=" + part2, "--timeframe=60", "--checkpoint=" + ckpt}); err != nil {
		t.Fatalf("second part: %v", err)
	}

	want := readBars(whole)
	got := append(readBars(part1), readBars(part2)...)
	if len(want) != 33 || len(got) != len(want) {
		t.Fatalf("bars: split %d, one-shot %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bar %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if err := runExport(ctx, cfg, log, []string{"--out=" + part2, "--timeframe=15", "--checkpoint=" + ckpt}); err == nil {
		t.Error("checkpoint reused for another timeframe")
	}
}
