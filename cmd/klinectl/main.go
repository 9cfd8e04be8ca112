// cmd/klinectl is the operator tool for the block store: one-shot sync,
// inspection and Parquet export/import.
//
// Usage:
//
//	go run ./cmd/klinectl sync    --symbol=BTCUSDT --lookback=48h
//	go run ./cmd/klinectl inspect --symbol=BTCUSDT --verify
//	go run ./cmd/klinectl export  --symbol=BTCUSDT --out=btc.parquet [--timeframe=60]
//	go run ./cmd/klinectl import  --in=btc.parquet
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/config"
	"github.com/sdlab1/n-ohlcv/internal/logger"
	"github.com/sdlab1/n-ohlcv/internal/store/codec"
	"github.com/sdlab1/n-ohlcv/internal/store/sqlite"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) error
}

var commands = []command{
	{"sync", "fetch and persist full blocks for a range", runSync},
	{"inspect", "print the stored blocks of a symbol", runInspect},
	{"export", "write stored candles (or resampled bars) to Parquet", runExport},
	{"import", "load candles from Parquet into the store", runImport},
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults + NOHLCV_* env when empty)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[klinectl] %v\n", err)
		os.Exit(1)
	}
	log := logger.Init("klinectl", cfg.Log.Level, "console")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, cfg, log, args); err != nil {
			fmt.Fprintf(os.Stderr, "[klinectl] %s: %v\n", name, err)
			cancel()
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "[klinectl] unknown command %q\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: klinectl [--config=path] <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.usage)
	}
}

// openStore opens the block store without the network side of the graph.
func openStore(cfg *config.Config, log zerolog.Logger) (*sqlite.Store, func(), error) {
	kind, err := codec.ParseKind(cfg.Store.Codec)
	if err != nil {
		return nil, nil, err
	}
	c, err := codec.New(kind, cfg.Store.Level)
	if err != nil {
		return nil, nil, err
	}
	s, err := sqlite.Open(sqlite.Config{
		Path:         cfg.Store.Path,
		ReadConns:    cfg.Store.ReadConns,
		BusyTimeout:  cfg.Store.BusyTimeout,
		CreateParent: true,
	}, c, log)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
		c.Close()
	}, nil
}

// parseTime accepts RFC 3339, a date, or unix milliseconds. Empty yields
// def.
func parseTime(s string, def time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q (want RFC 3339, YYYY-MM-DD or unix ms)", s)
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

// printSummary draws the closing box of a command.
func printSummary(title string, rows [][2]string) {
	const width = 38
	fmt.Println()
	fmt.Println("╔" + strings.Repeat("═", width) + "╗")
	fmt.Printf("║  %-*s║\n", width-2, title)
	fmt.Println("╠" + strings.Repeat("═", width) + "╣")
	for _, r := range rows {
		fmt.Printf("║  %-17s %-*s║\n", r[0]+":", width-20, r[1])
	}
	fmt.Println("╚" + strings.Repeat("═", width) + "╝")
}
