// Package session rebuilds a symbol's chart: it syncs the store, replays
// the persisted blocks and the in-memory tail through a resampler and hands
// the bars to a viewport window.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/internal/indicator"
	"github.com/sdlab1/n-ohlcv/internal/logger"
	"github.com/sdlab1/n-ohlcv/internal/marketdata/resample"
	"github.com/sdlab1/n-ohlcv/internal/marketdata/syncer"
	"github.com/sdlab1/n-ohlcv/internal/model"
	"github.com/sdlab1/n-ohlcv/internal/viewport"
)

// Syncer brings the store up to date and returns the unpersisted tail.
type Syncer interface {
	Sync(ctx context.Context, symbol string, start, end int64) (syncer.Result, error)
}

// Config describes what the session charts.
type Config struct {
	Symbol     string
	Timeframe  int // minutes per bar
	RSIPeriod  int // 0 disables RSI
	WindowSize int
	Scale      model.PriceScale
}

// Session owns one chart's derived state. Only Sync may run concurrently
// with other methods; everything else needs a single owner.
type Session struct {
	cfg    Config
	store  model.BlockReader
	engine Syncer
	window *viewport.Window
	log    zerolog.Logger

	recent    []model.Candle
	remainder []model.Candle
	rsiState  indicator.State
	rebuiltAt time.Time

	// OnRebuild is called after each successful rebuild (optional).
	OnRebuild func(symbol string, bars int, dur time.Duration)
}

// New creates a session with an empty window.
func New(cfg Config, store model.BlockReader, engine Syncer, log zerolog.Logger) *Session {
	if cfg.Timeframe < 1 {
		cfg.Timeframe = 1
	}
	return &Session{
		cfg:    cfg,
		store:  store,
		engine: engine,
		window: viewport.New(cfg.WindowSize),
		log:    log.With().Str("component", "session").Str("symbol", cfg.Symbol).Logger(),
	}
}

// Symbol returns the charted symbol.
func (s *Session) Symbol() string { return s.cfg.Symbol }

// Timeframe returns the bar size in minutes.
func (s *Session) Timeframe() int { return s.cfg.Timeframe }

// Window returns the viewport window.
func (s *Session) Window() *viewport.Window { return s.window }

// Recent returns the candles fetched during the last rebuild that are not
// yet part of a persisted block.
func (s *Session) Recent() []model.Candle { return s.recent }

// Remainder returns the persisted candles of the last rebuild that did not
// fill a closed bar before the recent tail was flushed.
func (s *Session) Remainder() []model.Candle { return s.remainder }

// IndicatorState returns the RSI state over the closed bars of the last
// rebuild.
func (s *Session) IndicatorState() indicator.State { return s.rsiState }

// RebuiltAt returns when the last successful rebuild finished.
func (s *Session) RebuiltAt() time.Time { return s.rebuiltAt }

// Rebuild syncs [start, end) and recomputes every bar. It is Sync followed
// by Load; callers that must keep the window readable while the network
// part runs call the two phases themselves.
func (s *Session) Rebuild(ctx context.Context, start, end int64) error {
	res, err := s.Sync(ctx, start, end)
	if err != nil {
		return err
	}
	return s.Load(ctx, res, start, end)
}

// Sync brings the store up to date over [start, end) and returns the
// unpersisted tail. It reads no session state, so it may run while other
// goroutines use the window.
func (s *Session) Sync(ctx context.Context, start, end int64) (syncer.Result, error) {
	res, err := s.engine.Sync(ctx, s.cfg.Symbol, start, end)
	if err != nil {
		log := logger.Ctx(ctx, s.log)
		log.Error().Err(err).Msg("sync failed, keeping previous chart")
		return syncer.Result{}, fmt.Errorf("rebuild %s: %w", s.cfg.Symbol, err)
	}
	return res, nil
}

// Load recomputes every bar from the persisted blocks over [start, end)
// and the tail in res. The first non-empty chunk is trimmed to begin on a
// whole hour so bars of up to 60 minutes align to the clock. On error the
// window and carried state are left as they were.
func (s *Session) Load(ctx context.Context, res syncer.Result, start, end int64) error {
	t0 := time.Now()
	log := logger.Ctx(ctx, s.log)
	symbol := s.cfg.Symbol

	r := resample.New(s.cfg.Timeframe, s.cfg.Scale, s.cfg.RSIPeriod)
	var bars []model.Bar
	trimmed := false
	loaded := 0
	for bs := model.BlockStart(start); bs < end; bs += model.BlockSpanMs {
		candles, ok, err := s.store.GetBlock(ctx, symbol, bs)
		if err != nil {
			log.Error().Err(err).Int64("block_start", bs).Msg("load block failed, keeping previous chart")
			return fmt.Errorf("rebuild %s: %w", symbol, err)
		}
		if !ok || len(candles) == 0 {
			continue
		}
		loaded++
		if !trimmed {
			candles = trimToHour(candles)
			trimmed = true
		}
		bars = append(bars, r.Feed(candles, false)...)
	}

	remainder := r.Remainder()
	rsiState := r.IndicatorState()

	recent := res.Tail
	tail := recent
	if !trimmed {
		tail = trimToHour(tail)
	}
	bars = append(bars, r.Feed(tail, true)...)

	s.window.SetBars(bars)
	s.recent = recent
	s.remainder = remainder
	s.rsiState = rsiState
	s.rebuiltAt = time.Now()

	dur := time.Since(t0)
	if s.OnRebuild != nil {
		s.OnRebuild(symbol, len(bars), dur)
	}
	ev := log.Info().
		Int("timeframe", s.cfg.Timeframe).
		Int("blocks", loaded).
		Int("recent", len(recent)).
		Int("bars", len(bars)).
		Int("requests", res.Requests).
		Dur("took", dur)
	if n := len(bars); n > 0 {
		ev = ev.Time("first_bar", bars[0].Timestamp()).Time("last_bar", bars[n-1].Timestamp())
	}
	ev.Msg("rebuilt chart")
	return nil
}

// SetTimeframe switches the bar size and rebuilds over [start, end). An
// invalid timeframe or a failed rebuild leaves the session unchanged.
func (s *Session) SetTimeframe(ctx context.Context, timeframe int, start, end int64) error {
	if err := ValidateTimeframe(timeframe); err != nil {
		return err
	}
	res, err := s.Sync(ctx, start, end)
	if err != nil {
		return err
	}
	return s.LoadTimeframe(ctx, timeframe, res, start, end)
}

// LoadTimeframe is the Load phase of SetTimeframe.
func (s *Session) LoadTimeframe(ctx context.Context, timeframe int, res syncer.Result, start, end int64) error {
	if err := ValidateTimeframe(timeframe); err != nil {
		return err
	}
	prev := s.cfg.Timeframe
	s.cfg.Timeframe = timeframe
	if err := s.Load(ctx, res, start, end); err != nil {
		s.cfg.Timeframe = prev
		return err
	}
	return nil
}

// ValidateTimeframe reports whether timeframe is a supported bar size.
func ValidateTimeframe(timeframe int) error {
	if timeframe < 1 || timeframe > resample.MaxTimeframe {
		return fmt.Errorf("timeframe %d out of range [1, %d]", timeframe, resample.MaxTimeframe)
	}
	return nil
}

// trimToHour drops the candles before the first one opening on a whole
// hour. Without such a candle the slice is returned unchanged.
func trimToHour(candles []model.Candle) []model.Candle {
	for i := range candles {
		if candles[i].Minute() == 0 {
			return candles[i:]
		}
	}
	return candles
}
