// Package syncer brings the block store up to date with the exchange. It
// backfills missing history in block-sized requests, enforces one-minute
// contiguity on every batch, persists full blocks and hands the partial
// tail back to the caller. In continuous mode it polls on an interval and
// retries failed fetches with exponential backoff.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

// Config tunes request pacing and retry.
type Config struct {
	RequestPause time.Duration // pause between consecutive requests
	PollInterval time.Duration // continuous mode poll period
	MaxRetries   int           // retries per poll before giving up
	BackoffBase  time.Duration // first retry delay, doubled per attempt
	BackoffMax   time.Duration // cap on a single retry delay (0 = none)
}

// DefaultConfig mirrors the pacing the exchange tolerates for 1m backfills.
func DefaultConfig() Config {
	return Config{
		RequestPause: 250 * time.Millisecond,
		PollInterval: 5 * time.Minute,
		MaxRetries:   3,
		BackoffBase:  5 * time.Second,
		BackoffMax:   2 * time.Minute,
	}
}

// Result describes one Sync call.
type Result struct {
	Requests  int            // upstream requests issued
	Persisted []int64        // block starts committed, ascending
	Tail      []model.Candle // contiguous candles after the last full block, not persisted
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleeper overrides the context-aware sleep used for pacing and backoff.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// Engine owns the sync state for any number of symbols. Sync may be called
// from one goroutine per symbol; RunForever owns its symbol's pending tail.
type Engine struct {
	cfg    Config
	store  model.BlockWriter
	source model.KlineSource
	log    zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	pending map[string][]model.Candle // continuous mode block under assembly

	// Hooks (optional)
	OnRequest func(symbol string)
	OnRetry   func(symbol string, attempt int, err error)
	OnBlock   func(symbol string, blockStart, lastTS int64)
	OnReject  func(symbol string, err *ConsistencyError)
}

// New creates a sync engine.
func New(cfg Config, store model.BlockWriter, source model.KlineSource, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		store:   store,
		source:  source,
		log:     log.With().Str("component", "syncer").Logger(),
		now:     time.Now,
		sleep:   sleepCtx,
		pending: make(map[string][]model.Candle),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync fetches everything missing for symbol in [start, end). Full blocks
// are persisted; the remaining contiguous candles are returned in
// Result.Tail for the caller to keep in memory. Blocks committed before an
// error stay committed and are listed in the returned Result.
func (e *Engine) Sync(ctx context.Context, symbol string, start, end int64) (Result, error) {
	var res Result
	tail, err := e.run(ctx, symbol, start, end, nil, &res)
	res.Tail = tail
	return res, err
}

// run is the shared fetch loop. carry is a contiguous, block-aligned prefix
// of the block under assembly; the returned slice is the new carry.
func (e *Engine) run(ctx context.Context, symbol string, start, end int64, carry []model.Candle, res *Result) ([]model.Candle, error) {
	last, err := e.store.LastTimestamp(ctx, symbol)
	if err != nil {
		return carry, fmt.Errorf("sync %s: %w", symbol, err)
	}
	if len(carry) > 0 && last >= carry[0].OpenTime {
		carry = nil // persisted elsewhere meanwhile
	}

	var next int64
	switch {
	case len(carry) > 0:
		next = carry[len(carry)-1].OpenTime + model.MinuteMs
	case last > 0:
		next = last + model.MinuteMs
	default:
		next = model.BlockStart(start)
	}
	fresh := last == 0 && len(carry) == 0
	nowMs := e.now().UnixMilli()

	for next < end {
		if err := ctx.Err(); err != nil {
			return carry, err
		}
		if res.Requests > 0 && e.cfg.RequestPause > 0 {
			if err := e.sleep(ctx, e.cfg.RequestPause); err != nil {
				return carry, err
			}
		}

		limit := model.BlockSize - len(carry)
		batch, err := e.source.FetchKlines(ctx, symbol, next, end-1, limit)
		res.Requests++
		if e.OnRequest != nil {
			e.OnRequest(symbol)
		}
		if err != nil {
			return carry, &FetchError{Symbol: symbol, Err: err}
		}
		if len(batch) == 0 {
			break
		}
		if len(batch) > limit {
			batch = batch[:limit]
		}

		if fresh && batch[0].OpenTime > next {
			// history starts later than requested: resume at the first
			// block the exchange can fill completely
			skip := model.BlockStart(batch[0].OpenTime)
			if skip < batch[0].OpenTime {
				skip += model.BlockSpanMs
			}
			e.log.Info().Str("symbol", symbol).
				Time("requested", time.UnixMilli(next).UTC()).
				Time("resume", time.UnixMilli(skip).UTC()).
				Msg("history starts later than requested, skipping to next block boundary")
			next = skip
			fresh = false
			continue
		}
		fresh = false

		if err := e.checkBatch(symbol, next, batch); err != nil {
			return carry, err
		}

		combined := make([]model.Candle, 0, len(carry)+len(batch))
		combined = append(combined, carry...)
		combined = append(combined, batch...)
		tailEnd := combined[len(combined)-1].OpenTime

		if len(combined) == model.BlockSize && tailEnd+model.MinuteMs <= nowMs {
			blockStart := combined[0].OpenTime
			if err := e.store.InsertBlock(ctx, symbol, blockStart, combined); err != nil {
				return carry, fmt.Errorf("sync %s: %w", symbol, err)
			}
			res.Persisted = append(res.Persisted, blockStart)
			if e.OnBlock != nil {
				e.OnBlock(symbol, blockStart, tailEnd)
			}
			e.log.Info().Str("symbol", symbol).
				Time("block", time.UnixMilli(blockStart).UTC()).
				Msg("persisted block")
			carry = nil
			next = blockStart + model.BlockSpanMs
			continue
		}

		carry = combined
		next = tailEnd + model.MinuteMs
		if len(combined) == model.BlockSize || len(batch) < limit {
			// the block's last minute is still forming, or the exchange
			// has nothing more yet
			break
		}
	}
	return carry, nil
}

// checkBatch enforces contiguity inside the batch and against the
// expected next open time.
func (e *Engine) checkBatch(symbol string, next int64, batch []model.Candle) error {
	var cerr *ConsistencyError
	if batch[0].OpenTime != next {
		cerr = &ConsistencyError{Symbol: symbol, Prev: next - model.MinuteMs, Next: batch[0].OpenTime}
	} else if i := model.CheckContiguous(batch); i >= 0 {
		cerr = &ConsistencyError{Symbol: symbol, Prev: batch[i-1].OpenTime, Next: batch[i].OpenTime}
	}
	if cerr == nil {
		return nil
	}
	if e.OnReject != nil {
		e.OnReject(symbol, cerr)
	}
	e.log.Error().Err(cerr).Str("symbol", symbol).Msg("rejected batch")
	return cerr
}

// Pending returns how many candles of the block under assembly are held
// in memory for symbol in continuous mode.
func (e *Engine) Pending(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending[symbol])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isFetchError reports whether err came from the upstream request.
func isFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
