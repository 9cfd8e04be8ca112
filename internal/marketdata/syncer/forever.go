package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

// RunForever keeps symbol synced until ctx is cancelled. It backfills the
// last lookback first, then polls every PollInterval. A poll resumes from
// the block under assembly, so a block is persisted exactly once, as soon as
// its last minute has closed. Failed fetches are retried with backoff; a
// poll that exhausts its retries, a consistency error or a store error
// stops the loop and is returned.
func (e *Engine) RunForever(ctx context.Context, symbol string, lookback time.Duration) error {
	start := e.now().Add(-lookback).UnixMilli()
	e.log.Info().Str("symbol", symbol).Dur("lookback", lookback).Dur("poll", e.cfg.PollInterval).Msg("continuous sync started")

	if err := e.withRetry(ctx, symbol, func() error { return e.poll(ctx, symbol, start) }); err != nil {
		return e.stopErr(ctx, err)
	}

	interval := e.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info().Str("symbol", symbol).Msg("continuous sync stopped")
			return nil
		case <-ticker.C:
			if err := e.withRetry(ctx, symbol, func() error { return e.poll(ctx, symbol, start) }); err != nil {
				return e.stopErr(ctx, err)
			}
		}
	}
}

func (e *Engine) stopErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// poll syncs closed minutes only, carrying the partial block in e.pending.
func (e *Engine) poll(ctx context.Context, symbol string, start int64) error {
	e.mu.Lock()
	carry := e.pending[symbol]
	e.mu.Unlock()

	nowMs := e.now().UnixMilli()
	end := nowMs - nowMs%model.MinuteMs

	var res Result
	tail, err := e.run(ctx, symbol, start, end, carry, &res)

	e.mu.Lock()
	e.pending[symbol] = tail
	e.mu.Unlock()

	if err == nil {
		e.log.Debug().Str("symbol", symbol).
			Int("requests", res.Requests).
			Int("persisted", len(res.Persisted)).
			Int("pending", len(tail)).
			Msg("poll done")
	}
	return err
}

// withRetry runs fn, retrying fetch failures with delay BackoffBase*2^n
// (capped at BackoffMax, raised to any server Retry-After). The attempt
// counter is local, so it starts over after every successful call.
func (e *Engine) withRetry(ctx context.Context, symbol string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isFetchError(err) || ctx.Err() != nil {
			return err
		}
		if attempt >= e.cfg.MaxRetries {
			return fmt.Errorf("sync %s: giving up after %d retries: %w", symbol, attempt, err)
		}

		delay := e.backoff(attempt, err)
		if e.OnRetry != nil {
			e.OnRetry(symbol, attempt+1, err)
		}
		e.log.Warn().Err(err).Str("symbol", symbol).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Bool("rate_limited", errors.Is(err, ErrRateLimited)).
			Msg("fetch failed, backing off")

		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (e *Engine) backoff(attempt int, err error) time.Duration {
	d := e.cfg.BackoffBase << uint(attempt)
	if e.cfg.BackoffMax > 0 && d > e.cfg.BackoffMax {
		d = e.cfg.BackoffMax
	}
	var ra retryAfter
	if errors.As(err, &ra) && ra.Delay() > d {
		d = ra.Delay()
	}
	return d
}
