// Package binance fetches 1m klines from the Binance spot REST API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/internal/marketdata/syncer"
	"github.com/sdlab1/n-ohlcv/internal/model"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	klinesPath     = "/api/v3/klines"

	// MaxLimit is the largest page the klines endpoint serves.
	MaxLimit = 1000
)

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Scale   model.PriceScale
}

// Client implements model.KlineSource over HTTP.
type Client struct {
	http  *resty.Client
	scale model.PriceScale
	log   zerolog.Logger
}

// New creates a Binance REST client.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		http:  rc,
		scale: cfg.Scale,
		log:   log.With().Str("component", "binance").Logger(),
	}
}

// RateLimitError reports HTTP 429 (or 418 once banned). It matches
// syncer.ErrRateLimited with errors.Is.
type RateLimitError struct {
	Status     int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("binance: rate limited (HTTP %d, retry after %v)", e.Status, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == syncer.ErrRateLimited }

// Delay implements the retry-after hint consumed by the sync engine.
func (e *RateLimitError) Delay() time.Duration { return e.RetryAfter }

// StatusError is any other non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("binance: HTTP %d: %s", e.Status, e.Body)
}

// FetchKlines returns up to limit candles with open time in [startMs, endMs].
func (c *Client) FetchKlines(ctx context.Context, symbol string, startMs, endMs int64, limit int) ([]model.Candle, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":    symbol,
			"interval":  "1m",
			"limit":     strconv.Itoa(limit),
			"startTime": strconv.FormatInt(startMs, 10),
			"endTime":   strconv.FormatInt(endMs, 10),
		}).
		Get(klinesPath)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests || code == http.StatusTeapot:
		retry := parseRetryAfter(resp.Header().Get("Retry-After"))
		c.log.Warn().Str("symbol", symbol).Int("status", code).Dur("retry_after", retry).Msg("rate limited")
		return nil, &RateLimitError{Status: code, RetryAfter: retry}
	case code < 200 || code > 299:
		body := resp.String()
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, &StatusError{Status: code, Body: body}
	}

	candles, err := c.decode(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}
	c.log.Debug().Str("symbol", symbol).Int64("start", startMs).Int("count", len(candles)).Msg("fetched klines")
	return candles, nil
}

// decode parses the array-of-arrays response. Field 0 is the open time,
// fields 1-4 decimal price strings, field 5 the volume string.
func (c *Client) decode(body []byte) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	out := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: %d fields, want at least 6", i, len(row))
		}
		var cd model.Candle
		if err := json.Unmarshal(row[0], &cd.OpenTime); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		prices := [4]*int64{&cd.Open, &cd.High, &cd.Low, &cd.Close}
		for j, dst := range prices {
			s, err := unquote(row[j+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
			if *dst, err = c.scale.Parse(s); err != nil {
				return nil, fmt.Errorf("kline %d: %w", i, err)
			}
		}
		vs, err := unquote(row[5])
		if err != nil {
			return nil, fmt.Errorf("kline %d volume: %w", i, err)
		}
		if cd.Volume, err = strconv.ParseFloat(vs, 64); err != nil {
			return nil, fmt.Errorf("kline %d volume: %w", i, err)
		}
		out = append(out, cd)
	}
	return out, nil
}

func unquote(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("expected decimal string")
	}
	return s, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
