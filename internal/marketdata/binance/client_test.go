package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/internal/marketdata/syncer"
	"github.com/sdlab1/n-ohlcv/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Scale: model.NewPriceScale(8)}, zerolog.Nop())
}

func TestFetchKlines_ParsesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1m" || q.Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("startTime") != "1700000040000" || q.Get("endTime") != "1700000099999" {
			t.Errorf("unexpected range %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			[1700000040000,"37000.10000000","37010.00000000","36990.50000000","37005.00000000","12.345",1700000099999,"0",10,"0","0","0"],
			[1700000100000,"37005.00000000","37006.00000000","37000.00000000","37001.00000000","1.5",1700000159999,"0",3,"0","0","0"]
		]`))
	})

	got, err := c.FetchKlines(context.Background(), "BTCUSDT", 1_700_000_040_000, 1_700_000_099_999, 2)
	if err != nil {
		t.Fatalf("FetchKlines: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	want := model.Candle{
		OpenTime: 1_700_000_040_000,
		Open:     3_700_010_000_000,
		High:     3_701_000_000_000,
		Low:      3_699_050_000_000,
		Close:    3_700_500_000_000,
		Volume:   12.345,
	}
	if got[0] != want {
		t.Errorf("expected %+v, got %+v", want, got[0])
	}
}

func TestFetchKlines_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchKlines(context.Background(), "BTCUSDT", 0, 1, 10)
	if !errors.Is(err, syncer.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 7*time.Second {
		t.Errorf("expected retry after 7s, got %+v", rl)
	}
}

func TestFetchKlines_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := c.FetchKlines(context.Background(), "BTCUSDT", 0, 1, 10)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if errors.Is(err, syncer.ErrRateLimited) {
		t.Error("502 must not be reported as rate limited")
	}
}

func TestFetchKlines_MalformedRecord(t *testing.T) {
	cases := map[string]string{
		"short row":     `[[1700000040000,"1","2","0.5","1.5"]]`,
		"numeric price": `[[1700000040000,1,"2","0.5","1.5","3"]]`,
		"bad volume":    `[[1700000040000,"1","2","0.5","1.5","x"]]`,
		"not an array":  `{"code":-1121,"msg":"Invalid symbol."}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			if _, err := c.FetchKlines(context.Background(), "BTCUSDT", 0, 1, 10); err == nil {
				t.Error("expected error for malformed response")
			}
		})
	}
}

func TestFetchKlines_EmptyPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	got, err := c.FetchKlines(context.Background(), "BTCUSDT", 0, 1, 10)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result, got %d candles, err=%v", len(got), err)
	}
}
