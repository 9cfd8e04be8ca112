package codec

import (
	"errors"
	"testing"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

func makeBlock(start int64, n int) []model.Candle {
	out := make([]model.Candle, n)
	price := int64(6_700_000_000_000)
	for i := range out {
		o := price
		h := o + int64(i%7)*1_000_000
		l := o - int64(i%5)*1_000_000
		c := o + int64(i%3-1)*500_000
		out[i] = model.Candle{
			OpenTime: start + int64(i)*model.MinuteMs,
			Open:     o, High: h, Low: l, Close: c,
			Volume: float64(i) * 0.125,
		}
		price = c
	}
	return out
}

func equalCandles(t *testing.T, want, got []model.Candle) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("expected %d candles, got %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("candle %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestCodec_AllKinds(t *testing.T) {
	block := makeBlock(model.BlockSpanMs*1700, model.BlockSize)
	for _, kind := range []Kind{KindNone, KindZstd, KindLZ4} {
		t.Run(kind.String(), func(t *testing.T) {
			c, err := New(kind, 3)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer c.Close()

			blob, err := c.Encode(block)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if Kind(blob[0]) != kind {
				t.Errorf("expected header kind %v, got %v", kind, Kind(blob[0]))
			}
			got, err := c.Decode(blob)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			equalCandles(t, block, got)
		})
	}
}

func TestCodec_DecodesOtherKinds(t *testing.T) {
	block := makeBlock(0, 50)
	lz, _ := New(KindLZ4, 1)
	defer lz.Close()
	zs, _ := New(KindZstd, 1)
	defer zs.Close()

	blob, err := lz.Encode(block)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := zs.Decode(blob)
	if err != nil {
		t.Fatalf("zstd codec should decode lz4 blob: %v", err)
	}
	equalCandles(t, block, got)
}

func TestCodec_ZstdShrinksBlock(t *testing.T) {
	block := makeBlock(0, model.BlockSize)
	c, _ := New(KindZstd, 4)
	defer c.Close()
	blob, _ := c.Encode(block)
	raw := Marshal(block)
	if len(blob) >= len(raw) {
		t.Errorf("expected compressed size < %d, got %d", len(raw), len(blob))
	}
}

func TestCodec_Corrupt(t *testing.T) {
	c, _ := New(KindZstd, 1)
	defer c.Close()
	blob, _ := c.Encode(makeBlock(0, 10))

	cases := map[string][]byte{
		"empty":        {},
		"unknown kind": {9, 1, 2, 3},
		"bad zstd":     append([]byte{byte(KindZstd)}, 0xde, 0xad, 0xbe, 0xef),
		"truncated":    blob[:len(blob)/2],
		"bad layout":   {byte(KindNone), 7, 1},
	}
	for name, b := range cases {
		if _, err := c.Decode(b); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}

func TestUnmarshal_Truncated(t *testing.T) {
	raw := Marshal(makeBlock(0, 3))
	for i := 0; i < len(raw); i++ {
		if _, err := Unmarshal(raw[:i]); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("prefix %d: expected ErrCorrupt, got %v", i, err)
		}
	}
	if _, err := Unmarshal(append(raw, 0)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for trailing bytes, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{"": KindZstd, "zstd": KindZstd, "lz4": KindLZ4, "none": KindNone} {
		got, err := ParseKind(name)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseKind("xz"); err == nil {
		t.Error("expected error for unsupported codec")
	}
}
