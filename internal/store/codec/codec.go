// Package codec serializes a block of 1m candles into a compact binary
// layout and compresses it. The first byte of every encoded blob names the
// compressor so blocks written with different settings stay readable.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

// ErrCorrupt is returned for any blob that cannot be decompressed or decoded.
var ErrCorrupt = errors.New("corrupt block")

// Kind identifies the compressor recorded in the blob header.
type Kind byte

const (
	KindNone Kind = 0
	KindZstd Kind = 1
	KindLZ4  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindZstd:
		return "zstd"
	case KindLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "none":
		return KindNone, nil
	case "zstd", "":
		return KindZstd, nil
	case "lz4":
		return KindLZ4, nil
	}
	return 0, fmt.Errorf("unknown codec %q", name)
}

// Codec encodes and decodes candle blocks. A Codec is safe for concurrent use.
type Codec struct {
	kind  Kind
	level int

	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// New creates a codec writing blobs with the given compressor. level is
// compressor specific: 1 (fastest) to 4 (best) for zstd, 0 to 9 for lz4.
// Decoding accepts every known kind regardless of kind.
func New(kind Kind, level int) (*Codec, error) {
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{kind: kind, level: level, zenc: zenc, zdec: zdec}, nil
}

// Kind returns the compressor used for new blobs.
func (c *Codec) Kind() Kind { return c.kind }

// Encode serializes and compresses candles.
func (c *Codec) Encode(candles []model.Candle) ([]byte, error) {
	raw := Marshal(candles)
	out := make([]byte, 1, len(raw)/2+16)
	out[0] = byte(c.kind)

	switch c.kind {
	case KindNone:
		return append(out, raw...), nil
	case KindZstd:
		return c.zenc.EncodeAll(raw, out), nil
	case KindLZ4:
		var buf bytes.Buffer
		buf.Write(out)
		w := lz4.NewWriter(&buf)
		if err := w.Apply(lz4.CompressionLevelOption(lz4Level(c.level))); err != nil {
			return nil, fmt.Errorf("lz4 options: %w", err)
		}
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("encode: unknown codec kind %d", c.kind)
}

// Decode decompresses and deserializes a blob written by any Codec.
func (c *Codec) Decode(blob []byte) ([]model.Candle, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorrupt)
	}
	payload := blob[1:]
	var raw []byte
	switch Kind(blob[0]) {
	case KindNone:
		raw = payload
	case KindZstd:
		var err error
		raw, err = c.zdec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
	case KindLZ4:
		var err error
		raw, err = io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown codec kind %d", ErrCorrupt, blob[0])
	}
	return Unmarshal(raw)
}

// Close releases encoder and decoder resources.
func (c *Codec) Close() {
	c.zenc.Close()
	c.zdec.Close()
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level == 2:
		return zstd.SpeedDefault
	case level == 3:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func lz4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= 0:
		return lz4.Fast
	case level >= 9:
		return lz4.Level9
	}
	return lz4.CompressionLevel(1 << (8 + level))
}
