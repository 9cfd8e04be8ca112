package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

const layoutVersion byte = 1

// Marshal writes candles in the block layout:
//
//	version byte | uvarint count | varint first open time
//	per candle: varint time delta (after the first), varint open-prevClose,
//	varint high-open, varint low-open, varint close-open, 8 byte LE volume bits
//
// Contiguous 1m data makes every time delta 60000, so the layout compresses
// to a fraction of its size.
func Marshal(candles []model.Candle) []byte {
	buf := make([]byte, 0, 2+len(candles)*16)
	buf = append(buf, layoutVersion)
	buf = binary.AppendUvarint(buf, uint64(len(candles)))
	if len(candles) == 0 {
		return buf
	}

	var prevTime, prevClose int64
	for i, c := range candles {
		if i == 0 {
			buf = binary.AppendVarint(buf, c.OpenTime)
		} else {
			buf = binary.AppendVarint(buf, c.OpenTime-prevTime)
		}
		buf = binary.AppendVarint(buf, c.Open-prevClose)
		buf = binary.AppendVarint(buf, c.High-c.Open)
		buf = binary.AppendVarint(buf, c.Low-c.Open)
		buf = binary.AppendVarint(buf, c.Close-c.Open)
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c.Volume))
		prevTime, prevClose = c.OpenTime, c.Close
	}
	return buf
}

// Unmarshal parses the block layout. Any truncation or trailing garbage is
// reported as ErrCorrupt.
func Unmarshal(raw []byte) ([]model.Candle, error) {
	r := reader{buf: raw}
	if v := r.byte(); v != layoutVersion {
		if r.err != nil {
			return nil, r.err
		}
		return nil, fmt.Errorf("%w: layout version %d", ErrCorrupt, v)
	}
	n := r.uvarint()
	if r.err != nil {
		return nil, r.err
	}
	// each candle takes at least 13 bytes
	if n > uint64(len(raw))/13+1 {
		return nil, fmt.Errorf("%w: count %d exceeds payload", ErrCorrupt, n)
	}

	candles := make([]model.Candle, n)
	var prevTime, prevClose int64
	for i := range candles {
		c := &candles[i]
		if i == 0 {
			c.OpenTime = r.varint()
		} else {
			c.OpenTime = prevTime + r.varint()
		}
		c.Open = prevClose + r.varint()
		c.High = c.Open + r.varint()
		c.Low = c.Open + r.varint()
		c.Close = c.Open + r.varint()
		c.Volume = math.Float64frombits(r.uint64())
		if r.err != nil {
			return nil, r.err
		}
		prevTime, prevClose = c.OpenTime, c.Close
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf))
	}
	return candles, nil
}

// reader consumes the layout and latches the first error.
type reader struct {
	buf []byte
	err error
}

func (r *reader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated %s", ErrCorrupt, what)
	}
	r.buf = nil
}

func (r *reader) byte() byte {
	if len(r.buf) < 1 {
		r.fail("header")
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *reader) uvarint() uint64 {
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail("uvarint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) varint() int64 {
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.fail("varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) uint64() uint64 {
	if len(r.buf) < 8 {
		r.fail("volume")
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}
