package model

import (
	"fmt"
	"strconv"
)

const (
	// BlockSize is the number of contiguous 1m candles in a persisted block.
	BlockSize = 1000

	// BlockSpanMs is the time covered by one block.
	BlockSpanMs = BlockSize * MinuteMs
)

// BlockStart returns the aligned block start containing t (ms).
func BlockStart(t int64) int64 {
	if t < 0 {
		return ((t - BlockSpanMs + 1) / BlockSpanMs) * BlockSpanMs
	}
	return (t / BlockSpanMs) * BlockSpanMs
}

// BlockKey returns the persistence key "{symbol}_{blockStart}".
func BlockKey(symbol string, blockStart int64) string {
	return symbol + "_" + strconv.FormatInt(blockStart, 10)
}

// LastKey returns the key of the last-persisted-timestamp pointer.
func LastKey(symbol string) string {
	return "last_" + symbol
}

// FirstKey returns the key of the first-persisted-timestamp pointer.
func FirstKey(symbol string) string {
	return "first_" + symbol
}

// CheckContiguous verifies that consecutive open times differ by exactly
// MinuteMs. It returns the index of the first offending candle (the later
// of the pair) or -1 when the slice is contiguous.
func CheckContiguous(candles []Candle) int {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime-candles[i-1].OpenTime != MinuteMs {
			return i
		}
	}
	return -1
}

// ValidateBlock checks that candles form one full, aligned, contiguous block
// starting at blockStart.
func ValidateBlock(blockStart int64, candles []Candle) error {
	if len(candles) != BlockSize {
		return fmt.Errorf("block %d: %d candles, want %d", blockStart, len(candles), BlockSize)
	}
	if BlockStart(blockStart) != blockStart {
		return fmt.Errorf("block %d: start is not aligned to %d ms", blockStart, BlockSpanMs)
	}
	if candles[0].OpenTime != blockStart {
		return fmt.Errorf("block %d: first candle at %d", blockStart, candles[0].OpenTime)
	}
	if i := CheckContiguous(candles); i >= 0 {
		return fmt.Errorf("block %d: gap between %d and %d", blockStart, candles[i-1].OpenTime, candles[i].OpenTime)
	}
	return nil
}
