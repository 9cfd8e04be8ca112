package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple sync and query logic from the concrete block
// store (SQLite) and the upstream exchange client (Binance REST).

// BlockWriter persists full blocks and the pointers that describe them.
type BlockWriter interface {
	// InsertBlock atomically stores one full block and advances the
	// symbol's last/first pointers.
	InsertBlock(ctx context.Context, symbol string, blockStart int64, candles []Candle) error

	// LastTimestamp returns the open time of the last persisted candle,
	// or 0 when nothing is persisted for symbol.
	LastTimestamp(ctx context.Context, symbol string) (int64, error)
}

// BlockReader loads persisted blocks.
type BlockReader interface {
	// GetBlock returns ok=false with a nil error when the block is absent.
	GetBlock(ctx context.Context, symbol string, blockStart int64) (candles []Candle, ok bool, err error)

	// LastTimestamp returns 0 when nothing is persisted for symbol.
	LastTimestamp(ctx context.Context, symbol string) (int64, error)

	// FirstTimestamp returns 0 when nothing is persisted for symbol.
	FirstTimestamp(ctx context.Context, symbol string) (int64, error)
}

// BlockStore is both sides of the compressed block store.
type BlockStore interface {
	BlockWriter
	BlockReader
}

// KlineSource fetches 1m candles from the exchange.
type KlineSource interface {
	// FetchKlines returns up to limit candles with open time in
	// [startMs, endMs], ascending.
	FetchKlines(ctx context.Context, symbol string, startMs, endMs int64, limit int) ([]Candle, error)
}
