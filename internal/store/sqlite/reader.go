package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

// GetBlock loads and decodes one block. Absence is ok=false with a nil
// error; a blob that fails to decode returns an error wrapping
// codec.ErrCorrupt.
func (s *Store) GetBlock(ctx context.Context, symbol string, blockStart int64) ([]model.Candle, bool, error) {
	key := model.BlockKey(symbol, blockStart)
	var blob []byte
	err := s.reader.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	candles, err := s.codec.Decode(blob)
	if err != nil {
		return nil, false, fmt.Errorf("block %s: %w", key, err)
	}
	return candles, true, nil
}

// LastTimestamp returns the open time of the last persisted candle for
// symbol, or 0 if none.
func (s *Store) LastTimestamp(ctx context.Context, symbol string) (int64, error) {
	return readPointer(ctx, s.reader, model.LastKey(symbol))
}

// FirstTimestamp returns the first persisted block start for symbol, or 0.
func (s *Store) FirstTimestamp(ctx context.Context, symbol string) (int64, error) {
	return readPointer(ctx, s.reader, model.FirstKey(symbol))
}

// BlockStarts lists the persisted block starts for symbol in ascending order.
func (s *Store) BlockStarts(ctx context.Context, symbol string) ([]int64, error) {
	prefix := symbol + "_"
	rows, err := s.reader.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite list %s: %w", symbol, err)
	}
	defer rows.Close()

	var starts []int64
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite scan key: %w", err)
		}
		// another symbol may share the prefix (e.g. "BTC" and "BTC_X")
		ts, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
		if err != nil {
			continue
		}
		starts = append(starts, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}
