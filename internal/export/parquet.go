// Package export moves candles between the block store and Parquet files.
package export

import (
	"errors"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

// CandleRow is one 1m candle on disk. Prices stay scaled integers; Digits
// records the scale.
type CandleRow struct {
	Symbol   string  `parquet:"symbol,dict"`
	OpenTime int64   `parquet:"open_time"`
	Open     int64   `parquet:"open"`
	High     int64   `parquet:"high"`
	Low      int64   `parquet:"low"`
	Close    int64   `parquet:"close"`
	Volume   float64 `parquet:"volume"`
	Digits   int32   `parquet:"price_digits"`
}

// BarRow is one resampled bar on disk.
type BarRow struct {
	Symbol    string  `parquet:"symbol,dict"`
	Timeframe int32   `parquet:"timeframe"`
	Time      int64   `parquet:"time"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
	Count     int32   `parquet:"count"`
	RSI       float64 `parquet:"rsi,optional"`
	RSIReady  bool    `parquet:"rsi_ready"`
}

// ErrEmpty is returned when a file holds no rows.
var ErrEmpty = errors.New("export: no rows")

// WriteCandles writes candles of one symbol to path.
func WriteCandles(path, symbol string, scale model.PriceScale, candles []model.Candle) error {
	rows := make([]CandleRow, len(candles))
	for i, c := range candles {
		rows[i] = CandleRow{
			Symbol:   symbol,
			OpenTime: c.OpenTime,
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Volume:   c.Volume,
			Digits:   scale.Digits,
		}
	}
	if err := parquet.WriteFile(path, rows, parquet.Compression(&parquet.Zstd)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadCandles reads a file written by WriteCandles. Every row must carry
// the same symbol and price scale.
func ReadCandles(path string) (string, model.PriceScale, []model.Candle, error) {
	rows, err := parquet.ReadFile[CandleRow](path)
	if err != nil {
		return "", model.PriceScale{}, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return "", model.PriceScale{}, nil, ErrEmpty
	}

	symbol, digits := rows[0].Symbol, rows[0].Digits
	candles := make([]model.Candle, len(rows))
	for i, r := range rows {
		if r.Symbol != symbol || r.Digits != digits {
			return "", model.PriceScale{}, nil, fmt.Errorf("read %s: row %d is %s/%d digits, want %s/%d", path, i, r.Symbol, r.Digits, symbol, digits)
		}
		candles[i] = model.Candle{
			OpenTime: r.OpenTime,
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
		}
	}
	return symbol, model.NewPriceScale(digits), candles, nil
}

// WriteBars writes resampled bars of one symbol to path.
func WriteBars(path, symbol string, timeframe int, bars []model.Bar) error {
	rows := make([]BarRow, len(bars))
	for i, b := range bars {
		rows[i] = BarRow{
			Symbol:    symbol,
			Timeframe: int32(timeframe),
			Time:      b.Time,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Count:     int32(b.Count),
			RSI:       b.RSI,
			RSIReady:  b.RSIReady,
		}
	}
	if err := parquet.WriteFile(path, rows, parquet.Compression(&parquet.Zstd)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SplitBlocks cuts candles into full, aligned, contiguous blocks. Candles
// that cannot complete a block are returned as skipped.
func SplitBlocks(candles []model.Candle) (blocks [][]model.Candle, skipped int) {
	i := 0
	for i < len(candles) {
		start := candles[i].OpenTime
		if model.BlockStart(start) != start || i+model.BlockSize > len(candles) {
			i++
			skipped++
			continue
		}
		block := candles[i : i+model.BlockSize]
		if model.ValidateBlock(start, block) != nil {
			i++
			skipped++
			continue
		}
		blocks = append(blocks, block)
		i += model.BlockSize
	}
	return blocks, skipped
}
