package model

import "time"

// MinuteMs is the spacing between consecutive 1m candle open times.
const MinuteMs int64 = 60_000

// Candle is a closed (or forming) 1-minute OHLCV candle for one symbol.
// Prices are scaled integers (see PriceScale) so block persistence and
// resampling never accumulate floating-point drift.
type Candle struct {
	OpenTime int64   `json:"open_time"` // ms since epoch, multiple of MinuteMs
	Open     int64   `json:"open"`
	High     int64   `json:"high"`
	Low      int64   `json:"low"`
	Close    int64   `json:"close"`
	Volume   float64 `json:"volume"`
}

// Time returns the open time as a UTC time.Time.
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// Minute returns the minute-of-hour of the open time.
func (c *Candle) Minute() int {
	return int((c.OpenTime / MinuteMs) % 60)
}
