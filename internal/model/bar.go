package model

import "time"

// Bar is a resampled OHLCV bar for the configured timeframe. Values are
// floats: conversion from the scaled candle representation happens once,
// when the resampler emits the bar.
type Bar struct {
	Time   int64   `json:"time"` // open time of the first merged candle (ms)
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Count  int     `json:"count"` // number of 1m candles merged

	RSI      float64 `json:"rsi"`
	RSIReady bool    `json:"rsi_ready"`
	Live     bool    `json:"live"` // true for the force-flushed partial bar
}

// Timestamp returns the bar open time as a UTC time.Time.
func (b *Bar) Timestamp() time.Time {
	return time.UnixMilli(b.Time).UTC()
}
