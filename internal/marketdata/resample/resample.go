// Package resample merges contiguous 1m candles into bars of a fixed number
// of minutes. Candles that do not yet fill a bar are returned as a
// remainder and prepended to the next call, so a series fed in any number
// of chunks produces the same bars as one call over the whole series.
package resample

import (
	"github.com/sdlab1/n-ohlcv/internal/indicator"
	"github.com/sdlab1/n-ohlcv/internal/model"
)

// MaxTimeframe is the largest supported bar size in minutes (one day).
const MaxTimeframe = 1440

// Convert groups remainder+candles into bars of timeframe candles each.
// Leftover candles are returned as the new remainder, unless forceFlush is
// set, in which case they are emitted as one partial bar marked Live and
// the remainder is empty. Timeframes below 1 are treated as 1.
// Neither input slice is modified.
func Convert(candles []model.Candle, timeframe int, forceFlush bool, remainder []model.Candle, scale model.PriceScale) ([]model.Bar, []model.Candle) {
	if timeframe < 1 {
		timeframe = 1
	}
	all := candles
	if len(remainder) > 0 {
		all = make([]model.Candle, 0, len(remainder)+len(candles))
		all = append(all, remainder...)
		all = append(all, candles...)
	}

	full := len(all) / timeframe
	bars := make([]model.Bar, 0, full+1)
	for i := 0; i < full; i++ {
		bars = append(bars, merge(all[i*timeframe:(i+1)*timeframe], scale))
	}

	rest := all[full*timeframe:]
	if len(rest) == 0 {
		return bars, nil
	}
	if forceFlush {
		live := merge(rest, scale)
		live.Live = true
		return append(bars, live), nil
	}
	return bars, append([]model.Candle(nil), rest...)
}

// merge folds a non-empty group into a bar: first open, max high, min low,
// last close, summed volume. Scaled prices become floats here and only here.
func merge(group []model.Candle, scale model.PriceScale) model.Bar {
	first := group[0]
	high, low := first.High, first.Low
	var vol float64
	for i := range group {
		c := &group[i]
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
		vol += c.Volume
	}
	return model.Bar{
		Time:   first.OpenTime,
		Open:   scale.Float(first.Open),
		High:   scale.Float(high),
		Low:    scale.Float(low),
		Close:  scale.Float(group[len(group)-1].Close),
		Volume: vol,
		Count:  len(group),
	}
}

// Resampler carries the remainder and an RSI across Feed calls. It is
// single-owner: the session that rebuilds the chart owns one.
type Resampler struct {
	timeframe int
	scale     model.PriceScale
	remainder []model.Candle
	rsi       *indicator.RSI // nil when disabled

	// OnBar is called for each emitted bar (optional).
	OnBar func(b model.Bar)
}

// New creates a resampler. rsiPeriod <= 0 disables the indicator.
func New(timeframe int, scale model.PriceScale, rsiPeriod int) *Resampler {
	if timeframe < 1 {
		timeframe = 1
	}
	r := &Resampler{timeframe: timeframe, scale: scale}
	if rsiPeriod > 0 {
		r.rsi = indicator.NewRSI(rsiPeriod)
	}
	return r
}

// Timeframe returns the bar size in minutes.
func (r *Resampler) Timeframe() int { return r.timeframe }

// Feed resamples the next chunk. Closed bars advance the RSI in the same
// traversal; a Live bar only peeks at it, so the carried state always
// reflects closed bars.
func (r *Resampler) Feed(candles []model.Candle, forceFlush bool) []model.Bar {
	bars, rem := Convert(candles, r.timeframe, forceFlush, r.remainder, r.scale)
	r.remainder = rem
	for i := range bars {
		b := &bars[i]
		if r.rsi != nil {
			if b.Live {
				b.RSI, b.RSIReady = r.rsi.Peek(b.Close)
			} else {
				b.RSI, b.RSIReady = r.rsi.Add(b.Close)
			}
		}
		if r.OnBar != nil {
			r.OnBar(*b)
		}
	}
	return bars
}

// Remainder returns a copy of the candles waiting to fill the next bar.
func (r *Resampler) Remainder() []model.Candle {
	return append([]model.Candle(nil), r.remainder...)
}

// IndicatorState returns the carried RSI state (zero State when disabled).
func (r *Resampler) IndicatorState() indicator.State {
	if r.rsi == nil {
		return indicator.State{}
	}
	return r.rsi.State()
}

// Resume continues a series from a previously captured remainder and RSI
// state.
func (r *Resampler) Resume(remainder []model.Candle, st indicator.State) error {
	if r.rsi != nil && st.Type != "" {
		if err := r.rsi.Restore(st); err != nil {
			return err
		}
	}
	r.remainder = append([]model.Candle(nil), remainder...)
	return nil
}
