package indicator

import (
	"fmt"
	"strconv"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// The first close is the reference point and counts as a zero-change
// observation, so sample P (the period) is the first to produce a value,
// seeded by the simple average of P observations.
// Add is O(1) per close. There is no reset; a series is continued across
// calls or processes with State and Restore.
type RSI struct {
	period    int
	count     int
	prevClose float64
	sumGain   float64
	sumLoss   float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI with the given period (typically 14). Periods
// below 1 are treated as 1.
func NewRSI(period int) *RSI {
	if period < 1 {
		period = 1
	}
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

// Period returns the smoothing period.
func (r *RSI) Period() int { return r.period }

// Add feeds the next close.
func (r *RSI) Add(close float64) (float64, bool) {
	r.count++
	var gain, loss float64
	if r.count > 1 {
		if d := close - r.prevClose; d > 0 {
			gain = d
		} else {
			loss = -d
		}
	}
	r.prevClose = close

	p := float64(r.period)
	switch {
	case r.count < r.period:
		r.sumGain += gain
		r.sumLoss += loss
		return 0, false
	case r.count == r.period:
		r.sumGain += gain
		r.sumLoss += loss
		r.avgGain = r.sumGain / p
		r.avgLoss = r.sumLoss / p
	default:
		// Wilder's smoothing
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}
	r.current = rsi(r.avgGain, r.avgLoss)
	return r.current, true
}

// Peek computes the value Add(close) would return without mutating state.
func (r *RSI) Peek(close float64) (float64, bool) {
	cp := *r
	return cp.Add(close)
}

// Value returns the last computed RSI (0 before Ready).
func (r *RSI) Value() float64 { return r.current }

// Ready returns true once a value has been produced.
func (r *RSI) Ready() bool { return r.count >= r.period }

func rsi(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// State returns the carried state, for continuing the series elsewhere.
func (r *RSI) State() State {
	return State{
		Type:      "RSI",
		Period:    r.period,
		Count:     r.count,
		PrevClose: r.prevClose,
		SumGain:   r.sumGain,
		SumLoss:   r.sumLoss,
		AvgGain:   r.avgGain,
		AvgLoss:   r.avgLoss,
		Current:   r.current,
	}
}

// Restore continues the series from a State produced by State.
func (r *RSI) Restore(s State) error {
	if s.Type != "RSI" {
		return fmt.Errorf("restore RSI: state type %q", s.Type)
	}
	if s.Period < 1 || s.Count < 0 {
		return fmt.Errorf("restore RSI: invalid period %d / count %d", s.Period, s.Count)
	}
	r.period = s.Period
	r.count = s.Count
	r.prevClose = s.PrevClose
	r.sumGain = s.SumGain
	r.sumLoss = s.SumLoss
	r.avgGain = s.AvgGain
	r.avgLoss = s.AvgLoss
	r.current = s.Current
	return nil
}
