package model

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DefaultPriceDigits matches the eight fractional digits Binance quotes with.
const DefaultPriceDigits = 8

// PriceScale converts between exchange decimal strings, scaled int64 prices
// and display floats. Digits is the number of fractional digits kept.
type PriceScale struct {
	Digits int32
}

// NewPriceScale returns a scale keeping the given fractional digits.
func NewPriceScale(digits int32) PriceScale {
	return PriceScale{Digits: digits}
}

// Parse converts a decimal string into a scaled integer. Values carrying more
// precision than Digits are rejected rather than rounded.
func (s PriceScale) Parse(v string) (int64, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", v, err)
	}
	shifted := d.Shift(s.Digits)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("parse price %q: more than %d fractional digits", v, s.Digits)
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || shifted.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("parse price %q: out of range", v)
	}
	return shifted.IntPart(), nil
}

// Float converts a scaled integer to a float64 for display and indicators.
func (s PriceScale) Float(v int64) float64 {
	return float64(v) / math.Pow10(int(s.Digits))
}

// String formats a scaled integer with exactly Digits fractional digits.
func (s PriceScale) String(v int64) string {
	return decimal.New(v, -s.Digits).StringFixed(s.Digits)
}
