package viewport

import (
	"math"
	"strconv"
)

// priceFractionThreshold hides the fraction of prices above 1 whose
// fractional part is below it.
const priceFractionThreshold = 0.01

// FormatPrice renders an axis label: values from 1e3 get a "k" suffix and
// from 1e6 an "m" suffix with one decimal; smaller values get two decimals.
// Round values drop the decimals.
func FormatPrice(price float64) string {
	abs := math.Abs(price)
	value, suffix, decimals := price, "", 2
	switch {
	case abs >= 1_000_000:
		value, suffix, decimals = price/1_000_000, "m", 1
	case abs >= 1_000:
		value, suffix, decimals = price/1_000, "k", 1
	}

	tol := 1e-9
	if suffix != "" {
		tol = math.Pow10(-(decimals + 1))
	}
	_, frac := math.Modf(value)
	frac = math.Abs(frac)

	switch {
	case frac < tol:
		return strconv.FormatFloat(value, 'f', 0, 64) + suffix
	case suffix == "" && abs > 1 && frac < priceFractionThreshold:
		return strconv.FormatFloat(value, 'f', 0, 64)
	}
	return strconv.FormatFloat(value, 'f', decimals, 64) + suffix
}

// NiceRange widens [min, max] to boundaries that are multiples of a "nice"
// tick (1, 2, 5 or 10 times a power of ten) giving roughly ticks labels.
func NiceRange(min, max float64, ticks int) (niceMin, niceMax, tick float64) {
	rng := math.Max(max-min, 1e-9)
	if rng <= 1e-9 {
		return min, max, 1
	}
	if ticks < 2 {
		ticks = 2
	}
	spacing := rng / float64(ticks-1)
	magnitude := math.Pow(10, math.Floor(math.Log10(spacing)))
	if magnitude <= 1e-9 {
		return min, max, spacing
	}

	var nice float64
	switch normalized := spacing / magnitude; {
	case normalized <= 1.5:
		nice = 1
	case normalized <= 3:
		nice = 2
	case normalized <= 7:
		nice = 5
	default:
		nice = 10
	}
	tick = math.Max(nice*magnitude, 1e-9)

	niceMin = math.Floor(min/tick) * tick
	niceMax = math.Ceil(max/tick) * tick
	if (niceMax-niceMin)/tick > 1000 {
		return min, max, rng / 4
	}
	return niceMin, niceMax, tick
}

// Ticks lists the tick values from niceMin to niceMax inclusive.
func Ticks(niceMin, niceMax, tick float64) []float64 {
	if tick <= 0 || niceMax < niceMin {
		return nil
	}
	n := int(math.Round((niceMax-niceMin)/tick)) + 1
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, niceMin+float64(i)*tick)
	}
	return out
}
