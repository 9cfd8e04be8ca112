// Package indicator provides streaming technical indicators over resampled
// bar closes. Indicators consume one value at a time and keep O(1) state,
// so a series split across many calls yields the same outputs as one pass.
package indicator

// Indicator is the interface for streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "RSI_14").
	Name() string

	// Add feeds the next close and returns the new value. ok is false
	// while the warm-up period is not complete.
	Add(close float64) (value float64, ok bool)

	// Peek returns what Add would return for close WITHOUT mutating
	// state. Used for the live, still-forming bar.
	Peek(close float64) (value float64, ok bool)

	// Ready returns true once Add has produced a value.
	Ready() bool
}
