package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

// ErrRateLimited is matched (errors.Is) by source errors that signal an
// upstream rate limit.
var ErrRateLimited = errors.New("rate limited")

// ConsistencyError reports a batch whose open times are not spaced exactly
// one minute apart, or that does not continue the expected next timestamp.
// Nothing from the offending batch is persisted.
type ConsistencyError struct {
	Symbol string
	Prev   int64 // open time before the gap (expected predecessor)
	Next   int64 // open time found after the gap
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency: %s: gap between %s and %s (%d minutes missing)",
		e.Symbol,
		time.UnixMilli(e.Prev).UTC().Format(time.RFC3339),
		time.UnixMilli(e.Next).UTC().Format(time.RFC3339),
		e.Gap())
}

// Gap is the number of missing minutes; negative for overlaps.
func (e *ConsistencyError) Gap() int64 {
	return (e.Next-e.Prev)/model.MinuteMs - 1
}

// FetchError wraps a failed upstream request. Only fetch errors are retried
// in continuous mode.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// retryAfter is implemented by source errors carrying a server-side delay.
type retryAfter interface {
	Delay() time.Duration
}
