// Package viewport holds the bars shown on a chart and answers the queries
// a renderer needs per frame: the visible slice, its price extrema and its
// maximum volume. Extrema come from two index permutations sorted by low
// and by high, so most queries stop after a few lookups; results are cached
// until the visible range changes.
package viewport

import (
	"sort"

	"github.com/sdlab1/n-ohlcv/internal/model"
)

// DefaultWindowSize is the number of bars visible after SetBars.
const DefaultWindowSize = 200

// Window is the chart's data window. It is single-owner and not safe for
// concurrent use.
type Window struct {
	bars []model.Bar

	start, end  int     // visible range [start, end)
	pixelOffset float64 // sub-bar pan offset in pixels
	size        int     // bars shown after SetBars

	minIndexes []int // bar indexes by ascending Low
	maxIndexes []int // bar indexes by descending High

	priceKey   [2]int
	priceValid bool
	priceMin   float64
	priceMax   float64

	volKey   [2]int
	volValid bool
	maxVol   float64
}

// New creates an empty window showing size bars after each SetBars.
func New(size int) *Window {
	if size < 1 {
		size = DefaultWindowSize
	}
	return &Window{size: size}
}

// SetBars replaces the bar vector, rebuilds both index permutations, shows
// the last size bars, resets the pan offset and drops cached extrema.
func (w *Window) SetBars(bars []model.Bar) {
	w.bars = bars
	w.buildIndexes()
	w.end = len(bars)
	w.start = max(0, w.end-w.size)
	w.pixelOffset = 0
	w.invalidate()
}

func (w *Window) buildIndexes() {
	n := len(w.bars)
	w.minIndexes = make([]int, n)
	w.maxIndexes = make([]int, n)
	for i := 0; i < n; i++ {
		w.minIndexes[i] = i
		w.maxIndexes[i] = i
	}
	sort.SliceStable(w.minIndexes, func(a, b int) bool {
		return w.bars[w.minIndexes[a]].Low < w.bars[w.minIndexes[b]].Low
	})
	sort.SliceStable(w.maxIndexes, func(a, b int) bool {
		return w.bars[w.maxIndexes[a]].High > w.bars[w.maxIndexes[b]].High
	})
}

func (w *Window) invalidate() {
	w.priceValid = false
	w.volValid = false
}

// Bars returns all bars.
func (w *Window) Bars() []model.Bar { return w.bars }

// Len returns the number of bars.
func (w *Window) Len() int { return len(w.bars) }

// Size returns the number of bars shown after SetBars.
func (w *Window) Size() int { return w.size }

// VisibleRange returns the visible half-open range [start, end).
func (w *Window) VisibleRange() (start, end int) { return w.start, w.end }

// VisibleBars returns the visible slice (shares the underlying array).
func (w *Window) VisibleBars() []model.Bar { return w.bars[w.start:w.end] }

// PixelOffset returns the sub-bar pan offset in pixels.
func (w *Window) PixelOffset() float64 { return w.pixelOffset }

// PriceExtrema returns the lowest Low and highest High over the visible
// range. An empty range yields (0, 1). A flat range, where every High equals
// every Low, yields (min, min+1) rather than (min, min): max is then not the
// highest High a plain scan would report, but callers can always divide by
// max-min.
func (w *Window) PriceExtrema() (min, max float64) {
	key := [2]int{w.start, w.end}
	if w.priceValid && w.priceKey == key {
		return w.priceMin, w.priceMax
	}

	if w.start >= w.end {
		min, max = 0, 1
	} else {
		var okMin, okMax bool
		min, okMin = w.firstInRange(w.minIndexes, func(b *model.Bar) float64 { return b.Low })
		max, okMax = w.firstInRange(w.maxIndexes, func(b *model.Bar) float64 { return b.High })
		if !okMin || !okMax {
			min, max = w.scanExtrema()
		}
		if min >= max {
			max = min + 1
		}
	}

	w.priceKey, w.priceValid = key, true
	w.priceMin, w.priceMax = min, max
	return min, max
}

// firstInRange walks a sorted permutation and returns the value of the first
// bar inside the visible range.
func (w *Window) firstInRange(indexes []int, value func(*model.Bar) float64) (float64, bool) {
	for _, i := range indexes {
		if i >= w.start && i < w.end {
			return value(&w.bars[i]), true
		}
	}
	return 0, false
}

func (w *Window) scanExtrema() (float64, float64) {
	vis := w.bars[w.start:w.end]
	lo, hi := vis[0].Low, vis[0].High
	for i := 1; i < len(vis); i++ {
		lo = minFloat(lo, vis[i].Low)
		hi = maxFloat(hi, vis[i].High)
	}
	return lo, hi
}

// MaxVolume returns the largest volume in the visible range (0 when empty).
func (w *Window) MaxVolume() float64 {
	key := [2]int{w.start, w.end}
	if w.volValid && w.volKey == key {
		return w.maxVol
	}
	var m float64
	for i := w.start; i < w.end; i++ {
		m = maxFloat(m, w.bars[i].Volume)
	}
	w.volKey, w.volValid, w.maxVol = key, true, m
	return m
}

func minFloat(a, b float64) float64 {
	if b < a {
		return b
	}
	return a
}

func maxFloat(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}
