package viewport

import "math"

// ZoomSensitivity is the fraction of the visible range added or removed per
// zoom step.
const ZoomSensitivity = 0.05

// MinVisibleBars is the smallest visible range zoom allows.
const MinVisibleBars = 2

// SetVisibleRange sets [start, end), clamped to the bar vector.
func (w *Window) SetVisibleRange(start, end int) {
	n := len(w.bars)
	start = clamp(start, 0, n)
	end = clamp(end, start, n)
	w.start, w.end = start, end
}

// Zoom narrows (amount > 0) or widens (amount < 0) the visible range by
// max(1, 5% of the range) bars on each side, keeping at least two bars.
func (w *Window) Zoom(amount float64) {
	n := len(w.bars)
	start, end := w.start, w.end
	if n == 0 || end <= start || amount == 0 {
		return
	}
	step := int(math.Max(float64(end-start)*ZoomSensitivity, 1))

	if amount > 0 {
		start = min(start+step, end-MinVisibleBars)
		end = min(max(end-step, start+MinVisibleBars), n)
	} else {
		start = max(start-step, 0)
		end = min(end+step, n)
	}

	start = max(start, 0)
	end = min(max(end, start+MinVisibleBars), n)
	if end-start < MinVisibleBars {
		start = max(end-MinVisibleBars, 0)
	}
	w.start, w.end = start, end
}

// Pan moves the view by deltaX pixels on a chart widthPx wide. Offsets
// accumulate until they reach whole bar slots, which then shift the visible
// range; the rest stays in PixelOffset for smooth rendering. Dragging left
// while the newest bar is visible is ignored.
func (w *Window) Pan(deltaX, widthPx float64) {
	n := len(w.bars)
	count := w.end - w.start
	if count <= 0 || widthPx <= 0 || deltaX == 0 {
		return
	}
	if w.end >= n && deltaX < 0 {
		return
	}

	w.pixelOffset += deltaX
	slot := widthPx / float64(count)
	shift := int(math.Round(w.pixelOffset / slot))
	if shift == 0 {
		return
	}

	start := clamp(w.start-shift, 0, max(n-count, 0))
	w.start = start
	w.end = min(start+count, n)
	w.pixelOffset -= float64(shift) * slot
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
