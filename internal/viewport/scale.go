package viewport

// maxBarWidth caps the drawn body of a bar in pixels.
const maxBarWidth = 5.0

// PriceScale maps prices in [Min, Max] linearly onto pixel rows in
// [Top, Bottom]; Top is the row for Max.
type PriceScale struct {
	Min, Max    float64
	Top, Bottom float64
}

// NewPriceScale builds a scale. A degenerate domain is widened to one unit.
func NewPriceScale(min, max, top, bottom float64) PriceScale {
	if max <= min {
		max = min + 1
	}
	return PriceScale{Min: min, Max: max, Top: top, Bottom: bottom}
}

// Y returns the pixel row for price.
func (s PriceScale) Y(price float64) float64 {
	frac := (price - s.Min) / (s.Max - s.Min)
	return s.Bottom - frac*(s.Bottom-s.Top)
}

// Price returns the price at pixel row y.
func (s PriceScale) Price(y float64) float64 {
	frac := (s.Bottom - y) / (s.Bottom - s.Top)
	return s.Min + frac*(s.Max-s.Min)
}

// PriceScale returns the scale for the visible price extrema.
func (w *Window) PriceScale(top, bottom float64) PriceScale {
	lo, hi := w.PriceExtrema()
	return NewPriceScale(lo, hi, top, bottom)
}

// BarX returns the left and right pixel edges of the bar drawn in visible
// slot i of count slots on a chart starting at left and widthPx wide.
func BarX(i, count int, left, widthPx, pixelOffset float64) (x0, x1 float64) {
	if count <= 0 {
		return left, left
	}
	slot := widthPx / float64(count)
	bw := min(slot*0.9, maxBarWidth)
	center := left + (float64(i)+0.5)*slot
	return center - bw/2 + pixelOffset, center + bw/2 + pixelOffset
}
