package viewport

import "testing"

func TestZoom_InAndOut(t *testing.T) {
	w := New(200)
	w.SetBars(makeBars(1000, 1))

	w.Zoom(1)
	if s, e := w.VisibleRange(); s != 810 || e != 990 {
		t.Errorf("zoom in: expected [810,990), got [%d,%d)", s, e)
	}
	w.Zoom(-1)
	if s, e := w.VisibleRange(); s != 801 || e != 999 {
		t.Errorf("zoom out: expected [801,999), got [%d,%d)", s, e)
	}
}

func TestZoom_KeepsTwoBars(t *testing.T) {
	w := New(200)
	w.SetBars(makeBars(300, 2))
	for i := 0; i < 500; i++ {
		w.Zoom(1)
		s, e := w.VisibleRange()
		if e-s < MinVisibleBars || s < 0 || e > w.Len() {
			t.Fatalf("step %d: invalid range [%d,%d)", i, s, e)
		}
	}
	if s, e := w.VisibleRange(); e-s != MinVisibleBars {
		t.Errorf("expected fully zoomed in to %d bars, got %d", MinVisibleBars, e-s)
	}
}

func TestZoom_OutStopsAtBounds(t *testing.T) {
	w := New(50)
	w.SetBars(makeBars(120, 3))
	for i := 0; i < 100; i++ {
		w.Zoom(-1)
	}
	if s, e := w.VisibleRange(); s != 0 || e != 120 {
		t.Errorf("expected [0,120), got [%d,%d)", s, e)
	}
}

func TestZoom_TinyAndEmpty(t *testing.T) {
	w := New(10)
	w.Zoom(1) // no bars: no-op
	w.SetBars(makeBars(1, 4))
	w.Zoom(1)
	if s, e := w.VisibleRange(); s != 0 || e != 1 {
		t.Errorf("expected [0,1), got [%d,%d)", s, e)
	}
}

func TestPan_IgnoresLeftDragAtRightEdge(t *testing.T) {
	w := New(100)
	w.SetBars(makeBars(500, 5))
	w.Pan(-50, 1000)
	if s, e := w.VisibleRange(); s != 400 || e != 500 || w.PixelOffset() != 0 {
		t.Errorf("expected no change, got [%d,%d) offset %v", s, e, w.PixelOffset())
	}
}

func TestPan_ShiftsWholeSlots(t *testing.T) {
	w := New(100)
	w.SetBars(makeBars(500, 6))
	// 1000px / 100 bars = 10px per slot

	w.Pan(4, 1000)
	if s, _ := w.VisibleRange(); s != 400 || w.PixelOffset() != 4 {
		t.Fatalf("sub-slot drag should only accumulate offset, got start %d offset %v", s, w.PixelOffset())
	}

	w.Pan(31, 1000) // offset 35 -> 4 slots (rounded 3.5), 35-40 = -5
	s, e := w.VisibleRange()
	if s != 396 || e != 496 {
		t.Errorf("expected [396,496), got [%d,%d)", s, e)
	}
	if w.PixelOffset() != -5 {
		t.Errorf("expected residual offset -5, got %v", w.PixelOffset())
	}

	// away from the right edge a left drag moves toward newer bars
	w.Pan(-45, 1000) // offset -50 -> -5 slots
	if s, e := w.VisibleRange(); s != 400 || e != 500 {
		t.Errorf("expected [400,500), got [%d,%d)", s, e)
	}
}

func TestPan_ClampsAtOldestBar(t *testing.T) {
	w := New(100)
	w.SetBars(makeBars(150, 7))
	w.Pan(10_000, 1000)
	if s, e := w.VisibleRange(); s != 0 || e != 100 {
		t.Errorf("expected [0,100), got [%d,%d)", s, e)
	}
}
