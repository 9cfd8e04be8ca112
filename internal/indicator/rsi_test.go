package indicator

import (
	"math"
	"math/rand"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func TestRSI_WarmUp(t *testing.T) {
	r := NewRSI(14)
	for i := 1; i < 14; i++ {
		if _, ok := r.Add(100 + float64(i)); ok {
			t.Fatalf("sample %d: expected no value before period", i)
		}
		if r.Ready() {
			t.Fatalf("sample %d: Ready() before period", i)
		}
	}
	if _, ok := r.Add(120); !ok {
		t.Fatal("expected a value on sample 14")
	}
	if !r.Ready() {
		t.Error("expected Ready() after sample 14")
	}
}

func TestRSI_FlatSeriesIs100(t *testing.T) {
	r := NewRSI(14)
	var v float64
	var ok bool
	for i := 0; i < 14; i++ {
		v, ok = r.Add(42)
	}
	if !ok || v != 100 {
		t.Errorf("expected 100 for a flat series, got %v (ok=%v)", v, ok)
	}
}

func TestRSI_Monotonic(t *testing.T) {
	up := NewRSI(5)
	down := NewRSI(5)
	for i := 0; i < 40; i++ {
		vu, oku := up.Add(float64(100 + i))
		vd, okd := down.Add(float64(100 - i))
		if oku && vu != 100 {
			t.Fatalf("increasing sample %d: expected 100, got %v", i, vu)
		}
		if okd && vd != 0 {
			t.Fatalf("decreasing sample %d: expected 0, got %v", i, vd)
		}
	}
}

func TestRSI_Correctness_Period3(t *testing.T) {
	// closes 10, 11, 10, 12
	// observations: 0, +1, -1, +2
	// sample 3: avgGain = 1/3, avgLoss = 1/3 -> RSI 50
	// sample 4: avgGain = (2/3+2)/3 = 8/9, avgLoss = (2/3)/3 = 2/9 -> RS 4 -> RSI 80
	r := NewRSI(3)
	closes := []float64{10, 11, 10, 12}
	want := []float64{0, 0, 50, 80}
	ready := []bool{false, false, true, true}
	for i, c := range closes {
		v, ok := r.Add(c)
		if ok != ready[i] {
			t.Fatalf("sample %d: ok=%v, want %v", i+1, ok, ready[i])
		}
		if ok {
			assertClose(t, "RSI(3)", v, want[i], 1e-9)
		}
	}
}

func TestRSI_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewRSI(14)
	price := 100.0
	for i := 0; i < 5000; i++ {
		price += rng.NormFloat64()
		v, ok := r.Add(price)
		if ok && (v < 0 || v > 100 || math.IsNaN(v)) {
			t.Fatalf("sample %d: RSI %v out of [0,100]", i, v)
		}
	}
}

func TestRSI_SplitEqualsOnePass(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	closes := make([]float64, 300)
	p := 50.0
	for i := range closes {
		p += rng.Float64() - 0.5
		closes[i] = p
	}

	one := NewRSI(14)
	var want []float64
	for _, c := range closes {
		v, _ := one.Add(c)
		want = append(want, v)
	}

	for _, cut := range []int{1, 13, 14, 15, 150, 299} {
		first := NewRSI(14)
		var got []float64
		for _, c := range closes[:cut] {
			v, _ := first.Add(c)
			got = append(got, v)
		}
		second := NewRSI(1)
		if err := second.Restore(first.State()); err != nil {
			t.Fatalf("cut %d: restore: %v", cut, err)
		}
		for _, c := range closes[cut:] {
			v, _ := second.Add(c)
			got = append(got, v)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("cut %d sample %d: got %v, want %v", cut, i, got[i], want[i])
			}
		}
	}
}

func TestRSI_PeekDoesNotMutate(t *testing.T) {
	r := NewRSI(3)
	for _, c := range []float64{10, 11, 10} {
		r.Add(c)
	}
	before := r.State()
	peeked, ok := r.Peek(12)
	if !ok {
		t.Fatal("expected peek value")
	}
	if r.State() != before {
		t.Error("Peek mutated state")
	}
	added, _ := r.Add(12)
	if peeked != added {
		t.Errorf("Peek=%v but Add=%v", peeked, added)
	}
}

func TestState_RestoreContinuesSeries(t *testing.T) {
	r := NewRSI(14)
	for i := 0; i < 20; i++ {
		r.Add(float64(i % 4))
	}
	data, err := MarshalState(r.State())
	if err != nil {
		t.Fatal(err)
	}
	st, err := UnmarshalState(data)
	if err != nil {
		t.Fatalf("UnmarshalState: %v", err)
	}
	restored := &RSI{}
	if err := restored.Restore(st); err != nil {
		t.Fatal(err)
	}
	var ind Indicator = restored
	if ind.Name() != "RSI_14" || !ind.Ready() {
		t.Errorf("unexpected restored indicator %s ready=%v", ind.Name(), ind.Ready())
	}
	for _, c := range []float64{3, 1, 4, 1, 5} {
		a, _ := r.Add(c)
		b, _ := ind.Add(c)
		if a != b {
			t.Fatalf("restored indicator diverged: %v vs %v", a, b)
		}
	}

	if _, err := UnmarshalState([]byte(`{"type":"MACD","period":9}`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := UnmarshalState([]byte(`{"type":"RSI","period":0}`)); err == nil {
		t.Error("expected error for period 0")
	}
}
