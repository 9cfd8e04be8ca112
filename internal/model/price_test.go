package model

import "testing"

func TestPriceScale_Parse(t *testing.T) {
	s := NewPriceScale(8)
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"67000.01000000", 6_700_001_000_000, false},
		{"0.00000001", 1, false},
		{"1", 100_000_000, false},
		{"0.000000001", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := s.Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPriceScale_FloatAndString(t *testing.T) {
	s := NewPriceScale(2)
	if f := s.Float(12345); f != 123.45 {
		t.Errorf("expected 123.45, got %v", f)
	}
	if str := s.String(12345); str != "123.45" {
		t.Errorf("expected 123.45, got %s", str)
	}
}
