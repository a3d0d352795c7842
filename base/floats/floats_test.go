package floats_test

import (
	"math"
	"testing"

	"example.com/gpsdo/base/floats"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name      string
		input     []float64
		want      float64
		wantPanic bool
	}{
		{
			name:      "Nil slice",
			input:     nil,
			wantPanic: true,
		},
		{
			name:  "Single element",
			input: []float64{42.0},
			want:  42.0,
		},
		{
			name:  "Two elements",
			input: []float64{1.0, 2.0},
			want:  1.5,
		},
		{
			name:  "Three elements",
			input: []float64{3.0, 1.0, 2.0},
			want:  2.0,
		},
		{
			name:  "Four elements",
			input: []float64{4.0, 1.0, 3.0, 2.0},
			want:  2.5,
		},
		{
			name:  "Negative values",
			input: []float64{-5.0, -1.0, -3.0},
			want:  -3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if (r != nil) != tt.wantPanic {
					t.Errorf("Median() panic = %v, wantPanic %v", r, tt.wantPanic)
				}
			}()
			in := append([]float64(nil), tt.input...)
			got := floats.Median(in)
			if got != tt.want {
				t.Errorf("Median() = %v, want %v", got, tt.want)
			}
			for i := range in {
				if in[i] != tt.input[i] {
					t.Errorf("Median() modified its input")
				}
			}
		})
	}
}

func TestMean(t *testing.T) {
	if got := floats.Mean([]float64{1, 2, 3, 6}); got != 3 {
		t.Errorf("Mean() = %v, want 3", got)
	}
}

func TestSlope(t *testing.T) {
	tests := []struct {
		name  string
		input []float64
		want  float64
	}{
		{"Flat", []float64{5, 5, 5, 5, 5}, 0},
		{"Rising", []float64{0, 2, 4, 6, 8}, 2},
		{"Falling", []float64{1e-7, 0.9e-7, 0.8e-7, 0.7e-7, 0.6e-7}, -1e-8},
		{"Noisy", []float64{0, 1.5, 1.5, 3}, 0.9},
		{"Two points", []float64{1, -1}, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := floats.Slope(tt.input)
			if math.Abs(got-tt.want) > 1e-12*math.Max(1, math.Abs(tt.want)) {
				t.Errorf("Slope() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		x, lo, hi, want float64
	}{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{-3, -2, 2, -2},
	}
	for _, tt := range tests {
		if got := floats.Clamp(tt.x, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.x, tt.lo, tt.hi, got, tt.want)
		}
	}
}
