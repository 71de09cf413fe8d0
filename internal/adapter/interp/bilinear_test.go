package interp

import (
	"math"
	"testing"
)

// TestBilinear_CenterPoint tests interpolation at the center of a grid cell
func TestBilinear_CenterPoint(t *testing.T) {
	cell := GridCell{
		X0: 0.0, X1: 2.0,
		Y0: 0.0, Y1: 2.0,
		V00: 1.0, V10: 3.0,
		V01: 5.0, V11: 7.0,
	}

	// At center (1.0, 1.0), t=0.5, u=0.5
	// Result = 0.5*0.5*1 + 0.5*0.5*3 + 0.5*0.5*5 + 0.5*0.5*7
	//        = 0.25 * (1 + 3 + 5 + 7) = 0.25 * 16 = 4.0
	result, err := Bilinear(cell, 1.0, 1.0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := 4.0
	if math.Abs(result-expected) > 1e-9 {
		t.Errorf("Center point: expected %.10f, got %.10f", expected, result)
	}
}

// TestBilinear_CornerPoints tests that corners return exact values
func TestBilinear_CornerPoints(t *testing.T) {
	cell := GridCell{
		X0: 0.0, X1: 10.0,
		Y0: 0.0, Y1: 10.0,
		V00: 1.0, V10: 2.0,
		V01: 3.0, V11: 4.0,
	}

	tests := []struct {
		x, y     float64
		expected float64
		name     string
	}{
		{0.0, 0.0, 1.0, "bottom-left"},
		{10.0, 0.0, 2.0, "bottom-right"},
		{0.0, 10.0, 3.0, "top-left"},
		{10.0, 10.0, 4.0, "top-right"},
	}

	for _, tt := range tests {
		result, err := Bilinear(cell, tt.x, tt.y)
		if err != nil {
			t.Fatalf("Unexpected error for %s: %v", tt.name, err)
		}

		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("%s corner: expected %.10f, got %.10f", tt.name, tt.expected, result)
		}
	}
}

// TestBilinear_LinearCase tests a perfectly linear case
func TestBilinear_LinearCase(t *testing.T) {
	// Create a grid where values increase linearly in x
	// V = x (independent of y)
	cell := GridCell{
		X0: 0.0, X1: 10.0,
		Y0: 0.0, Y1: 10.0,
		V00: 0.0, V10: 10.0,
		V01: 0.0, V11: 10.0,
	}

	// Test at x=5, should get value 5.0 regardless of y
	tests := []struct {
		x, y     float64
		expected float64
	}{
		{5.0, 0.0, 5.0},
		{5.0, 5.0, 5.0},
		{5.0, 10.0, 5.0},
		{2.5, 7.0, 2.5},
	}

	for _, tt := range tests {
		result, err := Bilinear(cell, tt.x, tt.y)
		if err != nil {
			t.Fatalf("Unexpected error at (%.1f, %.1f): %v", tt.x, tt.y, err)
		}

		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("At (%.1f, %.1f): expected %.10f, got %.10f", tt.x, tt.y, tt.expected, result)
		}
	}
}

// TestBilinear_OutOfBounds tests error handling for out-of-bounds points
func TestBilinear_OutOfBounds(t *testing.T) {
	cell := GridCell{
		X0: 0.0, X1: 10.0,
		Y0: 0.0, Y1: 10.0,
		V00: 1.0, V10: 2.0,
		V01: 3.0, V11: 4.0,
	}

	tests := []struct {
		x, y float64
		name string
	}{
		{-1.0, 5.0, "x too small"},
		{11.0, 5.0, "x too large"},
		{5.0, -1.0, "y too small"},
		{5.0, 11.0, "y too large"},
	}

	for _, tt := range tests {
		_, err := Bilinear(cell, tt.x, tt.y)
		if err == nil {
			t.Errorf("%s: expected error for point (%.1f, %.1f), got nil", tt.name, tt.x, tt.y)
		}
	}
}

// TestBilinear_DegenerateCell tests rejection of zero-extent cells
func TestBilinear_DegenerateCell(t *testing.T) {
	tests := []struct {
		name string
		cell GridCell
	}{
		{"flat in x", GridCell{X0: 5, X1: 5, Y0: 0, Y1: 10}},
		{"flat in y", GridCell{X0: 0, X1: 10, Y0: 5, Y1: 5}},
		{"inverted x", GridCell{X0: 10, X1: 0, Y0: 0, Y1: 10}},
	}

	for _, tt := range tests {
		if _, err := Bilinear(tt.cell, 5, 5); err == nil {
			t.Errorf("%s: expected error, got nil", tt.name)
		}
	}
}
