// Package domain holds the core value types of the grid alignment
// pipeline: gridded time series, calendar dates, source-file naming and
// the static region/variable catalog.
package domain

import (
	"fmt"
	"math"
)

// BBox is an axis-aligned bounding box in projected coordinates.
type BBox struct {
	XMin, YMin, XMax, YMax float64
}

// Valid reports whether the box has positive extent on both axes.
func (b BBox) Valid() bool {
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Contains reports whether the point (x, y) lies inside the box.
func (b BBox) Contains(x, y float64) bool {
	return x >= b.XMin && x <= b.XMax && y >= b.YMin && y <= b.YMax
}

// Series is a single-variable gridded time series: a dense array of
// values indexed by (time, y, x), with cell-center coordinates and the
// CRS they are expressed in. Missing values are NaN.
type Series struct {
	Variable string
	Units    string
	CRS      string
	Calendar Calendar

	Times []Date
	// X and Y hold cell-center coordinates, strictly increasing.
	X, Y []float64
	// Resolution is the nominal cell size in CRS units.
	Resolution float64

	// Values is laid out time-major: index = t*NY*NX + yi*NX + xi.
	Values []float64
}

// NT returns the length of the time axis.
func (s *Series) NT() int { return len(s.Times) }

// NY returns the number of rows.
func (s *Series) NY() int { return len(s.Y) }

// NX returns the number of columns.
func (s *Series) NX() int { return len(s.X) }

// Index returns the flat Values index for (t, yi, xi).
func (s *Series) Index(t, yi, xi int) int {
	return t*len(s.Y)*len(s.X) + yi*len(s.X) + xi
}

// At returns the value at (t, yi, xi).
func (s *Series) At(t, yi, xi int) float64 {
	return s.Values[s.Index(t, yi, xi)]
}

// Set stores a value at (t, yi, xi).
func (s *Series) Set(t, yi, xi int, v float64) {
	s.Values[s.Index(t, yi, xi)] = v
}

// Bounds returns the physical extent implied by the cell centers,
// padded by half a cell on every side.
func (s *Series) Bounds() BBox {
	half := s.Resolution / 2
	return BBox{
		XMin: s.X[0] - half,
		XMax: s.X[len(s.X)-1] + half,
		YMin: s.Y[0] - half,
		YMax: s.Y[len(s.Y)-1] + half,
	}
}

// Validate checks the Series invariants: non-empty axes, strictly
// increasing time with no duplicates, strictly increasing coordinates,
// and a value buffer matching the axes.
func (s *Series) Validate() error {
	if s.Variable == "" {
		return fmt.Errorf("series has no variable name")
	}
	if len(s.Times) == 0 || len(s.X) == 0 || len(s.Y) == 0 {
		return fmt.Errorf("series %s: empty axis (nt=%d ny=%d nx=%d)",
			s.Variable, len(s.Times), len(s.Y), len(s.X))
	}
	for i := 1; i < len(s.Times); i++ {
		if !s.Times[i-1].Before(s.Times[i]) {
			return fmt.Errorf("series %s: time axis not strictly increasing at index %d (%s >= %s)",
				s.Variable, i, s.Times[i-1].YMD(), s.Times[i].YMD())
		}
	}
	for i := 1; i < len(s.X); i++ {
		if s.X[i] <= s.X[i-1] {
			return fmt.Errorf("series %s: x coordinates not strictly increasing", s.Variable)
		}
	}
	for i := 1; i < len(s.Y); i++ {
		if s.Y[i] <= s.Y[i-1] {
			return fmt.Errorf("series %s: y coordinates not strictly increasing", s.Variable)
		}
	}
	if want := len(s.Times) * len(s.Y) * len(s.X); len(s.Values) != want {
		return fmt.Errorf("series %s: %d values, want %d", s.Variable, len(s.Values), want)
	}
	return nil
}

// Clone returns a deep copy of the series.
func (s *Series) Clone() *Series {
	c := *s
	c.Times = append([]Date(nil), s.Times...)
	c.X = append([]float64(nil), s.X...)
	c.Y = append([]float64(nil), s.Y...)
	c.Values = append([]float64(nil), s.Values...)
	return &c
}

// MaskBelow replaces every value below threshold with NaN. Model fill
// values sit far below any physical value, so this runs after
// reprojection to drop cells the warp filled with the sentinel.
func (s *Series) MaskBelow(threshold float64) {
	for i, v := range s.Values {
		if v < threshold {
			s.Values[i] = math.NaN()
		}
	}
}

// NewSeries allocates a series of the given shape filled with NaN.
func NewSeries(variable string, cal Calendar, times []Date, y, x []float64, resolution float64, crs string) *Series {
	vals := make([]float64, len(times)*len(y)*len(x))
	for i := range vals {
		vals[i] = math.NaN()
	}
	return &Series{
		Variable:   variable,
		CRS:        crs,
		Calendar:   cal,
		Times:      times,
		X:          x,
		Y:          y,
		Resolution: resolution,
		Values:     vals,
	}
}
