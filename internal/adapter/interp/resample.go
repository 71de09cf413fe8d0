package interp

import (
	"fmt"
	"math"
	"sort"

	"github.com/ukclimate/gridalign/internal/domain"
)

// ResampleToMatch resamples src onto ref's exact cell grid, producing a
// series whose cell centers coincide with ref's. Every source cell
// whose center falls inside a reference cell contributes to it through
// the aggregation rule; reference cells covering no source centers fall
// back to bilinear sampling of the source at the cell center, or stay
// missing outside the source extent. The time axis is untouched.
func ResampleToMatch(src, ref *domain.Series, agg domain.Aggregation) (*domain.Series, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("resample source: %w", err)
	}
	if len(ref.X) == 0 || len(ref.Y) == 0 {
		return nil, fmt.Errorf("resample: reference grid has no compatible x/y coordinate pair")
	}

	out := domain.NewSeries(src.Variable, src.Calendar, src.Times, ref.Y, ref.X, ref.Resolution, ref.CRS)
	out.Units = src.Units

	half := ref.Resolution / 2
	for yi, cy := range ref.Y {
		yLo, yHi := axisWindow(src.Y, cy-half, cy+half)
		for xi, cx := range ref.X {
			xLo, xHi := axisWindow(src.X, cx-half, cx+half)
			if yLo == yHi || xLo == xHi {
				// No source centers under this cell.
				sampleColumn(src, out, yi, xi, cx, cy)
				continue
			}
			for t := range src.Times {
				out.Set(t, yi, xi, aggregateWindow(src, t, yLo, yHi, xLo, xHi, agg))
			}
		}
	}
	return out, nil
}

// axisWindow returns the half-open index range of coords within [lo, hi).
func axisWindow(coords []float64, lo, hi float64) (int, int) {
	i := sort.SearchFloat64s(coords, lo)
	j := sort.SearchFloat64s(coords, hi)
	return i, j
}

// aggregateWindow combines the valid source values under one reference
// cell at time t. All-missing windows yield NaN.
func aggregateWindow(src *domain.Series, t, yLo, yHi, xLo, xHi int, agg domain.Aggregation) float64 {
	var (
		sum   float64
		n     int
		best  float64
		found bool
	)
	for yi := yLo; yi < yHi; yi++ {
		for xi := xLo; xi < xHi; xi++ {
			v := src.At(t, yi, xi)
			if math.IsNaN(v) {
				continue
			}
			switch agg {
			case domain.AggMax:
				if !found || v > best {
					best = v
				}
			case domain.AggMin:
				if !found || v < best {
					best = v
				}
			default:
				sum += v
			}
			n++
			found = true
		}
	}
	if !found {
		return math.NaN()
	}
	if agg == domain.AggMean {
		return sum / float64(n)
	}
	if agg == domain.AggMax || agg == domain.AggMin {
		return best
	}
	return sum / float64(n)
}

// sampleColumn fills one output column by bilinear sampling of the
// source at (cx, cy) for every time step.
func sampleColumn(src, out *domain.Series, yi, xi int, cx, cy float64) {
	xIdx := cellIndex(src.X, cx)
	yIdx := cellIndex(src.Y, cy)
	if xIdx < 0 || yIdx < 0 {
		return // Outside the source extent, stays NaN.
	}
	for t := range src.Times {
		cell := GridCell{
			X0: src.X[xIdx], X1: src.X[xIdx+1],
			Y0: src.Y[yIdx], Y1: src.Y[yIdx+1],
			V00: src.At(t, yIdx, xIdx),
			V10: src.At(t, yIdx, xIdx+1),
			V01: src.At(t, yIdx+1, xIdx),
			V11: src.At(t, yIdx+1, xIdx+1),
		}
		if v, err := Bilinear(cell, cx, cy); err == nil {
			out.Set(t, yi, xi, v)
		}
	}
}

// cellIndex returns i such that coords[i] <= v <= coords[i+1], or -1.
func cellIndex(coords []float64, v float64) int {
	if len(coords) < 2 || v < coords[0] || v > coords[len(coords)-1] {
		return -1
	}
	i := sort.SearchFloat64s(coords, v)
	if i > 0 {
		i--
	}
	if i > len(coords)-2 {
		i = len(coords) - 2
	}
	return i
}
