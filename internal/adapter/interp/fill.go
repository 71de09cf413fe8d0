package interp

import "math"

// FillGaps fills missing values in a 1-D sequence in place.
//
// Interior runs of NaN no longer than maxGap are filled by linear
// interpolation between the bounding valid values. Runs at either end
// of the sequence are filled by repeating the nearest valid value,
// again only up to maxGap days. Longer runs are refused and stay
// missing. Returns the number of values filled.
func FillGaps(v []float64, maxGap int) int {
	if maxGap <= 0 {
		return 0
	}

	filled := 0
	n := len(v)
	i := 0
	for i < n {
		if !math.IsNaN(v[i]) {
			i++
			continue
		}
		// Found a gap: [i, j).
		j := i
		for j < n && math.IsNaN(v[j]) {
			j++
		}
		gap := j - i
		switch {
		case gap > maxGap:
			// Refused: too wide to trust interpolation.
		case i == 0 && j == n:
			// Nothing valid anywhere.
		case i == 0:
			for k := i; k < j; k++ {
				v[k] = v[j]
				filled++
			}
		case j == n:
			for k := i; k < j; k++ {
				v[k] = v[i-1]
				filled++
			}
		default:
			lo, hi := v[i-1], v[j]
			for k := i; k < j; k++ {
				frac := float64(k-i+1) / float64(gap+1)
				v[k] = lo + (hi-lo)*frac
				filled++
			}
		}
		i = j
	}
	return filled
}
