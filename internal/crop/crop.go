// Package crop subsets already-converted grids to the named regions of
// the catalog.
package crop

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ukclimate/gridalign/internal/convert"
	"github.com/ukclimate/gridalign/internal/domain"
)

// ErrCRSMismatch is returned when a dataset's CRS differs from the
// crop region's. Cropping never reprojects silently.
var ErrCRSMismatch = errors.New("crop: dataset CRS does not match region CRS")

// Crop returns the subset of s whose cell centers fall inside the
// region's bounding box. Variable, calendar and CRS are preserved.
func Crop(s *domain.Series, region domain.RegionSpec) (*domain.Series, error) {
	if s.CRS != region.CRS {
		return nil, fmt.Errorf("%w: %q vs %q for region %s", ErrCRSMismatch, s.CRS, region.CRS, region.Name)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("crop %s: %w", region.Name, err)
	}

	xLo, xHi := coordRange(s.X, region.Box.XMin, region.Box.XMax)
	yLo, yHi := coordRange(s.Y, region.Box.YMin, region.Box.YMax)
	if xLo == xHi || yLo == yHi {
		return nil, fmt.Errorf("crop %s: region does not intersect dataset extent", region.Name)
	}

	nx, ny := xHi-xLo, yHi-yLo
	out := domain.NewSeries(s.Variable, s.Calendar, s.Times, s.Y[yLo:yHi], s.X[xLo:xHi], s.Resolution, s.CRS)
	out.Units = s.Units
	for t := range s.Times {
		for yi := 0; yi < ny; yi++ {
			srcOff := s.Index(t, yLo+yi, xLo)
			dstOff := out.Index(t, yi, 0)
			copy(out.Values[dstOff:dstOff+nx], s.Values[srcOff:srcOff+nx])
		}
	}
	return out, nil
}

// coordRange returns the half-open index range of coords within
// [lo, hi].
func coordRange(coords []float64, lo, hi float64) (int, int) {
	i := 0
	for i < len(coords) && coords[i] < lo {
		i++
	}
	j := i
	for j < len(coords) && coords[j] <= hi {
		j++
	}
	return i, j
}

// Job crops one converted file to one region, with the same
// execute/skip contract as a conversion job so the batch manager can
// drive either.
type Job struct {
	Source     domain.SourceFile
	Region     domain.RegionSpec
	InputPath  string
	OutputPath string
	Store      convert.Store
	Log        zerolog.Logger

	SkipExisting bool
}

// Execute reads the converted input, crops it and writes the regional
// subset.
func (j *Job) Execute(ctx context.Context) (convert.Result, error) {
	res := convert.Result{Input: j.InputPath, Output: j.OutputPath}

	if _, err := os.Stat(j.OutputPath); err == nil {
		if j.SkipExisting {
			j.Log.Debug().Str("output", j.OutputPath).Msg("crop exists, skipping")
			res.Status = convert.StatusOutputExists
			return res, nil
		}
		return res, fmt.Errorf("%w: %s", convert.ErrOutputExists, j.OutputPath)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	s, err := j.Store.Read(j.InputPath)
	if err != nil {
		return res, fmt.Errorf("crop %s: %w", j.InputPath, err)
	}
	cropped, err := Crop(s, j.Region)
	if err != nil {
		return res, fmt.Errorf("crop %s: %w", j.InputPath, err)
	}
	if err := j.Store.Write(j.OutputPath, cropped); err != nil {
		return res, fmt.Errorf("crop %s: %w", j.InputPath, err)
	}
	res.Status = convert.StatusWritten
	j.Log.Info().
		Str("input", j.InputPath).
		Str("region", j.Region.Name).
		Str("output", j.OutputPath).
		Msg("cropped")
	return res, nil
}
