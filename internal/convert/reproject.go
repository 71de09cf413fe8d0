package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ukclimate/gridalign/internal/adapter/interp"
	"github.com/ukclimate/gridalign/internal/adapter/raster"
	"github.com/ukclimate/gridalign/internal/domain"
)

// Reprojector produces a target-grid series from a source series. The
// source file path is passed alongside the in-memory series because
// the model path hands the whole file to an external warp tool.
type Reprojector interface {
	Reproject(ctx context.Context, srcPath string, s *domain.Series) (*domain.Series, error)
}

// StackReader reads the band-per-timestep NetCDF the warp round trip
// produces, attaching the given time axis.
type StackReader interface {
	ReadStack(path string, times []domain.Date) (*domain.Series, error)
}

// CPMReprojector reprojects rotated-pole model files through the
// external warp/translate round trip. The GeoTIFF intermediate cannot
// carry a time coordinate, so the warped NetCDF stores one 2-D band
// per time step; the stack reader reassembles the cube under the
// source's own axis.
type CPMReprojector struct {
	Warper raster.Warper
	Stack  StackReader
	// TmpDir overrides the scratch location; empty means the system
	// temp dir.
	TmpDir string
}

// Reproject warps srcPath onto the target grid and returns the result
// with src's time axis, variable identity and calendar reattached.
// Values below the fill sentinel are masked to missing.
func (r *CPMReprojector) Reproject(ctx context.Context, srcPath string, src *domain.Series) (*domain.Series, error) {
	scratch, err := os.MkdirTemp(r.TmpDir, "gridalign-cpm-")
	if err != nil {
		return nil, fmt.Errorf("reproject %s: %w", srcPath, err)
	}
	defer os.RemoveAll(scratch)

	warpedPath := filepath.Join(scratch, uuid.NewString()+".nc")
	if err := r.Warper.Warp(ctx, srcPath, src.Variable, warpedPath); err != nil {
		return nil, fmt.Errorf("reproject %s: %w", srcPath, err)
	}

	warped, err := r.Stack.ReadStack(warpedPath, src.Times)
	if err != nil {
		return nil, fmt.Errorf("reproject %s: read warped: %w", srcPath, err)
	}

	// The raster round trip drops everything but the grid and values;
	// identity comes back from the source.
	warped.Variable = src.Variable
	warped.Units = src.Units
	warped.Calendar = src.Calendar
	warped.CRS = domain.TargetCRS
	warped.MaskBelow(domain.MinValidValue)
	return warped, nil
}

// HADSReprojector resamples observational files onto a reference
// grid's exact cell centers, in process, using the per-variable
// aggregation rule.
type HADSReprojector struct {
	// Ref is the grid to match, typically a converted model file.
	Ref *domain.Series
}

// Reproject matches s onto the reference grid. Only the numeric array
// and cell-center coordinates of s participate; all other metadata is
// rebuilt from the reference.
func (r *HADSReprojector) Reproject(_ context.Context, srcPath string, s *domain.Series) (*domain.Series, error) {
	if r.Ref == nil {
		return nil, fmt.Errorf("reproject %s: no reference grid configured", srcPath)
	}
	out, err := interp.ResampleToMatch(s, r.Ref, domain.AggregationFor(s.Variable))
	if err != nil {
		return nil, fmt.Errorf("reproject %s: %w", srcPath, err)
	}
	out.MaskBelow(domain.MinValidValue)
	return out, nil
}
