// Package raster shells out to the GDAL command-line tools for the
// rotated-pole reprojection path.
//
// The model source is converted by a warp/translate round trip through
// a GeoTIFF intermediate rather than resampled in process: the in-
// process path does not reproduce the warp tool's cell alignment for
// rotated-pole grids, and the round trip is the variant proven correct
// against the production archive.
package raster

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ukclimate/gridalign/internal/domain"
)

// Warper reprojects one variable of a gridded file on disk onto the
// target grid, producing a NetCDF file at dstPath. The result stores
// one 2-D band per time step; the GeoTIFF intermediate cannot carry a
// time coordinate.
type Warper interface {
	Warp(ctx context.Context, srcPath, variable, dstPath string) error
}

// GDAL is the production Warper: gdalwarp into a GeoTIFF intermediate,
// then gdal_translate back into NetCDF.
type GDAL struct {
	// TargetCRS defaults to domain.TargetCRS.
	TargetCRS string
	// Resolution defaults to domain.TargetResolution.
	Resolution float64
	// ResampleAlg is the gdalwarp -r algorithm, default "near".
	ResampleAlg string
	// TmpDir overrides the directory for intermediates; empty means
	// the system temp dir.
	TmpDir string
}

func (g *GDAL) targetCRS() string {
	if g.TargetCRS == "" {
		return domain.TargetCRS
	}
	return g.TargetCRS
}

func (g *GDAL) resolution() float64 {
	if g.Resolution == 0 {
		return domain.TargetResolution
	}
	return g.Resolution
}

func (g *GDAL) resampleAlg() string {
	if g.ResampleAlg == "" {
		return "near"
	}
	return g.ResampleAlg
}

// Warp runs the two-hop reprojection. The GeoTIFF intermediate lives
// in a per-call scratch directory that is removed before returning,
// whatever the outcome.
func (g *GDAL) Warp(ctx context.Context, srcPath, variable, dstPath string) error {
	scratch, err := os.MkdirTemp(g.TmpDir, "gridalign-warp-")
	if err != nil {
		return fmt.Errorf("raster: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	tifPath := filepath.Join(scratch, uuid.NewString()+".tif")

	res := strconv.FormatFloat(g.resolution(), 'f', -1, 64)
	warpArgs := []string{
		"-t_srs", g.targetCRS(),
		"-tr", res, res,
		"-r", g.resampleAlg(),
		"-te",
		strconv.FormatFloat(domain.TargetExtent.XMin, 'f', -1, 64),
		strconv.FormatFloat(domain.TargetExtent.YMin, 'f', -1, 64),
		strconv.FormatFloat(domain.TargetExtent.XMax, 'f', -1, 64),
		strconv.FormatFloat(domain.TargetExtent.YMax, 'f', -1, 64),
		"-of", "GTiff",
		"-overwrite",
		sourceRef(srcPath, variable), tifPath,
	}
	if err := runTool(ctx, "gdalwarp", warpArgs); err != nil {
		return err
	}

	translateArgs := []string{"-of", "NetCDF", tifPath, dstPath}
	return runTool(ctx, "gdal_translate", translateArgs)
}

// sourceRef addresses one variable inside a multi-variable NetCDF via
// GDAL's subdataset syntax. A bare path would leave gdalwarp to guess
// among the file's variables. Non-NetCDF sources pass through as-is.
func sourceRef(srcPath, variable string) string {
	if variable == "" || !strings.HasSuffix(srcPath, ".nc") {
		return srcPath
	}
	return fmt.Sprintf("NETCDF:%q:%s", srcPath, variable)
}

func runTool(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("raster: %s: %w: %s", name, err, string(out))
	}
	return nil
}
