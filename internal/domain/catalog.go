package domain

import (
	"fmt"
	"sort"
)

// Target grid shared by both converted sources: British National Grid
// at 2.2km over the UK, cell centers aligned to the extent below.
const (
	// TargetCRS is the common output coordinate reference system.
	TargetCRS = "EPSG:27700"

	// TargetResolution is the common output cell size in metres.
	TargetResolution = 2200.0

	// ConvertedCols and ConvertedRows are the spatial dimensions every
	// converted dataset ends up with. They double as the structural
	// idempotency check: a file already carrying this footprint and a
	// 365/366-day year has been through the pipeline.
	ConvertedCols = 410
	ConvertedRows = 660
)

// TargetExtent is the physical extent of the common output grid.
var TargetExtent = BBox{XMin: -200000, YMin: -200000, XMax: 700000, YMax: 1250000}

// MinValidValue is the threshold below which values are treated as
// model fill and masked to missing after reprojection.
//
// TODO: re-derive this from the fill-value convention of the model data
// release in use; the current magnitude is generous enough for the
// known releases but has not been checked against their metadata.
const MinValidValue = -1e18

// RotatedPoleProj is the proj string for the model source's native
// rotated-pole grid (pole at 37.5N, 177.5E).
const RotatedPoleProj = "+proj=ob_tran +o_proj=longlat +o_lon_p=0 +o_lat_p=37.5 +lon_0=357.5 +datum=WGS84"

// Aggregation selects how source cells are combined when resampling
// onto a coarser reference grid.
type Aggregation int

const (
	// AggMean averages contributing cells (the default).
	AggMean Aggregation = iota
	// AggMax keeps the maximum, for peak variables such as tasmax.
	AggMax
	// AggMin keeps the minimum, for trough variables such as tasmin.
	AggMin
)

// variableAggregations maps each known variable to its resampling rule.
var variableAggregations = map[string]Aggregation{
	"tasmax":   AggMax,
	"tasmin":   AggMin,
	"rainfall": AggMean,
	"pr":       AggMean,
}

// AggregationFor returns the resampling rule for a variable. Unknown
// variables aggregate by mean.
func AggregationFor(variable string) Aggregation {
	if agg, ok := variableAggregations[variable]; ok {
		return agg
	}
	return AggMean
}

// KnownVariables returns the catalog's variable names, sorted.
func KnownVariables() []string {
	names := make([]string, 0, len(variableAggregations))
	for name := range variableAggregations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRuns lists the model ensemble-run identifiers processed when
// the caller does not narrow the selection.
var DefaultRuns = []string{"05", "06", "07", "08"}

// Source date coverage. Model years run December through November.
var (
	CPMRange  = struct{ Start, End Date }{Date{1980, 12, 1}, Date{2080, 11, 30}}
	HADSRange = struct{ Start, End Date }{Date{1980, 1, 1}, Date{2021, 12, 31}}
)

// RegionSpec is a named crop target: a bounding box in the target CRS
// and the pixel footprint it occupies at the target resolution.
type RegionSpec struct {
	Name string
	Box  BBox
	CRS  string
	// Cols and Rows are the expected spatial dimensions of a crop at
	// TargetResolution.
	Cols, Rows int
}

// regions is the fixed catalog of crop targets, bounding boxes in
// British National Grid coordinates.
var regions = map[string]RegionSpec{
	"glasgow": {
		Name: "glasgow",
		Box:  BBox{XMin: 249800, YMin: 657761, XMax: 269235, YMax: 672331},
		CRS:  TargetCRS,
		Cols: 9, Rows: 7,
	},
	"manchester": {
		Name: "manchester",
		Box:  BBox{XMin: 380400, YMin: 385964, XMax: 393250, YMax: 396481},
		CRS:  TargetCRS,
		Cols: 6, Rows: 5,
	},
	"london": {
		Name: "london",
		Box:  BBox{XMin: 503568, YMin: 155851, XMax: 562958, YMax: 201934},
		CRS:  TargetCRS,
		Cols: 27, Rows: 21,
	},
	"scotland": {
		Name: "scotland",
		Box:  BBox{XMin: 5513, YMin: 530252, XMax: 470323, YMax: 1220302},
		CRS:  TargetCRS,
		Cols: 212, Rows: 314,
	},
}

// RegionByName looks up a region in the catalog.
func RegionByName(name string) (RegionSpec, error) {
	if r, ok := regions[name]; ok {
		return r, nil
	}
	return RegionSpec{}, fmt.Errorf("unknown region %q (have %v)", name, RegionNames())
}

// RegionNames returns the catalog's region names, sorted.
func RegionNames() []string {
	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
