// Package ncgrid reads and writes gridded time series as NetCDF files.
//
// Files carry one data variable on a (time, y, x) grid with CF-style
// coordinate metadata. A length-1 ensemble dimension is tolerated on
// read and dropped; any other extra dimension is rejected. ReadStack
// handles the second layout the pipeline meets: GDAL-translated files
// storing one 2-D band per time step with no time coordinate.
package ncgrid

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/ukclimate/gridalign/internal/domain"
)

var (
	// ErrUnsupportedDims is returned when a data variable carries
	// dimensions outside the expected (time, y, x) triple.
	ErrUnsupportedDims = errors.New("ncgrid: unsupported dimensions")

	// ErrIsDirectory is returned when a destination path collides with
	// an existing directory.
	ErrIsDirectory = errors.New("ncgrid: destination exists as a directory")
)

// Candidate coordinate variable names, tried in order.
var (
	timeNames = []string{"time", "t"}
	xNames    = []string{"projection_x_coordinate", "x", "easting", "grid_longitude", "lon"}
	yNames    = []string{"projection_y_coordinate", "y", "northing", "grid_latitude", "lat"}
)

// Dimensions the reader silently drops when their length is 1.
var droppableDims = map[string]bool{
	"ensemble_member": true,
}

// FileStore reads and writes Series as NetCDF files on the local
// filesystem.
type FileStore struct{}

// Read loads a single-variable gridded time series from a NetCDF file.
func (FileStore) Read(path string) (*domain.Series, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: open %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	times, cal, err := readTimeAxis(nc)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: %s: %w", path, err)
	}
	xs, err := readCoord(nc, xNames)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: %s: x coordinate: %w", path, err)
	}
	ys, err := readCoord(nc, yNames)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: %s: y coordinate: %w", path, err)
	}

	dataVar, varName, err := findDataVar(nc)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: %s: %w", path, err)
	}

	values, err := readValues(dataVar, len(times), len(ys), len(xs))
	if err != nil {
		return nil, fmt.Errorf("ncgrid: %s: variable %s: %w", path, varName, err)
	}

	s := &domain.Series{
		Variable: varName,
		Units:    attrString(dataVar, "units"),
		CRS:      attrString(dataVar, "crs"),
		Calendar: cal,
		Times:    times,
		X:        xs,
		Y:        ys,
		Values:   values,
	}
	if len(xs) > 1 {
		s.Resolution = xs[1] - xs[0]
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("ncgrid: %s: %w", path, err)
	}
	return s, nil
}

// ReadStack loads a NetCDF file laid out the way gdal_translate emits
// it: one 2-D (y, x) variable per band, named Band1..BandN, with no
// time coordinate. Band N becomes time step N-1 of the given axis,
// which must match the band count exactly. The caller owns the rest of
// the series identity (variable name, units, calendar, CRS).
func (FileStore) ReadStack(path string, times []domain.Date) (*domain.Series, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: open %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	xs, err := readCoord(nc, xNames)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: %s: x coordinate: %w", path, err)
	}
	ys, err := readCoord(nc, yNames)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: %s: y coordinate: %w", path, err)
	}

	bands, err := findBands(nc)
	if err != nil {
		return nil, fmt.Errorf("ncgrid: %s: %w", path, err)
	}
	if len(bands) != len(times) {
		return nil, fmt.Errorf("ncgrid: %s: %d bands for a %d-step time axis", path, len(bands), len(times))
	}

	plane := len(ys) * len(xs)
	values := make([]float64, 0, len(bands)*plane)
	for i, v := range bands {
		flat, err := readFloat64s(v, plane)
		if err != nil {
			return nil, fmt.Errorf("ncgrid: %s: band %d: %w", path, i+1, err)
		}
		if fv, ok := fillValue(v); ok {
			for j, val := range flat {
				if val == fv {
					flat[j] = math.NaN()
				}
			}
		}
		values = append(values, flat...)
	}

	s := &domain.Series{
		Variable: "data",
		Times:    times,
		X:        xs,
		Y:        ys,
		Values:   values,
	}
	if len(xs) > 1 {
		s.Resolution = xs[1] - xs[0]
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("ncgrid: %s: %w", path, err)
	}
	return s, nil
}

// findBands collects the BandN variables in band order, requiring a
// contiguous 1..N numbering and 2-D shape.
func findBands(nc netcdf.Dataset) ([]netcdf.Var, error) {
	nvars, err := nc.NVars()
	if err != nil {
		return nil, err
	}
	byIndex := map[int]netcdf.Var{}
	for i := 0; i < nvars; i++ {
		v := nc.VarN(i)
		name, err := v.Name()
		if err != nil {
			continue
		}
		n, ok := bandIndex(name)
		if !ok {
			continue
		}
		dims, err := v.Dims()
		if err != nil || len(dims) != 2 {
			return nil, fmt.Errorf("band variable %s is not 2-D", name)
		}
		byIndex[n] = v
	}
	if len(byIndex) == 0 {
		return nil, fmt.Errorf("no band variables found")
	}
	bands := make([]netcdf.Var, len(byIndex))
	for n, v := range byIndex {
		if n < 1 || n > len(byIndex) {
			return nil, fmt.Errorf("band numbering not contiguous: Band%d among %d bands", n, len(byIndex))
		}
		bands[n-1] = v
	}
	return bands, nil
}

// bandIndex parses GDAL's BandN variable naming. N is 1-based.
func bandIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "Band")
	if !ok || rest == "" {
		return 0, false
	}
	n := 0
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n < 1 {
		return 0, false
	}
	return n, true
}

// Write persists a series to path, creating parent directories as
// needed. Overwrite policy is the caller's business; an existing
// directory at the destination is always an error.
func (FileStore) Write(path string, s *domain.Series) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("ncgrid: write %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ncgrid: write %s: %w", path, err)
	}

	ds, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("ncgrid: create %s: %w", path, err)
	}
	defer func() { _ = ds.Close() }()

	timeDim, err := ds.AddDim("time", uint64(s.NT()))
	if err != nil {
		return err
	}
	yDim, err := ds.AddDim("projection_y_coordinate", uint64(s.NY()))
	if err != nil {
		return err
	}
	xDim, err := ds.AddDim("projection_x_coordinate", uint64(s.NX()))
	if err != nil {
		return err
	}

	if err := writeTimeAxis(ds, timeDim, s); err != nil {
		return fmt.Errorf("ncgrid: write %s: %w", path, err)
	}

	yVar, err := ds.AddVar("projection_y_coordinate", netcdf.DOUBLE, []netcdf.Dim{yDim})
	if err != nil {
		return err
	}
	if err := yVar.WriteFloat64s(s.Y); err != nil {
		return err
	}
	xVar, err := ds.AddVar("projection_x_coordinate", netcdf.DOUBLE, []netcdf.Dim{xDim})
	if err != nil {
		return err
	}
	if err := xVar.WriteFloat64s(s.X); err != nil {
		return err
	}

	dataVar, err := ds.AddVar(s.Variable, netcdf.DOUBLE, []netcdf.Dim{timeDim, yDim, xDim})
	if err != nil {
		return err
	}
	if s.Units != "" {
		if err := dataVar.Attr("units").WriteBytes([]byte(s.Units)); err != nil {
			return err
		}
	}
	if s.CRS != "" {
		if err := dataVar.Attr("crs").WriteBytes([]byte(s.CRS)); err != nil {
			return err
		}
	}
	return dataVar.WriteFloat64s(s.Values)
}

func writeTimeAxis(ds netcdf.Dataset, timeDim netcdf.Dim, s *domain.Series) error {
	timeVar, err := ds.AddVar("time", netcdf.INT, []netcdf.Dim{timeDim})
	if err != nil {
		return err
	}
	epoch := s.Times[0]
	offsets := make([]int32, s.NT())
	for i, d := range s.Times {
		offsets[i] = int32(domain.DaysBetween(s.Calendar, epoch, d))
	}
	if err := timeVar.WriteInt32s(offsets); err != nil {
		return err
	}
	units := fmt.Sprintf("days since %04d-%02d-%02d", epoch.Year, epoch.Month, epoch.Day)
	if err := timeVar.Attr("units").WriteBytes([]byte(units)); err != nil {
		return err
	}
	if err := timeVar.Attr("calendar").WriteBytes([]byte(s.Calendar.String())); err != nil {
		return err
	}

	// Calendar-indexed helper columns, kept consistent with the axis.
	months, years, labels := timeColumns(s.Times)
	monthVar, err := ds.AddVar("month_number", netcdf.INT, []netcdf.Dim{timeDim})
	if err != nil {
		return err
	}
	if err := monthVar.WriteInt32s(months); err != nil {
		return err
	}
	yearVar, err := ds.AddVar("year", netcdf.INT, []netcdf.Dim{timeDim})
	if err != nil {
		return err
	}
	if err := yearVar.WriteInt32s(years); err != nil {
		return err
	}
	strDim, err := ds.AddDim("string8", 8)
	if err != nil {
		return err
	}
	dateVar, err := ds.AddVar("yyyymmdd", netcdf.CHAR, []netcdf.Dim{timeDim, strDim})
	if err != nil {
		return err
	}
	return dateVar.WriteBytes(labels)
}

// timeColumns derives the helper columns from a time axis: month
// numbers, year numbers, and the concatenated 8-char yyyymmdd labels.
func timeColumns(times []domain.Date) (months, years []int32, labels []byte) {
	months = make([]int32, len(times))
	years = make([]int32, len(times))
	labels = make([]byte, 0, len(times)*8)
	for i, d := range times {
		months[i] = int32(d.Month)
		years[i] = int32(d.Year)
		labels = append(labels, d.YMD()...)
	}
	return months, years, labels
}

// auxNames are variables the reader never treats as the data variable.
var auxNames = map[string]bool{
	"month_number": true, "year": true, "yyyymmdd": true,
	"crs": true, "transverse_mercator": true, "rotated_latitude_longitude": true,
	"time_bnds": true, "ensemble_member": true, "ensemble_member_id": true,
}

// findDataVar picks the data variable: the first variable with three
// or more dimensions that is neither a coordinate nor a known helper.
func findDataVar(nc netcdf.Dataset) (netcdf.Var, string, error) {
	nvars, err := nc.NVars()
	if err != nil {
		return netcdf.Var{}, "", err
	}
	for i := 0; i < nvars; i++ {
		v := nc.VarN(i)
		name, err := v.Name()
		if err != nil {
			continue
		}
		if auxNames[name] || isCoordName(name) {
			continue
		}
		dims, err := v.Dims()
		if err != nil || len(dims) < 3 {
			continue
		}
		return v, name, nil
	}
	return netcdf.Var{}, "", fmt.Errorf("no gridded data variable found")
}

func isCoordName(name string) bool {
	for _, set := range [][]string{timeNames, xNames, yNames} {
		for _, n := range set {
			if n == name {
				return true
			}
		}
	}
	return false
}

// dimLen pairs a dimension name with its length.
type dimLen struct {
	name   string
	length uint64
}

// checkSignificantDims verifies that a data variable's dimensions
// reduce to the (time, y, x) triple once droppable length-1 dimensions
// are discounted.
func checkSignificantDims(dims []dimLen) error {
	n := 0
	for _, d := range dims {
		if droppableDims[d.name] && d.length == 1 {
			continue
		}
		n++
		if n > 3 {
			return fmt.Errorf("%w: dimension %q beyond (time, y, x)", ErrUnsupportedDims, d.name)
		}
	}
	if n != 3 {
		return fmt.Errorf("%w: got %d significant dimensions, want 3", ErrUnsupportedDims, n)
	}
	return nil
}

// readValues reads the data variable into a flat (time, y, x) array,
// dropping a leading or trailing length-1 ensemble dimension and
// rejecting anything else beyond the expected triple.
func readValues(v netcdf.Var, nt, ny, nx int) ([]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, err
	}
	described := make([]dimLen, 0, len(dims))
	for _, d := range dims {
		name, err := d.Name()
		if err != nil {
			return nil, err
		}
		length, err := d.Len()
		if err != nil {
			return nil, err
		}
		described = append(described, dimLen{name: name, length: length})
	}
	if err := checkSignificantDims(described); err != nil {
		return nil, err
	}

	total := nt * ny * nx
	flat, err := readFloat64s(v, total)
	if err != nil {
		return nil, err
	}

	if fv, ok := fillValue(v); ok {
		for i, val := range flat {
			if val == fv {
				flat[i] = math.NaN()
			}
		}
	}
	return flat, nil
}

// readFloat64s reads a variable of any supported numeric type into a
// float64 slice of the expected length.
func readFloat64s(v netcdf.Var, total int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	switch t {
	case netcdf.DOUBLE:
		out := make([]float64, total)
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
		return out, nil
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
}

// readCoord reads the first present 1-D coordinate among candidates.
func readCoord(nc netcdf.Dataset, candidates []string) ([]float64, error) {
	for _, name := range candidates {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		dims, err := v.Dims()
		if err != nil || len(dims) != 1 {
			continue
		}
		length, err := dims[0].Len()
		if err != nil {
			continue
		}
		return readFloat64s(v, int(length))
	}
	return nil, fmt.Errorf("not found (tried %v)", candidates)
}

// readTimeAxis decodes the time coordinate from its CF units string
// ("days since YYYY-MM-DD") and calendar attribute.
func readTimeAxis(nc netcdf.Dataset) ([]domain.Date, domain.Calendar, error) {
	var v netcdf.Var
	var found bool
	for _, name := range timeNames {
		if tv, err := nc.Var(name); err == nil {
			v = tv
			found = true
			break
		}
	}
	if !found {
		return nil, 0, fmt.Errorf("time variable not found (tried %v)", timeNames)
	}

	dims, err := v.Dims()
	if err != nil || len(dims) != 1 {
		return nil, 0, fmt.Errorf("time variable is not 1-D")
	}
	length, err := dims[0].Len()
	if err != nil {
		return nil, 0, err
	}
	offsets, err := readFloat64s(v, int(length))
	if err != nil {
		return nil, 0, err
	}

	cal := domain.ParseCalendar(attrString(v, "calendar"))
	epoch, err := parseTimeUnits(attrString(v, "units"))
	if err != nil {
		return nil, 0, err
	}

	times := make([]domain.Date, len(offsets))
	for i, off := range offsets {
		times[i] = domain.AddDays(cal, epoch, int(math.Floor(off)))
	}
	return times, cal, nil
}

// parseTimeUnits extracts the epoch date from a "days since ..." units
// attribute.
func parseTimeUnits(units string) (domain.Date, error) {
	rest, ok := strings.CutPrefix(units, "days since ")
	if !ok {
		return domain.Date{}, fmt.Errorf("unsupported time units %q", units)
	}
	datePart := strings.Fields(rest)[0]
	var d domain.Date
	if _, err := fmt.Sscanf(datePart, "%d-%d-%d", &d.Year, &d.Month, &d.Day); err != nil {
		return domain.Date{}, fmt.Errorf("unsupported time units %q: %w", units, err)
	}
	return d, nil
}

// fillValue returns the _FillValue or missing_value attribute if
// present as a float64.
func fillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		if n, err := a.Len(); err != nil || n == 0 {
			continue
		}
		buf64 := make([]float64, 1)
		if err := a.ReadFloat64s(buf64); err == nil {
			return buf64[0], true
		}
		buf32 := make([]float32, 1)
		if err := a.ReadFloat32s(buf32); err == nil {
			return float64(buf32[0]), true
		}
	}
	return 0, false
}

func attrString(v netcdf.Var, name string) string {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return ""
	}
	return strings.TrimRight(string(buf), "\x00")
}
