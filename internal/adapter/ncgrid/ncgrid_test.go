package ncgrid

import (
	"errors"
	"testing"

	"github.com/ukclimate/gridalign/internal/domain"
)

// TestParseTimeUnits tests epoch extraction from CF units strings
func TestParseTimeUnits(t *testing.T) {
	tests := []struct {
		units   string
		want    domain.Date
		wantErr bool
	}{
		{"days since 1980-12-01", domain.Date{Year: 1980, Month: 12, Day: 1}, false},
		{"days since 1980-12-01 00:00:00", domain.Date{Year: 1980, Month: 12, Day: 1}, false},
		{"days since 1980-1-1", domain.Date{Year: 1980, Month: 1, Day: 1}, false},
		{"hours since 1980-12-01", domain.Date{}, true},
		{"days since banana", domain.Date{}, true},
		{"", domain.Date{}, true},
	}
	for _, tt := range tests {
		got, err := parseTimeUnits(tt.units)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %v", tt.units, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.units, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.units, got, tt.want)
		}
	}
}

// TestBandIndex tests recognition of GDAL's BandN variable names
func TestBandIndex(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"Band1", 1, true},
		{"Band12", 12, true},
		{"Band360", 360, true},
		{"Band0", 0, false},
		{"Band", 0, false},
		{"band1", 0, false},
		{"Bandx", 0, false},
		{"time", 0, false},
	}
	for _, tt := range tests {
		got, ok := bandIndex(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("bandIndex(%q) = (%d, %v), want (%d, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

// TestCheckSignificantDims tests the (time, y, x) dimension contract
func TestCheckSignificantDims(t *testing.T) {
	txy := []dimLen{{"time", 365}, {"projection_y_coordinate", 660}, {"projection_x_coordinate", 410}}

	tests := []struct {
		name    string
		dims    []dimLen
		wantErr bool
	}{
		{"plain triple", txy, false},
		{"length-1 ensemble dropped", append([]dimLen{{"ensemble_member", 1}}, txy...), false},
		{"real ensemble rejected", append([]dimLen{{"ensemble_member", 12}}, txy...), true},
		{"bnds never dropped", append([]dimLen{{"bnds", 1}}, txy...), true},
		{"too few", txy[:2], true},
		{"too many", append(append([]dimLen{}, txy...), dimLen{"depth", 5}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSignificantDims(tt.dims)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkSignificantDims() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnsupportedDims) {
				t.Errorf("error %v does not wrap ErrUnsupportedDims", err)
			}
		})
	}
}

// TestTimeColumns tests the helper columns written alongside the axis
func TestTimeColumns(t *testing.T) {
	times := domain.DateRange(domain.CalStandard, domain.Date{Year: 1980, Month: 12, Day: 30}, 3)
	months, years, labels := timeColumns(times)

	wantMonths := []int32{12, 12, 1}
	wantYears := []int32{1980, 1980, 1981}
	for i := range times {
		if months[i] != wantMonths[i] {
			t.Errorf("month[%d] = %d, want %d", i, months[i], wantMonths[i])
		}
		if years[i] != wantYears[i] {
			t.Errorf("year[%d] = %d, want %d", i, years[i], wantYears[i])
		}
	}
	if got, want := string(labels), "198012301980123119810101"; got != want {
		t.Errorf("labels = %q, want %q", got, want)
	}
}
