// Package calendar converts 360-day model-calendar time series onto
// the real Gregorian calendar.
//
// Only the align-on-year convention is implemented: each model day is
// placed at the Gregorian day occupying the same relative position
// within the same year, the five or six Gregorian days per year with no
// model counterpart are filled by bounded linear interpolation.
// Align-on-date is deliberately unsupported; it is not equivalent for
// multi-year spans.
package calendar

import (
	"errors"
	"fmt"

	"github.com/ukclimate/gridalign/internal/adapter/interp"
	"github.com/ukclimate/gridalign/internal/domain"
)

// ErrSpanTooShort is returned when the input covers too few days to
// build a meaningful target calendar. Callers must reject short
// windows up front rather than feeding them through conversion.
var ErrSpanTooShort = errors.New("calendar: date range too short to normalize")

// minValidDays is the smallest number of mapped days Normalize accepts.
const minValidDays = 5

// Options tunes calendar normalization.
type Options struct {
	// MaxGapDays is the widest run of missing days linear
	// interpolation may bridge. Zero means the default of 1, which
	// covers the gaps align-on-year mapping produces.
	MaxGapDays int
}

func (o Options) maxGap() int {
	if o.MaxGapDays <= 0 {
		return 1
	}
	return o.MaxGapDays
}

// AlreadyNormalized reports whether a series is structurally in the
// target form: a full 365/366-day year on the time axis and the known
// post-reprojection spatial footprint. Used as the cheap idempotency
// check before any conversion work.
func AlreadyNormalized(s *domain.Series) bool {
	nt := s.NT()
	return (nt == 365 || nt == 366) &&
		s.NX() == domain.ConvertedCols &&
		s.NY() == domain.ConvertedRows
}

// Normalize converts a 360-day-calendar series to the Gregorian
// calendar covering the same nominal span. Standard-calendar input is
// returned unchanged. The input series is not modified.
func Normalize(s *domain.Series, opts Options) (*domain.Series, error) {
	if s.Calendar != domain.Cal360 {
		return s, nil
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}

	start := mapToGregorian(s.Times[0])
	end := mapToGregorian(s.Times[s.NT()-1])
	nOut := domain.DaysBetween(domain.CalStandard, start, end) + 1
	if nOut < minValidDays {
		return nil, fmt.Errorf("%w: %s-%s yields %d days", ErrSpanTooShort, start.YMD(), end.YMD(), nOut)
	}

	outTimes := domain.DateRange(domain.CalStandard, start, nOut)
	out := domain.NewSeries(s.Variable, domain.CalStandard, outTimes, s.Y, s.X, s.Resolution, s.CRS)
	out.Units = s.Units

	// Place each model day at its Gregorian position. The mapping is
	// strictly increasing, so no two model days collide.
	placed := 0
	nyx := s.NY() * s.NX()
	for t, d := range s.Times {
		g := mapToGregorian(d)
		ot := domain.DaysBetween(domain.CalStandard, start, g)
		if ot < 0 || ot >= nOut {
			continue
		}
		copy(out.Values[ot*nyx:(ot+1)*nyx], s.Values[t*nyx:(t+1)*nyx])
		placed++
	}
	if placed < minValidDays {
		return nil, fmt.Errorf("%w: only %d of %d model days mapped", ErrSpanTooShort, placed, s.NT())
	}

	fillTimeGaps(out, opts.maxGap())
	return out, nil
}

// mapToGregorian places a 360-day-calendar date at the Gregorian day
// with the same relative position in the same year (align on year).
func mapToGregorian(d domain.Date) domain.Date {
	doy360 := d.DayOfYear(domain.Cal360)
	nDays := domain.DaysInYear(domain.CalStandard, d.Year)
	doyG := (doy360-1)*nDays/360 + 1
	return dateFromDayOfYear(d.Year, doyG)
}

func dateFromDayOfYear(year, doy int) domain.Date {
	d := domain.Date{Year: year, Month: 1, Day: 1}
	for m := 1; m <= 12; m++ {
		dim := domain.DaysInMonth(domain.CalStandard, year, m)
		if doy <= dim {
			return domain.Date{Year: year, Month: m, Day: doy}
		}
		doy -= dim
	}
	return d
}

// fillTimeGaps interpolates every cell's time series across the days
// the calendar mapping left missing.
func fillTimeGaps(s *domain.Series, maxGap int) {
	nt, ny, nx := s.NT(), s.NY(), s.NX()
	column := make([]float64, nt)
	for yi := 0; yi < ny; yi++ {
		for xi := 0; xi < nx; xi++ {
			for t := 0; t < nt; t++ {
				column[t] = s.At(t, yi, xi)
			}
			if interp.FillGaps(column, maxGap) == 0 {
				continue
			}
			for t := 0; t < nt; t++ {
				s.Set(t, yi, xi, column[t])
			}
		}
	}
}
