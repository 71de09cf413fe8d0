package domain

import (
	"fmt"
	"time"
)

// Calendar identifies the calendar a time axis is expressed in.
type Calendar int

const (
	// CalStandard is the real (proleptic Gregorian) calendar.
	CalStandard Calendar = iota
	// Cal360 is the climate-model calendar: every year has twelve
	// 30-day months, 360 days total.
	Cal360
)

// String returns the CF-convention calendar attribute value.
func (c Calendar) String() string {
	if c == Cal360 {
		return "360_day"
	}
	return "standard"
}

// ParseCalendar maps a CF calendar attribute to a Calendar.
// Unrecognized values default to the standard calendar, which is what
// files missing the attribute mean in practice.
func ParseCalendar(attr string) Calendar {
	if attr == "360_day" {
		return Cal360
	}
	return CalStandard
}

// Date is a calendar date. Validity of Month/Day depends on the Calendar
// it is interpreted against: Feb 30 exists on the 360-day calendar.
type Date struct {
	Year  int
	Month int
	Day   int
}

// ParseYMD parses an 8-digit YYYYMMDD date as used in file names.
func ParseYMD(s string) (Date, error) {
	if len(s) != 8 {
		return Date{}, fmt.Errorf("invalid date %q: want 8 digits YYYYMMDD", s)
	}
	var d Date
	if _, err := fmt.Sscanf(s, "%4d%2d%2d", &d.Year, &d.Month, &d.Day); err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > 31 {
		return Date{}, fmt.Errorf("invalid date %q: month/day out of range", s)
	}
	return d, nil
}

// YMD returns the 8-digit YYYYMMDD form used in file names.
func (d Date) YMD() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Equal reports whether two dates are the same day.
func (d Date) Equal(o Date) bool { return d == o }

// Time converts a standard-calendar date to a time.Time at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// DaysInYear returns the length of d's year on the given calendar.
func DaysInYear(cal Calendar, year int) int {
	if cal == Cal360 {
		return 360
	}
	if isLeap(year) {
		return 366
	}
	return 365
}

// DaysInMonth returns the length of a month on the given calendar.
func DaysInMonth(cal Calendar, year, month int) int {
	if cal == Cal360 {
		return 30
	}
	// First of next month minus one day.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DayOfYear returns the 1-based ordinal of d within its year on cal.
func (d Date) DayOfYear(cal Calendar) int {
	if cal == Cal360 {
		return (d.Month-1)*30 + d.Day
	}
	return d.Time().YearDay()
}

// Next returns the day after d on the given calendar.
func (d Date) Next(cal Calendar) Date {
	if cal == Cal360 {
		if d.Day < 30 {
			return Date{d.Year, d.Month, d.Day + 1}
		}
		if d.Month < 12 {
			return Date{d.Year, d.Month + 1, 1}
		}
		return Date{d.Year + 1, 1, 1}
	}
	t := d.Time().AddDate(0, 0, 1)
	return Date{t.Year(), int(t.Month()), t.Day()}
}

// DateRange returns the n consecutive dates starting at start on cal.
func DateRange(cal Calendar, start Date, n int) []Date {
	out := make([]Date, 0, n)
	d := start
	for i := 0; i < n; i++ {
		out = append(out, d)
		d = d.Next(cal)
	}
	return out
}

// AddDays returns the date n days after d on the given calendar.
func AddDays(cal Calendar, d Date, n int) Date {
	if cal == Cal360 {
		abs := dayNumber360(d) + n
		year := abs / 360
		rem := abs % 360
		if rem < 0 {
			rem += 360
			year--
		}
		return Date{Year: year, Month: rem/30 + 1, Day: rem%30 + 1}
	}
	t := d.Time().AddDate(0, 0, n)
	return Date{t.Year(), int(t.Month()), t.Day()}
}

// DaysBetween returns the number of days from a to b (exclusive of b)
// on the given calendar. Negative when b is before a.
func DaysBetween(cal Calendar, a, b Date) int {
	if cal == Cal360 {
		return dayNumber360(b) - dayNumber360(a)
	}
	return int(b.Time().Sub(a.Time()).Hours() / 24)
}

func dayNumber360(d Date) int {
	return d.Year*360 + (d.Month-1)*30 + (d.Day - 1)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
