package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYMD(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{"19801201", Date{1980, 12, 1}, false},
		{"20211231", Date{2021, 12, 31}, false},
		{"1980121", Date{}, true},
		{"1980ab01", Date{}, true},
		{"19801301", Date{}, true},
		{"19801232", Date{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseYMD(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateYMDRoundTrip(t *testing.T) {
	d := Date{1981, 2, 9}
	parsed, err := ParseYMD(d.YMD())
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestDaysInYear(t *testing.T) {
	assert.Equal(t, 360, DaysInYear(Cal360, 1980))
	assert.Equal(t, 366, DaysInYear(CalStandard, 1980))
	assert.Equal(t, 365, DaysInYear(CalStandard, 1981))
	assert.Equal(t, 365, DaysInYear(CalStandard, 1900)) // century, not leap
	assert.Equal(t, 366, DaysInYear(CalStandard, 2000))
}

func TestNext360CrossesMonthAndYear(t *testing.T) {
	// Feb 30 exists on the model calendar.
	assert.Equal(t, Date{1981, 2, 30}, Date{1981, 2, 29}.Next(Cal360))
	assert.Equal(t, Date{1981, 3, 1}, Date{1981, 2, 30}.Next(Cal360))
	assert.Equal(t, Date{1982, 1, 1}, Date{1981, 12, 30}.Next(Cal360))
}

func TestAddDays(t *testing.T) {
	t.Run("360 day", func(t *testing.T) {
		start := Date{1980, 12, 1}
		assert.Equal(t, start, AddDays(Cal360, start, 0))
		assert.Equal(t, Date{1980, 12, 30}, AddDays(Cal360, start, 29))
		assert.Equal(t, Date{1981, 1, 1}, AddDays(Cal360, start, 30))
		assert.Equal(t, Date{1981, 11, 30}, AddDays(Cal360, start, 359))
	})
	t.Run("standard", func(t *testing.T) {
		start := Date{1980, 12, 1}
		assert.Equal(t, Date{1981, 1, 1}, AddDays(CalStandard, start, 31))
		// 1980 is a leap year but December is past February.
		assert.Equal(t, Date{1981, 11, 30}, AddDays(CalStandard, start, 364))
	})
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 360, DaysBetween(Cal360, Date{1980, 12, 1}, Date{1981, 12, 1}))
	assert.Equal(t, 365, DaysBetween(CalStandard, Date{1980, 12, 1}, Date{1981, 12, 1}))
	assert.Equal(t, -30, DaysBetween(Cal360, Date{1981, 2, 1}, Date{1981, 1, 1}))
}

func TestDateRangeLength(t *testing.T) {
	dates := DateRange(Cal360, Date{1980, 12, 1}, 360)
	require.Len(t, dates, 360)
	assert.Equal(t, Date{1981, 11, 30}, dates[359])
	for i := 1; i < len(dates); i++ {
		assert.True(t, dates[i-1].Before(dates[i]))
	}
}

func TestParseCalendar(t *testing.T) {
	assert.Equal(t, Cal360, ParseCalendar("360_day"))
	assert.Equal(t, CalStandard, ParseCalendar("standard"))
	assert.Equal(t, CalStandard, ParseCalendar("gregorian"))
	assert.Equal(t, CalStandard, ParseCalendar(""))
}
