package timewindow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", 8*3600)

func TestResolveNamedPeriods(t *testing.T) {
	now := time.Date(2024, time.August, 17, 15, 30, 0, 0, cst)

	cases := []struct {
		name  string
		rng   Range
		start time.Time
	}{
		{"year", Range{TimeRange: "year"}, time.Date(2024, time.January, 1, 0, 0, 0, 0, cst)},
		{"default is year", Range{}, time.Date(2024, time.January, 1, 0, 0, 0, 0, cst)},
		{"quarter", Range{TimeRange: "quarter"}, time.Date(2024, time.July, 1, 0, 0, 0, 0, cst)},
		{"month", Range{TimeRange: "MONTH"}, time.Date(2024, time.August, 1, 0, 0, 0, 0, cst)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := Resolve(tc.rng, now, cst)
			require.NoError(t, err)
			require.True(t, tc.start.Equal(w.Start()), "start %s", w.Start())
			require.True(t, now.Equal(w.End()))
		})
	}
}

func TestResolveQuarterBoundaries(t *testing.T) {
	for month, want := range map[time.Month]time.Month{
		time.January: time.January, time.March: time.January,
		time.April: time.April, time.June: time.April,
		time.October: time.October, time.December: time.October,
	} {
		now := time.Date(2023, month, 10, 0, 0, 0, 0, time.UTC)
		w, err := Resolve(Range{TimeRange: RangeQuarter}, now, nil)
		require.NoError(t, err)
		require.Equal(t, want, w.Start().Month())
		require.Equal(t, 1, w.Start().Day())
	}
}

func TestResolveCustomRangeTakesPrecedence(t *testing.T) {
	now := time.Date(2024, time.May, 2, 9, 0, 0, 0, cst)
	w, err := Resolve(Range{TimeRange: "year", StartDate: "2023-01-01", EndDate: "2023-01-31"}, now, cst)
	require.NoError(t, err)

	require.Equal(t, RangeCustom, w.Label())
	require.True(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, cst).Equal(w.Start()))
	require.True(t, time.Date(2023, time.January, 31, 23, 59, 59, 0, cst).Equal(w.End()))
	require.True(t, w.Contains(time.Date(2023, time.January, 31, 18, 0, 0, 0, cst).Unix()))
	require.False(t, w.Contains(time.Date(2023, time.February, 1, 0, 0, 0, 0, cst).Unix()))
}

func TestResolveSingleDayCustomRange(t *testing.T) {
	w, err := Resolve(Range{StartDate: "2023-03-05", EndDate: "2023-03-05"}, time.Now(), time.UTC)
	require.NoError(t, err)
	require.Equal(t, int64(86399), w.EndUnix()-w.StartUnix())
}

func TestResolveRejectsBadRanges(t *testing.T) {
	now := time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		rng   Range
		field string
	}{
		{"inverted", Range{StartDate: "2023-02-01", EndDate: "2023-01-31"}, "endDate"},
		{"bad start", Range{StartDate: "2023-13-01", EndDate: "2023-12-31"}, "startDate"},
		{"bad end", Range{StartDate: "2023-01-01", EndDate: "yesterday"}, "endDate"},
		{"custom without dates", Range{TimeRange: "custom"}, "startDate"},
		{"custom missing end", Range{TimeRange: "custom", StartDate: "2023-01-01"}, "endDate"},
		{"unknown period", Range{TimeRange: "decade"}, "timeRange"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.rng, now, time.UTC)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidRange))
			var rangeErr *RangeError
			require.True(t, errors.As(err, &rangeErr))
			require.Equal(t, tc.field, rangeErr.Field)
		})
	}
}

func TestResolveIgnoresLoneDateForNamedPeriod(t *testing.T) {
	now := time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)
	w, err := Resolve(Range{TimeRange: "month", StartDate: "2020-01-01"}, now, time.UTC)
	require.NoError(t, err)
	require.Equal(t, RangeMonth, w.Label())
}

func TestWindowKeyIsStableWithinPeriod(t *testing.T) {
	a, err := Resolve(Range{TimeRange: "month"}, time.Date(2024, time.May, 2, 9, 0, 0, 0, cst), cst)
	require.NoError(t, err)
	b, err := Resolve(Range{TimeRange: "month"}, time.Date(2024, time.May, 20, 23, 0, 0, 0, cst), cst)
	require.NoError(t, err)
	require.Equal(t, a.Key(), b.Key())

	c, err := Resolve(Range{TimeRange: "month"}, time.Date(2024, time.June, 1, 0, 0, 0, 0, cst), cst)
	require.NoError(t, err)
	require.NotEqual(t, a.Key(), c.Key())
}
