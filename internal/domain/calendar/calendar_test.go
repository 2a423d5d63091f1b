package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance_notifier/internal/domain/calendar"
)

func TestZone_TodayCrossesMidnight(t *testing.T) {
	// GIVEN: 15:30 UTC on Jan 31, which is 00:30 on Feb 1 in JST
	instant := time.Date(2026, time.January, 31, 15, 30, 0, 0, time.UTC)

	// WHEN / THEN: the operating date is Feb 1 and the hour is 0
	assert.Equal(t, calendar.NewDate(2026, time.February, 1), calendar.JST.Today(instant))
	assert.Equal(t, 0, calendar.JST.Hour(instant))
}

func TestZone_ZeroValueIsJST(t *testing.T) {
	var z calendar.Zone
	instant := time.Date(2026, time.March, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, calendar.NewDate(2026, time.March, 11), z.Today(instant))
}

func TestClampedDate(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		day   int
		want  calendar.Date
	}{
		{"feb in common year", 2026, time.February, 31, calendar.NewDate(2026, time.February, 28)},
		{"feb in leap year", 2028, time.February, 30, calendar.NewDate(2028, time.February, 29)},
		{"april has 30 days", 2026, time.April, 31, calendar.NewDate(2026, time.April, 30)},
		{"month overflow rolls the year", 2026, time.Month(13), 31, calendar.NewDate(2027, time.January, 31)},
		{"in range is untouched", 2026, time.June, 15, calendar.NewDate(2026, time.June, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calendar.ClampedDate(tt.year, tt.month, tt.day))
		})
	}
}

func TestLastDayOfMonth(t *testing.T) {
	assert.Equal(t, 29, calendar.LastDayOfMonth(2028, time.February).Day)
	assert.Equal(t, 28, calendar.LastDayOfMonth(2026, time.February).Day)
	assert.Equal(t, calendar.NewDate(2027, time.January, 31), calendar.LastDayOfMonth(2026, time.Month(13)))
	assert.True(t, calendar.NewDate(2026, time.April, 30).IsLastDayOfMonth())
	assert.False(t, calendar.NewDate(2026, time.May, 30).IsLastDayOfMonth())
}

func TestEpochDay_RoundTrip(t *testing.T) {
	assert.Equal(t, int64(0), calendar.NewDate(1970, time.January, 1).EpochDay())

	d := calendar.NewDate(2026, time.May, 1)
	assert.Equal(t, d, calendar.FromEpochDay(d.EpochDay()))
	assert.Equal(t, 1, d.AddDays(-1).DaysUntil(d))
	assert.Equal(t, -30, d.DaysUntil(calendar.NewDate(2026, time.April, 1)))
}

func TestDate_Formatting(t *testing.T) {
	d := calendar.NewDate(2026, time.May, 1)
	assert.Equal(t, "2026-05-01", d.String())
	assert.Equal(t, "2026年5月1日", d.Japanese())

	parsed, err := calendar.ParseDate("2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = calendar.ParseDate("2026/05/01")
	assert.Error(t, err)
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name     string
		from, to calendar.Date
		want     int
	}{
		{"same day", calendar.NewDate(2024, time.April, 1), calendar.NewDate(2024, time.April, 1), 0},
		{"day of month ignored", calendar.NewDate(2024, time.April, 15), calendar.NewDate(2026, time.April, 14), 24},
		{"one month short of 24", calendar.NewDate(2024, time.May, 1), calendar.NewDate(2026, time.April, 30), 23},
		{"later day early in month", calendar.NewDate(2024, time.February, 20), calendar.NewDate(2026, time.February, 10), 24},
		{"exactly 24 months", calendar.NewDate(2024, time.April, 15), calendar.NewDate(2026, time.April, 15), 24},
		{"month end into shorter month", calendar.NewDate(2026, time.January, 31), calendar.NewDate(2026, time.February, 28), 1},
		{"next month before day", calendar.NewDate(2026, time.January, 20), calendar.NewDate(2026, time.February, 19), 1},
		{"from after to", calendar.NewDate(2026, time.March, 1), calendar.NewDate(2026, time.January, 1), -2},
		{"across year end", calendar.NewDate(2025, time.November, 1), calendar.NewDate(2026, time.February, 1), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calendar.MonthsBetween(tt.from, tt.to))
		})
	}
}
