// Package calendar holds the civil-date arithmetic used for deadline resolution.
// Every "today" and hour-of-day question is answered against a single fixed
// operating Zone, never the host clock's location.
package calendar

import (
	"fmt"
	"time"
)

// Zone is the operating timezone of the service.
type Zone struct {
	loc *time.Location
}

// JST is the reference deployment zone (UTC+9, no DST).
var JST = FixedZone("JST", 9)

// FixedZone builds a Zone with a constant offset from UTC.
func FixedZone(name string, offsetHours int) Zone {
	return Zone{loc: time.FixedZone(name, offsetHours*60*60)}
}

// ZoneOf wraps an existing location.
func ZoneOf(loc *time.Location) Zone {
	return Zone{loc: loc}
}

// Location returns the underlying location, defaulting to JST for the zero Zone.
func (z Zone) Location() *time.Location {
	if z.loc == nil {
		return JST.loc
	}
	return z.loc
}

// In converts an instant into the operating zone.
func (z Zone) In(t time.Time) time.Time {
	return t.In(z.Location())
}

// Today is the calendar date of t as observed in the zone.
func (z Zone) Today(t time.Time) Date {
	local := z.In(t)
	return NewDate(local.Year(), local.Month(), local.Day())
}

// Hour is the wall-clock hour of t in the zone.
func (z Zone) Hour(t time.Time) int {
	return z.In(t).Hour()
}

// At returns midnight of d in the zone.
func (z Zone) At(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, z.Location())
}

// Date is a civil date without a time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes overflowing components the same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ClampedDate builds a date, pulling day back to the last day of the month
// instead of overflowing into the next one (Feb 31 -> Feb 28/29).
func ClampedDate(year int, month time.Month, day int) Date {
	first := NewDate(year, month, 1)
	if last := DaysIn(first.Year, first.Month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return Date{Year: first.Year, Month: first.Month, Day: day}
}

// DaysIn reports the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// LastDayOfMonth returns the last calendar day of the month containing d.
func LastDayOfMonth(year int, month time.Month) Date {
	return NewDate(year, month+1, 0)
}

func (d Date) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) Before(o Date) bool { return d.utc().Before(o.utc()) }
func (d Date) After(o Date) bool  { return d.utc().After(o.utc()) }
func (d Date) Equal(o Date) bool  { return d == o }

// AddDays shifts d by n days.
func (d Date) AddDays(n int) Date {
	return NewDate(d.Year, d.Month, d.Day+n)
}

// EpochDay is the number of days since 1970-01-01.
func (d Date) EpochDay() int64 {
	return d.utc().Unix() / (24 * 60 * 60)
}

// FromEpochDay is the inverse of EpochDay.
func FromEpochDay(n int64) Date {
	t := time.Unix(n*24*60*60, 0).UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// DaysUntil is the signed number of calendar days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.EpochDay() - d.EpochDay())
}

// IsLastDayOfMonth reports whether d is the final day of its month.
func (d Date) IsLastDayOfMonth() bool {
	return d.Day == DaysIn(d.Year, d.Month)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Japanese renders d as 2026年5月1日.
func (d Date) Japanese() string {
	return fmt.Sprintf("%d年%d月%d日", d.Year, int(d.Month), d.Day)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

// MonthsBetween counts calendar month boundaries crossed from `from` to `to`.
// The day of month is ignored: Feb 20 -> next year's Feb 10 is 12 months.
// A `from` later than `to` yields a negative count.
func MonthsBetween(from, to Date) int {
	return (to.Year-from.Year)*12 + int(to.Month) - int(from.Month)
}
