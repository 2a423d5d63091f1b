package obligation

import (
	"fmt"
	"time"

	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/subject"
)

// Occurrence is one resolved due date of a rule for a subject.
// It is recomputed every cycle and never cached.
type Occurrence struct {
	RuleID    string
	Date      calendar.Date
	DaysUntil int
}

// Resolve computes the next occurrence of rule for profile as of the instant now,
// normalized to the operating zone. ok is false for rules with no computable date
// (event based); callers must not schedule reminders for those.
func Resolve(rule Rule, profile *subject.Profile, now time.Time, zone calendar.Zone) (Occurrence, bool) {
	return ResolveOn(rule, profile, zone.Today(now))
}

// ResolveOn is Resolve with "today" already normalized. The returned date is never
// before today; a candidate equal to today is due today and is not rolled forward.
func ResolveOn(rule Rule, profile *subject.Profile, today calendar.Date) (Occurrence, bool) {
	date, ok := nextDate(rule.Recurrence, profile, today)
	if !ok {
		return Occurrence{RuleID: rule.ID}, false
	}
	return Occurrence{
		RuleID:    rule.ID,
		Date:      date,
		DaysUntil: today.DaysUntil(date),
	}, true
}

func nextDate(rec Recurrence, profile *subject.Profile, today calendar.Date) (calendar.Date, bool) {
	switch rec.Kind {
	case KindRelativeToFiscalYear:
		fiscal := subject.DefaultFiscalYearEndMonth
		if profile != nil {
			fiscal = profile.FiscalMonth()
		}
		target := time.Month((int(fiscal)+rec.MonthOffset-1)%12 + 1)
		candidate := calendar.NewDate(today.Year, target, 1)
		if candidate.Before(today) {
			candidate = calendar.NewDate(today.Year+1, target, 1)
		}
		return candidate, true

	case KindFixedDayOfMonth:
		candidate := calendar.ClampedDate(today.Year, today.Month, rec.Day)
		if candidate.Before(today) {
			candidate = calendar.ClampedDate(today.Year, today.Month+1, rec.Day)
		}
		return candidate, true

	case KindEndOfMonth:
		candidate := calendar.LastDayOfMonth(today.Year, today.Month)
		if candidate.Before(today) {
			candidate = calendar.LastDayOfMonth(today.Year, today.Month+1)
		}
		return candidate, true

	case KindFixedMonth:
		day := rec.Day
		if day == 0 {
			day = 1
		}
		candidate := calendar.ClampedDate(today.Year, rec.Month, day)
		if candidate.Before(today) {
			candidate = calendar.ClampedDate(today.Year+1, rec.Month, day)
		}
		return candidate, true

	case KindEventBased:
		return calendar.Date{}, false
	}
	panic(fmt.Sprintf("obligation: unhandled recurrence kind %q", rec.Kind))
}
