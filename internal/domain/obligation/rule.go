package obligation

import (
	"fmt"
	"time"
)

// Category is an informational grouping of rules.
type Category string

const (
	CategoryTax   Category = "tax"
	CategoryLabor Category = "labor"
	CategoryOther Category = "other"
)

// RecurrenceKind selects how a rule's next deadline is computed.
type RecurrenceKind string

const (
	KindRelativeToFiscalYear RecurrenceKind = "relative_to_fiscal_year"
	KindFixedDayOfMonth      RecurrenceKind = "fixed_day_of_month"
	KindEndOfMonth           RecurrenceKind = "end_of_month"
	KindFixedMonth           RecurrenceKind = "fixed_month"
	KindEventBased           RecurrenceKind = "event_based"
)

// Kinds lists every recurrence kind the resolver understands.
var Kinds = []RecurrenceKind{
	KindRelativeToFiscalYear,
	KindFixedDayOfMonth,
	KindEndOfMonth,
	KindFixedMonth,
	KindEventBased,
}

// TagConsumptionTax marks rules dropped during the new-business exemption period.
const TagConsumptionTax = "consumption_tax"

// Recurrence is the kind tag plus its payload. Only the fields of the
// selected kind are meaningful.
type Recurrence struct {
	Kind RecurrenceKind
	// MonthOffset is added to the fiscal year-end month (relative_to_fiscal_year).
	MonthOffset int
	// Day of month (fixed_day_of_month, fixed_month).
	Day int
	// Month of year (fixed_month).
	Month time.Month
	// Lag is a human description for event_based rules ("速やかに").
	Lag string
}

// Validate checks the payload of the selected kind.
func (r Recurrence) Validate() error {
	switch r.Kind {
	case KindRelativeToFiscalYear:
		if r.MonthOffset < 0 || r.MonthOffset > 23 {
			return fmt.Errorf("month offset %d out of range 0..23", r.MonthOffset)
		}
	case KindFixedDayOfMonth:
		if r.Day < 1 || r.Day > 31 {
			return fmt.Errorf("day %d out of range 1..31", r.Day)
		}
	case KindEndOfMonth:
	case KindFixedMonth:
		if r.Month < time.January || r.Month > time.December {
			return fmt.Errorf("month %d out of range 1..12", r.Month)
		}
		// 2024 is a leap year, so 2/29 is accepted and clamped in other years.
		if limit := time.Date(2024, r.Month+1, 0, 0, 0, 0, 0, time.UTC).Day(); r.Day < 1 || r.Day > limit {
			return fmt.Errorf("day %d out of range 1..%d for month %d", r.Day, limit, r.Month)
		}
	case KindEventBased:
	default:
		return fmt.Errorf("unknown recurrence kind %q", r.Kind)
	}
	return nil
}

func (r Recurrence) String() string {
	switch r.Kind {
	case KindRelativeToFiscalYear:
		return fmt.Sprintf("fiscal year end +%d months", r.MonthOffset)
	case KindFixedDayOfMonth:
		return fmt.Sprintf("monthly on day %d", r.Day)
	case KindEndOfMonth:
		return "monthly on last day"
	case KindFixedMonth:
		return fmt.Sprintf("yearly on %d/%d", int(r.Month), r.Day)
	case KindEventBased:
		return "event based: " + r.Lag
	}
	return string(r.Kind)
}

// Rule is an immutable obligation definition from the catalog.
type Rule struct {
	ID          string
	Category    Category
	Title       string
	Description string
	Recurrence  Recurrence
	// SubjectType restricts the rule to one legal form; empty means universal.
	SubjectType string
	// MinEmployees is the minimum headcount; nil means universal.
	MinEmployees *int
	Tags         []string
}

// HasTag reports whether the rule carries tag.
func (r Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
