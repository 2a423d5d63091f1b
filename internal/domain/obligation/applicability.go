package obligation

import (
	"time"

	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/subject"
)

// ExemptionMonths is the length of the new-business consumption tax exemption.
// It is measured in elapsed whole calendar months, not days.
const ExemptionMonths = 24

// Applicable returns the rules that apply to profile at the instant now.
// A rule is kept when its subject type and headcount filters match and it is
// not a consumption tax rule suppressed by the new-business exemption.
func Applicable(profile *subject.Profile, rules []Rule, now time.Time, zone calendar.Zone) []Rule {
	exempt := InExemptionPeriod(profile, now, zone)

	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.SubjectType != "" && r.SubjectType != string(profile.Type) {
			continue
		}
		if r.MinEmployees != nil && profile.EmployeeHeadcount < *r.MinEmployees {
			continue
		}
		if exempt && r.HasTag(TagConsumptionTax) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// InExemptionPeriod reports whether fewer than ExemptionMonths calendar months have
// elapsed since the subject's incorporation. Only year and month are compared.
func InExemptionPeriod(profile *subject.Profile, now time.Time, zone calendar.Zone) bool {
	if profile.IncorporationDate == nil {
		return false
	}
	return calendar.MonthsBetween(*profile.IncorporationDate, zone.Today(now)) < ExemptionMonths
}
