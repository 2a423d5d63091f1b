package app

import (
	"compliance_notifier/internal/domain/subject"
)

// Lead days at which reminders can be scheduled.
const (
	LeadDays30 = 30
	LeadDays7  = 7
	LeadDays1  = 1
)

// Decision is the outcome of a policy check.
type Decision struct {
	Fire     bool
	LeadDays int
}

// Policy maps plan tiers to lead days and lead days to the hour (operating zone)
// at which their reminders go out.
type Policy struct {
	TierLeadDays map[subject.PlanTier][]int
	// TrialLeadDays applies to trial subscriptions regardless of tier.
	TrialLeadDays []int
	SendHour      map[int]int
}

// DefaultPolicy is pro/trial 30,7,1 days; standard 7,1; lite 1.
// Reminders go out at 11:00, 10:00 and 9:00 respectively.
func DefaultPolicy() Policy {
	return Policy{
		TierLeadDays: map[subject.PlanTier][]int{
			subject.PlanPro:      {LeadDays30, LeadDays7, LeadDays1},
			subject.PlanStandard: {LeadDays7, LeadDays1},
			subject.PlanLite:     {LeadDays1},
		},
		TrialLeadDays: []int{LeadDays30, LeadDays7, LeadDays1},
		SendHour: map[int]int{
			LeadDays30: 11,
			LeadDays7:  10,
			LeadDays1:  9,
		},
	}
}

// LeadDaysFor returns the lead days of a plan tier and subscription state.
func (p Policy) LeadDaysFor(plan subject.PlanTier, state subject.SubscriptionState) []int {
	if state == subject.StateTrial {
		return p.TrialLeadDays
	}
	return p.TierLeadDays[plan]
}

// AllLeadDays is the union of every lead day the policy can fire.
func (p Policy) AllLeadDays() []int {
	seen := map[int]bool{}
	var out []int
	add := func(days []int) {
		for _, d := range days {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	add(p.TrialLeadDays)
	for _, days := range p.TierLeadDays {
		add(days)
	}
	return out
}

// ShouldFire decides whether a reminder is due now. The hour gate keeps an
// hourly cycle from firing the same lead day on every run of that day;
// ignoreHourGate is for backfills and manual tests only.
func (p Policy) ShouldFire(plan subject.PlanTier, state subject.SubscriptionState, daysUntil, currentHour int, ignoreHourGate bool) Decision {
	for _, lead := range p.LeadDaysFor(plan, state) {
		if lead != daysUntil {
			continue
		}
		if !ignoreHourGate {
			hour, ok := p.SendHour[lead]
			if !ok || hour != currentHour {
				return Decision{LeadDays: lead}
			}
		}
		return Decision{Fire: true, LeadDays: lead}
	}
	return Decision{}
}
