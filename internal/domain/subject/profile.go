package subject

import (
	"time"

	"compliance_notifier/internal/domain/calendar"
)

// Type is the legal form of a business.
type Type string

const (
	TypeCorporation    Type = "corporation"
	TypeSoleProprietor Type = "sole"
)

// PlanTier is the subscription plan that decides which lead days get a reminder.
type PlanTier string

const (
	PlanLite     PlanTier = "lite"
	PlanStandard PlanTier = "standard"
	PlanPro      PlanTier = "pro"
)

// SubscriptionState mirrors the billing status of the subject.
type SubscriptionState string

const (
	StateTrial  SubscriptionState = "trial"
	StateActive SubscriptionState = "active"
	StateOther  SubscriptionState = "other"
)

// DefaultFiscalYearEndMonth applies when a profile does not specify one (March closing).
const DefaultFiscalYearEndMonth = time.March

// NoteOverrides maps rule id -> lead days -> note text supplied by the subject.
type NoteOverrides map[string]map[int]string

// Note returns the override for (ruleID, leadDays), if any.
func (n NoteOverrides) Note(ruleID string, leadDays int) (string, bool) {
	byLead, ok := n[ruleID]
	if !ok {
		return "", false
	}
	note, ok := byLead[leadDays]
	if !ok || note == "" {
		return "", false
	}
	return note, true
}

// Profile is a read-only snapshot of a subscriber taken once per evaluation cycle.
type Profile struct {
	ID                 string
	Email              string
	Type               Type
	CompanyName        string
	ShopName           string // trade name of a sole proprietor
	ContactName        string
	FiscalYearEndMonth time.Month
	EmployeeHeadcount  int
	IncorporationDate  *calendar.Date // civil date, no zone
	Plan               PlanTier
	State              SubscriptionState
	DisabledRuleIDs    map[string]bool
	CustomNotes        NoteOverrides
}

// FiscalMonth returns the fiscal year-end month, applying the default.
func (p *Profile) FiscalMonth() time.Month {
	if p.FiscalYearEndMonth < time.January || p.FiscalYearEndMonth > time.December {
		return DefaultFiscalYearEndMonth
	}
	return p.FiscalYearEndMonth
}

// EffectivePlan treats a missing plan as pro.
func (p *Profile) EffectivePlan() PlanTier {
	if p.Plan == "" {
		return PlanPro
	}
	return p.Plan
}

// IsRuleDisabled reports whether the subject opted out of ruleID.
func (p *Profile) IsRuleDisabled(ruleID string) bool {
	return p.DisabledRuleIDs[ruleID]
}

// RecipientName builds the salutation used in reminder mail.
// Corporations are addressed by company then contact, sole proprietors by
// trade name then contact.
func (p *Profile) RecipientName() string {
	const honorific = "様"
	join := func(first, second string) string {
		switch {
		case first != "" && second != "":
			return first + honorific + "　" + second + honorific
		case first != "":
			return first + honorific
		case second != "":
			return second + honorific
		}
		return ""
	}

	var name string
	switch p.Type {
	case TypeCorporation:
		name = join(p.CompanyName, p.ContactName)
	case TypeSoleProprietor:
		name = join(p.ShopName, p.ContactName)
	default:
		name = join(p.ContactName, "")
		if name == "" {
			name = join(p.CompanyName, "")
		}
	}
	if name == "" {
		return "お客様"
	}
	return name
}
