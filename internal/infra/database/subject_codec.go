package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/subject"
)

// Custom errors
var ErrSubjectNotFound = fmt.Errorf("subject not found")

// decodeCustomNotes parses {"rule_id": {"30": "note text"}}.
func decodeCustomNotes(raw []byte) (subject.NoteOverrides, error) {
	if len(raw) == 0 {
		return subject.NoteOverrides{}, nil
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("error decoding custom notes: %w", err)
	}
	notes := make(subject.NoteOverrides, len(doc))
	for ruleID, byLead := range doc {
		m := make(map[int]string, len(byLead))
		for leadStr, note := range byLead {
			lead, err := strconv.Atoi(leadStr)
			if err != nil {
				return nil, fmt.Errorf("error decoding custom notes: rule %s: invalid lead day %q", ruleID, leadStr)
			}
			m[lead] = note
		}
		notes[ruleID] = m
	}
	return notes, nil
}

func encodeCustomNotes(notes subject.NoteOverrides) ([]byte, error) {
	doc := make(map[string]map[string]string, len(notes))
	for ruleID, byLead := range notes {
		m := make(map[string]string, len(byLead))
		for lead, note := range byLead {
			m[strconv.Itoa(lead)] = note
		}
		doc[ruleID] = m
	}
	return json.Marshal(doc)
}

func ruleSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func ruleList(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id, on := range set {
		if on {
			ids = append(ids, id)
		}
	}
	return ids
}

func stateStrings(states []subject.SubscriptionState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// subjectRow holds the scalar columns shared by both backends.
type subjectRow struct {
	ID, Email, CompanyType, CompanyName, ShopName, ContactName string
	FiscalMonth, EmployeeCount                                 int
	Plan, Status                                               string
}

// dateOf keeps the stored year/month/day of a DATE column without zone conversion.
func dateOf(t time.Time) *calendar.Date {
	d := calendar.NewDate(t.Year(), t.Month(), t.Day())
	return &d
}

func (r subjectRow) profile(incorporated *calendar.Date) *subject.Profile {
	return &subject.Profile{
		ID:                 r.ID,
		Email:              r.Email,
		Type:               subject.Type(r.CompanyType),
		CompanyName:        r.CompanyName,
		ShopName:           r.ShopName,
		ContactName:        r.ContactName,
		FiscalYearEndMonth: time.Month(r.FiscalMonth),
		EmployeeHeadcount:  r.EmployeeCount,
		IncorporationDate:  incorporated,
		Plan:               subject.PlanTier(r.Plan),
		State:              subject.SubscriptionState(r.Status),
	}
}
