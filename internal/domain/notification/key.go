// Package notification holds the identity and persistence contract of sent reminders.
package notification

import (
	"fmt"
	"time"

	"compliance_notifier/internal/domain/calendar"
)

// Key identifies one reminder: a subject, a rule, one resolved occurrence of
// that rule and the lead time. At most one reminder is ever sent per Key.
type Key struct {
	SubjectID          string
	RuleID             string
	OccurrenceEpochDay int64
	LeadDays           int
}

// NewKey derives the key from a resolved occurrence date.
func NewKey(subjectID, ruleID string, occurrence calendar.Date, leadDays int) Key {
	return Key{
		SubjectID:          subjectID,
		RuleID:             ruleID,
		OccurrenceEpochDay: occurrence.EpochDay(),
		LeadDays:           leadDays,
	}
}

// String is the stable document id form, e.g. "u1_corporate_tax_20574_30days".
func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%d_%ddays", k.SubjectID, k.RuleID, k.OccurrenceEpochDay, k.LeadDays)
}

// Record is the persisted proof that the reminder for Key was delivered.
// Records are created once and never updated or deleted.
type Record struct {
	Key            Key
	Email          string
	RegulationName string
	DeadlineDate   calendar.Date
	CycleID        string
	SentAt         time.Time
}
