package subject_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"compliance_notifier/internal/domain/subject"
)

func TestProfile_Defaults(t *testing.T) {
	p := &subject.Profile{}
	assert.Equal(t, time.March, p.FiscalMonth())
	assert.Equal(t, subject.PlanPro, p.EffectivePlan())
	assert.False(t, p.IsRuleDisabled("corporate_tax"))

	p = &subject.Profile{FiscalYearEndMonth: time.December, Plan: subject.PlanLite, DisabledRuleIDs: map[string]bool{"corporate_tax": true}}
	assert.Equal(t, time.December, p.FiscalMonth())
	assert.Equal(t, subject.PlanLite, p.EffectivePlan())
	assert.True(t, p.IsRuleDisabled("corporate_tax"))
}

func TestProfile_RecipientName(t *testing.T) {
	tests := []struct {
		name    string
		profile subject.Profile
		want    string
	}{
		{"corporation with contact", subject.Profile{Type: subject.TypeCorporation, CompanyName: "株式会社メルキ", ContactName: "山田"}, "株式会社メルキ様　山田様"},
		{"corporation without contact", subject.Profile{Type: subject.TypeCorporation, CompanyName: "株式会社メルキ"}, "株式会社メルキ様"},
		{"sole proprietor shop", subject.Profile{Type: subject.TypeSoleProprietor, ShopName: "喫茶メルキ", ContactName: "佐藤"}, "喫茶メルキ様　佐藤様"},
		{"sole proprietor contact only", subject.Profile{Type: subject.TypeSoleProprietor, ContactName: "佐藤"}, "佐藤様"},
		{"nothing known", subject.Profile{Type: subject.TypeCorporation}, "お客様"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.profile.RecipientName())
		})
	}
}

func TestNoteOverrides_Note(t *testing.T) {
	notes := subject.NoteOverrides{"corporate_tax": {7: "税理士に連絡", 1: ""}}

	note, ok := notes.Note("corporate_tax", 7)
	assert.True(t, ok)
	assert.Equal(t, "税理士に連絡", note)

	_, ok = notes.Note("corporate_tax", 1)
	assert.False(t, ok)
	_, ok = notes.Note("other", 7)
	assert.False(t, ok)
	_, ok = subject.NoteOverrides(nil).Note("corporate_tax", 7)
	assert.False(t, ok)
}
