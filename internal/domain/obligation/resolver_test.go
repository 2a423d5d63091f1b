package obligation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/obligation"
	"compliance_notifier/internal/domain/subject"
)

func date(y int, m time.Month, d int) calendar.Date {
	return calendar.NewDate(y, m, d)
}

func ruleOf(id string, rec obligation.Recurrence) obligation.Rule {
	return obligation.Rule{ID: id, Title: id, Recurrence: rec}
}

func corp(fiscal time.Month) *subject.Profile {
	return &subject.Profile{ID: "s1", Type: subject.TypeCorporation, FiscalYearEndMonth: fiscal}
}

func TestResolve_RelativeToFiscalYear(t *testing.T) {
	// GIVEN: a March year-end corporation and a rule due two months after year end
	rule := ruleOf("corporate_tax", obligation.Recurrence{Kind: obligation.KindRelativeToFiscalYear, MonthOffset: 2})

	// WHEN: resolving in early April
	occ, ok := obligation.ResolveOn(rule, corp(time.March), date(2026, time.April, 1))

	// THEN: the deadline is May 1 of the same year, 30 days out
	require.True(t, ok)
	assert.Equal(t, date(2026, time.May, 1), occ.Date)
	assert.Equal(t, 30, occ.DaysUntil)
	assert.Equal(t, "corporate_tax", occ.RuleID)
}

func TestResolve_RelativeToFiscalYear_WrapsMonthAndRolls(t *testing.T) {
	// GIVEN: a December year-end and a rule due two months after year end (February)
	rule := ruleOf("r", obligation.Recurrence{Kind: obligation.KindRelativeToFiscalYear, MonthOffset: 2})

	// WHEN: today is already past Feb 1
	occ, ok := obligation.ResolveOn(rule, corp(time.December), date(2026, time.March, 10))

	// THEN: the next occurrence is Feb 1 next year
	require.True(t, ok)
	assert.Equal(t, date(2027, time.February, 1), occ.Date)
}

func TestResolve_RelativeToFiscalYear_NovemberPlusThree(t *testing.T) {
	rule := ruleOf("r", obligation.Recurrence{Kind: obligation.KindRelativeToFiscalYear, MonthOffset: 3})

	// Feb 1 has not passed yet
	occ, ok := obligation.ResolveOn(rule, corp(time.November), date(2026, time.January, 1))
	require.True(t, ok)
	assert.Equal(t, date(2026, time.February, 1), occ.Date)

	// Feb 1 2026 has passed
	occ, ok = obligation.ResolveOn(rule, corp(time.November), date(2026, time.March, 1))
	require.True(t, ok)
	assert.Equal(t, date(2027, time.February, 1), occ.Date)
}

func TestResolve_RelativeToFiscalYear_DefaultsToMarch(t *testing.T) {
	rule := ruleOf("r", obligation.Recurrence{Kind: obligation.KindRelativeToFiscalYear, MonthOffset: 2})
	occ, ok := obligation.ResolveOn(rule, &subject.Profile{ID: "s"}, date(2026, time.January, 10))
	require.True(t, ok)
	assert.Equal(t, date(2026, time.May, 1), occ.Date)
}

func TestResolve_FixedDayOfMonth(t *testing.T) {
	rule := ruleOf("withholding", obligation.Recurrence{Kind: obligation.KindFixedDayOfMonth, Day: 10})

	// due today is not rolled forward
	occ, ok := obligation.ResolveOn(rule, corp(time.March), date(2026, time.June, 10))
	require.True(t, ok)
	assert.Equal(t, date(2026, time.June, 10), occ.Date)
	assert.Equal(t, 0, occ.DaysUntil)

	// one day late rolls into next month
	occ, _ = obligation.ResolveOn(rule, corp(time.March), date(2026, time.June, 11))
	assert.Equal(t, date(2026, time.July, 10), occ.Date)

	// December rolls into January of the next year
	occ, _ = obligation.ResolveOn(rule, corp(time.March), date(2026, time.December, 11))
	assert.Equal(t, date(2027, time.January, 10), occ.Date)
}

func TestResolve_FixedDayOfMonth_ClampsShortMonths(t *testing.T) {
	rule := ruleOf("r", obligation.Recurrence{Kind: obligation.KindFixedDayOfMonth, Day: 31})

	occ, _ := obligation.ResolveOn(rule, corp(time.March), date(2026, time.February, 3))
	assert.Equal(t, date(2026, time.February, 28), occ.Date)

	occ, _ = obligation.ResolveOn(rule, corp(time.March), date(2026, time.April, 1))
	assert.Equal(t, date(2026, time.April, 30), occ.Date)
}

func TestResolve_EndOfMonth(t *testing.T) {
	rule := ruleOf("social_insurance", obligation.Recurrence{Kind: obligation.KindEndOfMonth})

	occ, _ := obligation.ResolveOn(rule, corp(time.March), date(2028, time.February, 1))
	assert.Equal(t, date(2028, time.February, 29), occ.Date)

	occ, _ = obligation.ResolveOn(rule, corp(time.March), date(2026, time.January, 31))
	assert.Equal(t, date(2026, time.January, 31), occ.Date)
	assert.Equal(t, 0, occ.DaysUntil)
}

func TestResolve_FixedMonth(t *testing.T) {
	rule := ruleOf("income_tax_return", obligation.Recurrence{Kind: obligation.KindFixedMonth, Month: time.March, Day: 15})

	occ, _ := obligation.ResolveOn(rule, corp(time.March), date(2026, time.February, 13))
	assert.Equal(t, date(2026, time.March, 15), occ.Date)
	assert.Equal(t, 30, occ.DaysUntil)

	occ, _ = obligation.ResolveOn(rule, corp(time.March), date(2026, time.March, 16))
	assert.Equal(t, date(2027, time.March, 15), occ.Date)
}

func TestResolve_FixedMonth_LeapDayClamped(t *testing.T) {
	rule := ruleOf("r", obligation.Recurrence{Kind: obligation.KindFixedMonth, Month: time.February, Day: 29})
	occ, _ := obligation.ResolveOn(rule, corp(time.March), date(2026, time.January, 1))
	assert.Equal(t, date(2026, time.February, 28), occ.Date)
}

func TestResolve_EventBasedIsUnresolved(t *testing.T) {
	rule := ruleOf("employee_hiring_report", obligation.Recurrence{Kind: obligation.KindEventBased, Lag: "速やかに"})
	occ, ok := obligation.ResolveOn(rule, corp(time.March), date(2026, time.June, 1))
	assert.False(t, ok)
	assert.True(t, occ.Date.IsZero())
}

func TestResolve_UsesOperatingZone(t *testing.T) {
	// GIVEN: 15:30 UTC on Jan 31 is already Feb 1 in JST
	instant := time.Date(2026, time.January, 31, 15, 30, 0, 0, time.UTC)
	rule := ruleOf("r", obligation.Recurrence{Kind: obligation.KindEndOfMonth})

	// WHEN: resolving an end-of-month rule
	occ, ok := obligation.Resolve(rule, corp(time.March), instant, calendar.JST)

	// THEN: January is over in the operating zone, so February's last day is next
	require.True(t, ok)
	assert.Equal(t, date(2026, time.February, 28), occ.Date)
	assert.Equal(t, 27, occ.DaysUntil)
}

func TestResolve_NeverInThePast(t *testing.T) {
	rules := []obligation.Rule{
		ruleOf("fy", obligation.Recurrence{Kind: obligation.KindRelativeToFiscalYear, MonthOffset: 11}),
		ruleOf("dom", obligation.Recurrence{Kind: obligation.KindFixedDayOfMonth, Day: 31}),
		ruleOf("eom", obligation.Recurrence{Kind: obligation.KindEndOfMonth}),
		ruleOf("fm", obligation.Recurrence{Kind: obligation.KindFixedMonth, Month: time.February, Day: 29}),
	}
	start := date(2026, time.January, 1)
	for i := 0; i < 800; i++ {
		today := start.AddDays(i)
		for _, r := range rules {
			occ, ok := obligation.ResolveOn(r, corp(time.September), today)
			require.True(t, ok)
			require.False(t, occ.Date.Before(today), "%s resolved to %s before %s", r.ID, occ.Date, today)
			require.Equal(t, today.DaysUntil(occ.Date), occ.DaysUntil)
			require.Less(t, occ.DaysUntil, 367)
		}
	}
}

func TestResolve_EveryKindIsHandled(t *testing.T) {
	for _, kind := range obligation.Kinds {
		rec := obligation.Recurrence{Kind: kind, MonthOffset: 1, Day: 1, Month: time.January}
		require.NoError(t, rec.Validate(), kind)
		assert.NotPanics(t, func() {
			obligation.ResolveOn(ruleOf(string(kind), rec), corp(time.March), date(2026, time.June, 1))
		})
	}
}

func TestRecurrence_Validate(t *testing.T) {
	assert.Error(t, obligation.Recurrence{Kind: "weekly"}.Validate())
	assert.Error(t, obligation.Recurrence{Kind: obligation.KindFixedDayOfMonth, Day: 32}.Validate())
	assert.Error(t, obligation.Recurrence{Kind: obligation.KindRelativeToFiscalYear, MonthOffset: 24}.Validate())
	assert.Error(t, obligation.Recurrence{Kind: obligation.KindFixedMonth, Month: time.April, Day: 31}.Validate())
	assert.NoError(t, obligation.Recurrence{Kind: obligation.KindFixedMonth, Month: time.February, Day: 29}.Validate())
}
