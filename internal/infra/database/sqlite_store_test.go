package database_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance_notifier/internal/app"
	"compliance_notifier/internal/catalog"
	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/notification"
	"compliance_notifier/internal/domain/subject"
	"compliance_notifier/internal/infra/database"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *database.SQLiteStore {
	db, err := database.NewSQLiteConnection(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return database.NewSQLiteStore(db)
}

func sampleProfile(id string) *subject.Profile {
	incorporated := calendar.NewDate(2020, time.July, 1)
	return &subject.Profile{
		ID:                 id,
		Email:              id + "@example.jp",
		Type:               subject.TypeCorporation,
		CompanyName:        "株式会社サンプル",
		ContactName:        "山田",
		FiscalYearEndMonth: time.March,
		EmployeeHeadcount:  12,
		IncorporationDate:  &incorporated,
		Plan:               subject.PlanPro,
		State:              subject.StateActive,
		DisabledRuleIDs:    map[string]bool{"stress_check": true},
		CustomNotes:        subject.NoteOverrides{"corporate_tax": {30: "税理士に連絡"}},
	}
}

type recordingSender struct {
	sent []string
}

func (s *recordingSender) Send(_ context.Context, to, _, _ string) error {
	s.sent = append(s.sent, to)
	return nil
}

// =============================================================================
// SUBJECTS
// =============================================================================

func TestSQLiteStore_SubjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	want := sampleProfile("u1")
	require.NoError(t, store.Upsert(ctx, want))

	got, err := store.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.FiscalYearEndMonth, got.FiscalYearEndMonth)
	assert.Equal(t, want.EmployeeHeadcount, got.EmployeeHeadcount)
	require.NotNil(t, got.IncorporationDate)
	assert.Equal(t, *want.IncorporationDate, *got.IncorporationDate)

	disabled, err := store.GetDisabledRules(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"stress_check": true}, disabled)

	notes, err := store.GetCustomNotes(ctx, "u1")
	require.NoError(t, err)
	note, ok := notes.Note("corporate_tax", 30)
	assert.True(t, ok)
	assert.Equal(t, "税理士に連絡", note)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrSubjectNotFound)
}

func TestSQLiteStore_ListActiveFiltersStates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	trial := sampleProfile("trial")
	trial.State = subject.StateTrial
	cancelled := sampleProfile("cancelled")
	cancelled.State = subject.StateOther
	for _, p := range []*subject.Profile{sampleProfile("active"), trial, cancelled} {
		require.NoError(t, store.Upsert(ctx, p))
	}

	profiles, err := store.ListActive(ctx, app.ActiveStates)
	require.NoError(t, err)
	var ids []string
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"active", "trial"}, ids)
}

func TestSQLiteStore_ListActiveNoStates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Upsert(ctx, sampleProfile("active")))

	// GIVEN: no states requested
	profiles, err := store.ListActive(ctx, nil)

	// THEN: nothing matches
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestSQLiteStore_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	key := notification.NewKey("u1", "corporate_tax", calendar.NewDate(2026, time.May, 1), 30)
	rec := &notification.Record{Key: key, Email: "u1@example.jp", RegulationName: "法人税申告",
		DeadlineDate: calendar.NewDate(2026, time.May, 1), CycleID: "c1", SentAt: time.Now()}

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := store.Create(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Create(ctx, rec)
	require.NoError(t, err)
	assert.False(t, created)

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := store.CountNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_CycleLock(t *testing.T) {
	store := newTestStore(t)

	release, ok, err := store.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = store.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	_, ok, _ = store.TryLock(context.Background())
	assert.True(t, ok)
}

// =============================================================================
// END TO END
// =============================================================================

func TestSQLiteStore_EvaluationCycle(t *testing.T) {
	// GIVEN: the default catalog and one subscriber in SQLite
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Upsert(ctx, sampleProfile("u1")))

	policy := app.DefaultPolicy()
	cat, err := catalog.Default(policy.AllLeadDays())
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	sender := &recordingSender{}
	renderer := app.NewRenderer(cat, "")
	dispatcher := app.NewDispatcher(store, sender, renderer, entry, time.Second, time.Second)
	service := app.NewNotificationServiceImpl(cat, store, store, store, policy, dispatcher, renderer,
		app.ServiceConfig{Zone: calendar.JST, Workers: 1}, entry)

	// WHEN: the cycle runs twice on Apr 1 with the hour gate off
	at := time.Date(2026, time.April, 1, 11, 0, 0, 0, calendar.JST.Location())
	first, err := service.RunEvaluationCycle(ctx, at, app.CycleOptions{IgnoreHourGate: true})
	require.NoError(t, err)
	second, err := service.RunEvaluationCycle(ctx, at, app.CycleOptions{IgnoreHourGate: true})
	require.NoError(t, err)

	// THEN: the first run sends, the second finds every key recorded
	assert.Greater(t, first.Sent, 0)
	assert.Zero(t, second.Sent)
	assert.Equal(t, first.Sent, second.AlreadySent)

	n, err := store.CountNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Sent, n)
	assert.Len(t, sender.sent, first.Sent)
}
