package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"compliance_notifier/internal/catalog"
	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/notification"
	"compliance_notifier/internal/domain/obligation"
	"compliance_notifier/internal/domain/subject"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l)
}

// jst returns the instant of the given JST wall clock time.
func jst(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, calendar.JST.Location())
}

var testTemplates = map[int]catalog.Template{
	30: {Subject: "【MERKI】{{regulationName}}の期限まで、あと30日です", Intro: "{{regulationName}}の期限が近づいています。", Note: "30日前のご案内です。"},
	7:  {Subject: "【MERKI】{{regulationName}}の期限まで、あと7日です", Intro: "{{regulationName}}の期限が1週間後です。", Note: "準備状況をご確認ください。"},
	1:  {Subject: "【MERKI】{{regulationName}}の期限は明日です", Intro: "{{regulationName}}の期限は明日です。", Note: ""},
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]obligation.Rule{
		{ID: "corporate_tax", Category: obligation.CategoryTax, Title: "法人税申告", SubjectType: "corporation",
			Recurrence: obligation.Recurrence{Kind: obligation.KindRelativeToFiscalYear, MonthOffset: 2}},
		{ID: "withholding_tax", Category: obligation.CategoryTax, Title: "源泉所得税納付",
			Recurrence: obligation.Recurrence{Kind: obligation.KindFixedDayOfMonth, Day: 10}},
		{ID: "employee_hiring_report", Category: obligation.CategoryLabor, Title: "雇用保険の資格取得届",
			Recurrence: obligation.Recurrence{Kind: obligation.KindEventBased, Lag: "翌月10日まで"}},
	}, testTemplates, DefaultPolicy().AllLeadDays())
	require.NoError(t, err)
	return cat
}

func corpProfile(id string) *subject.Profile {
	return &subject.Profile{
		ID:                 id,
		Email:              id + "@example.jp",
		Type:               subject.TypeCorporation,
		CompanyName:        "株式会社" + id,
		FiscalYearEndMonth: time.March,
		Plan:               subject.PlanPro,
		State:              subject.StateActive,
	}
}

// =============================================================================
// FAKES
// =============================================================================

type fakeSubjects struct {
	mu       sync.Mutex
	profiles []*subject.Profile
	disabled map[string]map[string]bool
	notes    map[string]subject.NoteOverrides
	listErr  error
	prefsErr error
}

func (f *fakeSubjects) ListActive(_ context.Context, states []subject.SubscriptionState) ([]*subject.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*subject.Profile
	for _, p := range f.profiles {
		for _, st := range states {
			if p.State == st {
				cp := *p
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSubjects) GetByID(_ context.Context, id string) (*subject.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errors.New("subject not found")
}

func (f *fakeSubjects) GetDisabledRules(_ context.Context, id string) (map[string]bool, error) {
	if f.prefsErr != nil {
		return nil, f.prefsErr
	}
	return f.disabled[id], nil
}

func (f *fakeSubjects) GetCustomNotes(_ context.Context, id string) (subject.NoteOverrides, error) {
	if f.prefsErr != nil {
		return nil, f.prefsErr
	}
	return f.notes[id], nil
}

type fakeRecords struct {
	mu          sync.Mutex
	records     map[notification.Key]notification.Record
	existsErr   error
	createErr   error
	pingErr     error
	existsCalls int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[notification.Key]notification.Record{}}
}

func (f *fakeRecords) Exists(_ context.Context, key notification.Key) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.records[key]
	return ok, nil
}

func (f *fakeRecords) Create(_ context.Context, rec *notification.Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, ok := f.records[rec.Key]; ok {
		return false, nil
	}
	f.records[rec.Key] = *rec
	return true, nil
}

func (f *fakeRecords) Ping(context.Context) error { return f.pingErr }

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type sentMail struct {
	To, Subject, Body string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	block chan struct{}
}

func (f *fakeSender) Send(_ context.Context, to, subj, body string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subj, Body: body})
	return nil
}

func (f *fakeSender) mails() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

type fakeLock struct {
	held bool
}

func (l *fakeLock) TryLock(context.Context) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() { l.held = false }, true, nil
}

type engine struct {
	service  *NotificationServiceImpl
	subjects *fakeSubjects
	records  *fakeRecords
	sender   *fakeSender
	lock     *fakeLock
}

func newEngine(t *testing.T, profiles ...*subject.Profile) *engine {
	t.Helper()
	cat := testCatalog(t)
	e := &engine{
		subjects: &fakeSubjects{profiles: profiles},
		records:  newFakeRecords(),
		sender:   &fakeSender{},
		lock:     &fakeLock{},
	}
	renderer := NewRenderer(cat, "https://app.example.jp/dashboard")
	dispatcher := NewDispatcher(e.records, e.sender, renderer, quietLogger(), time.Second, time.Second)
	e.service = NewNotificationServiceImpl(cat, e.subjects, e.records, e.lock, DefaultPolicy(), dispatcher, renderer,
		ServiceConfig{Zone: calendar.JST, Workers: 2, StoreFailureThreshold: 2, ProfileTimeout: time.Second},
		quietLogger())
	return e
}
