// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"compliance_notifier/internal/catalog"
	"compliance_notifier/internal/domain/calendar"
	"compliance_notifier/internal/domain/notification"
	"compliance_notifier/internal/domain/obligation"
	"compliance_notifier/internal/domain/subject"
)

var (
	ErrStoreUnavailable = fmt.Errorf("notification store unavailable")
	ErrCycleLocked      = fmt.Errorf("another evaluation cycle is running")
	ErrInvalidLeadDays  = fmt.Errorf("lead days must be one of the templated values")
	ErrNoEmail          = fmt.Errorf("subject has no email address")
)

// ActiveStates are the subscription states that receive reminders.
var ActiveStates = []subject.SubscriptionState{subject.StateActive, subject.StateTrial}

// CycleOptions tune one evaluation cycle.
type CycleOptions struct {
	// IgnoreHourGate fires due lead days regardless of the current hour.
	IgnoreHourGate bool
}

// Summary reports what a cycle did. It is for observability only.
type Summary struct {
	CycleID     string `json:"cycle_id"`
	Subjects    int    `json:"subjects"`
	Sent        int    `json:"sent"`
	AlreadySent int    `json:"already_sent"`
	Failed      int    `json:"failed"`
	// Skipped counts subjects for which nothing fired.
	Skipped int  `json:"skipped"`
	Aborted bool `json:"aborted"`
}

// NotificationService defines the operations of the reminder engine.
type NotificationService interface {
	RunEvaluationCycle(ctx context.Context, at time.Time, opts CycleOptions) (Summary, error)
	Upcoming(ctx context.Context, subjectID string, at time.Time) ([]UpcomingDeadline, error)
	SendTestNotification(ctx context.Context, subjectID string, leadDays int, at time.Time) error
}

// ServiceConfig carries the tunables of NotificationServiceImpl.
type ServiceConfig struct {
	Zone                  calendar.Zone
	Workers               int
	StoreFailureThreshold int
	ProfileTimeout        time.Duration
}

// NotificationServiceImpl implements NotificationService.
type NotificationServiceImpl struct {
	catalog    *catalog.Catalog
	profiles   subject.Repository
	records    notification.Repository
	lock       notification.CycleLock
	policy     Policy
	dispatcher *Dispatcher
	renderer   *Renderer
	cfg        ServiceConfig
	logger     *logrus.Entry
}

func NewNotificationServiceImpl(
	cat *catalog.Catalog,
	profiles subject.Repository,
	records notification.Repository,
	lock notification.CycleLock,
	policy Policy,
	dispatcher *Dispatcher,
	renderer *Renderer,
	cfg ServiceConfig,
	logger *logrus.Entry,
) *NotificationServiceImpl {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.StoreFailureThreshold < 1 {
		cfg.StoreFailureThreshold = 5
	}
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = 5 * time.Second
	}
	return &NotificationServiceImpl{
		catalog:    cat,
		profiles:   profiles,
		records:    records,
		lock:       lock,
		policy:     policy,
		dispatcher: dispatcher,
		renderer:   renderer,
		cfg:        cfg,
		logger:     logger,
	}
}

// cycleState accumulates counts from concurrent subject workers.
type cycleState struct {
	sent, alreadySent, failed atomic.Int64
	skipped                   atomic.Int64
	storeFailures             atomic.Int64 // consecutive
	aborted                   atomic.Bool
	cancel                    context.CancelFunc
	threshold                 int64
}

func (st *cycleState) record(o Outcome) {
	switch o {
	case OutcomeSent:
		st.sent.Add(1)
		st.storeFailures.Store(0)
	case OutcomeAlreadySent:
		st.alreadySent.Add(1)
		st.storeFailures.Store(0)
	case OutcomeSendFailed:
		st.failed.Add(1)
	case OutcomeStoreUnavailable:
		st.failed.Add(1)
		if st.storeFailures.Add(1) >= st.threshold && st.aborted.CompareAndSwap(false, true) {
			st.cancel()
		}
	}
}

// RunEvaluationCycle evaluates every active subject as of at and dispatches the
// reminders that are due. Failures are isolated per subject and rule; only a
// store that stays unreachable aborts the cycle, and partial counts are returned.
func (s *NotificationServiceImpl) RunEvaluationCycle(ctx context.Context, at time.Time, opts CycleOptions) (Summary, error) {
	summary := Summary{CycleID: uuid.NewString()}
	log := s.logger.WithFields(logrus.Fields{
		"cycle_id": summary.CycleID,
		"at":       s.cfg.Zone.In(at).Format(time.RFC3339),
	})
	log.Info("Starting evaluation cycle")

	if s.lock != nil {
		release, ok, err := s.lock.TryLock(ctx)
		if err != nil {
			log.WithError(err).Error("Could not acquire cycle lock")
			return summary, fmt.Errorf("%w: acquire cycle lock: %v", ErrStoreUnavailable, err)
		}
		if !ok {
			log.Warn("Another evaluation cycle holds the lock; skipping")
			return summary, ErrCycleLocked
		}
		defer release()
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, s.cfg.ProfileTimeout)
	err := s.records.Ping(pingCtx)
	cancelPing()
	if err != nil {
		log.WithError(err).Error("Notification store unreachable; aborting cycle")
		summary.Aborted = true
		return summary, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	listCtx, cancelList := context.WithTimeout(ctx, s.cfg.ProfileTimeout)
	profiles, err := s.profiles.ListActive(listCtx, ActiveStates)
	cancelList()
	if err != nil {
		log.WithError(err).Error("Failed to list active subjects")
		summary.Aborted = true
		return summary, fmt.Errorf("list active subjects: %w", err)
	}
	summary.Subjects = len(profiles)
	if len(profiles) == 0 {
		log.Info("No active subjects found")
		return summary, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	st := &cycleState{cancel: cancel, threshold: int64(s.cfg.StoreFailureThreshold)}

	rules := s.catalog.ListAll()
	hour := s.cfg.Zone.Hour(at)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(s.cfg.Workers)
	for _, p := range profiles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.evaluateSubject(gctx, summary.CycleID, p, rules, at, hour, opts, st, log)
			return nil
		})
	}
	_ = g.Wait()

	summary.Sent = int(st.sent.Load())
	summary.AlreadySent = int(st.alreadySent.Load())
	summary.Failed = int(st.failed.Load())
	summary.Skipped = int(st.skipped.Load())
	summary.Aborted = st.aborted.Load()

	log = log.WithFields(logrus.Fields{
		"subjects":     summary.Subjects,
		"sent":         summary.Sent,
		"already_sent": summary.AlreadySent,
		"failed":       summary.Failed,
		"skipped":      summary.Skipped,
	})
	if summary.Aborted {
		log.Error("Evaluation cycle aborted: notification store unavailable")
		return summary, ErrStoreUnavailable
	}
	log.Info("Evaluation cycle completed")
	return summary, nil
}

func (s *NotificationServiceImpl) evaluateSubject(
	ctx context.Context,
	cycleID string,
	profile *subject.Profile,
	rules []obligation.Rule,
	at time.Time,
	hour int,
	opts CycleOptions,
	st *cycleState,
	cycleLog *logrus.Entry,
) {
	log := cycleLog.WithField("subject_id", profile.ID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Recovered panic while evaluating subject")
			st.failed.Add(1)
		}
	}()

	if profile.Email == "" {
		log.Debug("Skipping subject without email")
		st.skipped.Add(1)
		return
	}
	if err := s.loadPreferences(ctx, profile); err != nil {
		log.WithError(err).Warn("Failed to load subject preferences; skipping subject")
		st.failed.Add(1)
		return
	}

	today := s.cfg.Zone.Today(at)
	fired := false
	for _, rule := range obligation.Applicable(profile, rules, at, s.cfg.Zone) {
		if ctx.Err() != nil {
			return
		}
		if s.evaluateRule(ctx, cycleID, profile, rule, today, hour, opts, st, log) {
			fired = true
		}
	}
	if !fired {
		st.skipped.Add(1)
	}
}

func (s *NotificationServiceImpl) evaluateRule(
	ctx context.Context,
	cycleID string,
	profile *subject.Profile,
	rule obligation.Rule,
	today calendar.Date,
	hour int,
	opts CycleOptions,
	st *cycleState,
	subjectLog *logrus.Entry,
) (fired bool) {
	log := subjectLog.WithField("rule_id", rule.ID)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Recovered panic while evaluating rule")
			st.failed.Add(1)
		}
	}()

	if profile.IsRuleDisabled(rule.ID) {
		log.Debug("Rule disabled by subject")
		return false
	}
	occ, ok := obligation.ResolveOn(rule, profile, today)
	if !ok {
		return false
	}
	decision := s.policy.ShouldFire(profile.EffectivePlan(), profile.State, occ.DaysUntil, hour, opts.IgnoreHourGate)
	if !decision.Fire {
		return false
	}

	outcome, err := s.dispatcher.Dispatch(ctx, cycleID, profile, rule, occ, decision.LeadDays)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// The cycle was cancelled underneath us; do not count it as a store outage.
		st.failed.Add(1)
		return true
	}
	st.record(outcome)
	return true
}

func (s *NotificationServiceImpl) loadPreferences(ctx context.Context, profile *subject.Profile) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProfileTimeout)
	defer cancel()

	disabled, err := s.profiles.GetDisabledRules(ctx, profile.ID)
	if err != nil {
		return fmt.Errorf("get disabled rules: %w", err)
	}
	notes, err := s.profiles.GetCustomNotes(ctx, profile.ID)
	if err != nil {
		return fmt.Errorf("get custom notes: %w", err)
	}
	profile.DisabledRuleIDs = disabled
	profile.CustomNotes = notes
	return nil
}

// UpcomingDeadline is one row of a subject's deadline listing.
type UpcomingDeadline struct {
	Rule     obligation.Rule
	Resolved bool
	Date     calendar.Date
	// DaysUntil is meaningful only when Resolved.
	DaysUntil int
	Disabled  bool
}

// Upcoming lists every applicable rule for the subject with its next occurrence,
// resolved rules first by date, then unresolved ones in catalog order.
func (s *NotificationServiceImpl) Upcoming(ctx context.Context, subjectID string, at time.Time) ([]UpcomingDeadline, error) {
	profile, err := s.profiles.GetByID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("get subject %s: %w", subjectID, err)
	}
	if err := s.loadPreferences(ctx, profile); err != nil {
		return nil, err
	}
	return UpcomingFor(profile, s.catalog.ListAll(), at, s.cfg.Zone), nil
}

// UpcomingFor is the pure part of Upcoming.
func UpcomingFor(profile *subject.Profile, rules []obligation.Rule, at time.Time, zone calendar.Zone) []UpcomingDeadline {
	today := zone.Today(at)
	applicable := obligation.Applicable(profile, rules, at, zone)
	out := make([]UpcomingDeadline, 0, len(applicable))
	for _, r := range applicable {
		occ, ok := obligation.ResolveOn(r, profile, today)
		out = append(out, UpcomingDeadline{
			Rule:      r,
			Resolved:  ok,
			Date:      occ.Date,
			DaysUntil: occ.DaysUntil,
			Disabled:  profile.IsRuleDisabled(r.ID),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Resolved != out[j].Resolved {
			return out[i].Resolved
		}
		if !out[i].Resolved {
			return false
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// sampleRuleID is the rule used for test notifications.
const sampleRuleID = "corporate_tax"

// SendTestNotification sends the leadDays template for a sample regulation
// due leadDays from today. Nothing is recorded.
func (s *NotificationServiceImpl) SendTestNotification(ctx context.Context, subjectID string, leadDays int, at time.Time) error {
	if _, ok := s.catalog.Template(leadDays); !ok {
		return ErrInvalidLeadDays
	}
	profile, err := s.profiles.GetByID(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("get subject %s: %w", subjectID, err)
	}
	if profile.Email == "" {
		return ErrNoEmail
	}

	rule, ok := s.catalog.Get(sampleRuleID)
	if !ok {
		rules := s.catalog.ListAll()
		if len(rules) == 0 {
			return fmt.Errorf("catalog is empty")
		}
		rule = rules[0]
	}
	deadline := s.cfg.Zone.Today(at).AddDays(leadDays)
	msg, err := s.renderer.Render(profile, rule, deadline, leadDays)
	if err != nil {
		return err
	}
	if err := s.dispatcher.send(ctx, profile.Email, msg); err != nil {
		s.logger.WithError(err).WithField("subject_id", subjectID).Warn("Test notification failed")
		return fmt.Errorf("send test notification: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"subject_id": subjectID, "lead_days": leadDays}).Info("Test notification sent")
	return nil
}

var _ NotificationService = (*NotificationServiceImpl)(nil)
