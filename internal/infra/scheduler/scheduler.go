package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"compliance_notifier/internal/app" // For NotificationService interface
	"compliance_notifier/internal/domain/calendar"
)

// Alerter notifies operators about failed cycles.
type Alerter interface {
	Alert(text string) error
}

// NotificationScheduler runs the evaluation cycle on a cron schedule in the operating zone.
type NotificationScheduler struct {
	cronEngine     *cron.Cron
	notifService   app.NotificationService // Using the interface
	logger         *logrus.Entry
	cronSpec       string
	cycleTimeout   time.Duration
	ignoreHourGate bool
	alerter        Alerter
	now            func() time.Time
}

func NewNotificationScheduler(
	notifService app.NotificationService,
	logger *logrus.Entry,
	zone calendar.Zone,
	cronSpec string, // e.g., "0 * * * *" (hourly)
	cycleTimeout time.Duration,
	ignoreHourGate bool,
) *NotificationScheduler {
	cronLogger := cron.VerbosePrintfLogger(logger.WithField("source", "cron"))
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(zone.Location()), // Hour gates are defined in the operating zone
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		notifService:   notifService,
		logger:         logger,
		cronSpec:       cronSpec,
		cycleTimeout:   cycleTimeout,
		ignoreHourGate: ignoreHourGate,
		now:            time.Now,
	}
}

// SetAlerter routes cycle failures to a.
func (s *NotificationScheduler) SetAlerter(a Alerter) {
	s.alerter = a
}

// Start registers the evaluation job and starts the cron engine.
func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, s.RunOnce)
	if err != nil {
		return fmt.Errorf("could not add evaluation cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.cronSpec).Info("Notification scheduler started")
	return nil
}

// RunOnce executes one evaluation cycle with the configured timeout.
func (s *NotificationScheduler) RunOnce() {
	s.logger.Info("Cron job triggered for evaluation cycle.")
	ctx, cancel := context.WithTimeout(context.Background(), s.cycleTimeout)
	defer cancel()

	summary, err := s.notifService.RunEvaluationCycle(ctx, s.now(), app.CycleOptions{IgnoreHourGate: s.ignoreHourGate})
	switch {
	case errors.Is(err, app.ErrCycleLocked):
		s.logger.Warn("Skipped evaluation cycle: another instance is running")
	case err != nil:
		s.logger.WithError(err).WithField("cycle_id", summary.CycleID).Error("Error during evaluation cycle")
		if s.alerter != nil {
			text := fmt.Sprintf("通知判定が失敗しました (%s): %v\n送信 %d / 失敗 %d", summary.CycleID, err, summary.Sent, summary.Failed)
			if alertErr := s.alerter.Alert(text); alertErr != nil {
				s.logger.WithError(alertErr).Warn("Failed to deliver cycle failure alert")
			}
		}
	default:
		s.logger.WithFields(logrus.Fields{
			"cycle_id":     summary.CycleID,
			"sent":         summary.Sent,
			"already_sent": summary.AlreadySent,
			"failed":       summary.Failed,
		}).Info("Evaluation cycle finished")
	}
}

func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Notification scheduler gracefully stopped.")
}
