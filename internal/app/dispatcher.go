package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"compliance_notifier/internal/domain/notification"
	"compliance_notifier/internal/domain/obligation"
	"compliance_notifier/internal/domain/subject"
)

// Outcome is the result of one dispatch attempt.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeAlreadySent
	OutcomeSendFailed
	OutcomeStoreUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeAlreadySent:
		return "already_sent"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeStoreUnavailable:
		return "store_unavailable"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Dispatcher sends a reminder at most once per notification.Key.
type Dispatcher struct {
	store        notification.Repository
	sender       notification.Sender
	renderer     *Renderer
	logger       *logrus.Entry
	sendTimeout  time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

func NewDispatcher(
	store notification.Repository,
	sender notification.Sender,
	renderer *Renderer,
	logger *logrus.Entry,
	sendTimeout, storeTimeout time.Duration,
) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Dispatcher{
		store:        store,
		sender:       sender,
		renderer:     renderer,
		logger:       logger,
		sendTimeout:  sendTimeout,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// Dispatch delivers the lead-day reminder for occ unless a record for its key
// already exists. The record is written only after a successful send, so a
// failed send stays eligible for the next cycle.
func (d *Dispatcher) Dispatch(ctx context.Context, cycleID string, profile *subject.Profile, rule obligation.Rule, occ obligation.Occurrence, leadDays int) (Outcome, error) {
	key := notification.NewKey(profile.ID, rule.ID, occ.Date, leadDays)
	log := d.logger.WithFields(logrus.Fields{
		"subject_id": profile.ID,
		"rule_id":    rule.ID,
		"lead_days":  leadDays,
		"key":        key.String(),
	})

	exists, err := d.exists(ctx, key)
	if err != nil {
		log.WithError(err).Error("Notification store check failed")
		return OutcomeStoreUnavailable, err
	}
	if exists {
		log.Debug("Reminder already sent")
		return OutcomeAlreadySent, nil
	}

	msg, err := d.renderer.Render(profile, rule, occ.Date, leadDays)
	if err != nil {
		return OutcomeSendFailed, fmt.Errorf("render reminder %s: %w", key, err)
	}

	if err := d.send(ctx, profile.Email, msg); err != nil {
		log.WithError(err).Warn("Reminder send failed; will retry next cycle")
		return OutcomeSendFailed, err
	}

	rec := &notification.Record{
		Key:            key,
		Email:          profile.Email,
		RegulationName: rule.Title,
		DeadlineDate:   occ.Date,
		CycleID:        cycleID,
		SentAt:         d.now(),
	}
	created, err := d.create(ctx, rec)
	if err != nil {
		// The mail went out but the proof did not; the next cycle may resend.
		log.WithError(err).Error("Reminder sent but record could not be stored")
		return OutcomeStoreUnavailable, err
	}
	if !created {
		log.Warn("Reminder record already created by a concurrent cycle")
	}

	log.WithField("deadline", occ.Date.String()).Info("Reminder sent")
	return OutcomeSent, nil
}

func (d *Dispatcher) exists(ctx context.Context, key notification.Key) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()
	return d.store.Exists(ctx, key)
}

func (d *Dispatcher) create(ctx context.Context, rec *notification.Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()
	return d.store.Create(ctx, rec)
}

func (d *Dispatcher) send(ctx context.Context, to string, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.sender.Send(ctx, to, msg.Subject, msg.Body) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send to %s: %w", to, errors.Join(ErrSendTimeout, ctx.Err()))
	}
}

// ErrSendTimeout is returned when the sender does not answer within the send timeout.
var ErrSendTimeout = fmt.Errorf("message sender timed out")
