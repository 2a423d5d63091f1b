package mail

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender writes reminders to the log instead of sending them. It is used
// when no SMTP relay is configured.
type LogSender struct {
	logger *logrus.Entry
}

func NewLogSender(logger *logrus.Entry) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
	}).Info("MOCK: reminder not sent, no SMTP relay configured")
	s.logger.Debug(body)
	return nil
}
