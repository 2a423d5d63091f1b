// Package mail delivers rendered reminders.
package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender sends plain-text mail through an SMTP relay (SendGrid, SES, Postfix...).
type SMTPSender struct {
	cfg    SMTPConfig
	logger *logrus.Entry
	// sendMail is smtp.SendMail, replaceable in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig, logger *logrus.Entry) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger, sendMail: smtp.SendMail}
}

// Send delivers one message. smtp.SendMail has no context support, so the
// call runs in a goroutine and is abandoned when ctx expires.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("mail: empty recipient")
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := BuildMessage(s.cfg.From, s.cfg.FromName, to, subject, body, time.Now())

	errCh := make(chan error, 1)
	go func() { errCh <- s.sendMail(addr, auth, s.cfg.From, []string{to}, msg) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mail: send to %s: %w", to, err)
		}
		s.logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Debug("Mail accepted by relay")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mail: send to %s: %w", to, ctx.Err())
	}
}

// BuildMessage renders an RFC 5322 message with a UTF-8 base64 body.
func BuildMessage(from, fromName, to, subject, body string, date time.Time) []byte {
	var b strings.Builder
	fromHeader := from
	if fromName != "" {
		fromHeader = fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), from)
	}
	b.WriteString("From: " + fromHeader + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("UTF-8", subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	for len(encoded) > 76 {
		b.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded + "\r\n")
	return []byte(b.String())
}
