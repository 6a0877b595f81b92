// Package mail sends participant result notifications.
package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/model"
	gomail "gopkg.in/gomail.v2"
)

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer creates a new SMTPMailer.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// Send dials the relay and delivers a plain-text message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("%w: smtp send: %w", model.ErrExternalService, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used when no
// SMTP relay is configured.
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer creates a new LogMailer.
func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "log_mailer").Logger()}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("Mail (not sent, no SMTP relay configured)")
	return nil
}

// ResultMessage builds the result notification for a finished exam.
func ResultMessage(examName string, totalQuestions, correctCount int) (subject, body string) {
	subject = fmt.Sprintf("Your result for %s", examName)

	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for taking %s.\n\n", examName)
	fmt.Fprintf(&b, "Correct answers: %d of %d\n", correctCount, totalQuestions)
	b.WriteString("\nRewards, if any, are paid to your registered wallet once the exam is settled.\n")
	return subject, b.String()
}
