package store

import (
	"fmt"
	"net/smtp"
	"time"

	"wodserver/internal/config"
)

// Mailer sends a verification code (or any short text) to an address. It is
// the store's external collaborator for spec.md §6's "best-effort async
// send text to address" primitive; callers treat any error as a failed
// send, never a panic.
type Mailer interface {
	Send(to, body string) error
}

const smtpTimeout = 10 * time.Second

// SMTPMailer sends mail via net/smtp, using EMAIL_USER/EMAIL_PASS as the
// authenticating account (spec.md §6). Absent credentials disable sending
// cleanly rather than erroring on every call.
type SMTPMailer struct {
	host string
	port int
	user string
	pass string
}

// NewSMTPMailer builds a mailer from configuration. If credentials are
// absent, Send always fails fast with errEmailNotConfigured, matching
// spec.md's "absent values disable email and fail affected flows cleanly".
func NewSMTPMailer(cfg *config.Config, host string, port int) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: cfg.EmailUser, pass: cfg.EmailPass}
}

var errEmailNotConfigured = fmt.Errorf("store: email not configured")

// Send dials the configured SMTP host with a bounded timeout and delivers a
// plain-text message to `to`.
func (m *SMTPMailer) Send(to, body string) error {
	if m.user == "" || m.pass == "" {
		return errEmailNotConfigured
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)

	done := make(chan error, 1)
	go func() {
		msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: War of Dots verification\r\n\r\n%s\r\n", m.user, to, body))
		done <- smtp.SendMail(addr, auth, m.user, []string{to}, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(smtpTimeout):
		return fmt.Errorf("store: smtp send timed out after %s", smtpTimeout)
	}
}
