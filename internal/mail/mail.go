// Package mail sends the storefront's transactional email over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/domodwyer/mailyak/v3"
)

// Sender is what the auth service needs from a mailer.
type Sender interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("mail: SMTP is not configured")

// Disabled is the Sender used when EMAIL_HOST is unset. Every send fails, so
// forgot-password rolls back and reports the failure instead of pretending an
// email went out.
type Disabled struct{}

func (Disabled) SendPasswordReset(context.Context, string, string) error {
	return ErrNotConfigured
}

// Config holds the SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Mailer sends mail through one SMTP relay using mailyak.
type Mailer struct {
	cfg    Config
	logger *slog.Logger
}

var _ Sender = (*Mailer)(nil)

func New(cfg Config, logger *slog.Logger) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Mailer{cfg: cfg, logger: logger}
}

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
  <body>
    <h1>Password Reset Request</h1>
    <p>You requested a password reset. Click the link below to choose a new password:</p>
    <p><a href="{{.URL}}">Reset Password</a></p>
    <p>This link expires in 1 hour. If you did not request a reset, you can ignore this email.</p>
  </body>
</html>
`))

// SendPasswordReset emails the reset link to the user.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	var body bytes.Buffer
	if err := resetTemplate.Execute(&body, struct{ URL string }{resetURL}); err != nil {
		return fmt.Errorf("mail: rendering reset email: %w", err)
	}

	mail := m.newMail()
	mail.To(to)
	mail.Subject("Password Reset Request")
	mail.HTML().Set(body.String())
	mail.Plain().Set("Reset your password: " + resetURL + "\n\nThis link expires in 1 hour.\n")

	if err := m.send(ctx, mail); err != nil {
		return fmt.Errorf("mail: sending password reset: %w", err)
	}

	// The URL carries the raw reset token, so it is not logged.
	m.logger.Info("password reset email sent", slog.String("to", to))
	return nil
}

func (m *Mailer) newMail() *mailyak.MailYak {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	// Relays that accept unauthenticated submission (local dev catchers) get
	// a nil auth; PlainAuth would otherwise be attempted against them.
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	mail := mailyak.New(addr, auth)
	mail.From(m.cfg.From)
	return mail
}

// send runs mail.Send in a goroutine so the caller's context and the
// configured timeout both bound how long we wait on the relay.
//
// mailyak dials without a deadline and cannot be cancelled, so after a timeout
// the goroutine keeps running until the SMTP exchange finishes or the TCP
// connection fails. done is buffered so that late result is dropped instead
// of blocking it forever.
func (m *Mailer) send(ctx context.Context, mail *mailyak.MailYak) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- mail.Send()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
