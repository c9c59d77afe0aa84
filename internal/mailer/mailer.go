// Package mailer is the outbound email transport boundary. The rest of the
// core depends on the interface; delivery details stay here.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"atelier/internal/platform/config"
)

//go:generate mockgen -source=mailer.go -destination=mocks/mailer_mock.go -package=mocks Mailer

// Mailer delivers one-time codes. Implementations must treat delivery
// failure as retryable by the caller; nothing is queued here.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

// SMTPMailer sends through a configured SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTP(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) SendOTP(ctx context.Context, email, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	msg.WriteString("Subject: Your Atelier verification code\r\n")
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "Your verification code is %s. It expires in 10 minutes.\r\n", code)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{email}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send otp mail: %w", err)
	}
	return nil
}
