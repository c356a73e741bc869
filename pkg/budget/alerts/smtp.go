package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"mercator-hq/spendcap/pkg/budget"
)

// SMTPConfig configures email delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends plain-text email. The address is the recipient mailbox.
type SMTPNotifier struct {
	config   SMTPConfig
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewSMTPNotifier creates an email notifier. Authentication is used only
// when a username is configured.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPNotifier{config: cfg, auth: auth, sendMail: smtp.SendMail}
}

// Name implements Notifier.
func (s *SMTPNotifier) Name() string { return "smtp" }

// Notify implements Notifier. net/smtp has no context support, so ctx is
// only checked before sending.
func (s *SMTPNotifier) Notify(ctx context.Context, address string, data TemplateData, severity budget.Severity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := Render(data, severity)
	if err != nil {
		return err
	}

	to := sanitizeHeader(strings.TrimPrefix(address, "mailto:"))
	msg := strings.Join([]string{
		"From: " + sanitizeHeader(s.config.From),
		"To: " + to,
		"Subject: " + sanitizeHeader(subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.sendMail(addr, s.auth, s.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}
