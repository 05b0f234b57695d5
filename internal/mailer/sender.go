package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
)

// EmailSender is the engine's only outbound email capability.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// smtpConfig is the shape stored in EmailProvider.Config for the wired
// transport. Operators configuring "postmark" or "ses" in the HTTP API
// still populate these fields; the engine treats provider identity as
// metadata and always sends over SMTP, since no provider SDK is part of
// the engine's own dependency surface.
type smtpConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SMTPSender sends mail through a configured SMTP relay.
type SMTPSender struct {
	From string
	cfg  smtpConfig
}

// NewSMTPSender builds a sender from an EmailProvider row's raw config and
// from address.
func NewSMTPSender(rawConfig []byte, from string) (*SMTPSender, error) {
	var cfg smtpConfig
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("mailer: decode email provider config: %w", err)
		}
	}
	return &SMTPSender{From: from, cfg: cfg}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.From, to, subject, html)

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("mailer: transport error: %w", err)
	}
	return nil
}
