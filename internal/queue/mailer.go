package queue

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/stay-booking-payments/internal/config"
)

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// NewMailer returns an SMTP mailer when a relay host is configured and a
// log-only mailer otherwise.
func NewMailer(cfg config.MailerConfig, log zerolog.Logger) Mailer {
	if cfg.Host == "" {
		return LogMailer{Log: log}
	}
	return &SMTPMailer{cfg: cfg}
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Log zerolog.Logger
}

func (m LogMailer) Send(_ context.Context, msg EmailMessage) error {
	m.Log.Info().
		Str("to", msg.Recipient).
		Str("subject", msg.Subject).
		Str("template", msg.Template).
		Str("body", msg.Body).
		Msg("email (not sent, no SMTP host)")
	return nil
}

type SMTPMailer struct {
	cfg config.MailerConfig
}

func (m *SMTPMailer) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := msg.From
	if from == "" {
		from = m.cfg.From
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	return smtp.SendMail(addr, auth, from, []string{msg.Recipient}, formatMessage(from, msg))
}

func formatMessage(from string, msg EmailMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
