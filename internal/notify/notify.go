// Package notify delivers recovery notifications over SMTP.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/gophpeek/guardian/internal/config"
	"github.com/gophpeek/guardian/internal/guardianerr"
)

// Notifier sends plain-text email notifications, satisfying
// recovery.Notifier.
type Notifier struct {
	cfg    config.NotificationsConfig
	logger *slog.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New builds a Notifier from the configured SMTP settings.
func New(cfg config.NotificationsConfig, logger *slog.Logger) *Notifier {
	return &Notifier{cfg: cfg, logger: logger, send: smtp.SendMail}
}

// Notify emails subject/message/severity to every configured recipient. A
// disabled or unconfigured notifier logs and returns nil rather than erroring,
// since notification failures must never block recovery.
func (n *Notifier) Notify(ctx context.Context, subject, message, severity string) error {
	if !n.cfg.Enabled || n.cfg.SMTPHost == "" || len(n.cfg.To) == 0 {
		n.logger.Warn("notification suppressed: notifications disabled or unconfigured",
			"subject", subject, "severity", severity, "message", message)
		return nil
	}

	body := buildMessage(n.cfg.From, n.cfg.To, subject, severity, message)
	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)

	var auth smtp.Auth
	if n.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPHost)
	}

	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, body); err != nil {
		n.logger.Error("failed to send notification", "error", err, "subject", subject)
		return fmt.Errorf("%w: send notification: %w", guardianerr.ErrCollaborator, err)
	}

	n.logger.Info("notification sent", "subject", subject, "severity", severity, "to", n.cfg.To)
	return nil
}

func buildMessage(from string, to []string, subject, severity, message string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", strings.ToUpper(severity), subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")
	return []byte(b.String())
}
