package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
)

// ErrNoRecipient is returned when a message has no address to deliver to.
var ErrNoRecipient = errors.New("notify: message has no recipient")

// Config describes the SMTP relay.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Message is a plain-text mail with an optional HTML alternative.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages over SMTP.
type Mailer struct {
	cfg    Config
	logger *slog.Logger
	send   func(addr string, auth smtp.Auth, e *email.Email) error
}

// NewMailer constructs a Mailer. Authentication is only used when a user is configured.
func NewMailer(cfg Config, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{cfg: cfg, logger: logger, send: func(addr string, auth smtp.Auth, e *email.Email) error {
		return e.Send(addr, auth)
	}}
}

// Send builds and delivers msg.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := m.build(msg)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(addr, auth, e); err != nil {
		m.logger.Error("mail delivery failed", slog.String("to", strings.Join(e.To, ",")), slog.Any("error", err))
		return fmt.Errorf("notify: send mail: %w", err)
	}
	m.logger.Info("mail sent", slog.String("to", strings.Join(e.To, ",")), slog.String("subject", e.Subject))
	return nil
}

func (m *Mailer) build(msg Message) (*email.Email, error) {
	var to []string
	for _, addr := range msg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return nil, ErrNoRecipient
	}
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = to
	e.Subject = strings.TrimSpace(msg.Subject)
	e.Text = []byte(msg.Text)
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	return e, nil
}
