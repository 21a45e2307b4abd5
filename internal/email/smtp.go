package email

import (
	"context"
	"crypto/tls"
	"fmt"

	"gopkg.in/gomail.v2"

	"syncway/internal/metrics"
)

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	FromName           string
	InsecureSkipVerify bool
}

// Dialer is the part of gomail.Dialer used by SMTPSender.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer   Dialer
	from     string
	fromName string
}

// NewSMTPSender creates a sender for cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return newSMTPSender(d, from, cfg.FromName)
}

func newSMTPSender(d Dialer, from, fromName string) *SMTPSender {
	if fromName == "" {
		fromName = "SyncWay"
	}
	return &SMTPSender{dialer: d, from: from, fromName: fromName}
}

// Send implements Sender. gomail has no context support, so a cancelled
// context is only honored before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@syncway>", msg.ID))
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	metrics.MailSent.WithLabelValues("smtp", string(msg.Template)).Inc()
	return nil
}
