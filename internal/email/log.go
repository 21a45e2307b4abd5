package email

import (
	"context"

	"github.com/sirupsen/logrus"

	"syncway/internal/metrics"
)

// LogSender records mail instead of delivering it. It is used when no relay
// is configured.
type LogSender struct {
	logger logrus.FieldLogger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger logrus.FieldLogger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"template":   msg.Template,
		"to":         msg.To,
		"subject":    msg.Subject,
	}).Info("email not configured, message dropped")
	metrics.MailSent.WithLabelValues("log", string(msg.Template)).Inc()
	return nil
}
