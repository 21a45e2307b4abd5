package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// NSQLogger adapts a logrus logger to the go-nsq logger interface. go-nsq
// prefixes lines with their level, which is mapped back onto logrus levels.
type NSQLogger struct {
	logger logrus.FieldLogger
}

// NewNSQLogger wraps logger for nsq.Producer.SetLogger and nsq.Consumer.SetLogger.
func NewNSQLogger(logger logrus.FieldLogger) *NSQLogger {
	return &NSQLogger{logger: logger.WithField("component", "nsq")}
}

// Output implements the go-nsq logger interface.
func (l *NSQLogger) Output(_ int, s string) error {
	level, msg, _ := strings.Cut(s, " ")
	switch level {
	case "DBG":
		l.logger.Debug(msg)
	case "WRN":
		l.logger.Warn(msg)
	case "ERR":
		l.logger.Error(msg)
	case "INF":
		l.logger.Info(msg)
	default:
		l.logger.Info(s)
	}
	return nil
}
