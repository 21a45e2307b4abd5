package email

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"

	"syncway/internal/redis"
)

// sentMarkerTTL is how long a delivered message id is remembered.
const sentMarkerTTL = 24 * time.Hour

// Worker consumes queued mail and delivers it through a Sender.
type Worker struct {
	sender      Sender
	locks       redis.LockStoreInterface
	logger      logrus.FieldLogger
	maxAttempts uint16
	timeout     time.Duration
}

// NewWorker creates a Worker. locks may be nil, in which case redelivered
// messages can be sent twice.
func NewWorker(sender Sender, locks redis.LockStoreInterface, logger logrus.FieldLogger, maxAttempts uint16, timeout time.Duration) *Worker {
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Worker{
		sender:      sender,
		locks:       locks,
		logger:      logger,
		maxAttempts: maxAttempts,
		timeout:     timeout,
	}
}

var _ nsq.Handler = (*Worker)(nil)

// HandleMessage implements nsq.Handler. Returning an error requeues the message.
func (w *Worker) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var msg Message
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		w.logger.WithError(err).Error("discarding malformed mail message")
		return nil
	}
	log := w.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"template":   msg.Template,
		"to":         msg.To,
		"attempt":    m.Attempts,
	})

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	return w.deliver(ctx, msg, m.Attempts, log)
}

func (w *Worker) deliver(ctx context.Context, msg Message, attempts uint16, log logrus.FieldLogger) error {
	key := "mail:" + msg.ID
	if w.locks != nil && msg.ID != "" {
		ok, err := w.locks.Acquire(ctx, key, sentMarkerTTL)
		if err != nil {
			log.WithError(err).Warn("mail dedupe check failed, sending anyway")
		} else if !ok {
			log.Info("mail already delivered, skipping")
			return nil
		}
	}

	err := w.sender.Send(ctx, msg)
	if err == nil {
		log.Info("mail delivered")
		return nil
	}

	if w.locks != nil && msg.ID != "" {
		if rerr := w.locks.Release(ctx, key); rerr != nil {
			log.WithError(rerr).Warn("release mail marker failed")
		}
	}
	if attempts >= w.maxAttempts {
		log.WithError(err).Error("mail delivery failed, giving up")
		return nil
	}
	log.WithError(err).Warn("mail delivery failed, requeueing")
	return err
}
