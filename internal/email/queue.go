package email

import (
	"context"
	"encoding/json"
	"fmt"

	"syncway/internal/metrics"
)

// Publisher is the part of nsq.Producer used by QueueSender.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// QueueSender publishes messages to an NSQ topic for the mailer worker.
type QueueSender struct {
	producer Publisher
	topic    string
}

// NewQueueSender creates a QueueSender publishing to topic.
func NewQueueSender(producer Publisher, topic string) *QueueSender {
	return &QueueSender{producer: producer, topic: topic}
}

// Send implements Sender.
func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}
	if err := s.producer.Publish(s.topic, body); err != nil {
		return fmt.Errorf("publish mail message: %w", err)
	}
	metrics.MailSent.WithLabelValues("queue", string(msg.Template)).Inc()
	return nil
}
