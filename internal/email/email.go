// Package email renders notification mail and hands it to a transport.
package email

import (
	"context"

	"github.com/google/uuid"

	"syncway/internal/domain"
)

// Message is a rendered email ready for a transport. It is also the body of
// queued mail, so it carries json tags.
type Message struct {
	ID       string               `json:"id"`
	Template domain.EmailTemplate `json:"template"`
	To       string               `json:"to"`
	Subject  string               `json:"subject"`
	HTML     string               `json:"html"`
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

func newMessageID() string {
	return uuid.New().String()
}
