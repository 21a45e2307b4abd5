package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"syncway/internal/domain"
	"syncway/internal/email"
	"syncway/internal/metrics"
	"syncway/internal/repository"
)

// Broadcaster delivers realtime events to connected clients.
type Broadcaster interface {
	// Broadcast sends to every connected client.
	Broadcast(ctx context.Context, event string, payload any) error

	// Notify sends to the connections of one user.
	Notify(ctx context.Context, userID, event string, payload any) error
}

// UserLookup resolves email recipients to their preferences.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// DefaultDispatchTimeout bounds one asynchronous dispatch run.
const DefaultDispatchTimeout = 30 * time.Second

// Dispatcher executes the events produced by committed transitions. Every
// event is attempted independently; failures are logged and counted, never
// returned to the caller.
type Dispatcher struct {
	broadcaster Broadcaster
	renderer    *email.Renderer
	sender      email.Sender
	users       UserLookup
	logger      logrus.FieldLogger
	timeout     time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	broadcaster Broadcaster,
	renderer *email.Renderer,
	sender email.Sender,
	users UserLookup,
	logger logrus.FieldLogger,
	timeout time.Duration,
) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Dispatcher{
		broadcaster: broadcaster,
		renderer:    renderer,
		sender:      sender,
		users:       users,
		logger:      logger,
		timeout:     timeout,
	}
}

// Dispatch runs events in order and waits for them.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		if err := d.execute(ctx, ev); err != nil {
			metrics.SideEffectFailures.WithLabelValues(string(ev.Kind)).Inc()
			d.eventLogger(ev).WithError(err).Warn("side effect failed")
		}
	}
}

// DispatchAsync runs events in the background, detached from the request
// context so a client disconnect does not cut them short.
func (d *Dispatcher) DispatchAsync(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		d.Dispatch(ctx, events)
	}()
}

// Wait blocks until every DispatchAsync run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) execute(ctx context.Context, ev domain.Event) error {
	switch ev.Kind {
	case domain.EventKindBroadcast:
		return d.broadcaster.Broadcast(ctx, ev.Name, ev.Payload)
	case domain.EventKindNotify:
		return d.broadcaster.Notify(ctx, ev.Target, ev.Name, ev.Payload)
	case domain.EventKindEmail:
		return d.sendEmail(ctx, ev.Email)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, ev *domain.EmailEvent) error {
	if ev == nil || ev.To == "" {
		return nil
	}

	if ev.RecipientID != "" && d.users != nil {
		user, err := d.users.GetByID(ctx, ev.RecipientID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Unknown recipients keep the address captured on the ride.
		case err != nil:
			return fmt.Errorf("load recipient %s: %w", ev.RecipientID, err)
		case !user.AccountActive || !user.EmailNotifications:
			d.logger.WithFields(logrus.Fields{
				"template":     ev.Template,
				"recipient_id": ev.RecipientID,
			}).Debug("email skipped, recipient muted notifications")
			return nil
		}
	}

	msg, err := d.renderer.Render(ev)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, msg)
}

func (d *Dispatcher) eventLogger(ev domain.Event) logrus.FieldLogger {
	fields := logrus.Fields{"kind": ev.Kind}
	if ev.Name != "" {
		fields["event"] = ev.Name
	}
	if ev.Target != "" {
		fields["target"] = ev.Target
	}
	if ev.Email != nil {
		fields["template"] = ev.Email.Template
		fields["recipient_id"] = ev.Email.RecipientID
	}
	return d.logger.WithFields(fields)
}
