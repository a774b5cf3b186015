// Package notify fans operational events out to configured channels. Every
// send is best effort: a notification failure is logged and never propagated
// into the operation that triggered it.
package notify

import (
	"context"
	"log/slog"
)

// Sender delivers one formatted message to a single channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, title, message string) error
}

// Notifier filters events against the configured allow list and fans the
// message out to every sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier. events is the allow list; an empty list allows
// every event.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[e] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the message to all senders if the event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}

	for _, sender := range n.senders {
		if err := sender.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "notification send failed",
				slog.String("sender", sender.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
