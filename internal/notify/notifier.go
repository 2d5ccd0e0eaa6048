// Package notify fans order notifications out to chat channels. Delivery is
// filtered by event name so operators only hear about what they chose.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one message to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. An empty event list lets every event
// through.
type Notifier struct {
	senders []Sender
	events  map[string]struct{}
	prefix  string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. prefix is prepended to every title.
func NewNotifier(senders []Sender, events []string, prefix string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event passes the filter and at least one sender
// is configured.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	if len(n.events) == 0 {
		return true
	}
	_, ok := n.events[event]
	return ok
}

// Notify delivers to every sender if event passes the filter. A failing
// sender does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		return nil
	}
	if n.prefix != "" {
		title = n.prefix + " " + title
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "notifier: send failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d of %d senders failed: %w", len(errs), len(n.senders), errors.Join(errs...))
	}
	return nil
}
