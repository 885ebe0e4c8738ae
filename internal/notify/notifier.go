// Package notify delivers operator alerts to Telegram and Discord. Alerts
// can be filtered by event type and are sent off the caller's goroutine so
// the betting loop never waits on a chat API.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans an alert out to every sender. When events is non-empty only
// those event types are forwarded.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends the alert to every sender if event passes the filter. One
// failing sender does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

type alert struct {
	event, title, message string
}

// AsyncNotifier queues alerts for a background worker that spaces sends by
// a minimum interval. A full queue drops the alert.
type AsyncNotifier struct {
	next     *Notifier
	queue    chan alert
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAsyncNotifier wraps next. interval is the minimum gap between two
// deliveries.
func NewAsyncNotifier(next *Notifier, queueSize int, interval time.Duration, logger *slog.Logger) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &AsyncNotifier{
		next:     next,
		queue:    make(chan alert, queueSize),
		interval: interval,
		timeout:  10 * time.Second,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Notify enqueues the alert and returns immediately.
func (a *AsyncNotifier) Notify(ctx context.Context, event, title, message string) error {
	if !a.next.Enabled() || !a.next.Allows(event) {
		return nil
	}
	select {
	case a.queue <- alert{event: event, title: title, message: message}:
		return nil
	default:
		a.logger.WarnContext(ctx, "alert queue full, dropping", slog.String("event", event))
		return fmt.Errorf("notify: queue full")
	}
}

// Run delivers queued alerts until ctx is done, then drains what is left.
func (a *AsyncNotifier) Run(ctx context.Context) error {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case al := <-a.queue:
					a.deliver(context.Background(), al)
				default:
					return nil
				}
			}
		case al := <-a.queue:
			if wait := a.interval - time.Since(last); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
				}
			}
			a.deliver(ctx, al)
			last = time.Now()
		}
	}
}

func (a *AsyncNotifier) deliver(ctx context.Context, al alert) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	_ = a.next.Notify(sctx, al.event, al.title, al.message)
}
