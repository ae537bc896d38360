// Package notify delivers transition events to every configured channel
// (Feishu, Telegram, Discord) and record sink (Redis, Postgres, S3). Chat
// channels can be filtered by transition kind so operators receive only the
// alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/uykb/hypejk/internal/domain"
	"github.com/uykb/hypejk/internal/metrics"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers one transition event.
	Send(ctx context.Context, ev domain.TransitionEvent) error
	// Name returns a human-readable identifier for the sender (e.g. "feishu").
	Name() string
}

// Notifier dispatches events to one or more Senders. It maintains a set of
// allowed transition kinds; events of any other kind are skipped. A Notifier
// is itself a Sender, so filtered groups can be nested inside a wider one.
type Notifier struct {
	name    string
	senders []Sender
	kinds   map[domain.TransitionKind]bool // allowed kinds; empty allows all
	metrics *metrics.Metrics
	logger  *slog.Logger

	warnOnce sync.Once
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose kind appears in kinds are forwarded; unknown names are logged
// and ignored. If kinds is empty, all kinds are allowed. m may be nil.
func NewNotifier(name string, senders []Sender, kinds []string, m *metrics.Metrics, logger *slog.Logger) *Notifier {
	n := &Notifier{
		name:    name,
		senders: senders,
		kinds:   make(map[domain.TransitionKind]bool, len(kinds)),
		metrics: m,
		logger:  logger.With(slog.String("component", "notifier"), slog.String("group", name)),
	}
	for _, k := range kinds {
		kind, ok := domain.ParseTransitionKind(strings.ToUpper(strings.TrimSpace(k)))
		if !ok {
			n.logger.Warn("ignoring unknown transition kind in filter", slog.String("kind", k))
			continue
		}
		n.kinds[kind] = true
	}
	return n
}

// Name returns the group name.
func (n *Notifier) Name() string {
	return n.name
}

// Len returns the number of registered senders.
func (n *Notifier) Len() int {
	return len(n.senders)
}

// Send delivers ev to every sender. Errors from individual senders are
// collected and returned combined; a single sender failure does not prevent
// delivery to the remaining senders.
func (n *Notifier) Send(ctx context.Context, ev domain.TransitionEvent) error {
	if len(n.kinds) > 0 && !n.kinds[ev.Kind] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("kind", string(ev.Kind)),
			slog.String("coin", ev.Coin),
		)
		return nil
	}

	if len(n.senders) == 0 {
		n.warnOnce.Do(func() {
			n.logger.Warn(domain.ErrNoChannels.Error())
		})
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, ev); err != nil {
			n.metrics.ObserveSenderFailure(s.Name())
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("kind", string(ev.Kind)),
				slog.String("coin", ev.Coin),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("id", ev.ID),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
