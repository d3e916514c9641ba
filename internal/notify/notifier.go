package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// Notifier delivers alert events. Implementations are external transports;
// delivery failure is non-fatal for callers.
type Notifier interface {
	Notify(ctx context.Context, alert models.AlertEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, alert models.AlertEvent) error

func (f NotifierFunc) Notify(ctx context.Context, alert models.AlertEvent) error {
	return f(ctx, alert)
}

// LogNotifier writes alerts to the log. Used when no delivery transport is
// configured, and as a safe default in tests.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, alert models.AlertEvent) error {
	slog.Warn("ALERT", "key", alert.Key, "message", alert.Message, "raised_at", alert.RaisedAt)
	return nil
}

// Suppressor drops repeats of the same fault inside a cooldown window so a
// sustained failure produces one notification, not a storm. The window is
// refreshed on each delivered alert; suppressed repeats are logged only.
type Suppressor struct {
	next     Notifier
	cooldown time.Duration

	mu              sync.Mutex
	suppressedUntil map[string]time.Time
	now             func() time.Time
}

func NewSuppressor(next Notifier, cooldown time.Duration) *Suppressor {
	return &Suppressor{
		next:            next,
		cooldown:        cooldown,
		suppressedUntil: make(map[string]time.Time),
		now:             time.Now,
	}
}

func (s *Suppressor) Notify(ctx context.Context, alert models.AlertEvent) error {
	now := s.now().UTC()

	s.mu.Lock()
	until, seen := s.suppressedUntil[alert.Key]
	if seen && now.Before(until) {
		s.mu.Unlock()
		slog.Info("Alert suppressed", "key", alert.Key, "suppressed_until", until)
		return nil
	}
	// Reserve the window before delivering so concurrent raises of the same
	// fault cannot both get through.
	s.suppressedUntil[alert.Key] = now.Add(s.cooldown)
	s.mu.Unlock()

	alert.SuppressedUntil = now.Add(s.cooldown)
	if err := s.next.Notify(ctx, alert); err != nil {
		// Delivery failed: reopen the window so the fault can be re-raised.
		s.mu.Lock()
		s.suppressedUntil[alert.Key] = until
		s.mu.Unlock()
		slog.Error("Alert delivery failed", "key", alert.Key, "error", err)
		return err
	}
	return nil
}
