package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/vkorchagin/oddsmesh/internal/catalog"
	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// Manager periodically retires concluded records from the active catalog into
// history. Moves are one-directional: a retired key never returns to Active.
type Manager struct {
	store          *catalog.Store
	interval       time.Duration
	finishedGrace  time.Duration
	liveStaleAfter time.Duration
	now            func() time.Time
	onRetired      func(count int)
}

// OnRetired registers a callback invoked with the count of each non-empty
// sweep, for metrics.
func (m *Manager) OnRetired(fn func(count int)) {
	m.onRetired = fn
}

func NewManager(store *catalog.Store, interval, finishedGrace, liveStaleAfter time.Duration) *Manager {
	return &Manager{
		store:          store,
		interval:       interval,
		finishedGrace:  finishedGrace,
		liveStaleAfter: liveStaleAfter,
		now:            time.Now,
	}
}

// Run sweeps on a fixed period, independent of the scheduler, until the
// context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("Lifecycle manager started",
		"sweep_interval", m.interval,
		"finished_grace", m.finishedGrace,
		"live_stale_after", m.liveStaleAfter)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if moved, err := m.Sweep(ctx); err != nil {
				slog.Error("Lifecycle sweep failed", "error", err)
			} else if moved > 0 {
				slog.Info("Lifecycle sweep retired records", "count", moved)
			}
		}
	}
}

// Sweep scans the active partition once and moves expired records to history.
// Returns how many records moved.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now().UTC()
	snap := m.store.Current()

	var retire []string
	for key, rec := range snap.Active {
		if m.shouldRetire(rec, now) {
			retire = append(retire, key)
		}
	}
	moved, err := m.store.Retire(ctx, retire, now)
	if err == nil && moved > 0 && m.onRetired != nil {
		m.onRetired(moved)
	}
	return moved, err
}

// shouldRetire applies the three retirement rules: the event finished, its
// start time passed beyond the grace period, or a live record stopped
// receiving merges (abandoned).
func (m *Manager) shouldRetire(rec *models.UnifiedRecord, now time.Time) bool {
	if rec.Status == models.StatusFinished {
		return true
	}
	if !rec.StartTime.IsZero() && now.Sub(rec.StartTime) > m.finishedGrace {
		return true
	}
	if rec.Status == models.StatusLive && !rec.LastMergedAt.IsZero() &&
		now.Sub(rec.LastMergedAt) > m.liveStaleAfter {
		return true
	}
	return false
}
