package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vkorchagin/oddsmesh/internal/notify"
	"github.com/vkorchagin/oddsmesh/internal/pkg/config"
	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// AdapterState is the supervisor's view of one source adapter.
type AdapterState string

const (
	StateHealthy    AdapterState = "healthy"
	StateDegraded   AdapterState = "degraded"
	StateFailed     AdapterState = "failed"
	StateRestarting AdapterState = "restarting"
)

// SourceHealth is the per-adapter health record shared with the scheduler and
// the ops server: a silent source is a scheduler non-event and a supervisor
// symptom at the same time.
type SourceHealth struct {
	SourceID            string       `json:"source_id"`
	State               AdapterState `json:"state"`
	LastFeedChangeAt    time.Time    `json:"last_feed_change_at"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	RestartCount        int          `json:"restart_count"`
	Escalated           bool         `json:"escalated"`
}

// FreshnessProbe reports when a source's feed document last changed. The feed
// watcher implements it.
type FreshnessProbe interface {
	LastChange(sourceID string) time.Time
}

type adapter struct {
	id        string
	runner    ProcessRunner // nil for externally managed adapters
	state     AdapterState
	firstSeen time.Time

	consecutiveFailures int
	restartCount        int
	restartTimes        []time.Time // rolling escalation window
	restartDeadline     time.Time   // a restart must yield a fresh feed by this
	restartBaseline     time.Time   // feed change time when the restart was issued
	escalated           bool
}

// Supervisor tracks adapter liveness and feed freshness, restarts failed
// managed adapters with bounded escalation, and raises alerts through the
// notifier. It runs on its own timer, decoupled from the scheduler.
type Supervisor struct {
	cfg      config.SupervisorConfig
	probe    FreshnessProbe
	notifier notify.Notifier

	mu        sync.Mutex
	adapters  map[string]*adapter
	order     []string
	now       func() time.Time
	onRestart func(sourceID string)
}

// OnRestart registers a callback invoked for every restart attempt, for
// metrics.
func (s *Supervisor) OnRestart(fn func(sourceID string)) {
	s.onRestart = fn
}

func New(cfg config.SupervisorConfig, sources []config.FeedSource, probe FreshnessProbe, notifier notify.Notifier) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		probe:    probe,
		notifier: notifier,
		adapters: make(map[string]*adapter, len(sources)),
		now:      time.Now,
	}
	for _, src := range sources {
		a := &adapter{id: src.ID, state: StateHealthy}
		if len(src.Command) > 0 {
			a.runner = newExecRunner(src.Command)
		}
		s.adapters[src.ID] = a
		s.order = append(s.order, src.ID)
	}
	sort.Strings(s.order)
	return s
}

// Run starts managed adapters and polls health until the context is
// cancelled, then stops every managed adapter with the configured grace.
func (s *Supervisor) Run(ctx context.Context) error {
	s.startAll(ctx)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	slog.Info("Supervisor started",
		"adapters", len(s.adapters),
		"check_interval", s.cfg.CheckInterval,
		"freshness_threshold", s.cfg.FreshnessThreshold)

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return nil
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *Supervisor) startAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for _, id := range s.order {
		a := s.adapters[id]
		a.firstSeen = now
		if a.runner == nil {
			continue
		}
		if err := a.runner.Start(ctx); err != nil {
			slog.Error("Supervisor: failed to start adapter", "adapter", id, "error", err)
			a.state = StateFailed
			a.consecutiveFailures++
		}
	}
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	runners := make(map[string]ProcessRunner)
	for id, a := range s.adapters {
		if a.runner != nil {
			runners[id] = a.runner
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for id, r := range runners {
		wg.Add(1)
		go func(id string, r ProcessRunner) {
			defer wg.Done()
			slog.Info("Supervisor: stopping adapter", "adapter", id)
			r.Stop(s.cfg.StopGrace)
		}(id, r)
	}
	wg.Wait()
}

// Check evaluates every adapter's state machine once. Exported so tests and
// the ops server can force an evaluation. Restart decisions are made under
// the lock; the blocking stop/start itself runs after it is released so a
// slow adapter shutdown never stalls Health() or the other adapters' checks.
func (s *Supervisor) Check(ctx context.Context) {
	s.mu.Lock()
	now := s.now().UTC()
	var restarts []*adapter
	for _, id := range s.order {
		if s.checkAdapter(ctx, s.adapters[id], now) {
			restarts = append(restarts, s.adapters[id])
		}
	}
	s.mu.Unlock()

	for _, a := range restarts {
		s.restart(ctx, a)
	}
}

// checkAdapter runs one adapter's state machine; returns true when a restart
// was approved and should be executed by the caller outside the lock.
func (s *Supervisor) checkAdapter(ctx context.Context, a *adapter, now time.Time) bool {
	lastChange := s.probe.LastChange(a.id)
	// A feed that never changed is measured from when supervision began.
	freshSince := lastChange
	if freshSince.IsZero() {
		freshSince = a.firstSeen
	}
	age := now.Sub(freshSince)

	processAlive := a.runner == nil || a.runner.Running()

	if a.escalated {
		// Escalated adapters stay Failed until an operator intervenes; keep
		// raising the persistent alert (the suppressor meters delivery).
		s.raise(ctx, a, "crash-loop",
			fmt.Sprintf("adapter %s restarted %d times without recovering; auto-restart disabled", a.id, a.restartCount))
		return false
	}

	if a.state == StateRestarting {
		if lastChange.After(a.restartBaseline) {
			slog.Info("Supervisor: adapter recovered after restart", "adapter", a.id)
			a.state = StateHealthy
			a.consecutiveFailures = 0
		} else if now.After(a.restartDeadline) {
			// Restart produced no fresh feed within the timeout: count it as
			// another failure.
			slog.Warn("Supervisor: restart did not yield fresh feed", "adapter", a.id)
			a.state = StateFailed
			a.consecutiveFailures++
			return s.approveRestartLocked(ctx, a, now)
		}
		return false
	}

	switch {
	case !processAlive:
		a.state = StateFailed
		a.consecutiveFailures++
		slog.Warn("Supervisor: adapter process exited", "adapter", a.id, "consecutive_failures", a.consecutiveFailures)
		return s.approveRestartLocked(ctx, a, now)

	case age > s.cfg.FailureThreshold:
		a.state = StateFailed
		a.consecutiveFailures++
		slog.Warn("Supervisor: feed grossly stale", "adapter", a.id, "age", age)
		if a.runner != nil {
			return s.approveRestartLocked(ctx, a, now)
		}
		s.raise(ctx, a, "failed",
			fmt.Sprintf("adapter %s feed has not changed for %s (externally managed, cannot restart)", a.id, age.Round(time.Second)))

	case age > s.cfg.FreshnessThreshold:
		// Process alive but feed stalled: likely upstream-blocked. Alert, do
		// not restart.
		a.state = StateDegraded
		s.raise(ctx, a, "stale",
			fmt.Sprintf("adapter %s feed unchanged for %s while process is running", a.id, age.Round(time.Second)))

	default:
		if a.state != StateHealthy {
			slog.Info("Supervisor: adapter healthy again", "adapter", a.id)
		}
		a.state = StateHealthy
		a.consecutiveFailures = 0
	}
	return false
}

// approveRestartLocked charges the rolling-window restart budget and books the
// restart's deadline and feed baseline, or escalates when the budget is
// exhausted. The slot is reserved here, under the lock, so the caller can run
// the blocking stop/start without racing another check.
func (s *Supervisor) approveRestartLocked(ctx context.Context, a *adapter, now time.Time) bool {
	if a.runner == nil {
		return false
	}

	// Prune restarts outside the rolling window.
	cutoff := now.Add(-s.cfg.RestartWindow)
	kept := a.restartTimes[:0]
	for _, t := range a.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.restartTimes = kept

	if len(a.restartTimes) >= s.cfg.MaxRestarts {
		a.escalated = true
		a.state = StateFailed
		slog.Error("Supervisor: escalating, too many restarts in window",
			"adapter", a.id, "restarts", len(a.restartTimes), "window", s.cfg.RestartWindow)
		s.raise(ctx, a, "crash-loop",
			fmt.Sprintf("adapter %s failed %d times within %s; auto-restart disabled", a.id, len(a.restartTimes), s.cfg.RestartWindow))
		return false
	}

	a.restartTimes = append(a.restartTimes, now)
	a.restartCount++
	a.restartBaseline = s.probe.LastChange(a.id)
	a.restartDeadline = now.Add(s.cfg.RestartTimeout)
	a.state = StateRestarting
	return true
}

// restart performs the blocking stop/start for an approved restart. Runs
// without the supervisor lock; only the failure bookkeeping reacquires it.
func (s *Supervisor) restart(ctx context.Context, a *adapter) {
	slog.Info("Supervisor: restarting adapter", "adapter", a.id, "restart_count", a.restartCount)
	a.runner.Stop(s.cfg.StopGrace)
	if err := a.runner.Start(ctx); err != nil {
		slog.Error("Supervisor: restart failed", "adapter", a.id, "error", err)
		s.mu.Lock()
		a.consecutiveFailures++
		s.mu.Unlock()
	}
	if s.onRestart != nil {
		s.onRestart(a.id)
	}
}

// raise sends an alert through the notifier; the suppressor upstream decides
// whether it is actually delivered. Delivery failure is non-fatal.
func (s *Supervisor) raise(ctx context.Context, a *adapter, fault, message string) {
	alert := models.NewAlertEvent(fmt.Sprintf("adapter:%s:%s", a.id, fault), message)
	if err := s.notifier.Notify(ctx, alert); err != nil {
		slog.Error("Supervisor: alert delivery failed", "key", alert.Key, "error", err)
	}
}

// Health returns every adapter's health record, sorted by source ID.
func (s *Supervisor) Health() []SourceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SourceHealth, 0, len(s.order))
	for _, id := range s.order {
		a := s.adapters[id]
		out = append(out, SourceHealth{
			SourceID:            a.id,
			State:               a.state,
			LastFeedChangeAt:    s.probe.LastChange(a.id),
			ConsecutiveFailures: a.consecutiveFailures,
			RestartCount:        a.restartCount,
			Escalated:           a.escalated,
		})
	}
	return out
}
