package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State of the scheduler's pass machine.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
)

// ChangeDetector reports whether any watched feed changed since the last poll.
type ChangeDetector interface {
	Poll() bool
}

// PassFunc runs one aggregation pass. The scheduler guarantees at most one
// call is in flight at any time.
type PassFunc func(ctx context.Context) error

// Scheduler polls feed revision markers on a fixed interval and triggers
// aggregation passes. Bursts of near-simultaneous source updates coalesce
// into one pass (debounce); changes detected while a pass runs set a single
// pending-rerun flag and trigger exactly one follow-up pass.
type Scheduler struct {
	detector     ChangeDetector
	pass         PassFunc
	pollInterval time.Duration
	debounce     time.Duration

	mu          sync.Mutex
	state       State
	pending     bool
	lastPassEnd time.Time
	passCount   int64

	// dirty carries coalesced change signals into the run loop; capacity 1 is
	// the pending-rerun flag.
	dirty chan struct{}
}

func New(detector ChangeDetector, pass PassFunc, pollInterval, debounce time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Scheduler{
		detector:     detector,
		pass:         pass,
		pollInterval: pollInterval,
		debounce:     debounce,
		state:        StateIdle,
		dirty:        make(chan struct{}, 1),
	}
}

// MarkDirty signals that source data changed. Safe from any goroutine; N
// concurrent signals during a running pass still yield exactly one rerun.
func (s *Scheduler) MarkDirty() {
	s.mu.Lock()
	if s.state == StateRunning {
		s.pending = true
	}
	s.mu.Unlock()

	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Run drives the poll/pass loop until the context is cancelled. An in-flight
// pass finishes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "poll_interval", s.pollInterval, "debounce", s.debounce)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped", "passes", s.PassCount())
			return nil
		case <-ticker.C:
			if s.detector.Poll() {
				s.MarkDirty()
			}
		case <-s.dirty:
			s.executePass(ctx)
		}
	}
}

// executePass applies debounce, runs the pass, and immediately reruns once if
// changes arrived while it was running.
func (s *Scheduler) executePass(ctx context.Context) {
	for {
		s.setState(StateScheduled)
		if !s.waitDebounce(ctx) {
			s.setState(StateIdle)
			return
		}

		s.mu.Lock()
		s.state = StateRunning
		s.pending = false
		s.mu.Unlock()

		if err := s.pass(ctx); err != nil {
			slog.Error("Aggregation pass failed", "error", err)
		}

		s.mu.Lock()
		s.lastPassEnd = time.Now()
		s.passCount++
		rerun := s.pending
		s.pending = false
		s.state = StateIdle
		s.mu.Unlock()

		// Also drain the channel so a signal that raced with the flag does
		// not double-trigger.
		select {
		case <-s.dirty:
			rerun = true
		default:
		}

		if !rerun || ctx.Err() != nil {
			return
		}
		slog.Debug("Changes arrived during pass, running once more")
	}
}

// waitDebounce blocks until the minimum inter-pass interval has elapsed.
// Returns false if the context was cancelled while waiting.
func (s *Scheduler) waitDebounce(ctx context.Context) bool {
	s.mu.Lock()
	elapsed := time.Since(s.lastPassEnd)
	s.mu.Unlock()

	if s.debounce <= 0 || elapsed >= s.debounce {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.debounce - elapsed):
		return true
	}
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Status returns the current state and pending-rerun flag for introspection.
func (s *Scheduler) Status() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.pending
}

// PassCount returns how many passes completed since start.
func (s *Scheduler) PassCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passCount
}
