package supervisor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkorchagin/oddsmesh/internal/notify"
	"github.com/vkorchagin/oddsmesh/internal/pkg/config"
	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (r *fakeRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *fakeRunner) Stop(grace time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	r.running = false
}

func (r *fakeRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *fakeRunner) setRunning(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = v
}

type fakeProbe struct {
	mu      sync.Mutex
	changes map[string]time.Time
}

func (p *fakeProbe) LastChange(sourceID string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changes[sourceID]
}

func (p *fakeProbe) set(sourceID string, t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes[sourceID] = t
}

type captureNotifier struct {
	mu     sync.Mutex
	alerts []models.AlertEvent
}

func (c *captureNotifier) Notify(ctx context.Context, alert models.AlertEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureNotifier) byKeyPrefix(prefix string) []models.AlertEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.AlertEvent
	for _, a := range c.alerts {
		if strings.HasPrefix(a.Key, prefix) {
			out = append(out, a)
		}
	}
	return out
}

func testConfig() config.SupervisorConfig {
	return config.SupervisorConfig{
		CheckInterval:      30 * time.Second,
		FreshnessThreshold: 2 * time.Minute,
		FailureThreshold:   10 * time.Minute,
		RestartTimeout:     time.Minute,
		MaxRestarts:        3,
		RestartWindow:      10 * time.Minute,
		StopGrace:          time.Second,
	}
}

func newTestSupervisor(notifier notify.Notifier) (*Supervisor, *fakeRunner, *fakeProbe, *time.Time) {
	probe := &fakeProbe{changes: make(map[string]time.Time)}
	sup := New(testConfig(), []config.FeedSource{{ID: "fonbet", Command: []string{"adapter"}}}, probe, notifier)

	runner := &fakeRunner{}
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	a := sup.adapters["fonbet"]
	a.runner = runner
	a.firstSeen = now
	sup.now = func() time.Time { return now }

	return sup, runner, probe, &now
}

func TestHealthySource(t *testing.T) {
	sink := &captureNotifier{}
	sup, runner, probe, now := newTestSupervisor(sink)
	runner.setRunning(true)
	probe.set("fonbet", now.Add(-30*time.Second))

	sup.Check(context.Background())

	health := sup.Health()
	require.Len(t, health, 1)
	assert.Equal(t, StateHealthy, health[0].State)
	assert.Empty(t, sink.alerts)
}

func TestStaleFeedDegradesWithoutRestart(t *testing.T) {
	sink := &captureNotifier{}
	sup, runner, probe, now := newTestSupervisor(sink)
	runner.setRunning(true)
	probe.set("fonbet", now.Add(-5*time.Minute)) // past freshness, below failure

	sup.Check(context.Background())

	health := sup.Health()
	assert.Equal(t, StateDegraded, health[0].State)
	assert.Zero(t, runner.starts, "degraded must not restart")

	alerts := sink.byKeyPrefix("adapter:fonbet:stale")
	require.Len(t, alerts, 1)
}

func TestExitedProcessIsRestarted(t *testing.T) {
	sink := &captureNotifier{}
	sup, runner, probe, now := newTestSupervisor(sink)
	runner.setRunning(false)
	baseline := now.Add(-time.Minute)
	probe.set("fonbet", baseline)

	sup.Check(context.Background())

	assert.Equal(t, 1, runner.starts)
	assert.Equal(t, StateRestarting, sup.Health()[0].State)

	// The restart yields a fresh feed before the deadline: healthy again.
	runner.setRunning(true)
	probe.set("fonbet", now.Add(10*time.Second))
	*now = now.Add(30 * time.Second)
	sup.Check(context.Background())

	health := sup.Health()
	assert.Equal(t, StateHealthy, health[0].State)
	assert.Zero(t, health[0].ConsecutiveFailures)
}

func TestCrashLoopEscalates(t *testing.T) {
	sink := &captureNotifier{}
	suppressed := notify.NewSuppressor(sink, time.Hour)
	sup, runner, probe, now := newTestSupervisor(suppressed)

	// The adapter exits immediately after every restart and the feed never
	// moves again.
	runner.setRunning(false)
	probe.set("fonbet", now.Add(-time.Minute))

	// Each check is two minutes apart, so every restart deadline (1m) has
	// passed; all failures land inside the 10-minute escalation window.
	for i := 0; i < 5; i++ {
		sup.Check(context.Background())
		*now = now.Add(2 * time.Minute)
	}

	health := sup.Health()
	assert.Equal(t, StateFailed, health[0].State)
	assert.True(t, health[0].Escalated)
	assert.Equal(t, 3, runner.starts, "auto-restart stops at the bound")

	// One delivered crash-loop alert despite repeated raising.
	alerts := sink.byKeyPrefix("adapter:fonbet:crash-loop")
	require.Len(t, alerts, 1)
	assert.Equal(t, "adapter:fonbet:crash-loop", alerts[0].Key)
}

func TestEscalatedAdapterStaysDown(t *testing.T) {
	sink := &captureNotifier{}
	sup, runner, probe, now := newTestSupervisor(sink)
	runner.setRunning(false)
	probe.set("fonbet", now.Add(-time.Minute))

	for i := 0; i < 6; i++ {
		sup.Check(context.Background())
		*now = now.Add(2 * time.Minute)
	}
	startsAtEscalation := runner.starts

	// Further checks never restart again.
	for i := 0; i < 3; i++ {
		sup.Check(context.Background())
		*now = now.Add(2 * time.Minute)
	}
	assert.Equal(t, startsAtEscalation, runner.starts)
	assert.True(t, sup.Health()[0].Escalated)
}

func TestUnmanagedSourceAlertsOnGrossStaleness(t *testing.T) {
	sink := &captureNotifier{}
	probe := &fakeProbe{changes: make(map[string]time.Time)}
	sup := New(testConfig(), []config.FeedSource{{ID: "external"}}, probe, sink)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sup.adapters["external"].firstSeen = now
	sup.now = func() time.Time { return now }

	probe.set("external", now.Add(-time.Hour))
	sup.Check(context.Background())

	assert.Equal(t, StateFailed, sup.Health()[0].State)
	require.Len(t, sink.byKeyPrefix("adapter:external:failed"), 1)
}

// slowStopRunner blocks in Stop until released, like an adapter that ignores
// SIGTERM for the whole grace period.
type slowStopRunner struct {
	mu          sync.Mutex
	starts      int
	stopEntered chan struct{}
	release     chan struct{}
}

func (r *slowStopRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return nil
}

func (r *slowStopRunner) Stop(grace time.Duration) {
	r.stopEntered <- struct{}{}
	<-r.release
}

func (r *slowStopRunner) Running() bool { return false }

func TestHealthNotBlockedBySlowAdapterStop(t *testing.T) {
	sink := &captureNotifier{}
	sup, _, probe, now := newTestSupervisor(sink)
	slow := &slowStopRunner{
		stopEntered: make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	sup.adapters["fonbet"].runner = slow
	probe.set("fonbet", now.Add(-time.Minute))

	checkDone := make(chan struct{})
	go func() {
		sup.Check(context.Background())
		close(checkDone)
	}()
	<-slow.stopEntered

	// The adapter is mid-stop; Health must answer promptly and already show
	// the approved restart.
	healthDone := make(chan []SourceHealth, 1)
	go func() { healthDone <- sup.Health() }()
	select {
	case health := <-healthDone:
		require.Len(t, health, 1)
		assert.Equal(t, StateRestarting, health[0].State)
	case <-time.After(2 * time.Second):
		t.Fatal("Health blocked while an adapter was stopping")
	}

	close(slow.release)
	<-checkDone
	assert.Equal(t, 1, slow.starts)
}

func TestOnRestartCallback(t *testing.T) {
	sink := &captureNotifier{}
	sup, runner, probe, now := newTestSupervisor(sink)
	runner.setRunning(false)
	probe.set("fonbet", now.Add(-time.Minute))

	var restarted []string
	sup.OnRestart(func(sourceID string) { restarted = append(restarted, sourceID) })

	sup.Check(context.Background())
	assert.Equal(t, []string{"fonbet"}, restarted)
}
