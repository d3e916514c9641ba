package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcessRunner starts and stops one adapter process. Abstracted so the
// supervisor's state machine can be driven without real processes in tests.
type ProcessRunner interface {
	Start(ctx context.Context) error
	// Stop asks the process to exit, escalating to a kill after grace.
	Stop(grace time.Duration)
	Running() bool
}

// execRunner manages one adapter as a child process.
type execRunner struct {
	argv []string

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	done    chan struct{} // closed once cmd.Wait has reaped the process
}

func newExecRunner(argv []string) *execRunner {
	return &execRunner{argv: argv}
}

func (r *execRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("process already running")
	}
	if len(r.argv) == 0 {
		return fmt.Errorf("no command configured")
	}

	cmd := exec.Command(r.argv[0], r.argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start adapter process: %w", err)
	}
	done := make(chan struct{})
	r.cmd = cmd
	r.running = true
	r.done = done

	go func() {
		err := cmd.Wait()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(done)
		if err != nil {
			slog.Warn("Adapter process exited", "command", r.argv[0], "error", err)
		} else {
			slog.Info("Adapter process exited cleanly", "command", r.argv[0])
		}
	}()
	return nil
}

func (r *execRunner) Stop(grace time.Duration) {
	r.mu.Lock()
	cmd := r.cmd
	done := r.done
	running := r.running
	r.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(grace):
	}

	slog.Warn("Adapter did not stop within grace, killing", "command", r.argv[0])
	_ = cmd.Process.Kill()

	// Wait for the reaper so an immediate Start does not see the old process
	// still registered as running.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Error("Adapter did not exit after kill", "command", r.argv[0])
	}
}

func (r *execRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
