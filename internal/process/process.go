// Package process launches interpreter processes and owns their marker files.
//
// A marker file holds the decimal pid of the running interpreter. It is written right
// after the child starts and removed by the monitor goroutine once the child has been
// reaped, so anything scanning the run directory sees a marker only while the process
// may still be alive. Unix only: processes are signalled by process group.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("process already running")
	ErrExitedEarly    = errors.New("process exited before start grace elapsed")
)

type Process struct {
	spec Spec
	log  *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	done      chan struct{} // closed by the monitor when cmd.Wait returns
	outCloser io.WriteCloser
	errCloser io.WriteCloser
}

func New(spec Spec, l *slog.Logger) *Process {
	if l == nil {
		l = slog.Default()
	}
	return &Process{spec: spec, log: l.With("process", spec.Name)}
}

func (p *Process) Spec() Spec { return p.spec }

// configureCmd builds the command with workdir, env, log writers and its own process group.
func (p *Process) configureCmd() (*exec.Cmd, error) {
	cmd := p.spec.BuildCommand()
	if p.spec.WorkDir != "" {
		cmd.Dir = p.spec.WorkDir
	}
	if len(p.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), p.spec.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outW, errW, err := p.spec.Log.ProcessWriters(p.spec.Name)
	if err != nil {
		return nil, fmt.Errorf("log writers: %w", err)
	}
	p.outCloser, p.errCloser = outW, errW
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}
	// nil Stdout/Stderr go to os.DevNull
	return cmd, nil
}

// Start launches the process, writes the marker file and starts the monitor.
func (p *Process) Start() error {
	if err := p.spec.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Running {
		return ErrAlreadyRunning
	}
	cmd, err := p.configureCmd()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		p.closeWritersLocked()
		return fmt.Errorf("start %s: %w", p.spec.Name, err)
	}
	pid := cmd.Process.Pid
	if err := writeMarker(p.spec.PIDFile, pid); err != nil {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		_ = cmd.Wait()
		p.closeWritersLocked()
		return fmt.Errorf("write marker %s: %w", p.spec.PIDFile, err)
	}
	done := make(chan struct{})
	p.cmd = cmd
	p.done = done
	p.status = Status{Name: p.spec.Name, Running: true, PID: pid, StartedAt: time.Now()}
	p.log.Info("process started", "pid", pid, "marker", p.spec.PIDFile)
	go p.monitor(cmd, done)
	return nil
}

// monitor is the only caller of cmd.Wait.
func (p *Process) monitor(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	if rmErr := removeMarker(p.spec.PIDFile, cmd.Process.Pid); rmErr != nil {
		p.log.Warn("remove marker", "marker", p.spec.PIDFile, "error", rmErr)
	}
	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	p.closeWritersLocked()
	p.mu.Unlock()
	p.log.Info("process exited", "pid", cmd.Process.Pid, "error", err)
	close(done)
}

func (p *Process) closeWritersLocked() {
	if p.outCloser != nil {
		_ = p.outCloser.Close()
		p.outCloser = nil
	}
	if p.errCloser != nil {
		_ = p.errCloser.Close()
		p.errCloser = nil
	}
}

// Done is closed once the current run has been reaped. Nil before the first Start.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.Running
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// EnforceStartDuration waits d and fails if the process exits in the meantime.
func (p *Process) EnforceStartDuration(ctx context.Context, d time.Duration) error {
	done := p.Done()
	if done == nil {
		return ErrExitedEarly
	}
	if d <= 0 {
		select {
		case <-done:
			return ErrExitedEarly
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		if err := p.Snapshot().ExitErr; err != nil {
			return fmt.Errorf("%w: %v", ErrExitedEarly, err)
		}
		return ErrExitedEarly
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stop sends SIGTERM to the process group and escalates to SIGKILL after wait.
// It returns once the monitor has reaped the child, or shortly after SIGKILL.
func (p *Process) Stop(wait time.Duration) error {
	p.mu.Lock()
	cmd, done, running := p.cmd, p.done, p.status.Running
	p.mu.Unlock()
	if !running || cmd == nil || cmd.Process == nil {
		return nil
	}
	if wait <= 0 {
		wait = DefaultStopWait
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-done:
		return nil
	case <-time.After(wait):
	}
	p.log.Warn("process ignored SIGTERM, killing", "pid", pid)
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	select {
	case <-done:
		return nil
	case <-time.After(time.Second):
		return fmt.Errorf("process %s (pid %d) not reaped after SIGKILL", p.spec.Name, pid)
	}
}

func writeMarker(path string, pid int) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600)
}

// removeMarker deletes the marker at path only while it still names pid. A newer run of
// the same interpreter may already have replaced it.
func removeMarker(path string, pid int) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(b)) != strconv.Itoa(pid) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
