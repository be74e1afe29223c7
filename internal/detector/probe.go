package detector

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"

	"github.com/loykin/interpctl/internal/logger"
	"github.com/loykin/interpctl/internal/metrics"
)

// DefaultProbeCommand is the null-signal existence check. The pid is appended as the
// last argument.
var DefaultProbeCommand = []string{"kill", "-0"}

// Probe reports whether a pid names a live process.
type Probe interface {
	Alive(ctx context.Context, pid string) bool
}

// PIDProbe runs an external existence check against a pid and waits for it.
//
// Exit status 0 means alive, any other exit status means not alive. When the check
// cannot be launched or awaited the answer is alive: a marker file that still exists
// belongs to a process that was alive recently, launchers remove markers promptly on
// exit, so an unprovable check must not declare a busy interpreter dead.
type PIDProbe struct {
	Command []string
	Logger  *slog.Logger
}

func (p PIDProbe) Alive(ctx context.Context, pid string) bool {
	if pid == "" {
		return false
	}
	argv := p.Command
	if len(argv) == 0 {
		argv = DefaultProbeCommand
	}
	args := append(append([]string{}, argv[1:]...), pid)
	// #nosec G204 -- pid is validated as decimal by ReadMarker
	cmd := exec.CommandContext(ctx, argv[0], args...)
	err := cmd.Run()
	if err == nil {
		return true
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && ctx.Err() == nil {
		return false
	}
	// Spawn failure or interrupted wait: fail safe towards alive.
	p.logger().Warn("liveness probe inconclusive, assuming alive", "pid", pid, "error", err)
	metrics.IncProbe(metrics.ProbeFailed)
	return true
}

func (p PIDProbe) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logger.Discard()
}
