package detector

import (
	"context"
	"log/slog"

	"github.com/loykin/interpctl/internal/logger"
	"github.com/loykin/interpctl/internal/metrics"
	"github.com/loykin/interpctl/internal/project"
)

// Prober resolves a project's run directory and scans it for a group's markers.
type Prober struct {
	paths  project.Paths
	probe  Probe
	logger *slog.Logger
}

func NewProber(paths project.Paths, probe Probe, l *slog.Logger) *Prober {
	if l == nil {
		l = logger.Discard()
	}
	if probe == nil {
		probe = PIDProbe{Logger: l}
	}
	return &Prober{paths: paths, probe: probe, logger: l}
}

// IsRunning reports whether the group's interpreter process is alive for the project.
// A run directory that cannot be resolved or listed reads as not running.
func (p *Prober) IsRunning(ctx context.Context, group string, proj project.Project) bool {
	if group == "" {
		return false
	}
	dir, err := p.paths.RunDirFor(proj.Name)
	if err != nil {
		p.logger.Error("could not resolve run directory", "project", proj.Name, "error", err)
		metrics.IncProbe(metrics.ProbeDirUnavailable)
		return false
	}
	d := MarkerDirDetector{Dir: dir, Group: group, Probe: p.probe, Logger: p.logger}
	alive, err := d.AliveContext(ctx)
	if err != nil {
		p.logger.Error("could not read pid files", "project", proj.Name, "dir", dir, "error", err)
		metrics.IncProbe(metrics.ProbeDirUnavailable)
		return false
	}
	return alive
}
