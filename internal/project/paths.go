package project

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// DefaultRunDir is the run directory name relative to a project's directory.
const DefaultRunDir = "run"

// Paths derives per-project directories.
//
// RunDir may be:
//   - relative ("run"): resolved as ProjectsDir/<project>/run
//   - absolute ("/var/run/interp"): resolved as /var/run/interp/<project>
//   - a file URI ("file:///var/run/interp"): same as absolute
//
// Relative results are converted to absolute paths against the working directory.
type Paths struct {
	ProjectsDir string
	RunDir      string
}

// ProjectDir returns the base directory of the named project.
func (p Paths) ProjectDir(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Join(p.ProjectsDir, name))
}

// RunDirFor returns the absolute run directory holding process marker files for the project.
func (p Paths) RunDirFor(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	run := strings.TrimSpace(p.RunDir)
	if run == "" {
		run = DefaultRunDir
	}
	if strings.Contains(run, "://") {
		u, err := url.Parse(run)
		if err != nil {
			return "", fmt.Errorf("invalid run dir uri %q: %w", run, err)
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("unsupported run dir scheme %q", u.Scheme)
		}
		run = u.Path
		if run == "" {
			return "", fmt.Errorf("run dir uri %q has no path", p.RunDir)
		}
	}
	var dir string
	if filepath.IsAbs(run) {
		dir = filepath.Join(run, name)
	} else {
		dir = filepath.Join(p.ProjectsDir, name, run)
	}
	return filepath.Abs(dir)
}

// CheckName rejects names that cannot be used as a directory name.
func CheckName(name string) error {
	if name == "" {
		return errors.New("empty project name")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid project name %q", name)
	}
	return nil
}
