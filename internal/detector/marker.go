package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/loykin/interpctl/internal/logger"
	"github.com/loykin/interpctl/internal/metrics"
)

// MaxPIDBytes bounds how much of a marker file is read. Eight decimal digits cover the
// 32-bit (32768) and 64-bit (4194304) pid spaces.
const MaxPIDBytes = 8

// ReadMarker returns the pid stored in a marker file as text.
// Content that is not valid UTF-8 or not a decimal number is an error.
func ReadMarker(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(io.LimitReader(f, MaxPIDBytes))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("marker %s: not utf-8", path)
	}
	s := strings.Trim(string(b), " \t\r\n\x00")
	if s == "" {
		return "", fmt.Errorf("marker %s: empty", path)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("marker %s: invalid pid %q", path, s)
		}
	}
	return s, nil
}

// MarkerDirDetector scans Dir for marker files whose name contains Group.
//
// More than one marker may match the same group. The first one found alive wins;
// dead or unreadable matches do not stop the scan.
type MarkerDirDetector struct {
	Dir    string
	Group  string
	Probe  Probe
	Logger *slog.Logger
}

// Alive reports whether any matching marker names a live process. The error is
// non-nil only when the directory itself cannot be listed.
func (d MarkerDirDetector) Alive() (bool, error) {
	return d.AliveContext(context.Background())
}

func (d MarkerDirDetector) AliveContext(ctx context.Context) (bool, error) {
	if d.Group == "" {
		return false, errors.New("empty interpreter group")
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return false, err
	}
	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), d.Group) {
			continue
		}
		path := filepath.Join(d.Dir, e.Name())
		pid, err := ReadMarker(path)
		if err != nil {
			log.Debug("unusable marker file", "path", path, "error", err)
			metrics.IncProbe(metrics.ProbeNoPID)
			continue
		}
		if d.Probe.Alive(ctx, pid) {
			log.Debug("interpreter alive", "group", d.Group, "pid", pid, "marker", path)
			metrics.IncProbe(metrics.ProbeAlive)
			return true, nil
		}
		metrics.IncProbe(metrics.ProbeDead)
	}
	return false, nil
}

func (d MarkerDirDetector) Describe() string { return "markers:" + filepath.Join(d.Dir, "*"+d.Group+"*") }
