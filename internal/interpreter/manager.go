package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/interpctl/internal/logger"
	"github.com/loykin/interpctl/internal/metrics"
	"github.com/loykin/interpctl/internal/process"
	"github.com/loykin/interpctl/internal/project"
	"github.com/loykin/interpctl/internal/store"
)

// MarkerName is the run-directory file name of a setting's process marker.
func MarkerName(group, settingID string) string {
	return fmt.Sprintf("interpreter-%s-%s.pid", group, settingID)
}

// Options tune process launching.
type Options struct {
	Paths    project.Paths
	Log      logger.Config // stdout/stderr files of interpreter processes
	StopWait time.Duration // SIGTERM -> SIGKILL escalation
	Env      []string      // KEY=VALUE base layer for every process
}

type running struct {
	proc      *process.Process
	projectID int64
	group     string
}

// Manager persists interpreter settings and owns the interpreter processes.
type Manager struct {
	st   store.Store
	reg  *Registry
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	procs    map[string]*running         // by setting id
	stopping map[string]*process.Process // teardowns in flight, by setting id
	wg       sync.WaitGroup              // async teardowns
}

func NewManager(st store.Store, reg *Registry, opts Options, l *slog.Logger) *Manager {
	if l == nil {
		l = logger.Discard()
	}
	if opts.StopWait <= 0 {
		opts.StopWait = process.DefaultStopWait
	}
	return &Manager{st: st, reg: reg, opts: opts, log: l, procs: make(map[string]*running),
		stopping: make(map[string]*process.Process)}
}

func (m *Manager) Registry() *Registry { return m.reg }

func (m *Manager) List(ctx context.Context, projectID int64) ([]Setting, error) {
	recs, err := m.st.ListSettings(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make([]Setting, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

func (m *Manager) Get(ctx context.Context, projectID int64, id string) (Setting, error) {
	rec, err := m.st.GetSetting(ctx, projectID, id)
	if errors.Is(err, store.ErrNotFound) {
		return Setting{}, fmt.Errorf("%w: %s", ErrSettingNotFound, id)
	}
	if err != nil {
		return Setting{}, fmt.Errorf("get setting %s: %w", id, err)
	}
	return fromRecord(rec), nil
}

// Add creates a setting for a registered group. An empty name defaults to the group.
// The option is accepted for wire compatibility; Remote is always set.
func (m *Manager) Add(ctx context.Context, projectID int64, name, group string, _ Option, props map[string]string) (Setting, error) {
	group = strings.TrimSpace(group)
	if _, ok := m.reg.ByGroup(group); !ok {
		return Setting{}, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	if strings.TrimSpace(name) == "" {
		name = group
	}
	if props == nil {
		props = map[string]string{}
	}
	s := Setting{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Name:       name,
		Group:      group,
		Option:     Option{Remote: true},
		Properties: props,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := m.st.UpsertSetting(ctx, s.record()); err != nil {
		return Setting{}, fmt.Errorf("create setting: %w", err)
	}
	m.log.Info("interpreter setting created", "project", projectID, "setting", s.ID, "group", group)
	return s, nil
}

// SetPropertiesAndRestart replaces the properties of a setting and restarts its process.
func (m *Manager) SetPropertiesAndRestart(ctx context.Context, projectID int64, id string, _ Option, props map[string]string) (Setting, error) {
	s, err := m.Get(ctx, projectID, id)
	if err != nil {
		return Setting{}, err
	}
	if props == nil {
		props = map[string]string{}
	}
	// interpreters always run as separate processes
	s.Option.Remote = true
	s.Properties = props
	s.UpdatedAt = time.Now().UTC()
	if err := m.st.UpsertSetting(ctx, s.record()); err != nil {
		return Setting{}, fmt.Errorf("update setting %s: %w", id, err)
	}
	m.teardownGroup(projectID, s.Group)
	return s, nil
}

// Remove deletes the setting and stops its process.
func (m *Manager) Remove(ctx context.Context, projectID int64, id string) error {
	err := m.st.DeleteSetting(ctx, projectID, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSettingNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("remove setting %s: %w", id, err)
	}
	m.teardown(id)
	return nil
}

// Restart tears down, in the background, the process serving the setting's group in the
// project. Settings of one group share a process, so this may be another setting's
// process. The next paragraph run against the group launches a fresh one.
func (m *Manager) Restart(ctx context.Context, projectID int64, id string) (Setting, error) {
	s, err := m.Get(ctx, projectID, id)
	if err != nil {
		return Setting{}, err
	}
	m.teardownGroup(projectID, s.Group)
	return s, nil
}

func (m *Manager) teardownGroup(projectID int64, group string) {
	m.mu.Lock()
	var ids []string
	for id, r := range m.procs {
		if r.projectID == projectID && r.group == group {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.teardown(id)
	}
}

func (m *Manager) teardown(id string) {
	m.mu.Lock()
	r, ok := m.procs[id]
	delete(m.procs, id)
	if ok {
		m.stopping[id] = r.proc
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := r.proc.Stop(m.opts.StopWait); err != nil {
			m.log.Error("stop interpreter", "setting", id, "group", r.group, "error", err)
		}
		m.mu.Lock()
		if m.stopping[id] == r.proc {
			delete(m.stopping, id)
		}
		m.mu.Unlock()
	}()
}

// awaitTeardown blocks until a teardown of the setting's previous process has reaped it.
func (m *Manager) awaitTeardown(ctx context.Context, id string) error {
	m.mu.Lock()
	proc := m.stopping[id]
	m.mu.Unlock()
	if proc == nil {
		return nil
	}
	done := proc.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for previous process of %s: %w", id, ctx.Err())
	}
}

// Acquire makes sure the process serving group in the project is running. The group's
// first setting supplies the process configuration. A previous process of that setting
// that is still being torn down is waited for first. A freshly launched process must
// survive grace before Acquire reports success.
func (m *Manager) Acquire(ctx context.Context, p project.Project, group string, grace time.Duration) error {
	settings, err := m.List(ctx, p.ID)
	if err != nil {
		return err
	}
	var (
		s     Setting
		found bool
	)
	for _, cand := range settings {
		if cand.Group == group {
			s, found = cand, true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: no setting for group %q in project %s", ErrSettingNotFound, group, p.Name)
	}
	reg, ok := m.reg.ByGroup(group)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	if strings.TrimSpace(reg.Command) == "" {
		return fmt.Errorf("%w: %q", ErrNoCommand, group)
	}
	if err := m.awaitTeardown(ctx, s.ID); err != nil {
		return err
	}

	m.mu.Lock()
	if m.servingLocked(p.ID, group) {
		m.mu.Unlock()
		return nil
	}
	runDir, err := m.opts.Paths.RunDirFor(p.Name)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("run dir: %w", err)
	}
	proc := process.New(process.Spec{
		Name:    fmt.Sprintf("%s-%s-%s", p.Name, group, s.ID),
		Command: reg.Command,
		Env:     processEnv(m.opts.Env, reg, s, p),
		PIDFile: filepath.Join(runDir, MarkerName(group, s.ID)),
		Log:     m.opts.Log,
	}, m.log)
	if err := proc.Start(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("launch %s: %w", group, err)
	}
	m.procs[s.ID] = &running{proc: proc, projectID: p.ID, group: group}
	m.mu.Unlock()

	metrics.AddRunningProcesses(group, 1)
	go m.reap(s.ID, group, proc)

	if err := proc.EnforceStartDuration(ctx, grace); err != nil {
		return fmt.Errorf("launch %s: %w", group, err)
	}
	return nil
}

func (m *Manager) servingLocked(projectID int64, group string) bool {
	for _, r := range m.procs {
		if r.projectID == projectID && r.group == group && r.proc.Running() {
			return true
		}
	}
	return false
}

// reap forgets the process once it exits.
func (m *Manager) reap(id, group string, proc *process.Process) {
	<-proc.Done()
	metrics.AddRunningProcesses(group, -1)
	m.mu.Lock()
	if r, ok := m.procs[id]; ok && r.proc == proc {
		delete(m.procs, id)
	}
	m.mu.Unlock()
}

// Running reports whether the manager holds a live process for the setting.
func (m *Manager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.procs[id]
	return ok && r.proc.Running()
}

// Shutdown stops every process and waits for pending teardowns.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.procs))
	for id := range m.procs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.teardown(id)
	}
	m.wg.Wait()
}
