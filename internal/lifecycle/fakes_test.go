package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/loykin/interpctl/internal/history"
	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/project"
)

type fakeProjects map[int64]project.Project

func (f fakeProjects) ByID(_ context.Context, id int64) (project.Project, error) {
	p, ok := f[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

type fakeSettings struct {
	mu         sync.Mutex
	list       []interpreter.Setting
	listErr    error
	restartErr error
	restarts   int
	onRestart  func()
}

func (f *fakeSettings) List(_ context.Context, _ int64) ([]interpreter.Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]interpreter.Setting(nil), f.list...), nil
}

func (f *fakeSettings) Get(_ context.Context, _ int64, id string) (interpreter.Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.list {
		if s.ID == id {
			return s, nil
		}
	}
	return interpreter.Setting{}, fmt.Errorf("%w: %s", interpreter.ErrSettingNotFound, id)
}

func (f *fakeSettings) Restart(ctx context.Context, projectID int64, id string) (interpreter.Setting, error) {
	f.mu.Lock()
	f.restarts++
	hook, rerr := f.onRestart, f.restartErr
	f.mu.Unlock()
	if rerr != nil {
		return interpreter.Setting{}, rerr
	}
	s, err := f.Get(ctx, projectID, id)
	if err != nil {
		return s, err
	}
	if hook != nil {
		hook()
	}
	return s, nil
}

func (f *fakeSettings) Restarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

// fakeExecutor terminates a paragraph after terminateAfter IsTerminated polls; a
// negative value never terminates.
type fakeExecutor struct {
	mu             sync.Mutex
	terminateAfter int
	createErr      error
	notes          map[string]map[string]string // note -> paragraph -> text
	polls          map[string]int
	created        int
	runs           int
	removed        []string
	seq            int

	// observed concurrency of running paragraphs
	active    int32
	maxActive int32
}

func newFakeExecutor(terminateAfter int) *fakeExecutor {
	return &fakeExecutor{
		terminateAfter: terminateAfter,
		notes:          make(map[string]map[string]string),
		polls:          make(map[string]int),
	}
}

func (f *fakeExecutor) CreateNote(_ context.Context, _ project.Project) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.seq++
	id := fmt.Sprintf("note-%d", f.seq)
	f.notes[id] = make(map[string]string)
	f.created++
	return id, nil
}

func (f *fakeExecutor) AddParagraph(noteID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[noteID]
	if !ok {
		return "", errors.New("no note")
	}
	f.seq++
	id := fmt.Sprintf("para-%d", f.seq)
	n[id] = ""
	return id, nil
}

func (f *fakeExecutor) SetText(noteID, paragraphID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[noteID][paragraphID] = text
	return nil
}

func (f *fakeExecutor) Run(_, _ string) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	n := atomic.AddInt32(&f.active, 1)
	for {
		m := atomic.LoadInt32(&f.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxActive, m, n) {
			break
		}
	}
	return nil
}

func (f *fakeExecutor) IsTerminated(_, paragraphID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[paragraphID]++
	done := f.terminateAfter >= 0 && f.polls[paragraphID] > f.terminateAfter
	if done && f.polls[paragraphID] == f.terminateAfter+1 {
		atomic.AddInt32(&f.active, -1)
	}
	return done, nil
}

func (f *fakeExecutor) RemoveNote(_ context.Context, noteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, noteID)
	return nil
}

func (f *fakeExecutor) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.notes {
		for _, t := range n {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeExecutor) counts() (created, runs, removed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, f.runs, len(f.removed)
}

// fakeProber answers from running; after Stop flips it the group reads as stopped
// once stopAfter more probes have been made.
type fakeProber struct {
	mu      sync.Mutex
	running map[string]bool
	calls   int
	after   map[string]int
}

func newFakeProber(running map[string]bool) *fakeProber {
	return &fakeProber{running: running, after: map[string]int{}}
}

func (f *fakeProber) IsRunning(_ context.Context, group string, _ project.Project) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if n, ok := f.after[group]; ok {
		if n <= 0 {
			f.running[group] = false
			delete(f.after, group)
		} else {
			f.after[group] = n - 1
		}
	}
	return f.running[group]
}

// stopAfter makes group read as not running after n more probes.
func (f *fakeProber) stopAfter(group string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after[group] = n
}

func (f *fakeProber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recordingSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Types() []history.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]history.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
