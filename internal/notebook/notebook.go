// Package notebook runs disposable notes whose paragraphs target interpreter groups.
//
// A paragraph runs asynchronously: it resolves the interpreter group from its
// "%group" directive, makes sure the group's process is up, and then reports
// FINISHED, or ERROR when the process could not be brought up.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/interpctl/internal/logger"
	"github.com/loykin/interpctl/internal/project"
)

var (
	ErrNoteNotFound      = errors.New("note not found")
	ErrParagraphNotFound = errors.New("paragraph not found")
	ErrParagraphRunning  = errors.New("paragraph already running")
	ErrClosed            = errors.New("notebook closed")
)

type Status string

const (
	StatusReady    Status = "READY"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusError    Status = "ERROR"
	StatusAborted  Status = "ABORT"
)

// Terminated reports whether the status is final.
func (s Status) Terminated() bool {
	return s == StatusFinished || s == StatusError || s == StatusAborted
}

// Launcher brings up the interpreter process of a project's group. A process that
// was not running yet must stay up for grace.
type Launcher interface {
	Acquire(ctx context.Context, p project.Project, group string, grace time.Duration) error
}

type Options struct {
	DefaultGroup string
	StartGrace   time.Duration
}

// ParagraphInfo is a read-only view of a paragraph.
type ParagraphInfo struct {
	ID     string
	Text   string
	Status Status
	Err    error
}

type paragraph struct {
	id     string
	text   string
	status Status
	err    error
}

type note struct {
	id      string
	project project.Project
	ctx     context.Context
	cancel  context.CancelFunc
	paras   map[string]*paragraph
	order   []string
}

type Notebook struct {
	launcher Launcher
	opts     Options
	log      *slog.Logger

	mu     sync.Mutex
	notes  map[string]*note
	closed bool
	wg     sync.WaitGroup
}

func New(l Launcher, opts Options, log *slog.Logger) *Notebook {
	if log == nil {
		log = logger.Discard()
	}
	return &Notebook{launcher: l, opts: opts, log: log, notes: make(map[string]*note)}
}

// Directive returns the interpreter group a paragraph text targets. Text without a
// leading "%group" directive targets defaultGroup. For "%group.name" only the group
// part is returned.
func Directive(text, defaultGroup string) string {
	t := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(t, "%") {
		return defaultGroup
	}
	t = t[1:]
	if i := strings.IndexAny(t, " \t\r\n("); i >= 0 {
		t = t[:i]
	}
	if i := strings.IndexByte(t, '.'); i >= 0 {
		t = t[:i]
	}
	if t == "" {
		return defaultGroup
	}
	return t
}

// CreateNote creates an empty note bound to p.
func (nb *Notebook) CreateNote(_ context.Context, p project.Project) (string, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.closed {
		return "", ErrClosed
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &note{
		id:      uuid.NewString(),
		project: p,
		ctx:     ctx,
		cancel:  cancel,
		paras:   make(map[string]*paragraph),
	}
	nb.notes[n.id] = n
	return n.id, nil
}

func (nb *Notebook) AddParagraph(noteID string) (string, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	n, ok := nb.notes[noteID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	p := &paragraph{id: uuid.NewString(), status: StatusReady}
	n.paras[p.id] = p
	n.order = append(n.order, p.id)
	return p.id, nil
}

func (nb *Notebook) SetText(noteID, paragraphID, text string) error {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	_, p, err := nb.lookupLocked(noteID, paragraphID)
	if err != nil {
		return err
	}
	if p.status == StatusRunning {
		return ErrParagraphRunning
	}
	p.text = text
	return nil
}

// Run starts the paragraph in the background. Poll IsTerminated for completion.
func (nb *Notebook) Run(noteID, paragraphID string) error {
	nb.mu.Lock()
	n, p, err := nb.lookupLocked(noteID, paragraphID)
	if err != nil {
		nb.mu.Unlock()
		return err
	}
	if p.status == StatusRunning {
		nb.mu.Unlock()
		return ErrParagraphRunning
	}
	p.status, p.err = StatusRunning, nil
	group := Directive(p.text, nb.opts.DefaultGroup)
	nb.wg.Add(1)
	nb.mu.Unlock()

	go func() {
		defer nb.wg.Done()
		log := nb.log.With("note", n.id, "paragraph", p.id, "project", n.project.Name, "group", group)
		log.Debug("paragraph running")
		err := nb.launcher.Acquire(n.ctx, n.project, group, nb.opts.StartGrace)

		nb.mu.Lock()
		defer nb.mu.Unlock()
		switch {
		case err == nil:
			p.status = StatusFinished
		case n.ctx.Err() != nil:
			p.status, p.err = StatusAborted, err
		default:
			p.status, p.err = StatusError, err
		}
		if err != nil {
			log.Warn("paragraph failed", "status", p.status, "error", err)
		}
	}()
	return nil
}

func (nb *Notebook) IsTerminated(noteID, paragraphID string) (bool, error) {
	info, err := nb.Paragraph(noteID, paragraphID)
	if err != nil {
		return false, err
	}
	return info.Status.Terminated(), nil
}

func (nb *Notebook) Paragraph(noteID, paragraphID string) (ParagraphInfo, error) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	_, p, err := nb.lookupLocked(noteID, paragraphID)
	if err != nil {
		return ParagraphInfo{}, err
	}
	return ParagraphInfo{ID: p.id, Text: p.text, Status: p.status, Err: p.err}, nil
}

// RemoveNote aborts running paragraphs of the note and forgets it.
func (nb *Notebook) RemoveNote(_ context.Context, noteID string) error {
	nb.mu.Lock()
	n, ok := nb.notes[noteID]
	delete(nb.notes, noteID)
	nb.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	n.cancel()
	return nil
}

// Len returns the number of live notes.
func (nb *Notebook) Len() int {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return len(nb.notes)
}

// Close aborts every note and waits for running paragraphs.
func (nb *Notebook) Close() {
	nb.mu.Lock()
	nb.closed = true
	for id, n := range nb.notes {
		n.cancel()
		delete(nb.notes, id)
	}
	nb.mu.Unlock()
	nb.wg.Wait()
}

func (nb *Notebook) lookupLocked(noteID, paragraphID string) (*note, *paragraph, error) {
	n, ok := nb.notes[noteID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoteNotFound, noteID)
	}
	p, ok := n.paras[paragraphID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrParagraphNotFound, paragraphID)
	}
	return n, p, nil
}
