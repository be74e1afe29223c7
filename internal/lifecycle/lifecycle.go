// Package lifecycle starts, stops and restarts interpreter processes on behalf of a
// project and reports whether they are running.
//
// Nothing here stores interpreter state. A start runs a throwaway paragraph against the
// interpreter group, which forces the process into existence, and waits for it to
// finish. A stop asks the settings manager to restart the interpreter (which tears the
// process down) and waits until the liveness prober no longer sees it. Both waits poll
// at Config.PollInterval and give up with ErrTimeout.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/project"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrSettingNotFound = errors.New("interpreter setting not found")
	ErrRestartRejected = errors.New("interpreter restart rejected")
	ErrTimeout         = errors.New("lifecycle operation timed out")
)

const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultStartTimeout = 10 * time.Minute
	DefaultStopTimeout  = 2 * time.Minute
	DefaultGroup        = "spark"
)

// Status is the observed state of one interpreter setting. It is computed per request.
type Status struct {
	Setting    interpreter.Setting `json:"interpreter"`
	NotRunning bool                `json:"notRunning"`
}

// Projects resolves project ids.
type Projects interface {
	ByID(ctx context.Context, id int64) (project.Project, error)
}

// Settings is the interpreter configuration the controller needs.
type Settings interface {
	List(ctx context.Context, projectID int64) ([]interpreter.Setting, error)
	Get(ctx context.Context, projectID int64, id string) (interpreter.Setting, error)
	Restart(ctx context.Context, projectID int64, id string) (interpreter.Setting, error)
}

// Executor runs disposable notes.
type Executor interface {
	CreateNote(ctx context.Context, p project.Project) (string, error)
	AddParagraph(noteID string) (string, error)
	SetText(noteID, paragraphID, text string) error
	Run(noteID, paragraphID string) error
	IsTerminated(noteID, paragraphID string) (bool, error)
	RemoveNote(ctx context.Context, noteID string) error
}

// Prober tells whether the process of a project's interpreter group is alive.
type Prober interface {
	IsRunning(ctx context.Context, group string, p project.Project) bool
}

type Config struct {
	PollInterval time.Duration
	StartTimeout time.Duration
	StopTimeout  time.Duration
	DefaultGroup string
	LockDir      string // advisory lock files; empty keeps locking in-process
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.DefaultGroup == "" {
		c.DefaultGroup = DefaultGroup
	}
	return c
}

// ParagraphText is the text of the paragraph that forces group's process up.
// The default group needs no directive.
func ParagraphText(group, defaultGroup string) string {
	if group == defaultGroup {
		return " "
	}
	return "%" + group + " "
}
