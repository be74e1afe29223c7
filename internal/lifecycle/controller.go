package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/interpctl/internal/history"
	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/logger"
	"github.com/loykin/interpctl/internal/metrics"
	"github.com/loykin/interpctl/internal/project"
)

const (
	opStart   = "start"
	opStop    = "stop"
	opRestart = "restart"
)

// Deps are the collaborators of a Controller. History and Logger are optional.
type Deps struct {
	Projects Projects
	Settings Settings
	Executor Executor
	Prober   Prober
	History  history.Sink
	Logger   *slog.Logger
}

type Controller struct {
	d     Deps
	cfg   Config
	log   *slog.Logger
	locks *groupLocks
	agg   *Aggregator
}

func NewController(d Deps, cfg Config) (*Controller, error) {
	if d.Projects == nil || d.Settings == nil || d.Executor == nil || d.Prober == nil {
		return nil, errors.New("lifecycle: projects, settings, executor and prober are required")
	}
	l := d.Logger
	if l == nil {
		l = logger.Discard()
	}
	cfg = cfg.withDefaults()
	return &Controller{
		d:     d,
		cfg:   cfg,
		log:   l,
		locks: newGroupLocks(cfg.LockDir),
		agg:   NewAggregator(d.Settings, d.Prober),
	}, nil
}

func (c *Controller) Config() Config { return c.cfg }

// Start forces the interpreter process of the setting into existence and waits until
// the paragraph that did so has terminated.
func (c *Controller) Start(ctx context.Context, projectID int64, settingID string) (Status, error) {
	began := time.Now()
	p, s, err := c.resolve(ctx, projectID, settingID)
	if err != nil {
		c.observe(ctx, opStart, p, s, began, false, err)
		return Status{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	defer cancel()
	err = c.withLock(ctx, opStart, p, s, func() error { return c.runStartParagraph(ctx, p, s) })
	c.observe(ctx, opStart, p, s, began, err == nil, err)
	if err != nil {
		return Status{}, err
	}
	c.log.Info("interpreter started", "project", p.Name, "group", s.Group, "setting", s.ID, "elapsed", time.Since(began))
	return Status{Setting: s, NotRunning: false}, nil
}

func (c *Controller) runStartParagraph(ctx context.Context, p project.Project, s interpreter.Setting) error {
	ex := c.d.Executor
	noteID, err := ex.CreateNote(ctx, p)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	defer func() {
		if err := ex.RemoveNote(context.WithoutCancel(ctx), noteID); err != nil {
			c.log.Warn("remove note", "note", noteID, "error", err)
		}
	}()

	paraID, err := ex.AddParagraph(noteID)
	if err != nil {
		return fmt.Errorf("add paragraph: %w", err)
	}
	if err := ex.SetText(noteID, paraID, ParagraphText(s.Group, c.cfg.DefaultGroup)); err != nil {
		return fmt.Errorf("set paragraph text: %w", err)
	}
	if err := ex.Run(noteID, paraID); err != nil {
		return fmt.Errorf("run paragraph: %w", err)
	}
	return c.waitUntil(ctx, opStart, s, func() (bool, error) {
		return ex.IsTerminated(noteID, paraID)
	})
}

// Stop restarts the interpreter through the settings manager and waits until its
// process is no longer detected.
func (c *Controller) Stop(ctx context.Context, projectID int64, settingID string) (Status, error) {
	began := time.Now()
	p, s, err := c.resolve(ctx, projectID, settingID)
	if err != nil {
		c.observe(ctx, opStop, p, s, began, false, err)
		return Status{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.StopTimeout)
	defer cancel()
	err = c.withLock(ctx, opStop, p, s, func() error {
		if _, err := c.d.Settings.Restart(ctx, p.ID, s.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrRestartRejected, err)
		}
		return c.waitUntil(ctx, opStop, s, func() (bool, error) {
			return !c.d.Prober.IsRunning(ctx, s.Group, p), nil
		})
	})
	c.observe(ctx, opStop, p, s, began, false, err)
	if err != nil {
		return Status{}, err
	}
	c.log.Info("interpreter stopped", "project", p.Name, "group", s.Group, "setting", s.ID, "elapsed", time.Since(began))
	return Status{Setting: s, NotRunning: true}, nil
}

// Restart asks the settings manager to restart the interpreter and returns at once.
func (c *Controller) Restart(ctx context.Context, projectID int64, settingID string) (interpreter.Setting, error) {
	began := time.Now()
	p, s, err := c.resolve(ctx, projectID, settingID)
	if err != nil {
		c.observe(ctx, opRestart, p, s, began, false, err)
		return interpreter.Setting{}, err
	}
	var out interpreter.Setting
	err = c.withLock(ctx, opRestart, p, s, func() error {
		var rerr error
		out, rerr = c.d.Settings.Restart(ctx, p.ID, s.ID)
		return settingErr(rerr, s.ID)
	})
	c.observe(ctx, opRestart, p, s, began, false, err)
	if err != nil {
		return interpreter.Setting{}, err
	}
	return out, nil
}

// ListStatuses returns the status of every interpreter of the project keyed by group.
func (c *Controller) ListStatuses(ctx context.Context, projectID int64) (map[string]Status, error) {
	p, err := c.project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return c.agg.Statuses(ctx, p)
}

func (c *Controller) project(ctx context.Context, projectID int64) (project.Project, error) {
	p, err := c.d.Projects.ByID(ctx, projectID)
	if errors.Is(err, project.ErrNotFound) {
		return project.Project{}, fmt.Errorf("%w: %d", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return project.Project{}, fmt.Errorf("resolve project %d: %w", projectID, err)
	}
	return p, nil
}

func (c *Controller) resolve(ctx context.Context, projectID int64, settingID string) (project.Project, interpreter.Setting, error) {
	p, err := c.project(ctx, projectID)
	if err != nil {
		return project.Project{ID: projectID}, interpreter.Setting{ID: settingID}, err
	}
	s, err := c.d.Settings.Get(ctx, p.ID, settingID)
	if err != nil {
		return p, interpreter.Setting{ID: settingID}, settingErr(err, settingID)
	}
	return p, s, nil
}

func settingErr(err error, settingID string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, interpreter.ErrSettingNotFound) {
		return fmt.Errorf("%w: %s", ErrSettingNotFound, settingID)
	}
	return fmt.Errorf("setting %s: %w", settingID, err)
}

// withLock runs fn holding the (project, group) lock. Giving up on the lock because
// ctx ended counts as a timeout.
func (c *Controller) withLock(ctx context.Context, op string, p project.Project, s interpreter.Setting, fn func() error) error {
	unlock, err := c.locks.Lock(ctx, p.ID, s.Group)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: waiting for lock: %w", op, s.ID, ErrTimeout)
		}
		return fmt.Errorf("%s %s: lock: %w", op, s.ID, err)
	}
	defer unlock()
	return fn()
}

// waitUntil evaluates cond immediately and then every PollInterval until it holds or
// ctx ends.
func (c *Controller) waitUntil(ctx context.Context, op string, s interpreter.Setting, cond func() (bool, error)) error {
	t := time.NewTicker(c.cfg.PollInterval)
	defer t.Stop()
	for {
		ok, err := cond()
		if err != nil {
			return fmt.Errorf("%s %s: %w", op, s.ID, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s %s: %w", op, s.ID, ErrTimeout)
		case <-t.C:
		}
	}
}

func (c *Controller) observe(ctx context.Context, op string, p project.Project, s interpreter.Setting, began time.Time, running bool, err error) {
	elapsed := time.Since(began)
	evt := history.Event{
		Type:       history.EventType(op),
		OccurredAt: time.Now().UTC(),
		ProjectID:  p.ID,
		Project:    p.Name,
		SettingID:  s.ID,
		Group:      s.Group,
		Running:    running,
		Duration:   elapsed,
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrTimeout):
		result = "timeout"
		evt.Type = history.EventTimeout
		metrics.IncTimeout(op, s.Group)
		c.log.Warn("lifecycle operation timed out", "op", op, "project", p.Name, "group", s.Group, "setting", s.ID, "elapsed", elapsed)
	case err != nil:
		result = "error"
		evt.Type = history.EventError
		c.log.Error("lifecycle operation failed", "op", op, "project", p.Name, "group", s.Group, "setting", s.ID, "error", err)
	}
	if err != nil {
		evt.Err = err.Error()
	}
	metrics.ObserveOperation(op, s.Group, result, elapsed.Seconds())
	if c.d.History != nil {
		if herr := c.d.History.Send(context.WithoutCancel(ctx), evt); herr != nil {
			c.log.Warn("history send", "error", herr)
		}
	}
}
