// Package interpctl embeds the interpreter lifecycle daemon: settings storage, process
// launching, liveness probing and the HTTP API.
package interpctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/interpctl/internal/config"
	"github.com/loykin/interpctl/internal/detector"
	"github.com/loykin/interpctl/internal/history"
	hfactory "github.com/loykin/interpctl/internal/history/factory"
	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/lifecycle"
	"github.com/loykin/interpctl/internal/logger"
	"github.com/loykin/interpctl/internal/metrics"
	"github.com/loykin/interpctl/internal/notebook"
	"github.com/loykin/interpctl/internal/project"
	iapi "github.com/loykin/interpctl/internal/server"
	"github.com/loykin/interpctl/internal/store"
	sfactory "github.com/loykin/interpctl/internal/store/factory"
	tlsx "github.com/loykin/interpctl/internal/tls"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Project = project.Project

type Setting = interpreter.Setting

type Status = lifecycle.Status

var (
	ErrProjectNotFound = lifecycle.ErrProjectNotFound
	ErrSettingNotFound = lifecycle.ErrSettingNotFound
	ErrRestartRejected = lifecycle.ErrRestartRejected
	ErrTimeout         = lifecycle.ErrTimeout
)

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

func DefaultConfig() (*Config, error) { return cfg.Default() }

// Daemon owns every component built from a Config.
type Daemon struct {
	cfg       *Config
	log       *slog.Logger
	logCloser io.Closer

	store     store.Store
	settings  *interpreter.Manager
	notebook  *notebook.Notebook
	history   *history.Fanout
	lifecycle *lifecycle.Controller
	router    *iapi.Router

	servers []*http.Server
}

// New builds a daemon from c. Nothing listens until Serve is called.
func New(ctx context.Context, c *Config) (*Daemon, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	log, logCloser, err := logger.New(c.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	d := &Daemon{cfg: c, log: log, logCloser: logCloser}
	if err := d.build(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) build(ctx context.Context) error {
	c := d.cfg

	st, err := sfactory.NewFromDSN(c.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = st
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("store schema: %w", err)
	}

	reg, err := interpreter.NewRegistry(c.Interpreters)
	if err != nil {
		return fmt.Errorf("interpreter registry: %w", err)
	}

	var sinks []history.Sink
	if c.History.Enabled {
		for _, dsn := range c.History.Sinks {
			s, err := hfactory.NewSinkFromDSN(dsn)
			if err != nil {
				return fmt.Errorf("history sink: %w", err)
			}
			sinks = append(sinks, s)
		}
	}
	d.history = history.NewFanout(d.log, sinks...)

	if c.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	paths := project.Paths{ProjectsDir: c.Runtime.ProjectsDir, RunDir: c.Runtime.RunDir}
	procLog := logger.Config{File: c.Log.File}
	procLog.File.Path = ""
	procLog.File.Dir = c.Runtime.ProcessLogDir
	d.settings = interpreter.NewManager(st, reg, interpreter.Options{
		Paths:    paths,
		Log:      procLog,
		StopWait: c.Runtime.StopWait,
		Env:      c.GlobalEnv,
	}, d.log.With("component", "interpreter"))

	d.notebook = notebook.New(d.settings, notebook.Options{
		DefaultGroup: c.Runtime.DefaultGroup,
		StartGrace:   c.Runtime.StartGrace,
	}, d.log.With("component", "notebook"))

	probe := detector.PIDProbe{Command: c.Runtime.ProbeCommand, Logger: d.log}
	prober := detector.NewProber(paths, probe, d.log.With("component", "prober"))

	projects := project.NewResolver(st)
	d.lifecycle, err = lifecycle.NewController(lifecycle.Deps{
		Projects: projects,
		Settings: d.settings,
		Executor: d.notebook,
		Prober:   prober,
		History:  d.history,
		Logger:   d.log.With("component", "lifecycle"),
	}, lifecycle.Config{
		PollInterval: c.Lifecycle.PollInterval,
		StartTimeout: c.Lifecycle.StartTimeout,
		StopTimeout:  c.Lifecycle.StopTimeout,
		DefaultGroup: c.Runtime.DefaultGroup,
		LockDir:      c.Runtime.LockDir,
	})
	if err != nil {
		return err
	}

	opts := []iapi.Option{iapi.WithBasePath(c.Server.BasePath), iapi.WithLogger(d.log.With("component", "http"))}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		opts = append(opts, iapi.WithMetrics(metrics.Handler()))
	}
	d.router = iapi.NewRouter(projects, d.settings, d.lifecycle, opts...)
	return nil
}

// Logger returns the daemon logger.
func (d *Daemon) Logger() *slog.Logger { return d.log }

// Handler returns the HTTP API for mounting into another server.
func (d *Daemon) Handler() http.Handler { return d.router.Handler() }

// Serve starts the API listener and, when configured, a separate metrics listener.
// Both run in the background until Close.
func (d *Daemon) Serve() error {
	c := d.cfg
	tlsCfg, err := tlsx.Setup(c.Server.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	api, err := iapi.NewServer(iapi.Options{
		Addr:         c.Server.Listen,
		ReadTimeout:  c.Server.ReadTimeout,
		WriteTimeout: c.Server.WriteTimeout,
		IdleTimeout:  c.Server.IdleTimeout,
		TLS:          tlsCfg,
	}, d.router)
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	d.servers = append(d.servers, api)
	d.log.Info("api listening", "addr", api.Addr, "base_path", c.Server.BasePath, "tls", tlsCfg != nil)

	if c.Metrics.Enabled && c.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{
			Addr:              c.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := iapi.Start(srv, d.log); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		d.servers = append(d.servers, srv)
		d.log.Info("metrics listening", "addr", srv.Addr)
	}
	return nil
}

// Addr returns the bound API address after Serve, or "" before.
func (d *Daemon) Addr() string {
	if len(d.servers) == 0 {
		return ""
	}
	return d.servers[0].Addr
}

func (d *Daemon) CreateProject(ctx context.Context, name string) (Project, error) {
	if err := project.CheckName(name); err != nil {
		return Project{}, err
	}
	return d.store.CreateProject(ctx, name)
}

func (d *Daemon) Projects(ctx context.Context) ([]Project, error) { return d.store.ListProjects(ctx) }

func (d *Daemon) Settings(ctx context.Context, projectID int64) ([]Setting, error) {
	return d.settings.List(ctx, projectID)
}

// AddSetting creates a setting of a registered group.
func (d *Daemon) AddSetting(ctx context.Context, projectID int64, name, group string, props map[string]string) (Setting, error) {
	return d.settings.Add(ctx, projectID, name, group, interpreter.Option{Remote: true}, props)
}

// Start launches the setting's interpreter and waits until it came up.
func (d *Daemon) Start(ctx context.Context, projectID int64, settingID string) (Status, error) {
	return d.lifecycle.Start(ctx, projectID, settingID)
}

// Stop tears the interpreter down and waits until it is gone.
func (d *Daemon) Stop(ctx context.Context, projectID int64, settingID string) (Status, error) {
	return d.lifecycle.Stop(ctx, projectID, settingID)
}

func (d *Daemon) Restart(ctx context.Context, projectID int64, settingID string) (Setting, error) {
	return d.lifecycle.Restart(ctx, projectID, settingID)
}

func (d *Daemon) Statuses(ctx context.Context, projectID int64) (map[string]Status, error) {
	return d.lifecycle.ListStatuses(ctx, projectID)
}

// Close stops listeners and interpreter processes, then releases storage.
func (d *Daemon) Close() error {
	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range d.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.servers = nil
	if d.notebook != nil {
		d.notebook.Close()
	}
	if d.settings != nil {
		d.settings.Shutdown()
	}
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.logCloser != nil {
		if err := d.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
