// Package server exposes interpreter settings and lifecycle operations over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/lifecycle"
	"github.com/loykin/interpctl/internal/logger"
	"github.com/loykin/interpctl/internal/project"
)

// DefaultBasePath is where the interpreter API is mounted unless configured otherwise.
const DefaultBasePath = "/api/interpreter"

// Projects resolves the project a request acts on.
type Projects interface {
	FromRequest(r *http.Request) (project.Project, error)
}

// Settings is the interpreter configuration surface.
type Settings interface {
	List(ctx context.Context, projectID int64) ([]interpreter.Setting, error)
	Add(ctx context.Context, projectID int64, name, group string, opt interpreter.Option, props map[string]string) (interpreter.Setting, error)
	SetPropertiesAndRestart(ctx context.Context, projectID int64, id string, opt interpreter.Option, props map[string]string) (interpreter.Setting, error)
	Remove(ctx context.Context, projectID int64, id string) error
	Registry() *interpreter.Registry
}

// Lifecycle starts, stops and inspects interpreter processes.
type Lifecycle interface {
	Start(ctx context.Context, projectID int64, settingID string) (lifecycle.Status, error)
	Stop(ctx context.Context, projectID int64, settingID string) (lifecycle.Status, error)
	Restart(ctx context.Context, projectID int64, settingID string) (interpreter.Setting, error)
	ListStatuses(ctx context.Context, projectID int64) (map[string]lifecycle.Status, error)
}

// Router serves the interpreter API:
//
//	GET    {base}/setting                      settings of the cookie project
//	POST   {base}/setting                      create a setting
//	PUT    {base}/setting/:settingId           replace properties and restart
//	DELETE {base}/setting/:settingId           remove
//	PUT    {base}/setting/restart/:settingId   restart without waiting
//	GET    {base}                              registered interpreter types
//	GET    {base}/:projectId/start/:settingId  start and wait
//	GET    {base}/stop/:settingId              stop and wait
//	GET    {base}/interpretersWithStatus       running state per group
//
// plus GET /healthz and, when a metrics handler is set, GET /metrics.
type Router struct {
	projects  Projects
	settings  Settings
	lifecycle Lifecycle
	basePath  string
	metrics   http.Handler
	log       *slog.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithBasePath mounts the API under bp. Empty or "/" mounts it at the root.
func WithBasePath(bp string) Option { return func(r *Router) { r.basePath = sanitizeBase(bp) } }

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option { return func(r *Router) { r.metrics = h } }

// WithLogger sets the logger used for failed requests.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRouter(p Projects, s Settings, lc Lifecycle, opts ...Option) *Router {
	r := &Router{
		projects:  p,
		settings:  s,
		lifecycle: lc,
		basePath:  DefaultBasePath,
		log:       logger.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", func(c *gin.Context) { ok(c, "alive") })
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	api := g.Group(r.basePath)
	api.GET("/setting", r.listSettings)
	api.POST("/setting", r.createSetting)
	api.PUT("/setting/:settingId", r.updateSetting)
	api.DELETE("/setting/:settingId", r.removeSetting)
	api.PUT("/setting/restart/:settingId", r.restartSetting)
	api.GET("", r.listRegistered)
	api.GET("/:projectId/start/:settingId", r.start)
	api.GET("/stop/:settingId", r.stop)
	api.GET("/interpretersWithStatus", r.statuses)
	return g
}

// Options for the standalone HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration // 0 lets a start request wait for the full lifecycle timeout
	IdleTimeout  time.Duration
	TLS          *tls.Config // serve HTTPS when set
}

// NewServer binds opts.Addr and serves r in the background. A bind failure is returned
// instead of surfacing later in a log line. The returned server's Addr is the bound
// address; call Shutdown on it to stop serving.
func NewServer(opts Options, r *Router) (*http.Server, error) {
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		TLSConfig:         opts.TLS,
	}
	if err := Start(srv, r.log); err != nil {
		return nil, err
	}
	return srv, nil
}

// Start listens on srv.Addr and serves srv in the background, over TLS when
// srv.TLSConfig is set. srv.Addr is replaced by the bound address.
func Start(srv *http.Server, l *slog.Logger) error {
	if l == nil {
		l = logger.Discard()
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
		if srv.TLSConfig != nil {
			addr = ":https"
		}
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv.Addr = ln.Addr().String()
	go func() {
		var err error
		if srv.TLSConfig != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http server stopped", "addr", srv.Addr, "error", err)
		}
	}()
	return nil
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}
