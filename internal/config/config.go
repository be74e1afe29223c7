// Package config loads the interpctl daemon configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/logger"
	tlsx "github.com/loykin/interpctl/internal/tls"
)

// EnvPrefix prefixes environment overrides: INTERPCTL_SERVER_LISTEN overrides server.listen.
const EnvPrefix = "INTERPCTL"

type Config struct {
	Server       ServerConfig                        `mapstructure:"server"`
	Store        StoreConfig                         `mapstructure:"store"`
	History      HistoryConfig                       `mapstructure:"history"`
	Runtime      RuntimeConfig                       `mapstructure:"runtime"`
	Lifecycle    LifecycleConfig                     `mapstructure:"lifecycle"`
	Log          logger.Config                       `mapstructure:"log"`
	Metrics      MetricsConfig                       `mapstructure:"metrics"`
	Interpreters []interpreter.RegisteredInterpreter `mapstructure:"interpreters"`

	// Env and EnvFiles feed every interpreter process; later entries win.
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`

	// GlobalEnv is EnvFiles then Env merged into KEY=VALUE pairs.
	GlobalEnv []string `mapstructure:"-"`
}

type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	BasePath     string        `mapstructure:"base_path"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 0 disables; must outlast lifecycle.start_timeout otherwise
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          tlsx.Config   `mapstructure:"tls"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type HistoryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Sinks   []string `mapstructure:"sinks"` // DSNs, see history/factory
}

type RuntimeConfig struct {
	ProjectsDir   string        `mapstructure:"projects_dir"`
	RunDir        string        `mapstructure:"run_dir"`
	LockDir       string        `mapstructure:"lock_dir"`
	DefaultGroup  string        `mapstructure:"default_group"`
	ProbeCommand  []string      `mapstructure:"probe_command"`
	StartGrace    time.Duration `mapstructure:"start_grace"`
	StopWait      time.Duration `mapstructure:"stop_wait"`
	ProcessLogDir string        `mapstructure:"process_log_dir"`
}

type LifecycleConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"` // separate listener; empty serves /metrics on the API server
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "/api/interpreter")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.tls.enabled", false)

	v.SetDefault("store.dsn", "sqlite://interpctl.db")

	v.SetDefault("history.enabled", false)

	v.SetDefault("runtime.projects_dir", "projects")
	v.SetDefault("runtime.run_dir", "run")
	v.SetDefault("runtime.lock_dir", "locks")
	v.SetDefault("runtime.default_group", "spark")
	v.SetDefault("runtime.probe_command", []string{"kill", "-0"})
	v.SetDefault("runtime.start_grace", "2s")
	v.SetDefault("runtime.stop_wait", "3s")

	v.SetDefault("lifecycle.poll_interval", "250ms")
	v.SetDefault("lifecycle.start_timeout", "10m")
	v.SetDefault("lifecycle.stop_timeout", "2m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.enabled", false)
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return load("")
}

// LoadConfig reads path (TOML), applies defaults and INTERPCTL_* overrides, and
// resolves relative directories against the directory of the file.
func LoadConfig(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path is empty")
	}
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	base := "."
	if path != "" {
		base = filepath.Dir(path)
	}
	c.Runtime.ProjectsDir = resolve(base, c.Runtime.ProjectsDir)
	c.Runtime.LockDir = resolve(base, c.Runtime.LockDir)
	c.Runtime.ProcessLogDir = resolve(base, c.Runtime.ProcessLogDir)
	c.Server.TLS.Dir = resolve(base, c.Server.TLS.Dir)
	c.Server.TLS.CertFile = resolve(base, c.Server.TLS.CertFile)
	c.Server.TLS.KeyFile = resolve(base, c.Server.TLS.KeyFile)
	for i, f := range c.EnvFiles {
		c.EnvFiles[i] = resolve(base, f)
	}

	env, err := mergeEnv(c.EnvFiles, c.Env)
	if err != nil {
		return nil, err
	}
	c.GlobalEnv = env

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Lifecycle.PollInterval <= 0 {
		return errors.New("lifecycle.poll_interval must be positive")
	}
	if c.Lifecycle.StartTimeout <= 0 || c.Lifecycle.StopTimeout <= 0 {
		return errors.New("lifecycle timeouts must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < c.Lifecycle.StartTimeout {
		return fmt.Errorf("server.write_timeout (%s) is shorter than lifecycle.start_timeout (%s)",
			c.Server.WriteTimeout, c.Lifecycle.StartTimeout)
	}
	if strings.TrimSpace(c.Runtime.DefaultGroup) == "" {
		return errors.New("runtime.default_group is required")
	}
	if len(c.Runtime.ProbeCommand) == 0 {
		return errors.New("runtime.probe_command is required")
	}
	if c.History.Enabled && len(c.History.Sinks) == 0 {
		return errors.New("history.enabled requires at least one sink")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func mergeEnv(files, env []string) ([]string, error) {
	m := make(map[string]string)
	var order []string
	set := func(k, v string) {
		if _, ok := m[k]; !ok {
			order = append(order, k)
		}
		m[k] = v
	}
	for _, f := range files {
		pairs, err := loadEnvFile(f)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", f, err)
		}
		for _, kv := range pairs {
			set(kv[0], kv[1])
		}
	}
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			set(kv[:i], kv[i+1:])
		}
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes).
// Lines starting with # are ignored. Pairs are returned in file order.
func loadEnvFile(path string) ([][2]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			out = append(out, [2]string{strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])})
		}
	}
	return out, nil
}
