package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/interpctl"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "interpctl.toml")
	body := fmt.Sprintf(`
[store]
dsn = "sqlite://%s"

[runtime]
projects_dir = "projects"
lock_dir = "locks"
start_grace = "100ms"

[lifecycle]
poll_interval = "20ms"
start_timeout = "10s"
stop_timeout = "10s"

[[interpreters]]
group = "python"
name = "python"
command = "sleep 30"
`, filepath.Join(dir, "interpctl.db"))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "interpctl")
	for _, sub := range []string{"serve", "project", "setting", "start", "stop", "restart", "status", "types"} {
		assert.Contains(t, out, sub)
	}
}

func TestParseProps(t *testing.T) {
	m, err := parseProps([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, m)

	_, err = parseProps([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseProps([]string{"=1"})
	assert.Error(t, err)
}

func TestProjectCommands(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "project", "add", "analytics")
	require.NoError(t, err)
	var p interpctl.Project
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "analytics", p.Name)
	assert.NotZero(t, p.ID)

	_, err = run(t, "--config", cfg, "project", "add", "../bad")
	assert.Error(t, err)

	out, err = run(t, "--config", cfg, "project", "list")
	require.NoError(t, err)
	var ps []interpctl.Project
	require.NoError(t, json.Unmarshal([]byte(out), &ps))
	require.Len(t, ps, 1)
	assert.Equal(t, "analytics", ps[0].Name)
}

func TestServeRejectsMissingConfig(t *testing.T) {
	_, err := run(t, "serve", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestClientCommandsAgainstDaemon(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires kill(1)")
	}
	cfgPath := writeConfig(t)
	cfg, err := interpctl.LoadConfig(cfgPath)
	require.NoError(t, err)
	ctx := context.Background()
	d, err := interpctl.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	p, err := d.CreateProject(ctx, "alpha")
	require.NoError(t, err)

	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	api := []string{"--api-url", srv.URL + "/api/interpreter", "--api-timeout", (30 * time.Second).String(),
		"--project", fmt.Sprint(p.ID)}
	cli := func(args ...string) string {
		t.Helper()
		out, err := run(t, append(append([]string{}, api...), args...)...)
		require.NoError(t, err, out)
		return out
	}

	out := cli("types")
	assert.Contains(t, out, "python.python")

	out = cli("setting", "add", "--group", "python", "--prop", "mode=fast")
	var s struct {
		ID         string            `json:"id"`
		Properties map[string]string `json:"properties"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "fast", s.Properties["mode"])

	out = cli("setting", "update", s.ID, "--prop", "mode=slow")
	assert.Contains(t, out, "slow")

	out = cli("start", s.ID)
	assert.Contains(t, out, `"notRunning": false`)

	out = cli("status")
	assert.Contains(t, out, `"python"`)

	out = cli("stop", s.ID)
	assert.Contains(t, out, `"notRunning": true`)

	cli("restart", s.ID)
	cli("setting", "rm", s.ID)
	out = cli("setting", "list")
	assert.Equal(t, "[]", string(bytes.TrimSpace([]byte(out))))

	_, err = run(t, append(append([]string{}, api...), "stop", "missing")...)
	assert.Error(t, err)
}
