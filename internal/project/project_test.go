package project

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLookup map[int64]Project

func (m mapLookup) GetProject(_ context.Context, id int64) (Project, error) {
	p, ok := m[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func TestFromRequest(t *testing.T) {
	r := NewResolver(mapLookup{7: {ID: 7, Name: "demo"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "other", Value: "1"})
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "7"})
	p, err := r.FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)

	cases := map[string]*http.Cookie{
		"missing":     nil,
		"non-numeric": {Name: CookieName, Value: "seven"},
		"unknown":     {Name: CookieName, Value: "8"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if c != nil {
				req.AddCookie(c)
			}
			_, err := r.FromRequest(req)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRunDirFor(t *testing.T) {
	root := t.TempDir()

	dir, err := Paths{ProjectsDir: root}.RunDirFor("demo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "demo", "run"), dir)

	dir, err = Paths{ProjectsDir: root, RunDir: "/var/run/interp"}.RunDirFor("demo")
	require.NoError(t, err)
	assert.Equal(t, "/var/run/interp/demo", dir)

	dir, err = Paths{ProjectsDir: root, RunDir: "file:///var/run/interp"}.RunDirFor("demo")
	require.NoError(t, err)
	assert.Equal(t, "/var/run/interp/demo", dir)

	dir, err = Paths{ProjectsDir: "projects", RunDir: "pids"}.RunDirFor("demo")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir), "relative dirs must be made absolute: %s", dir)

	_, err = Paths{ProjectsDir: root, RunDir: "hdfs://nn/run"}.RunDirFor("demo")
	assert.Error(t, err)
	_, err = Paths{ProjectsDir: root}.RunDirFor("../escape")
	assert.Error(t, err)
	_, err = Paths{ProjectsDir: root}.RunDirFor("")
	assert.Error(t, err)
}
