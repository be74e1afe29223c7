package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, code int, status, msg string, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "message": msg, "body": body})
}

func newDaemon(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		ck, err := r.Cookie(ProjectCookie)
		v := "-"
		if err == nil {
			v = ck.Value
		}
		seen = append(seen, r.Method+" "+r.URL.Path+" project="+v)
	}
	setting := Setting{ID: "s1", Name: "py", Group: "python", Option: Option{Remote: true}}
	mux.HandleFunc("GET /api/interpreter", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeEnvelope(w, 200, "OK", "", map[string]Registered{"python.python": {Group: "python", Name: "python"}})
	})
	mux.HandleFunc("GET /api/interpreter/setting", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeEnvelope(w, 200, "OK", "", []Setting{setting})
	})
	mux.HandleFunc("POST /api/interpreter/setting", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var req SettingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Group == "" {
			writeEnvelope(w, 400, "BAD_REQUEST", "group required", nil)
			return
		}
		writeEnvelope(w, 201, "CREATED", "", Setting{ID: "s2", Name: req.Name, Group: req.Group, Option: Option{Remote: true}})
	})
	mux.HandleFunc("PUT /api/interpreter/setting/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.PathValue("id") != "s1" {
			writeEnvelope(w, 404, "NOT_FOUND", "interpreter setting not found", nil)
			return
		}
		var req SettingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		s := setting
		s.Properties = req.Properties
		writeEnvelope(w, 200, "OK", "", s)
	})
	mux.HandleFunc("DELETE /api/interpreter/setting/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeEnvelope(w, 200, "OK", "", nil)
	})
	mux.HandleFunc("PUT /api/interpreter/setting/restart/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeEnvelope(w, 200, "OK", "", setting)
	})
	mux.HandleFunc("GET /api/interpreter/{project}/start/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.PathValue("id") == "slow" {
			writeEnvelope(w, 504, "GATEWAY_TIMEOUT", "lifecycle operation timed out", nil)
			return
		}
		writeEnvelope(w, 200, "OK", "", Status{Setting: setting})
	})
	mux.HandleFunc("GET /api/interpreter/stop/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeEnvelope(w, 200, "OK", "", Status{Setting: setting, NotRunning: true})
	})
	mux.HandleFunc("GET /api/interpreter/interpretersWithStatus", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeEnvelope(w, 200, "OK", "", map[string]Status{"python": {Setting: setting, NotRunning: true}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClientRoundTrips(t *testing.T) {
	srv, seen := newDaemon(t)
	c := New(Config{BaseURL: srv.URL + "/api/interpreter/", ProjectID: 7})
	ctx := context.Background()

	assert.True(t, c.IsReachable(ctx))

	reg, err := c.Registered(ctx)
	require.NoError(t, err)
	assert.Contains(t, reg, "python.python")

	list, err := c.Settings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Option.Remote)

	created, err := c.CreateSetting(ctx, SettingRequest{Name: "py2", Group: "python"})
	require.NoError(t, err)
	assert.Equal(t, "s2", created.ID)

	updated, err := c.UpdateSetting(ctx, "s1", SettingRequest{Properties: map[string]string{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, "v", updated.Properties["k"])

	_, err = c.RestartSetting(ctx, "s1")
	require.NoError(t, err)

	st, err := c.Start(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, st.NotRunning)

	st, err = c.Stop(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, st.NotRunning)

	all, err := c.Statuses(ctx)
	require.NoError(t, err)
	assert.True(t, all["python"].NotRunning)

	require.NoError(t, c.RemoveSetting(ctx, "s1"))

	assert.Contains(t, *seen, "GET /api/interpreter/7/start/s1 project=7")
	assert.Contains(t, *seen, "GET /api/interpreter/stop/s1 project=7")
	assert.Contains(t, *seen, "DELETE /api/interpreter/setting/s1 project=7")
}

func TestClientErrors(t *testing.T) {
	srv, _ := newDaemon(t)
	c := New(Config{BaseURL: srv.URL + "/api/interpreter", ProjectID: 1})
	ctx := context.Background()

	_, err := c.UpdateSetting(ctx, "missing", SettingRequest{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = c.Start(ctx, "slow")
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "lifecycle operation timed out", ae.Message)

	_, err = c.CreateSetting(ctx, SettingRequest{Name: "x"})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Code)
	assert.Equal(t, "BAD_REQUEST", ae.Status)

	// unknown route: plain-text 404 from the mux
	c2 := New(Config{BaseURL: srv.URL + "/nowhere"})
	assert.False(t, c2.IsReachable(ctx))

	c3 := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err = c3.Settings(ctx)
	assert.Error(t, err)
	assert.False(t, IsNotFound(err))
}
