package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/interpctl/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var (
		gotMethod  string
		gotPath    string
		gotRouting string
		gotBody    []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotRouting = r.URL.Query().Get("routing")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "interp-history")
	e := history.Event{
		Type: history.EventStop, OccurredAt: time.Now().UTC(), ProjectID: 2, Project: "beta",
		SettingID: "s-9", Group: "python", Duration: 300 * time.Millisecond,
	}
	require.NoError(t, sink.Send(context.Background(), e))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/interp-history/_doc", gotPath)
	assert.Equal(t, "beta", gotRouting)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "stop", decoded["type"])
	assert.Equal(t, "ok", decoded["outcome"])
	assert.EqualValues(t, 300, decoded["duration_ms"])
	assert.Contains(t, decoded, "@timestamp")
	assert.Equal(t, "s-9", decoded["setting_id"])
	assert.Equal(t, "python", decoded["group"])
	assert.NotContains(t, decoded, "error")
}

func TestOpenSearchSink_FailuresIndex(t *testing.T) {
	paths := make(chan string, 2)
	bodies := make(chan map[string]any, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]any
		_ = json.NewDecoder(r.Body).Decode(&doc)
		paths <- r.URL.Path
		bodies <- doc
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := New(server.URL, "interp")
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventTimeout, Err: "lifecycle operation timed out"}))
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventError, Err: "boom"}))

	for _, want := range []string{"timeout", "error"} {
		assert.Equal(t, "/interp-failures/_doc", <-paths)
		doc := <-bodies
		assert.Equal(t, want, doc["outcome"])
		assert.NotEmpty(t, doc["error"])
	}
	assert.Equal(t, "interp", sink.IndexFor(history.Event{Type: history.EventRestart}))
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventStart})
	assert.ErrorContains(t, err, "status 400")
	assert.ErrorContains(t, err, "mapper_parsing_exception")
}

func TestOpenSearchSink_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, New(server.URL, "idx").Send(ctx, history.Event{}))
}
