package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/interpctl/internal/history"
)

// FailureSuffix is appended to the index name for timeout and error events.
const FailureSuffix = "-failures"

// Sink indexes lifecycle events into OpenSearch (or Elasticsearch) over its REST API.
//
// Successful operations go to baseURL/index/_doc, timeouts and errors to
// baseURL/index-failures/_doc. Documents are routed by project name so one project's
// history lands on one shard.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

type document struct {
	Timestamp  time.Time         `json:"@timestamp"`
	Type       history.EventType `json:"type"`
	Outcome    string            `json:"outcome"`
	ProjectID  int64             `json:"project_id"`
	Project    string            `json:"project"`
	SettingID  string            `json:"setting_id"`
	Group      string            `json:"group"`
	Running    bool              `json:"running"`
	DurationMS int64             `json:"duration_ms"`
	Err        string            `json:"error,omitempty"`
}

func failed(t history.EventType) bool {
	return t == history.EventTimeout || t == history.EventError
}

// IndexFor returns the index an event is written to.
func (s *Sink) IndexFor(e history.Event) string {
	if failed(e.Type) {
		return s.index + FailureSuffix
	}
	return s.index
}

func toDocument(e history.Event) document {
	outcome := "ok"
	if failed(e.Type) {
		outcome = string(e.Type)
	}
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return document{
		Timestamp:  ts,
		Type:       e.Type,
		Outcome:    outcome,
		ProjectID:  e.ProjectID,
		Project:    e.Project,
		SettingID:  e.SettingID,
		Group:      e.Group,
		Running:    e.Running,
		DurationMS: e.Duration.Milliseconds(),
		Err:        e.Err,
	}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, url.PathEscape(s.IndexFor(e)))
	if e.Project != "" {
		u += "?routing=" + url.QueryEscape(e.Project)
	}
	b, err := json.Marshal(toDocument(e))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
