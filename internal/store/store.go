package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/loykin/interpctl/internal/project"
)

// ErrNotFound is returned when a setting does not exist. Missing projects are reported
// with project.ErrNotFound so the resolver can hand them out unchanged.
var ErrNotFound = errors.New("record not found")

// SettingRecord is the persisted form of an interpreter setting.
// ID is unique across projects; ProjectID scopes every lookup.
type SettingRecord struct {
	ID         string
	ProjectID  int64
	Name       string
	Group      string
	Remote     bool
	Properties map[string]string
	UpdatedAt  time.Time
}

// Store persists projects and their interpreter settings.
type Store interface {
	EnsureSchema(ctx context.Context) error

	CreateProject(ctx context.Context, name string) (project.Project, error)
	GetProject(ctx context.Context, id int64) (project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)

	ListSettings(ctx context.Context, projectID int64) ([]SettingRecord, error)
	GetSetting(ctx context.Context, projectID int64, id string) (SettingRecord, error)
	UpsertSetting(ctx context.Context, rec SettingRecord) error
	DeleteSetting(ctx context.Context, projectID int64, id string) error

	Close() error
}

// EncodeProperties serializes a property bag for a TEXT column.
func EncodeProperties(p map[string]string) (string, error) {
	if p == nil {
		p = map[string]string{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeProperties is the inverse of EncodeProperties. Empty input yields an empty map.
func DecodeProperties(s string) (map[string]string, error) {
	out := map[string]string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
