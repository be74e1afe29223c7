// Package interpreter holds interpreter settings, the registered interpreter types and
// the manager that persists settings and launches their processes.
package interpreter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loykin/interpctl/internal/store"
)

var (
	ErrSettingNotFound = errors.New("interpreter setting not found")
	ErrUnknownGroup    = errors.New("unknown interpreter group")
	ErrNoCommand       = errors.New("interpreter group has no command")
)

type Option struct {
	Remote bool `json:"remote"`
}

// Setting is one configured interpreter of a project.
type Setting struct {
	ID         string            `json:"id"`
	ProjectID  int64             `json:"-"`
	Name       string            `json:"name"`
	Group      string            `json:"group"`
	Option     Option            `json:"option"`
	Properties map[string]string `json:"properties"`
	UpdatedAt  time.Time         `json:"-"`
}

func (s Setting) String() string { return fmt.Sprintf("%s(%s/%s)", s.ID, s.Group, s.Name) }

func fromRecord(r store.SettingRecord) Setting {
	return Setting{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		Name:       r.Name,
		Group:      r.Group,
		Option:     Option{Remote: r.Remote},
		Properties: r.Properties,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (s Setting) record() store.SettingRecord {
	return store.SettingRecord{
		ID:         s.ID,
		ProjectID:  s.ProjectID,
		Name:       s.Name,
		Group:      s.Group,
		Remote:     s.Option.Remote,
		Properties: s.Properties,
		UpdatedAt:  s.UpdatedAt,
	}
}

type Property struct {
	Default     string `json:"defaultValue" mapstructure:"default"`
	Description string `json:"description" mapstructure:"description"`
}

// RegisteredInterpreter is an interpreter type known to the daemon.
type RegisteredInterpreter struct {
	Group      string              `json:"group" mapstructure:"group"`
	Name       string              `json:"name" mapstructure:"name"`
	ClassName  string              `json:"className" mapstructure:"class_name"`
	Command    string              `json:"-" mapstructure:"command"`
	Properties map[string]Property `json:"properties" mapstructure:"properties"`
}

// Key is the registry key, "group.name".
func (r RegisteredInterpreter) Key() string { return r.Group + "." + r.Name }

// Registry is an immutable snapshot of the registered interpreter types.
type Registry struct {
	byKey   map[string]RegisteredInterpreter
	byGroup map[string]RegisteredInterpreter
}

// NewRegistry validates list and snapshots it. For groups with several entries the one
// named after the group wins, otherwise the first listed.
func NewRegistry(list []RegisteredInterpreter) (*Registry, error) {
	r := &Registry{
		byKey:   make(map[string]RegisteredInterpreter, len(list)),
		byGroup: make(map[string]RegisteredInterpreter, len(list)),
	}
	for _, it := range list {
		it.Group = strings.TrimSpace(it.Group)
		if it.Group == "" {
			return nil, errors.New("registered interpreter without group")
		}
		if it.Name == "" {
			it.Name = it.Group
		}
		if _, dup := r.byKey[it.Key()]; dup {
			return nil, fmt.Errorf("duplicate registered interpreter %s", it.Key())
		}
		it.Properties = copyProps(it.Properties)
		r.byKey[it.Key()] = it
		if cur, ok := r.byGroup[it.Group]; !ok || (cur.Name != cur.Group && it.Name == it.Group) {
			r.byGroup[it.Group] = it
		}
	}
	return r, nil
}

// All returns a copy keyed by "group.name".
func (r *Registry) All() map[string]RegisteredInterpreter {
	out := make(map[string]RegisteredInterpreter, len(r.byKey))
	for k, v := range r.byKey {
		v.Properties = copyProps(v.Properties)
		out[k] = v
	}
	return out
}

func (r *Registry) ByGroup(group string) (RegisteredInterpreter, bool) {
	it, ok := r.byGroup[group]
	if ok {
		it.Properties = copyProps(it.Properties)
	}
	return it, ok
}

// Groups returns the known group names, sorted.
func (r *Registry) Groups() []string {
	out := make([]string, 0, len(r.byGroup))
	for g := range r.byGroup {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

func copyProps(in map[string]Property) map[string]Property {
	out := make(map[string]Property, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
