package client

import "encoding/json"

// Option mirrors the interpreter option block. The daemon always forces Remote.
type Option struct {
	Remote bool `json:"remote"`
}

// Setting is a configured interpreter of a project.
type Setting struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Group      string            `json:"group"`
	Option     Option            `json:"option"`
	Properties map[string]string `json:"properties"`
}

// SettingRequest creates or updates a setting. Group is ignored on update.
type SettingRequest struct {
	Name       string            `json:"name,omitempty"`
	Group      string            `json:"group,omitempty"`
	Option     Option            `json:"option"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Property is a registered default of an interpreter type.
type Property struct {
	Default     string `json:"defaultValue"`
	Description string `json:"description"`
}

// Registered is an interpreter type known to the daemon.
type Registered struct {
	Group      string              `json:"group"`
	Name       string              `json:"name"`
	ClassName  string              `json:"className"`
	Properties map[string]Property `json:"properties"`
}

// Status is the observed state of a setting.
type Status struct {
	Setting    Setting `json:"interpreter"`
	NotRunning bool    `json:"notRunning"`
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}
