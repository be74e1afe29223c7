// Package history exports interpreter lifecycle events to external systems.
package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventRestart EventType = "restart"
	EventTimeout EventType = "timeout"
	EventError   EventType = "error"
)

// Event is one lifecycle operation on an interpreter setting.
type Event struct {
	Type       EventType     `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	ProjectID  int64         `json:"project_id"`
	Project    string        `json:"project"`
	SettingID  string        `json:"setting_id"`
	Group      string        `json:"group"`
	Running    bool          `json:"running"`
	Duration   time.Duration `json:"duration_ns"`
	Err        string        `json:"error,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout sends every event to all sinks. Sink failures are logged, never returned.
type Fanout struct {
	sinks []Sink
	log   *slog.Logger
}

func NewFanout(l *slog.Logger, sinks ...Sink) *Fanout {
	if l == nil {
		l = slog.Default()
	}
	return &Fanout{sinks: append([]Sink(nil), sinks...), log: l}
}

func (f *Fanout) Send(ctx context.Context, e Event) error {
	if f == nil {
		return nil
	}
	for _, s := range f.sinks {
		if err := s.Send(ctx, e); err != nil {
			f.log.Warn("history sink failed", "type", e.Type, "setting", e.SettingID, "error", err)
		}
	}
	return nil
}

// Close closes every sink implementing io.Closer.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}
