package lifecycle

import (
	"context"
	"fmt"

	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/project"
)

// Lister lists a project's interpreter settings.
type Lister interface {
	List(ctx context.Context, projectID int64) ([]interpreter.Setting, error)
}

// Aggregator reports the status of every interpreter setting of a project.
type Aggregator struct {
	settings Lister
	prober   Prober
}

func NewAggregator(settings Lister, prober Prober) *Aggregator {
	return &Aggregator{settings: settings, prober: prober}
}

// Statuses probes each setting once and keys the result by group. When two settings
// share a group the later one in list order wins.
func (a *Aggregator) Statuses(ctx context.Context, p project.Project) (map[string]Status, error) {
	list, err := a.settings.List(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list settings of project %s: %w", p.Name, err)
	}
	out := make(map[string]Status, len(list))
	for _, s := range list {
		out[s.Group] = Status{Setting: s, NotRunning: !a.prober.IsRunning(ctx, s.Group, p)}
	}
	return out, nil
}
