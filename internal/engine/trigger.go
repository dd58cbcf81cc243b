package engine

import (
	"context"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// Trigger is implemented by packages that can start a process on an
// external event rather than being invoked as an act (§4.10), e.g.
// event.manual and event.hook.
type Trigger interface {
	Package
	Fire(ctx context.Context, rt *Runtime, modelID string, params, payload map[string]any) (*domain.Process, error)
}

// Fire looks up modelID's declared `on[]` entry by id and invokes its
// bound package's Trigger.Fire, passing payload through untouched
// (§4.10).
func (rt *Runtime) Fire(ctx context.Context, modelID, triggerID string, payload map[string]any) (*domain.Process, error) {
	tree, ok := rt.Tree(modelID)
	if !ok {
		return nil, acterr.Model("model %q is not deployed", modelID)
	}

	var entry *domain.EventTrigger
	for _, e := range tree.Model.On {
		if e.ID == triggerID {
			entry = e
			break
		}
	}
	if entry == nil {
		return nil, acterr.Model("model %q declares no trigger %q", modelID, triggerID)
	}

	pkg, ok := rt.Registry.Lookup(entry.Uses)
	if !ok {
		return nil, acterr.Package("package %q not registered", entry.Uses)
	}
	trig, ok := pkg.(Trigger)
	if !ok {
		return nil, acterr.Package("package %q does not support event-triggered start", entry.Uses)
	}

	return trig.Fire(ctx, rt, modelID, entry.Params, payload)
}
