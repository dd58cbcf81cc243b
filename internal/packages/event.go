package packages

import (
	"context"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
	"github.com/flowkit/flowcore/internal/engine"
)

// EventManual is event.manual: the plain Event-Triggered Start binding
// (§4.10). Firing it starts a process for the bound model with
// payload merged over the trigger's declared params as the initial
// process env.
type EventManual struct{}

func NewEventManual() *EventManual { return &EventManual{} }

func (EventManual) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "event.manual", Desc: "starts a process on manual invocation", RunAs: domain.RunAsFunc}
}
func (EventManual) Start(*engine.Runtime, map[string]any) error { return nil }
func (EventManual) Execute(_ context.Context, rc *engine.RunContext) (map[string]any, error) {
	return rc.Params, nil
}

func (EventManual) Fire(ctx context.Context, rt *engine.Runtime, modelID string, params, payload map[string]any) (*domain.Process, error) {
	env := mergeEnv(params, payload)
	return rt.StartProcess(ctx, modelID, "manual", env)
}

// EventHook is event.hook: a webhook-style trigger that requires the
// incoming payload to carry a "key" matching the trigger's declared
// key, so an arbitrary caller cannot start the process without
// knowing it (§4.10).
type EventHook struct{}

func NewEventHook() *EventHook { return &EventHook{} }

func (EventHook) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "event.hook", Desc: "starts a process on a keyed webhook call", RunAs: domain.RunAsFunc}
}
func (EventHook) Start(*engine.Runtime, map[string]any) error { return nil }
func (EventHook) Execute(_ context.Context, rc *engine.RunContext) (map[string]any, error) {
	return rc.Params, nil
}

func (EventHook) Fire(ctx context.Context, rt *engine.Runtime, modelID string, params, payload map[string]any) (*domain.Process, error) {
	wantKey, _ := params["key"].(string)
	if wantKey != "" {
		gotKey, _ := payload["key"].(string)
		if gotKey != wantKey {
			return nil, acterr.Action("hook key mismatch for model %q", modelID)
		}
	}
	env := mergeEnv(params, payload)
	return rt.StartProcess(ctx, modelID, "hook", env)
}

func mergeEnv(params, payload map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(payload))
	for k, v := range params {
		out[k] = v
	}
	for k, v := range payload {
		out[k] = v
	}
	return out
}
