package packages

import (
	"context"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
	"github.com/flowkit/flowcore/internal/engine"
)

// Subflow is core.subflow: starts a nested process for another
// deployed model and parks the owning act in Interrupt until that
// nested process completes, wiring the Event Channel and the Action
// Executor together exactly as an external caller would (§4.6, §4.8,
// §4.9).
type Subflow struct{}

func NewSubflow() *Subflow { return &Subflow{} }

func (Subflow) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "core.subflow", Desc: "runs a nested process to completion", RunAs: domain.RunAsIrq}
}

func (Subflow) Start(*engine.Runtime, map[string]any) error { return nil }

func (Subflow) Execute(ctx context.Context, rc *engine.RunContext) (map[string]any, error) {
	modelID, _ := rc.Params["model_id"].(string)
	if modelID == "" {
		return nil, acterr.Package("core.subflow requires a \"model_id\" param")
	}
	env, _ := rc.Params["env"].(map[string]any)

	sub, err := rc.Runtime.StartProcess(ctx, modelID, "subflow", env)
	if err != nil {
		return nil, err
	}

	parentPID, parentTaskID := rc.Process.ID, rc.Task.ID
	subID := domain.NewID()
	err = rc.Runtime.Channel.Subscribe(subID, "process:completed:*:*", false, func(ctx context.Context, ev *domain.Event) error {
		if ev.ProcessID != sub.ID {
			return nil
		}
		rc.Runtime.Channel.Unsubscribe(subID)
		return rc.Runtime.Do(ctx, parentPID, parentTaskID, engine.ActionComplete, map[string]any{
			"subflow_process_id": sub.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"subflow_process_id": sub.ID}, nil
}
