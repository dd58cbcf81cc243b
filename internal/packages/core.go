package packages

import (
	"context"

	"github.com/flowkit/flowcore/internal/domain"
	"github.com/flowkit/flowcore/internal/engine"
)

// Irq is core.irq: a bare interrupt point. The scheduler itself parks
// the owning task in TaskInterrupt before calling Execute (§4.6); an
// external caller resumes it via the Action Executor (§4.9).
type Irq struct{}

func NewIrq() *Irq { return &Irq{} }

func (Irq) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "core.irq", Desc: "waits for an external action", RunAs: domain.RunAsIrq}
}
func (Irq) Start(*engine.Runtime, map[string]any) error { return nil }
func (Irq) Execute(context.Context, *engine.RunContext) (map[string]any, error) {
	return nil, nil
}

// Msg is core.msg: fire-and-forget, retried by the Event Channel until
// acknowledged (§4.6, §4.8).
type Msg struct{}

func NewMsg() *Msg { return &Msg{} }

func (Msg) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "core.msg", Desc: "emits a retried message", RunAs: domain.RunAsMsg}
}
func (Msg) Start(*engine.Runtime, map[string]any) error { return nil }
func (Msg) Execute(context.Context, *engine.RunContext) (map[string]any, error) {
	return nil, nil
}

// Block is core.block: a synchronous no-op that passes its params
// through as outputs, useful as a placeholder or a join point in a
// model under construction.
type Block struct{}

func NewBlock() *Block { return &Block{} }

func (Block) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "core.block", Desc: "synchronous passthrough", RunAs: domain.RunAsFunc}
}
func (Block) Start(*engine.Runtime, map[string]any) error { return nil }
func (Block) Execute(_ context.Context, rc *engine.RunContext) (map[string]any, error) {
	return rc.Params, nil
}

// Parallel is core.parallel: dispatches its per-item template once per
// entry of the `in` param, all at once, materializing a distinct task
// per item (ACT_INDEX/ACT_VALUE) against the single compiled child the
// builder attached to this act (§4.4 dispatch_acts, §12 dyn_build_act,
// S6). The act's own task stays Running until every dispatched item
// settles; DispatchActs drives that join.
type Parallel struct{}

func NewParallel() *Parallel { return &Parallel{} }

func (Parallel) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "core.parallel", Desc: "fans an `in` list out to one task per item, concurrently", RunAs: domain.RunAsFunc}
}
func (Parallel) Start(*engine.Runtime, map[string]any) error { return nil }
func (Parallel) Execute(ctx context.Context, rc *engine.RunContext) (map[string]any, error) {
	items := dispatchItems(rc.Params)
	if err := rc.Runtime.DispatchActs(ctx, rc.Process, rc.Task, items, false); err != nil {
		return nil, err
	}
	return rc.Params, nil
}

// Sequence is core.sequence: the same dispatch as Parallel, but one
// item at a time — the next task is only spawned once the previous
// item's chain has fully settled (§4.4, is_sequence=true).
type Sequence struct{}

func NewSequence() *Sequence { return &Sequence{} }

func (Sequence) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "core.sequence", Desc: "fans an `in` list out to one task per item, one at a time", RunAs: domain.RunAsFunc}
}
func (Sequence) Start(*engine.Runtime, map[string]any) error { return nil }
func (Sequence) Execute(ctx context.Context, rc *engine.RunContext) (map[string]any, error) {
	items := dispatchItems(rc.Params)
	if err := rc.Runtime.DispatchActs(ctx, rc.Process, rc.Task, items, true); err != nil {
		return nil, err
	}
	return rc.Params, nil
}

// dispatchItems reads the `in` param as a list, tolerating either a
// []any (the common JSON/YAML-decoded shape) or a single non-list
// value (treated as a one-item list).
func dispatchItems(params map[string]any) []any {
	raw, ok := params["in"]
	if !ok || raw == nil {
		return nil
	}
	if items, ok := raw.([]any); ok {
		return items
	}
	return []any{raw}
}

// Action is core.action: a named interrupt point intended for human
// approvals or other out-of-band decisions. Functionally identical to
// core.irq; kept distinct so models can express intent in `uses`.
type Action struct{}

func NewAction() *Action { return &Action{} }

func (Action) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "core.action", Desc: "waits for a named external action", RunAs: domain.RunAsIrq}
}
func (Action) Start(*engine.Runtime, map[string]any) error { return nil }
func (Action) Execute(context.Context, *engine.RunContext) (map[string]any, error) {
	return nil, nil
}
