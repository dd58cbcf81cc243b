package packages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/flowcore/internal/domain"
	"github.com/flowkit/flowcore/internal/engine"
	"github.com/flowkit/flowcore/pkg/store/memory"
)

func newTestRuntime(t *testing.T) *engine.Runtime {
	t.Helper()
	store := engine.NewStore(memory.New(), engine.MsgpackCodec{})
	channel := engine.NewChannel(3, 50*time.Millisecond)
	registry := engine.NewRegistry()

	rt, err := engine.NewRuntime(engine.Options{
		CacheCap:          64,
		TickInterval:      10 * time.Millisecond,
		MaxMessageRetries: 3,
		KeepProcesses:     64,
	}, store, channel, registry)
	require.NoError(t, err)
	require.NoError(t, RegisterBuiltins(rt))
	return rt
}

func waitForProcessState(t *testing.T, rt *engine.Runtime, pid string, want domain.ProcessState) *domain.Process {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		proc, err := rt.Cache.Proc(context.Background(), pid)
		require.NoError(t, err)
		if proc.State == want {
			return proc
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("process %s never reached state %s", pid, want)
	return nil
}

func TestTransformSet_StoresValueOnTask(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	model := &domain.Model{
		ID:   "m1",
		Name: "set",
		Steps: []*domain.Step{
			{ID: "s1", Name: "s1", Acts: []*domain.Act{
				{ID: "a1", Name: "a1", Uses: "transform.set", Params: map[string]any{"key": "region", "value": "eu"}},
			}},
		},
	}
	_, err := rt.DeployModel(ctx, model)
	require.NoError(t, err)

	proc, err := rt.StartProcess(ctx, "m1", "", nil)
	require.NoError(t, err)

	done := waitForProcessState(t, rt, proc.ID, domain.ProcessCompleted)
	var a1 *domain.Task
	for _, task := range done.Tasks() {
		if task.NodeID == "a1" {
			a1 = task
		}
	}
	require.NotNil(t, a1)
	region, _ := a1.Data.Get("region")
	assert.Equal(t, "eu", region)
}

func TestTransformCode_EvaluatesExpression(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	model := &domain.Model{
		ID:   "m1",
		Name: "code",
		Env:  map[string]any{"price": 10},
		Steps: []*domain.Step{
			{ID: "s1", Name: "s1", Acts: []*domain.Act{
				{ID: "a1", Name: "a1", Uses: "transform.code", Params: map[string]any{"code": "price * 2"}},
			}},
		},
	}
	_, err := rt.DeployModel(ctx, model)
	require.NoError(t, err)

	proc, err := rt.StartProcess(ctx, "m1", "", nil)
	require.NoError(t, err)

	done := waitForProcessState(t, rt, proc.ID, domain.ProcessCompleted)
	var a1 *domain.Task
	for _, task := range done.Tasks() {
		if task.NodeID == "a1" {
			a1 = task
		}
	}
	require.NotNil(t, a1)
	assert.Equal(t, 20, a1.Outputs["result"])
}

func TestEventManual_FireStartsBoundModel(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	model := &domain.Model{
		ID:   "m1",
		Name: "triggered",
		On:   []*domain.EventTrigger{{ID: "start", Uses: "event.manual"}},
		Steps: []*domain.Step{
			{ID: "s1", Name: "s1", Acts: []*domain.Act{{ID: "a1", Name: "a1", Uses: "core.block"}}},
		},
	}
	_, err := rt.DeployModel(ctx, model)
	require.NoError(t, err)

	proc, err := rt.Fire(ctx, "m1", "start", map[string]any{"origin": "webhook"})
	require.NoError(t, err)

	waitForProcessState(t, rt, proc.ID, domain.ProcessCompleted)
}

func TestEventHook_FireRejectsKeyMismatch(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	model := &domain.Model{
		ID:   "m1",
		Name: "hooked",
		On:   []*domain.EventTrigger{{ID: "start", Uses: "event.hook", Params: map[string]any{"key": "secret"}}},
		Steps: []*domain.Step{
			{ID: "s1", Name: "s1", Acts: []*domain.Act{{ID: "a1", Name: "a1", Uses: "core.block"}}},
		},
	}
	_, err := rt.DeployModel(ctx, model)
	require.NoError(t, err)

	_, err = rt.Fire(ctx, "m1", "start", map[string]any{"key": "wrong"})
	assert.Error(t, err)

	proc, err := rt.Fire(ctx, "m1", "start", map[string]any{"key": "secret"})
	require.NoError(t, err)
	waitForProcessState(t, rt, proc.ID, domain.ProcessCompleted)
}

func TestParallel_DispatchesOneTaskPerItem(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	model := &domain.Model{
		ID:   "m1",
		Name: "fanout",
		Steps: []*domain.Step{
			{ID: "s1", Name: "s1", Acts: []*domain.Act{
				{
					ID: "p1", Name: "p1", Uses: "core.parallel",
					Params: map[string]any{"in": []any{"u1", "u2"}},
					Acts:   []*domain.Act{{ID: "a", Name: "a", Uses: "core.irq"}},
				},
			}},
		},
	}
	_, err := rt.DeployModel(ctx, model)
	require.NoError(t, err)

	proc, err := rt.StartProcess(ctx, "m1", "", nil)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	var interrupted []*domain.Task
	for time.Now().Before(deadline) {
		p, err := rt.Cache.Proc(context.Background(), proc.ID)
		require.NoError(t, err)
		interrupted = nil
		for _, task := range p.Tasks() {
			if task.NodeID == "a" && task.State() == domain.TaskInterrupt {
				interrupted = append(interrupted, task)
			}
		}
		if len(interrupted) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, interrupted, 2, "expected two dynamically dispatched acts to reach Interrupt")

	seen := map[string]int{}
	for _, task := range interrupted {
		idx, _ := task.Data.Get(domain.KeyActIndex)
		val, _ := task.Data.Get(domain.KeyActValue)
		i, _ := idx.(int)
		seen[val.(string)] = i
	}
	assert.Equal(t, map[string]int{"u1": 0, "u2": 1}, seen)
}

func TestSubflow_ResumesParentWhenNestedProcessCompletes(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	child := &domain.Model{
		ID:   "child",
		Name: "child",
		Steps: []*domain.Step{
			{ID: "cs1", Name: "cs1", Acts: []*domain.Act{{ID: "ca1", Name: "ca1", Uses: "core.block"}}},
		},
	}
	_, err := rt.DeployModel(ctx, child)
	require.NoError(t, err)

	parent := &domain.Model{
		ID:   "parent",
		Name: "parent",
		Steps: []*domain.Step{
			{ID: "ps1", Name: "ps1", Acts: []*domain.Act{
				{ID: "pa1", Name: "pa1", Uses: "core.subflow", Params: map[string]any{"model_id": "child"}},
			}},
		},
	}
	_, err = rt.DeployModel(ctx, parent)
	require.NoError(t, err)

	proc, err := rt.StartProcess(ctx, "parent", "", nil)
	require.NoError(t, err)

	waitForProcessState(t, rt, proc.ID, domain.ProcessCompleted)
}
