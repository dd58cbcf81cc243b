package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/flowcore/internal/domain"
)

func TestDo_PushMaterializesAndRunsANewAct(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	model := &domain.Model{
		ID:   "m1",
		Name: "pusher",
		Steps: []*domain.Step{
			{ID: "s1", Name: "s1", Acts: []*domain.Act{{ID: "a1", Name: "a1", Uses: "test.irq"}}},
		},
	}
	require.NoError(t, rt.Registry.Register(rt, irqPackage{}, nil))
	_, err := rt.DeployModel(ctx, model)
	require.NoError(t, err)

	proc, err := rt.StartProcess(ctx, "m1", "", nil)
	require.NoError(t, err)

	var a1ID string
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && a1ID == "" {
		p, err := rt.Cache.Proc(context.Background(), proc.ID)
		require.NoError(t, err)
		for _, task := range p.Tasks() {
			if task.State() == domain.TaskInterrupt {
				a1ID = task.ID
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, a1ID)

	require.NoError(t, rt.Do(ctx, proc.ID, a1ID, ActionPush, map[string]any{"uses": "test.block"}))

	deadline = time.Now().Add(time.Second)
	var pushedCompleted bool
	for time.Now().Before(deadline) {
		p, err := rt.Cache.Proc(context.Background(), proc.ID)
		require.NoError(t, err)
		for _, task := range p.Tasks() {
			if task.Prev == a1ID && task.State() == domain.TaskCompleted {
				pushedCompleted = true
			}
		}
		if pushedCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, pushedCompleted, "dynamically pushed act never completed")
}

func TestDo_AbortSetsEveryNonTerminalTaskAbortedAndProcessAborted(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, rt.Registry.Register(rt, irqPackage{}, nil))
	rt.Start(ctx)
	defer rt.Stop()

	model := &domain.Model{
		ID:   "m5",
		Name: "abortable",
		Steps: []*domain.Step{
			{ID: "s1", Name: "s1", Branches: []*domain.Branch{
				{ID: "b1", If: "", Steps: []*domain.Step{
					{ID: "s2", Name: "s2", Acts: []*domain.Act{{ID: "a2", Name: "a2", Uses: "test.irq"}}},
				}},
			}},
		},
	}
	_, err := rt.DeployModel(ctx, model)
	require.NoError(t, err)

	proc, err := rt.StartProcess(ctx, "m5", "", nil)
	require.NoError(t, err)

	var a2ID string
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && a2ID == "" {
		p, err := rt.Cache.Proc(context.Background(), proc.ID)
		require.NoError(t, err)
		for _, task := range p.Tasks() {
			if task.State() == domain.TaskInterrupt {
				a2ID = task.ID
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, a2ID, "act never reached Interrupt")

	require.NoError(t, rt.Do(ctx, proc.ID, a2ID, ActionAbort, nil))

	done := waitForTerminal(t, rt, proc.ID)
	assert.Equal(t, domain.ProcessAborted, done.State)
	for _, task := range done.Tasks() {
		assert.Equal(t, domain.TaskAborted, task.State(), "task %s should have been force-aborted", task.ID)
	}
}

func TestDo_CancelUnknownTaskReturnsActionError(t *testing.T) {
	rt := newTestRuntime(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	model := &domain.Model{
		ID:   "m1",
		Name: "minimal",
		Steps: []*domain.Step{
			{ID: "s1", Name: "s1", Acts: []*domain.Act{{ID: "a1", Name: "a1", Uses: "test.block"}}},
		},
	}
	_, err := rt.DeployModel(ctx, model)
	require.NoError(t, err)
	proc, err := rt.StartProcess(ctx, "m1", "", nil)
	require.NoError(t, err)

	err = rt.Do(ctx, proc.ID, "does-not-exist", ActionCancel, nil)
	assert.Error(t, err)
}
