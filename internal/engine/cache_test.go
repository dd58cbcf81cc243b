package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/flowcore/internal/domain"
	"github.com/flowkit/flowcore/pkg/store/memory"
)

func newTestStore() *Store {
	return NewStore(memory.New(), MsgpackCodec{})
}

func TestCache_ProcLoadsFromStoreOnMiss(t *testing.T) {
	store := newTestStore()
	cache, err := NewCache(8, store)
	require.NoError(t, err)

	tree := domain.NewTree(&domain.Model{ID: "m1"})
	tree.Root = tree.NewCompiledNode("root", 0, domain.WorkflowContent(tree.Model))
	proc := domain.NewProcess("p1", tree, map[string]any{"a": 1})
	proc.SetState(domain.ProcessRunning)
	task := domain.NewTask("t1", "p1", "root", domain.ContentWorkflow, "")
	proc.PutTask(task)

	require.NoError(t, cache.Upsert(context.Background(), proc, task))
	cache.Remove("p1")

	got, err := cache.Proc(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Nil(t, got.Tree()) // rehydration does not recompile the tree

	gotTask, ok := got.Task("t1")
	require.True(t, ok)
	assert.Equal(t, domain.TaskNone, gotTask.State())
}

func TestCache_RestorePopulatesOnlyNonTerminalProcesses(t *testing.T) {
	store := newTestStore()
	cache, err := NewCache(8, store)
	require.NoError(t, err)

	running := domain.NewProcess("running", domain.NewTree(&domain.Model{ID: "m1"}), nil)
	running.SetState(domain.ProcessRunning)
	require.NoError(t, store.SaveProcess(context.Background(), running))

	done := domain.NewProcess("done", domain.NewTree(&domain.Model{ID: "m1"}), nil)
	done.SetState(domain.ProcessCompleted)
	require.NoError(t, store.SaveProcess(context.Background(), done))

	var loaded []string
	require.NoError(t, cache.Restore(context.Background(), func(p *domain.Process) {
		loaded = append(loaded, p.ID)
	}))

	assert.Equal(t, []string{"running"}, loaded)
}

func TestCache_UpsertWritesThroughAndRefreshesCacheEntry(t *testing.T) {
	store := newTestStore()
	cache, err := NewCache(8, store)
	require.NoError(t, err)

	tree := domain.NewTree(&domain.Model{ID: "m1"})
	tree.Root = tree.NewCompiledNode("root", 0, domain.WorkflowContent(tree.Model))
	proc := domain.NewProcess("p1", tree, nil)
	task := domain.NewTask("t1", "p1", "root", domain.ContentWorkflow, "")

	require.NoError(t, cache.Upsert(context.Background(), proc, task))

	row, err := store.Collection().LoadTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", row.ID)
}
