package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcess_PutTaskAndLookup(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	tree.Root = tree.NewCompiledNode("root", 0, WorkflowContent(&Model{ID: "m1"}))
	proc := NewProcess("p1", tree, map[string]any{"region": "eu"})

	task := NewTask("t1", "p1", "root", ContentWorkflow, "")
	proc.PutTask(task)

	got, ok := proc.Task("t1")
	assert.True(t, ok)
	assert.Same(t, task, got)

	region, _ := proc.LocalEnv.Get("region")
	assert.Equal(t, "eu", region)
}

func TestProcess_RemoveTaskDropsIt(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	proc := NewProcess("p1", tree, nil)
	proc.PutTask(NewTask("t1", "p1", "root", ContentWorkflow, ""))

	proc.RemoveTask("t1")

	_, ok := proc.Task("t1")
	assert.False(t, ok)
}

func TestProcess_IsTerminalTracksState(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	proc := NewProcess("p1", tree, nil)
	assert.False(t, proc.IsTerminal())

	proc.SetState(ProcessRunning)
	assert.False(t, proc.IsTerminal())

	proc.SetState(ProcessCompleted)
	assert.True(t, proc.IsTerminal())
	assert.False(t, proc.EndTime.IsZero())
}

func TestRehydrateProcess_RequiresSetTreeBeforeUse(t *testing.T) {
	env := NewVars(map[string]any{"a": 1})
	now := time.Now()
	proc := RehydrateProcess("p1", "m1", "tag", ProcessRunning, "root", env, now, now, now)
	assert.Nil(t, proc.Tree())

	tree := NewTree(&Model{ID: "m1"})
	proc.SetTree(tree)
	assert.Same(t, tree, proc.Tree())
}

