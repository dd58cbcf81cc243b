package domain

import (
	"sync"
	"time"
)

// TaskState is the closed life-cycle enum a Task moves through (§4.2).
type TaskState string

const (
	TaskNone       TaskState = "none"
	TaskReady      TaskState = "ready"
	TaskPending    TaskState = "pending"
	TaskRunning    TaskState = "running"
	TaskInterrupt  TaskState = "interrupt"
	TaskCompleted  TaskState = "completed"
	TaskSubmitted  TaskState = "submitted"
	TaskBacked     TaskState = "backed"
	TaskCancelled  TaskState = "cancelled"
	TaskError      TaskState = "error"
	TaskAborted    TaskState = "aborted"
	TaskSkipped    TaskState = "skipped"
	TaskRemoved    TaskState = "removed"
)

// IsTerminal reports whether s is a settled end state. A settled task
// can still move to Removed, and an Error task can be moved back to
// Running by a matching catch hook (see allowedTransitions).
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled, TaskError, TaskAborted, TaskSkipped, TaskRemoved:
		return true
	default:
		return false
	}
}

// allowedTransitions is the adjacency table from §4.2. A task may only
// move to a state listed for its current state; anything else is an
// acterr.Runtime error from Task.Transition.
var allowedTransitions = map[TaskState][]TaskState{
	TaskNone:      {TaskReady, TaskAborted, TaskRemoved},
	TaskReady:     {TaskPending, TaskRunning, TaskSkipped, TaskCancelled, TaskAborted, TaskRemoved},
	TaskPending:   {TaskRunning, TaskInterrupt, TaskCancelled, TaskError, TaskAborted, TaskRemoved},
	TaskRunning:   {TaskInterrupt, TaskCompleted, TaskError, TaskCancelled, TaskAborted, TaskRemoved},
	TaskInterrupt: {TaskCompleted, TaskSubmitted, TaskBacked, TaskCancelled, TaskAborted, TaskError, TaskSkipped, TaskRemoved},
	TaskSubmitted: {TaskRunning, TaskCompleted, TaskError, TaskAborted, TaskRemoved},
	TaskBacked:    {TaskReady, TaskRunning, TaskAborted, TaskRemoved},
	TaskCompleted: {TaskRemoved},
	TaskCancelled: {TaskRemoved},
	TaskError:     {TaskRunning, TaskRemoved},
	TaskAborted:   {TaskRemoved},
	TaskSkipped:   {TaskRemoved},
	TaskRemoved:   {},
}

func (s TaskState) canTransitionTo(next TaskState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TaskKind mirrors the node content kind the task was spawned for,
// letting the scheduler dispatch init/run/next/review without a type
// assertion on Node.Content every time (§4.2).
type TaskKind = ContentKind

// Hook is one registered life-cycle callback on a task (§4.5).
type Hook struct {
	On  HookPoint
	Kind HookKind
}

// Task is one instance of a Node within a running Process (§4.2, §6).
type Task struct {
	mu sync.RWMutex

	ID        string
	ProcessID string
	NodeID    string
	Kind      TaskKind
	Prev      string // id of the task that spawned this one, "" for the root

	state TaskState
	Data  *Vars

	Inputs  map[string]any
	Outputs map[string]any
	Options map[string]any

	StartTime time.Time
	EndTime   time.Time
	Timestamp time.Time

	Hooks []Hook
	Err   error
}

// NewTask creates a task in TaskNone, ready for Init to move it to
// TaskReady (§4.2).
func NewTask(id, processID, nodeID string, kind TaskKind, prev string) *Task {
	return &Task{
		ID:        id,
		ProcessID: processID,
		NodeID:    nodeID,
		Kind:      kind,
		Prev:      prev,
		state:     TaskNone,
		Data:      NewVars(nil),
		Timestamp: time.Time{},
	}
}

// RehydrateState forces the task directly into s, bypassing the
// transition table. Only the engine's rehydrateProcess calls this: a
// row loaded from storage already holds a state that was legally
// reached before the process was evicted, and replaying the whole
// transition history to get back there is unnecessary.
func (t *Task) RehydrateState(s TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Task) State() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Transition moves the task to next if the transition is legal,
// stamping StartTime/EndTime as appropriate. It returns an
// acterr.Runtime error otherwise so callers can decide whether to
// surface it to the action caller or drop it as a scheduling no-op.
func (t *Task) Transition(next TaskState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.canTransitionTo(next) {
		return runtimeErr("illegal task transition %s -> %s for task %s", t.state, next, t.ID)
	}

	now := time.Now()
	switch next {
	case TaskRunning:
		if t.StartTime.IsZero() {
			t.StartTime = now
		}
	case TaskCompleted, TaskCancelled, TaskError, TaskAborted, TaskSkipped:
		t.EndTime = now
	}
	t.state = next
	t.Timestamp = now
	return nil
}

// MustTransition panics-free variant used by code paths that already
// validated legality and want to treat failure as a programming error
// surfaced through the usual error channel instead.
func (t *Task) MustTransition(next TaskState) {
	if err := t.Transition(next); err != nil {
		t.mu.Lock()
		t.Err = err
		t.mu.Unlock()
	}
}

func (t *Task) SetError(err error) {
	t.mu.Lock()
	t.Err = err
	t.mu.Unlock()
}

func (t *Task) Error() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Err
}

// String satisfies fmt.Stringer for TaskState, used in error messages
// and log fields.
func (s TaskState) String() string { return string(s) }
