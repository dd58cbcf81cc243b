package engine

import (
	"context"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// ActionKind names one of the external actions the Action Executor
// accepts against a live task (§4.9).
type ActionKind string

const (
	ActionComplete ActionKind = "complete"
	ActionSubmit   ActionKind = "submit"
	ActionBack     ActionKind = "back"
	ActionCancel   ActionKind = "cancel"
	ActionNext     ActionKind = "next"
	ActionAbort    ActionKind = "abort"
	ActionSkip     ActionKind = "skip"
	ActionError    ActionKind = "error"
	ActionPush     ActionKind = "push"
	ActionRemove   ActionKind = "remove"
)

// Do applies kind to task within process pid, taking the same
// per-process lock the scheduler's worker loop uses so an action and
// a scheduled dispatch can never race on the same task (§13, the
// concurrent-action Open Question: resolved with a per-process mutex
// rather than per-task locking, since most actions also need to touch
// sibling/ancestor tasks). Once the lock is held, an action whose
// transition is no longer legal for the task fails with Transition's
// error.
func (rt *Runtime) Do(ctx context.Context, pid, taskID string, kind ActionKind, data map[string]any) error {
	lock := rt.processLock(pid)
	lock.Lock()
	defer lock.Unlock()

	proc, err := rt.Cache.Proc(ctx, pid)
	if err != nil {
		return err
	}
	task, ok := proc.Task(taskID)
	if !ok {
		return acterr.Action("task %q not found in process %q", taskID, pid)
	}

	switch kind {
	case ActionComplete:
		return rt.actionSettle(ctx, proc, task, domain.TaskCompleted, data)
	case ActionCancel:
		return rt.actionSettle(ctx, proc, task, domain.TaskCancelled, data)
	case ActionAbort:
		return rt.abortProcess(ctx, proc, task, data)
	case ActionSkip:
		return rt.actionSettle(ctx, proc, task, domain.TaskSkipped, data)
	case ActionError:
		msg, _ := data["message"].(string)
		ecode, _ := data["ecode"].(string)
		task.SetError(acterr.NewException(ecode, msg))
		if err := task.Transition(domain.TaskError); err != nil {
			return err
		}
		if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
			return err
		}
		rt.publish(ctx, proc, task, domain.EventTask, "error")
		rt.enqueue(proc.ID, task.ID)
		return nil

	case ActionSubmit:
		if err := task.Transition(domain.TaskSubmitted); err != nil {
			return err
		}
		task.Data.Merge(data)
		if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
			return err
		}
		rt.publish(ctx, proc, task, domain.EventTask, "submitted")
		return rt.actionSettle(ctx, proc, task, domain.TaskCompleted, nil)

	case ActionBack:
		if err := task.Transition(domain.TaskBacked); err != nil {
			return err
		}
		task.Data.Merge(data)
		if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
			return err
		}
		rt.publish(ctx, proc, task, domain.EventTask, "backed")
		if err := task.Transition(domain.TaskReady); err != nil {
			return err
		}
		if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
			return err
		}
		rt.enqueue(proc.ID, task.ID)
		return nil

	case ActionNext:
		node, ok := proc.Tree().Node(task.NodeID)
		if !ok {
			return acterr.Runtime("node %s not found", task.NodeID)
		}
		return rt.advance(ctx, proc, task, node)

	case ActionPush:
		return rt.actionPush(ctx, proc, task, data)

	case ActionRemove:
		return rt.actionRemove(ctx, proc, task)

	default:
		return acterr.Action("unknown action %q", kind)
	}
}

// actionSettle merges data (if any) into task, transitions it to next,
// persists and publishes the change, then enqueues the task so the
// schedule advances from there.
func (rt *Runtime) actionSettle(ctx context.Context, proc *domain.Process, task *domain.Task, next domain.TaskState, data map[string]any) error {
	if data != nil {
		task.Data.Merge(data)
	}
	if err := task.Transition(next); err != nil {
		return err
	}
	if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
		return err
	}
	rt.publish(ctx, proc, task, domain.EventTask, string(next))
	rt.enqueue(proc.ID, task.ID)
	return nil
}

// abortProcess cancels the whole process: every non-terminal task is
// forced into Aborted and the process itself settles as Aborted,
// firing an on_error-equivalent event rather than resuming the
// schedule the way actionSettle's other callers do (§5 "Individual
// processes are cancelled by action::abort which sets every
// non-terminal task in the process to Aborted and fires on_error").
func (rt *Runtime) abortProcess(ctx context.Context, proc *domain.Process, task *domain.Task, data map[string]any) error {
	if data != nil {
		task.Data.Merge(data)
	}
	for _, t := range proc.Tasks() {
		if t.State().IsTerminal() {
			continue
		}
		if err := t.Transition(domain.TaskAborted); err != nil {
			return err
		}
		if err := rt.Cache.Upsert(ctx, proc, t); err != nil {
			return err
		}
	}
	proc.SetState(domain.ProcessAborted)
	if err := rt.store.SaveProcess(ctx, proc); err != nil {
		return err
	}
	rt.publish(ctx, proc, task, domain.EventProcess, "error")
	return nil
}

// actionPush materializes a new act dynamically under task's node,
// grounded on the original engine's dyn_build_act: an external caller
// adds an act at run time rather than at compile time (§12).
func (rt *Runtime) actionPush(ctx context.Context, proc *domain.Process, task *domain.Task, data map[string]any) error {
	uses, _ := data["uses"].(string)
	if uses == "" {
		return acterr.Action("push action requires a \"uses\" package name")
	}
	act := &domain.Act{ID: domain.NewID(), Uses: uses}
	if params, ok := data["params"].(map[string]any); ok {
		act.Params = params
	}

	node, ok := proc.Tree().Node(task.NodeID)
	if !ok {
		return acterr.Runtime("node %s not found", task.NodeID)
	}
	child := proc.Tree().NewCompiledNode(act.ID, node.Level+1, domain.ActContent(act))
	child.SetParent(node)

	spawned, err := rt.spawnChild(ctx, proc, task.ID, child)
	if err != nil {
		return err
	}
	rt.enqueue(proc.ID, spawned.ID)
	return nil
}

// actionRemove tears a task (and, transitively, any tasks spawned
// under it) out of the process entirely (§4.9).
func (rt *Runtime) actionRemove(ctx context.Context, proc *domain.Process, task *domain.Task) error {
	for _, t := range proc.Tasks() {
		if t.Prev == task.ID {
			if err := rt.actionRemove(ctx, proc, t); err != nil {
				return err
			}
		}
	}
	if err := task.Transition(domain.TaskRemoved); err != nil {
		return err
	}
	proc.RemoveTask(task.ID)
	if err := rt.store.Collection().RemoveTask(ctx, task.ID); err != nil {
		return err
	}
	rt.publish(ctx, proc, task, domain.EventTask, "removed")
	return nil
}
