package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// dispatchCatch implements the Catch statement batch from §4.5: a
// task that just errored is matched against its node's Catch
// children by error code (an empty On catches every code). A catch
// only ever fires once per task, guarded by the IS_CATCH_PROCESSED
// marker, mirroring the original engine's hook.rs exactly.
func (rt *Runtime) dispatchCatch(ctx context.Context, proc *domain.Process, node *domain.Node, task *domain.Task) (bool, error) {
	if task.Error() == nil {
		return false, nil
	}
	if task.Data.GetBool(domain.KeyIsCatchProcessed) {
		return false, nil
	}

	ecode := errorCode(task.Error())
	catches := node.ChildrenIn(domain.LinkCatch, ecode)
	if len(catches) == 0 {
		return false, nil
	}
	target := catches[0]

	task.Data.Set(domain.KeyIsCatchProcessed, true)
	if err := task.Transition(domain.TaskRunning); err != nil {
		return false, err
	}
	if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
		return false, err
	}

	child, err := rt.spawnChild(ctx, proc, task.ID, target)
	if err != nil {
		return false, err
	}
	rt.publish(ctx, proc, task, domain.EventTask, "error_catch")
	rt.enqueue(proc.ID, child.ID)
	return true, nil
}

// errorCode extracts the Exception ecode a catch handler matches
// against; every other error kind is treated as an anonymous code so
// only catch-all (On == "") handlers can see it, matching §4.5's
// "every error kind other than Exception has no ecode" note.
func errorCode(err error) string {
	var e *acterr.Error
	if as(err, &e) && e.Kind == acterr.KindException {
		return e.Ecode
	}
	return ""
}

func as(err error, target **acterr.Error) bool {
	for err != nil {
		if e, ok := err.(*acterr.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// sweepTimeouts is the tick-driven half of §4.5: for every Running or
// Interrupt task, check each Timeout child's elapsed deadline and fire
// it at most once, guarded by an IS_TIMEOUT_PROCESSED:{on} marker.
func (rt *Runtime) sweepTimeouts(ctx context.Context) {
	now := time.Now()
	for _, proc := range rt.Cache.AllProcs() {
		tree := proc.Tree()
		if tree == nil {
			continue
		}
		for _, task := range proc.Tasks() {
			state := task.State()
			if state != domain.TaskRunning && state != domain.TaskInterrupt {
				continue
			}
			if task.StartTime.IsZero() {
				continue
			}
			node, ok := tree.Node(task.NodeID)
			if !ok {
				continue
			}
			for _, tchild := range node.TimeoutChildren() {
				rt.maybeFireTimeout(ctx, proc, node, task, tchild, now)
			}
		}
	}
}

func (rt *Runtime) maybeFireTimeout(ctx context.Context, proc *domain.Process, node *domain.Node, task *domain.Task, tchild *domain.Node, now time.Time) {
	markerKey := domain.KeyIsTimeoutProcessedPx + tchild.LinkLabel
	if task.Data.GetBool(markerKey) {
		return
	}

	d, err := parseDuration(tchild.LinkLabel)
	if err != nil {
		log.Warn().Err(err).Str("task_id", task.ID).Str("on", tchild.LinkLabel).Msg("invalid timeout duration")
		return
	}
	if now.Sub(task.StartTime) < d {
		return
	}

	task.Data.Set(markerKey, true)
	if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
		log.Error().Err(err).Msg("persist timeout marker")
		return
	}

	child, err := rt.spawnChild(ctx, proc, task.ID, tchild)
	if err != nil {
		log.Error().Err(err).Msg("spawn timeout subtree")
		return
	}
	rt.publish(ctx, proc, task, domain.EventTask, "timeout")
	rt.enqueue(proc.ID, child.ID)
}

// parseDuration accepts the model format N{s|m|h|d} (§4.5, §6).
func parseDuration(spec string) (time.Duration, error) {
	if spec == "" {
		return 0, acterr.Model("timeout spec must not be empty")
	}
	unit := spec[len(spec)-1]
	numPart := spec[:len(spec)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, acterr.Model("invalid timeout spec %q: %v", spec, err)
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, acterr.Model("invalid timeout unit in %q, want one of s/m/h/d", spec)
	}
}
