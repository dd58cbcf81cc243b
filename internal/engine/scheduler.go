package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/builder"
	"github.com/flowkit/flowcore/internal/domain"
)

// Options configures the Runtime, mirroring the original engine's
// ConfigData (cache_cap, tick_interval_secs, max_message_retry_times,
// keep_processes).
type Options struct {
	CacheCap          int
	TickInterval      time.Duration
	MaxMessageRetries int
	KeepProcesses     int
}

func DefaultOptions() Options {
	return Options{
		CacheCap:          1024,
		TickInterval:      time.Second,
		MaxMessageRetries: 5,
		KeepProcesses:     100,
	}
}

// schedItem is one unit of scheduling work: "this task, in this
// process, is ready to be advanced".
type schedItem struct {
	ProcessID string
	TaskID    string
}

// Runtime wires the scheduler, cache, event channel and package
// registry into the single-writer worker loop described in §4.3: one
// goroutine drains the queue so task state transitions never race
// (the Open Question about concurrent actions on the same task is
// resolved by also taking a per-process lock around actions, §13).
type Runtime struct {
	opts     Options
	Cache    *Cache
	Channel  *Channel
	Registry *Registry
	store    *Store

	treesMu sync.RWMutex
	trees   map[string]*domain.Tree // by model id

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // by process id

	queue  chan schedItem
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRuntime(opts Options, store *Store, channel *Channel, registry *Registry) (*Runtime, error) {
	cache, err := NewCache(opts.CacheCap, store)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		opts:     opts,
		Cache:    cache,
		Channel:  channel,
		Registry: registry,
		store:    store,
		trees:    make(map[string]*domain.Tree),
		locks:    make(map[string]*sync.Mutex),
		queue:    make(chan schedItem, 4096),
	}, nil
}

// Start launches the worker loop and the tick-driven timeout/retry
// sweep. Cancel ctx (or call Stop) to shut down.
func (rt *Runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel

	rt.wg.Add(2)
	go rt.workerLoop(ctx)
	go rt.tickLoop(ctx)
}

func (rt *Runtime) Stop() {
	if rt.cancel != nil {
		rt.cancel()
	}
	rt.wg.Wait()
}

func (rt *Runtime) workerLoop(ctx context.Context) {
	defer rt.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-rt.queue:
			rt.handle(ctx, item)
		}
	}
}

func (rt *Runtime) tickLoop(ctx context.Context) {
	defer rt.wg.Done()
	ticker := time.NewTicker(rt.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.Channel.RetryDue(ctx)
			rt.sweepTimeouts(ctx)
		}
	}
}

func (rt *Runtime) enqueue(pid, tid string) {
	select {
	case rt.queue <- schedItem{ProcessID: pid, TaskID: tid}:
	default:
		log.Warn().Str("process_id", pid).Str("task_id", tid).Msg("scheduler queue full, dropping enqueue")
	}
}

func (rt *Runtime) processLock(pid string) *sync.Mutex {
	rt.locksMu.Lock()
	defer rt.locksMu.Unlock()
	m, ok := rt.locks[pid]
	if !ok {
		m = &sync.Mutex{}
		rt.locks[pid] = m
	}
	return m
}

func (rt *Runtime) handle(ctx context.Context, item schedItem) {
	lock := rt.processLock(item.ProcessID)
	lock.Lock()
	defer lock.Unlock()

	proc, err := rt.Cache.Proc(ctx, item.ProcessID)
	if err != nil {
		log.Error().Err(err).Str("process_id", item.ProcessID).Msg("load process for scheduling")
		return
	}
	if proc.Tree() == nil {
		tree, ok := rt.Tree(proc.ModelID)
		if !ok {
			log.Error().Str("process_id", proc.ID).Str("model_id", proc.ModelID).Msg("model of rehydrated process is not deployed")
			return
		}
		proc.SetTree(tree)
	}
	task, ok := proc.Task(item.TaskID)
	if !ok {
		log.Warn().Str("task_id", item.TaskID).Msg("scheduled task no longer present")
		return
	}
	if err := rt.dispatch(ctx, proc, task); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("dispatch failed")
	}
}

// DeployModel compiles model into a tree and caches it for
// StartProcess, persisting the model row (§4.1, §4.7).
func (rt *Runtime) DeployModel(ctx context.Context, model *domain.Model) (*domain.Tree, error) {
	tree, err := builder.Compile(model)
	if err != nil {
		return nil, err
	}

	rt.treesMu.Lock()
	rt.trees[model.ID] = tree
	rt.treesMu.Unlock()

	row := &domain.ModelRow{
		ID: model.ID, Name: model.Name, Tag: model.Tag, Version: model.Version,
		Bytes: model.Bytes, CreateTime: model.CreateTime, UpdateTime: model.UpdateTime,
	}
	if err := rt.store.Deploy(ctx, row); err != nil {
		return nil, err
	}
	return tree, nil
}

func (rt *Runtime) Tree(modelID string) (*domain.Tree, bool) {
	rt.treesMu.RLock()
	defer rt.treesMu.RUnlock()
	t, ok := rt.trees[modelID]
	return t, ok
}

// StartProcess creates a new process over modelID's compiled tree and
// enqueues its root task (§4.3 "start process").
func (rt *Runtime) StartProcess(ctx context.Context, modelID, tag string, env map[string]any) (*domain.Process, error) {
	tree, ok := rt.Tree(modelID)
	if !ok {
		return nil, acterr.Model("model %q is not deployed", modelID)
	}

	pid := domain.NewID()
	proc := domain.NewProcess(pid, tree, env)
	proc.Tag = tag
	proc.SetState(domain.ProcessRunning)

	root := domain.NewTask(domain.NewID(), pid, tree.Root.ID, tree.Root.Content.Kind, "")
	proc.RootTask = root.ID
	proc.PutTask(root)

	if err := rt.Cache.Upsert(ctx, proc, root); err != nil {
		return nil, err
	}
	rt.publish(ctx, proc, root, domain.EventProcess, "running")
	rt.enqueue(pid, root.ID)
	return proc, nil
}

func (rt *Runtime) publish(ctx context.Context, proc *domain.Process, task *domain.Task, kind domain.EventKind, state string) {
	rt.Channel.Publish(ctx, &domain.Event{
		ID: domain.NewID(), Kind: kind, State: state,
		ProcessID: proc.ID, TaskID: task.ID,
	})
}

// dispatch drives one task forward through as many synchronous steps
// as it can (init -> run -> settle -> advance) before yielding back to
// the queue, either because it is now waiting on something external
// (Irq, Msg, a child task, a human action) or because it fully
// completed and handed control to whatever comes next.
func (rt *Runtime) dispatch(ctx context.Context, proc *domain.Process, task *domain.Task) error {
	for {
		node, ok := proc.Tree().Node(task.NodeID)
		if !ok {
			return acterr.Runtime("task %s references unknown node %s", task.ID, task.NodeID)
		}

		switch task.State() {
		case domain.TaskNone:
			if err := rt.initTask(ctx, proc, task); err != nil {
				return err
			}
		case domain.TaskReady:
			settled, err := rt.runTask(ctx, proc, task, node)
			if err != nil {
				return err
			}
			if !settled {
				return nil
			}
		case domain.TaskCompleted, domain.TaskSkipped, domain.TaskCancelled, domain.TaskAborted:
			return rt.advance(ctx, proc, task, node)
		case domain.TaskError:
			handled, err := rt.dispatchCatch(ctx, proc, node, task)
			if err != nil {
				return err
			}
			if handled {
				return nil // catch subtree spawned; its completion resumes this task
			}
			return rt.failProcess(ctx, proc, task)
		default:
			// Interrupt/Pending/Submitted/Backed wait for an external
			// Action (§4.9); the worker has nothing more to do now.
			return nil
		}
	}
}

func (rt *Runtime) initTask(ctx context.Context, proc *domain.Process, task *domain.Task) error {
	if err := task.Transition(domain.TaskReady); err != nil {
		return err
	}
	return rt.Cache.Upsert(ctx, proc, task)
}

// runTask evaluates the node's guard condition, moves the task to
// Running, and dispatches the node-kind-specific behavior. It returns
// settled=true when the task reached a state advance() can act on
// without further external input.
func (rt *Runtime) runTask(ctx context.Context, proc *domain.Process, task *domain.Task, node *domain.Node) (bool, error) {
	evalCtx := NewContext(task, proc)

	skip, err := rt.shouldSkip(evalCtx, task, node)
	if err != nil {
		return false, err
	}
	if skip {
		if err := task.Transition(domain.TaskSkipped); err != nil {
			return false, err
		}
		return true, rt.Cache.Upsert(ctx, proc, task)
	}

	if err := task.Transition(domain.TaskRunning); err != nil {
		return false, err
	}
	if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
		return false, err
	}
	rt.publish(ctx, proc, task, domain.EventTask, "running")

	switch node.Content.Kind {
	case domain.ContentWorkflow:
		return rt.enterSingleChain(ctx, proc, task, node)
	case domain.ContentStep:
		return rt.enterStep(ctx, proc, task, node)
	case domain.ContentBranch:
		return rt.enterSingleChain(ctx, proc, task, node)
	case domain.ContentAct:
		return rt.runAct(ctx, proc, task, node, evalCtx)
	default:
		return false, acterr.Runtime("unknown node content kind for task %s", task.ID)
	}
}

// shouldSkip decides whether runTask should settle node's task straight
// into Skipped instead of running it. A branch task prefers the
// selection enterStep already computed over re-evaluating its If,
// since a false-else's effective condition depends on its sibling
// branches and isn't recoverable from the node alone; everything else
// falls back to the node's own guard expression.
func (rt *Runtime) shouldSkip(evalCtx *Context, task *domain.Task, node *domain.Node) (bool, error) {
	if node.Content.Kind == domain.ContentBranch {
		if v, ok := task.Data.Get(domain.KeyBranchMatched); ok {
			matched, _ := v.(bool)
			return !matched, nil
		}
	}
	guard := guardExpr(node)
	if guard == "" {
		return false, nil
	}
	ok, err := evalCtx.EvalBool(guard)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func guardExpr(node *domain.Node) string {
	switch node.Content.Kind {
	case domain.ContentStep:
		return node.Content.Step.If
	case domain.ContentBranch:
		return node.Content.Branch.If
	case domain.ContentAct:
		return node.Content.Act.If
	default:
		return ""
	}
}

// advance moves a settled task forward: to its node's Next sibling if
// one exists, otherwise it reports completion up to whichever task
// spawned it (§4.2, §4.3 "schedule next").
func (rt *Runtime) advance(ctx context.Context, proc *domain.Process, task *domain.Task, node *domain.Node) error {
	if next := node.NextNode(); next != nil {
		child, err := rt.spawnChild(ctx, proc, task.Prev, next)
		if err != nil {
			return err
		}
		rt.enqueue(proc.ID, child.ID)
		return nil
	}
	return rt.childChainDone(ctx, proc, task)
}

// childChainDone is called when the last task in a Next-chain settles.
// If the chain's Prev (its container task) is waiting on more than
// one concurrent entry (branches running alongside an acts chain), it
// decrements that join count; only once every entry has reported does
// the container itself advance.
func (rt *Runtime) childChainDone(ctx context.Context, proc *domain.Process, finished *domain.Task) error {
	if finished.Prev == "" {
		return rt.finishProcess(ctx, proc, finished)
	}

	container, ok := proc.Task(finished.Prev)
	if !ok {
		return acterr.Runtime("container task %s for %s not found", finished.Prev, finished.ID)
	}

	node, ok := proc.Tree().Node(finished.NodeID)
	if ok && (node.LinkKind == domain.LinkCatch || node.LinkKind == domain.LinkTimeout) {
		// A catch/timeout subtree resolved: resume the container task's
		// own propagation exactly where it left off (§4.5).
		containerNode, ok := proc.Tree().Node(container.NodeID)
		if !ok {
			return acterr.Runtime("node for container task %s not found", container.ID)
		}
		return rt.advance(ctx, proc, container, containerNode)
	}

	if items, ok := container.Data.Get(domain.KeySeqItems); ok {
		return rt.advanceSequence(ctx, proc, container, items)
	}

	remaining := decrementPending(container)
	if remaining > 0 {
		return rt.Cache.Upsert(ctx, proc, container)
	}

	if err := container.Transition(domain.TaskCompleted); err != nil {
		return err
	}
	if err := rt.Cache.Upsert(ctx, proc, container); err != nil {
		return err
	}
	rt.publish(ctx, proc, container, domain.EventTask, "completed")
	rt.enqueue(proc.ID, container.ID)
	return nil
}

func decrementPending(container *domain.Task) int {
	var remaining int
	container.Data.With(func(m map[string]any) {
		n, _ := m[domain.KeyPendingChildren].(int)
		n--
		m[domain.KeyPendingChildren] = n
		remaining = n
	})
	return remaining
}

// finishProcess settles the process once its root task's chain has
// fully run out: the process's terminal state mirrors whatever the
// root task itself landed on rather than always reporting Completed
// (§5, §7).
func (rt *Runtime) finishProcess(ctx context.Context, proc *domain.Process, rootTask *domain.Task) error {
	state, eventState := domain.ProcessCompleted, "completed"
	switch rootTask.State() {
	case domain.TaskAborted:
		state, eventState = domain.ProcessAborted, "aborted"
	case domain.TaskCancelled:
		state, eventState = domain.ProcessCancelled, "cancelled"
	}
	proc.SetState(state)
	if err := rt.store.SaveProcess(ctx, proc); err != nil {
		return err
	}
	rt.publish(ctx, proc, rootTask, domain.EventProcess, eventState)
	return nil
}

// failProcess transitions the whole process to Error once a task's
// error reaches here unhandled: no catch matched it, or every catch
// it ran through ended without recovery (§7).
func (rt *Runtime) failProcess(ctx context.Context, proc *domain.Process, task *domain.Task) error {
	proc.SetError(task.Error())
	proc.SetState(domain.ProcessError)
	if err := rt.store.SaveProcess(ctx, proc); err != nil {
		return err
	}
	rt.publish(ctx, proc, task, domain.EventProcess, "error")
	return nil
}

// spawnChild creates and registers a new task for node, owned by
// containerTaskID, and persists it (without enqueueing: callers decide
// when).
func (rt *Runtime) spawnChild(ctx context.Context, proc *domain.Process, containerTaskID string, node *domain.Node) (*domain.Task, error) {
	t := domain.NewTask(domain.NewID(), proc.ID, node.ID, node.Content.Kind, containerTaskID)
	proc.PutTask(t)
	if err := rt.Cache.Upsert(ctx, proc, t); err != nil {
		return nil, err
	}
	return t, nil
}

// enterSingleChain spawns the one chain of children a Workflow or
// Branch node owns (its steps), tracking a join count of 1 so the
// existing childChainDone machinery can be reused unchanged.
func (rt *Runtime) enterSingleChain(ctx context.Context, proc *domain.Process, task *domain.Task, node *domain.Node) (bool, error) {
	children := node.ChildrenSnapshot()
	entry := firstNormalChild(children)
	if entry == nil {
		if err := task.Transition(domain.TaskCompleted); err != nil {
			return false, err
		}
		return true, rt.Cache.Upsert(ctx, proc, task)
	}

	task.Data.Set(domain.KeyPendingChildren, 1)
	child, err := rt.spawnChild(ctx, proc, task.ID, entry)
	if err != nil {
		return false, err
	}
	rt.enqueue(proc.ID, child.ID)
	return false, nil
}

// enterStep spawns one task per branch declared on the step (running
// alongside one another, whichever of them matched or not: a
// non-matching branch's task skips itself once runTask sees it, per
// shouldSkip) plus the step's own acts/setup chain, joining on all of
// them (§4.2 "Branch semantics").
func (rt *Runtime) enterStep(ctx context.Context, proc *domain.Process, task *domain.Task, node *domain.Node) (bool, error) {
	evalCtx := NewContext(task, proc)
	children := node.ChildrenSnapshot()

	var branches []*domain.Node
	var elseBranch *domain.Node
	var actsHead *domain.Node
	matchedAny := false
	matched := map[string]bool{}

	for _, c := range children {
		if c.LinkKind != domain.LinkNormal {
			continue
		}
		if c.Content.Kind != domain.ContentBranch {
			if actsHead == nil {
				actsHead = c
			}
			continue
		}
		branches = append(branches, c)
		branch := c.Content.Branch
		if branch.Else {
			elseBranch = c
			continue
		}
		ok, err := evalCtx.EvalBool(branch.If)
		if err != nil {
			return false, err
		}
		matched[c.ID] = ok
		if ok {
			matchedAny = true
		}
	}
	if elseBranch != nil {
		matched[elseBranch.ID] = !matchedAny
	}

	entries := append([]*domain.Node{}, branches...)
	if actsHead != nil {
		entries = append(entries, actsHead)
	}

	if len(entries) == 0 {
		if err := task.Transition(domain.TaskCompleted); err != nil {
			return false, err
		}
		return true, rt.Cache.Upsert(ctx, proc, task)
	}

	task.Data.Set(domain.KeyPendingChildren, len(entries))
	for _, entry := range entries {
		child, err := rt.spawnChild(ctx, proc, task.ID, entry)
		if err != nil {
			return false, err
		}
		if entry.Content.Kind == domain.ContentBranch {
			child.Data.Set(domain.KeyBranchMatched, matched[entry.ID])
			if err := rt.Cache.Upsert(ctx, proc, child); err != nil {
				return false, err
			}
		}
		rt.enqueue(proc.ID, child.ID)
	}
	return false, nil
}

// firstNormalChild returns the first (lowest-level) LinkNormal child,
// i.e. the head of a container's acts/steps chain, skipping
// catch/timeout children and (when called on a step) leaving branch
// selection to the caller.
func firstNormalChild(children []*domain.Node) *domain.Node {
	for _, c := range children {
		if c.LinkKind == domain.LinkNormal {
			return c
		}
	}
	return nil
}

// dispatchTemplate returns the per-item template child a dynamic
// dispatch act (core.parallel, core.sequence) compiled under node, or
// nil if it declared none (§4.4, §12).
func dispatchTemplate(node *domain.Node) *domain.Node {
	return firstNormalChild(node.ChildrenSnapshot())
}

// DispatchActs materializes one task per entry of items against task's
// compiled per-item template (§4.4 dispatch_acts, §12 dyn_build_act,
// S6), rather than mutating the tree: every spawned task shares the
// same node id and carries its own ACT_INDEX/ACT_VALUE. In parallel
// mode every item starts at once; in sequence mode only the first
// item is spawned, the rest following one at a time as each one's
// chain settles (see advanceSequence).
func (rt *Runtime) DispatchActs(ctx context.Context, proc *domain.Process, task *domain.Task, items []any, sequence bool) error {
	node, ok := proc.Tree().Node(task.NodeID)
	if !ok {
		return acterr.Runtime("node for task %s not found", task.ID)
	}
	template := dispatchTemplate(node)
	if template == nil {
		return acterr.Model("act %s declares no per-item template for dynamic dispatch", node.ID)
	}

	if len(items) == 0 {
		if err := task.Transition(domain.TaskCompleted); err != nil {
			return err
		}
		rt.publish(ctx, proc, task, domain.EventTask, "completed")
		return rt.Cache.Upsert(ctx, proc, task)
	}

	if sequence {
		task.Data.Set(domain.KeySeqItems, items)
		task.Data.Set(domain.KeySeqIndex, 0)
		task.Data.Set(domain.KeyPendingChildren, 1)
		if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
			return err
		}
		return rt.spawnDispatchItem(ctx, proc, task, template, items[0], 0)
	}

	task.Data.Set(domain.KeyPendingChildren, len(items))
	if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
		return err
	}
	for i, item := range items {
		if err := rt.spawnDispatchItem(ctx, proc, task, template, item, i); err != nil {
			return err
		}
	}
	return nil
}

// advanceSequence spawns the next pending item of a core.sequence
// dispatch once the current one's chain has settled, or completes the
// container once the last item has.
func (rt *Runtime) advanceSequence(ctx context.Context, proc *domain.Process, container *domain.Task, itemsVal any) error {
	items, _ := itemsVal.([]any)
	idxVal, _ := container.Data.Get(domain.KeySeqIndex)
	idx, _ := idxVal.(int)
	next := idx + 1

	if next >= len(items) {
		container.Data.Delete(domain.KeySeqItems)
		container.Data.Delete(domain.KeySeqIndex)
		if err := container.Transition(domain.TaskCompleted); err != nil {
			return err
		}
		if err := rt.Cache.Upsert(ctx, proc, container); err != nil {
			return err
		}
		rt.publish(ctx, proc, container, domain.EventTask, "completed")
		rt.enqueue(proc.ID, container.ID)
		return nil
	}

	node, ok := proc.Tree().Node(container.NodeID)
	if !ok {
		return acterr.Runtime("node for container task %s not found", container.ID)
	}
	template := dispatchTemplate(node)
	if template == nil {
		return acterr.Runtime("container task %s lost its dispatch template", container.ID)
	}

	container.Data.Set(domain.KeySeqIndex, next)
	if err := rt.Cache.Upsert(ctx, proc, container); err != nil {
		return err
	}
	return rt.spawnDispatchItem(ctx, proc, container, template, items[next], next)
}

// spawnDispatchItem creates a task against template, owned by
// container, carrying item's index/value so the expression bridge and
// the act's own params can reference ACT_INDEX/ACT_VALUE (§4.4).
func (rt *Runtime) spawnDispatchItem(ctx context.Context, proc *domain.Process, container *domain.Task, template *domain.Node, item any, index int) error {
	child, err := rt.spawnChild(ctx, proc, container.ID, template)
	if err != nil {
		return err
	}
	child.Data.Set(domain.KeyActIndex, index)
	child.Data.Set(domain.KeyActValue, item)
	if err := rt.Cache.Upsert(ctx, proc, child); err != nil {
		return err
	}
	rt.enqueue(proc.ID, child.ID)
	return nil
}

// runAct dispatches a Package's Execute according to its RunAs
// contract (§4.6).
func (rt *Runtime) runAct(ctx context.Context, proc *domain.Process, task *domain.Task, node *domain.Node, evalCtx *Context) (bool, error) {
	act := node.Content.Act
	pkg, ok := rt.Registry.Lookup(act.Uses)
	if !ok {
		err := acterr.Package("package %q not registered", act.Uses)
		task.SetError(err)
		if terr := task.Transition(domain.TaskError); terr != nil {
			return false, terr
		}
		return true, rt.Cache.Upsert(ctx, proc, task)
	}

	params, err := evalCtx.RenderValue(act.Params)
	if err != nil {
		return false, rt.failAct(ctx, proc, task, err)
	}
	options, err := evalCtx.RenderValue(act.Options)
	if err != nil {
		return false, rt.failAct(ctx, proc, task, err)
	}

	rc := &RunContext{
		Ctx: evalCtx, Task: task, Process: proc, Runtime: rt,
		Params:  toMap(params),
		Options: toMap(options),
	}

	meta := pkg.Meta()
	switch meta.RunAs {
	case domain.RunAsFunc:
		out, err := pkg.Execute(ctx, rc)
		if err != nil {
			return false, rt.failAct(ctx, proc, task, err)
		}
		task.Outputs = out
		if len(act.Acts) > 0 {
			// Execute dispatched the per-item template via
			// rt.DispatchActs. An empty `in` list completes the task
			// synchronously inside that call; otherwise it stays
			// Running until the dynamically spawned children settle
			// (§4.4, S6).
			if task.State() == domain.TaskCompleted {
				return true, rt.Cache.Upsert(ctx, proc, task)
			}
			return false, nil
		}
		if err := task.Transition(domain.TaskCompleted); err != nil {
			return false, err
		}
		rt.publish(ctx, proc, task, domain.EventTask, "completed")
		return true, rt.Cache.Upsert(ctx, proc, task)

	case domain.RunAsMsg:
		msg := domain.NewMessage(domain.NewID(), proc.ID, task.ID, act.Name, domain.MessageMsg, rt.opts.MaxMessageRetries)
		if err := rt.store.Collection().SaveMessage(ctx, toMessageRow(msg)); err != nil {
			return false, err
		}
		if _, err := pkg.Execute(ctx, rc); err != nil {
			return false, rt.failAct(ctx, proc, task, err)
		}
		rt.publish(ctx, proc, task, domain.EventMessage, "created")
		return false, nil

	case domain.RunAsIrq:
		if err := task.Transition(domain.TaskInterrupt); err != nil {
			return false, err
		}
		if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
			return false, err
		}
		msg := domain.NewMessage(domain.NewID(), proc.ID, task.ID, act.Name, domain.MessageIrq, rt.opts.MaxMessageRetries)
		if err := rt.store.Collection().SaveMessage(ctx, toMessageRow(msg)); err != nil {
			return false, err
		}
		if _, err := pkg.Execute(ctx, rc); err != nil {
			return false, rt.failAct(ctx, proc, task, err)
		}
		rt.publish(ctx, proc, task, domain.EventTask, "interrupt")
		return false, nil

	default:
		return false, acterr.Package("package %q declares unknown run_as %q", meta.Name, meta.RunAs)
	}
}

// failAct moves task into Error and re-enqueues it so dispatch's
// TaskError case gets a chance to run its catch chain (§7); Execute
// failing synchronously would otherwise strand the task here with
// nothing left to drive it forward.
func (rt *Runtime) failAct(ctx context.Context, proc *domain.Process, task *domain.Task, err error) error {
	task.SetError(err)
	if terr := task.Transition(domain.TaskError); terr != nil {
		return terr
	}
	rt.publish(ctx, proc, task, domain.EventTask, "error")
	if err := rt.Cache.Upsert(ctx, proc, task); err != nil {
		return err
	}
	rt.enqueue(proc.ID, task.ID)
	return nil
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

func toMessageRow(m *domain.Message) *domain.MessageRow {
	return &domain.MessageRow{
		ID: m.ID, ProcessID: m.ProcessID, TaskID: m.TaskID, Name: m.Name,
		Type: string(m.Type), State: string(m.State), RetryTimes: m.RetryTimes,
		CreateTime: m.CreateTime, UpdateTime: m.UpdateTime,
	}
}
