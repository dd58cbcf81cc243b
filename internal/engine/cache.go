package engine

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// Cache is the LRU of live processes in front of the Store (§4.7),
// grounded on the original engine's cache.rs: a bounded in-memory
// cache backed by a durable Store, with restore() able to repopulate
// the cache from non-terminal rows after a restart.
type Cache struct {
	mu       sync.Mutex
	procs    *lru.Cache[string, *domain.Process]
	store    *Store
	capacity int
}

func NewCache(capacity int, store *Store) (*Cache, error) {
	procs, err := lru.New[string, *domain.Process](capacity)
	if err != nil {
		return nil, acterr.Runtime("create process cache: %v", err)
	}
	return &Cache{procs: procs, store: store, capacity: capacity}, nil
}

// PushProc inserts or replaces a process in the cache without
// persisting it; used when the caller already wrote through to the
// Store (or deliberately wants a cache-only entry, e.g. in tests).
func (c *Cache) PushProc(p *domain.Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.procs.Add(p.ID, p)
}

// PushProcPri writes p through to the Store, then inserts/refreshes it
// in the cache. This is the "priority push" the original names
// push_proc_pri: save-then-cache keeps the Store authoritative.
func (c *Cache) PushProcPri(ctx context.Context, p *domain.Process, save bool) error {
	if save {
		if err := c.store.SaveProcess(ctx, p); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.procs.Add(p.ID, p)
	c.mu.Unlock()
	return nil
}

// Proc returns a live process, loading it from the Store on a cache
// miss (§4.7). A true cache miss is logged at debug level since it
// signals memory pressure or a cold start.
func (c *Cache) Proc(ctx context.Context, pid string) (*domain.Process, error) {
	c.mu.Lock()
	p, ok := c.procs.Get(pid)
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	log.Debug().Str("process_id", pid).Msg("process cache miss, loading from store")
	row, err := c.store.Collection().LoadProc(ctx, pid)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, acterr.Store("process %q not found", pid)
	}

	proc, err := rehydrateProcess(ctx, c.store, row)
	if err != nil {
		return nil, err
	}

	if err := c.PushProcPri(ctx, proc, false); err != nil {
		return nil, err
	}
	return proc, nil
}

// AllProcs returns a snapshot of every cached process, used by the
// timeout sweep (§4.5) since it must inspect every running task.
func (c *Cache) AllProcs() []*domain.Process {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.procs.Keys()
	out := make([]*domain.Process, 0, len(keys))
	for _, k := range keys {
		if p, ok := c.procs.Peek(k); ok {
			out = append(out, p)
		}
	}
	return out
}

// Remove evicts a process from the cache only; its rows stay in the
// Store.
func (c *Cache) Remove(pid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.procs.Remove(pid)
}

// Upsert writes a task through to the Store and refreshes its owning
// process's cache entry, mirroring the original's push_task_pri: the
// task row, then the process row, then the in-memory object.
func (c *Cache) Upsert(ctx context.Context, proc *domain.Process, task *domain.Task) error {
	if err := c.store.SaveTask(ctx, task); err != nil {
		return err
	}
	if err := c.store.SaveProcess(ctx, proc); err != nil {
		return err
	}
	proc.PutTask(task)
	return c.PushProcPri(ctx, proc, false)
}

// Restore repopulates the cache from the Store after a cold start,
// loading up to cap/2 minus the already-cached count of non-terminal
// processes (at least one is always requested), matching the
// original's restore().
// onLoad is invoked for every process brought back, so the scheduler
// can re-enqueue its ready tasks.
func (c *Cache) Restore(ctx context.Context, onLoad func(*domain.Process)) error {
	c.mu.Lock()
	cached := c.procs.Len()
	c.mu.Unlock()

	limit := c.capacity/2 - cached
	if room := c.capacity - cached; limit > room {
		limit = room
	}
	if limit <= 0 {
		limit = 1
	}

	rows, err := c.store.Collection().ListNonTerminalProcs(ctx, limit)
	if err != nil {
		return err
	}

	log.Info().Int("count", len(rows)).Int("cached", cached).Msg("restoring processes from store")

	for _, row := range rows {
		proc, err := rehydrateProcess(ctx, c.store, row)
		if err != nil {
			log.Warn().Err(err).Str("process_id", row.ID).Msg("failed to rehydrate process, skipping")
			continue
		}
		c.PushProc(proc)
		if onLoad != nil {
			onLoad(proc)
		}
	}
	return nil
}

// rehydrateProcess rebuilds a live Process (and its tasks) from the
// row shapes a Collection persists. The compiled Tree itself is not
// reloaded here: the returned process has a nil Tree until the
// Runtime's worker (handle) attaches the deployed tree of its model
// before dispatching one of its tasks.
func rehydrateProcess(ctx context.Context, store *Store, row *domain.ProcRow) (*domain.Process, error) {
	env, err := store.codec.Decode(row.LocalEnv)
	if err != nil {
		return nil, fmt.Errorf("decode process local env: %w", err)
	}

	p := domain.RehydrateProcess(row.ID, row.ModelID, row.Tag, domain.ProcessState(row.State), row.RootTask, env, row.StartTime, row.EndTime, row.Timestamp)

	taskRows, err := store.Collection().ListTasksByProc(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	for _, tr := range taskRows {
		data, err := store.codec.Decode(tr.Data)
		if err != nil {
			return nil, fmt.Errorf("decode task %q data: %w", tr.ID, err)
		}
		t := domain.NewTask(tr.ID, tr.ProcessID, tr.NodeID, domain.ContentKind(tr.Kind), tr.Prev)
		t.Data = data
		t.StartTime = tr.StartTime
		t.EndTime = tr.EndTime
		t.Timestamp = tr.Timestamp
		// The stored state may not be reachable from TaskNone through
		// the normal transition table (e.g. Completed), so it is forced
		// directly rather than replayed.
		t.RehydrateState(domain.TaskState(tr.State))
		p.PutTask(t)
	}

	return p, nil
}
