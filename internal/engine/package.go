package engine

import (
	"context"
	"sync"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// RunContext is everything a Package needs to execute one act (§4.6):
// the expression bridge for the owning task, the task/process
// themselves, a handle back to the Runtime (to emit messages/events),
// and the act's already-rendered params/options.
type RunContext struct {
	Ctx     *Context
	Task    *domain.Task
	Process *domain.Process
	Runtime *Runtime
	Params  map[string]any
	Options map[string]any
}

// Package is one registered executable unit (§4.6). Start is called
// once, at registration time, so a package can stash a handle to the
// Runtime or validate its options; Execute runs once per act.
type Package interface {
	Meta() domain.PackageMeta
	Start(rt *Runtime, options map[string]any) error
	Execute(ctx context.Context, rc *RunContext) (map[string]any, error)
}

// Registry is the Package Runtime's lookup table, keyed by the name a
// model's `uses` field references (§4.6).
type Registry struct {
	mu   sync.RWMutex
	pkgs map[string]Package
}

func NewRegistry() *Registry {
	return &Registry{pkgs: make(map[string]Package)}
}

func (r *Registry) Register(rt *Runtime, pkg Package, options map[string]any) error {
	if err := pkg.Start(rt, options); err != nil {
		return acterr.Package("start package %q: %v", pkg.Meta().Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pkgs[pkg.Meta().Name] = pkg
	return nil
}

func (r *Registry) Lookup(name string) (Package, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pkgs[name]
	return p, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pkgs))
	for name := range r.pkgs {
		out = append(out, name)
	}
	return out
}
