// Package packages holds the engine's built-in Package implementations
// (§4.6, §12): core.irq, core.msg, core.block, core.parallel,
// core.sequence, core.subflow, core.action, transform.set,
// transform.code, event.manual and event.hook.
package packages

import (
	"github.com/flowkit/flowcore/internal/engine"
)

// RegisterBuiltins registers every built-in package against rt's
// registry. Callers that only need a subset can register packages
// individually instead.
func RegisterBuiltins(rt *engine.Runtime) error {
	all := []engine.Package{
		NewIrq(),
		NewMsg(),
		NewBlock(),
		NewParallel(),
		NewSequence(),
		NewSubflow(),
		NewAction(),
		NewTransformSet(),
		NewTransformCode(),
		NewEventManual(),
		NewEventHook(),
	}
	for _, pkg := range all {
		if err := rt.Registry.Register(rt, pkg, nil); err != nil {
			return err
		}
	}
	return nil
}
