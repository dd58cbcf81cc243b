package domain

import "time"

// Model is a versioned workflow declaration (§3, §6). It is immutable
// once deployed; Store.Deploy bumps Version on redeployment of the
// same Id, it never mutates Bytes in place.
type Model struct {
	ID      string
	Name    string
	Desc    string
	Tag     string
	Version int
	Bytes   []byte // original source (YAML/JSON), kept for audit/replay
	Env     map[string]any
	Inputs  map[string]any
	Outputs map[string]any
	Steps   []*Step
	Setup   []*Act
	On      []*EventTrigger

	CreateTime time.Time
	UpdateTime time.Time
}

// EventTrigger is a named `on[]` entry bound to a start package such
// as event.manual or event.hook (§4.10).
type EventTrigger struct {
	ID     string
	Uses   string
	Params map[string]any
}

// Step groups acts and sub-steps (§6). A step with Branches spawns one
// child task per branch (§4.2 "Branch semantics").
type Step struct {
	ID        string
	Name      string
	If        string
	Inputs    map[string]any
	Outputs   map[string]any
	Tag       string
	Next      string
	Branches  []*Branch
	Acts      []*Act
	Catches   []*Catch
	Timeout   []*Timeout
	Setup     []*Act
}

// Branch is a conditional sibling group under a step. Else marks the
// branch that only runs if no sibling branch completes successfully
// (§4.2).
type Branch struct {
	ID    string
	If    string
	Else  bool
	Steps []*Step
}

// Act invokes a registered package (§4.6, §6).
type Act struct {
	ID      string
	Name    string
	Desc    string
	Uses    string
	Params  map[string]any
	Options map[string]any
	If      string
	Key     string
	Tag     string
	On      string // life-cycle point this act's hook fires on, e.g. "created"/"completed"
	Inputs  map[string]any
	Outputs map[string]any
	Setup   []*Act
	Catches []*Catch
	Timeout []*Timeout

	// Acts is the per-item template a dynamic-dispatch package
	// (core.parallel, core.sequence) repeats once per entry of its
	// `in` list (§4.4 dispatch_acts, §12 dyn_build_act, S6). The
	// builder compiles it once as a normal child of this act's node;
	// the package materializes one task per item against that same
	// compiled node at run time.
	Acts []*Act
}

// Catch is an error handler subtree. On == "" (nil in the original)
// means "catch every error code" (§4.5, invariant 6).
type Catch struct {
	On    string
	Steps []*Step
}

// Timeout is a duration-triggered subtree. On is a duration spec of
// the form N{s|m|h|d} (§4.5, §6).
type Timeout struct {
	On    string
	Steps []*Step
}

// Validate checks structural requirements that deployment depends on.
// Duplicate node ids are caught later by the tree builder (§4.1,
// invariant 3), which also generates a short id for any node that
// declares none.
func (m *Model) Validate() error {
	if m.Name == "" {
		return modelErr("model name is required")
	}
	if len(m.Steps) == 0 {
		return modelErr("model must declare at least one step")
	}
	return nil
}
