// Package builder compiles a domain.Model into a domain.Tree: the
// level-based parent/next-sibling linking described in §4.1, grounded
// on the original engine's scheduler/tree builder.
//
// The rule is uniform across every nesting level (model steps, act
// setup chains, branch steps, catch/timeout subtrees): a node at the
// SAME level as the previous one in its sequence becomes that node's
// next sibling; a node at a DEEPER level becomes a child instead.
// Since every sequence built here is flat (one level per call), the
// rule collapses to: first node in a sequence attaches to the parent,
// every later node attaches via Next to the one before it.
package builder

import (
	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// Compile builds a fresh Tree from model. It never mutates model.
func Compile(model *domain.Model) (*domain.Tree, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}

	tree := domain.NewTree(model)
	root := tree.NewCompiledNode(model.ID, 0, domain.WorkflowContent(model))
	tree.Root = root

	b := &builder{tree: tree, seen: map[string]bool{model.ID: true}}

	// Setup acts run to completion before the workflow's steps begin,
	// so they form a single chain: setup, then steps, not two parallel
	// entries under root.
	setupFirst, setupLast, err := b.buildActSeq(model.Setup, 1)
	if err != nil {
		return nil, err
	}
	stepsFirst, _, err := b.buildSteps(model.Steps, 1)
	if err != nil {
		return nil, err
	}

	switch {
	case setupFirst != nil && stepsFirst != nil:
		setupFirst.SetParent(root)
		setupLast.SetNext(stepsFirst, false)
	case setupFirst != nil:
		setupFirst.SetParent(root)
	case stepsFirst != nil:
		stepsFirst.SetParent(root)
	}

	return tree, nil
}

type builder struct {
	tree *domain.Tree
	seen map[string]bool
}

func (b *builder) newNode(id string, level int, content *domain.NodeContent) (*domain.Node, error) {
	if id == "" {
		id = domain.NewID()[:8]
	}
	if b.seen[id] {
		return nil, acterr.Model("duplicate node id %q", id)
	}
	b.seen[id] = true
	return b.tree.NewCompiledNode(id, level, content), nil
}

// buildSteps compiles a sequence of steps at level, chaining them via
// Next. It returns the first and last node of the sequence so a
// caller can attach the first as a child and chain further sequences
// off the last.
func (b *builder) buildSteps(steps []*domain.Step, level int) (first, last *domain.Node, err error) {
	for _, step := range steps {
		node, err := b.buildStep(step, level)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = node
		} else {
			last.SetNext(node, false)
		}
		last = node
	}
	return first, last, nil
}

func (b *builder) buildStep(step *domain.Step, level int) (*domain.Node, error) {
	node, err := b.newNode(step.ID, level, domain.StepContent(step))
	if err != nil {
		return nil, err
	}

	for _, branch := range step.Branches {
		bn, err := b.buildBranch(branch, level+1)
		if err != nil {
			return nil, err
		}
		bn.SetParent(node)
	}

	setupAndActs := append(append([]*domain.Act{}, step.Setup...), step.Acts...)
	actsFirst, _, err := b.buildActSeq(setupAndActs, level+1)
	if err != nil {
		return nil, err
	}
	if actsFirst != nil {
		actsFirst.SetParent(node)
	}

	if err := b.buildCatchesAndTimeouts(node, step.Catches, step.Timeout, level+1); err != nil {
		return nil, err
	}

	return node, nil
}

// buildBranch compiles one conditional branch as a typed subtree; its
// steps form the usual level-chained sequence, rooted as the branch
// node's children (§4.2 "Branch semantics": one child task per branch,
// branches themselves run independently of one another).
func (b *builder) buildBranch(branch *domain.Branch, level int) (*domain.Node, error) {
	node, err := b.newNode(branch.ID, level, domain.BranchContent(branch))
	if err != nil {
		return nil, err
	}
	stepsFirst, _, err := b.buildSteps(branch.Steps, level+1)
	if err != nil {
		return nil, err
	}
	if stepsFirst != nil {
		stepsFirst.SetParent(node)
	}
	return node, nil
}

// buildActSeq compiles a sequence of acts at level, chaining them via
// Next, each carrying its own setup/catch/timeout subtrees.
func (b *builder) buildActSeq(acts []*domain.Act, level int) (first, last *domain.Node, err error) {
	for _, act := range acts {
		node, err := b.buildAct(act, level)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = node
		} else {
			last.SetNext(node, false)
		}
		last = node
	}
	return first, last, nil
}

func (b *builder) buildAct(act *domain.Act, level int) (*domain.Node, error) {
	node, err := b.newNode(act.ID, level, domain.ActContent(act))
	if err != nil {
		return nil, err
	}

	setupFirst, _, err := b.buildActSeq(act.Setup, level+1)
	if err != nil {
		return nil, err
	}
	if setupFirst != nil {
		setupFirst.SetParent(node)
	}

	// A dynamic-dispatch package (core.parallel/core.sequence) repeats
	// this template once per `in` item at run time (§4.4, §12); it is
	// compiled once here like any other child chain.
	templateFirst, _, err := b.buildActSeq(act.Acts, level+1)
	if err != nil {
		return nil, err
	}
	if templateFirst != nil {
		templateFirst.SetParent(node)
	}

	if err := b.buildCatchesAndTimeouts(node, act.Catches, act.Timeout, level+1); err != nil {
		return nil, err
	}

	return node, nil
}

// buildCatchesAndTimeouts attaches a node's error and deadline
// subtrees as typed (Catch/Timeout) children (§4.5). Each gets its own
// synthetic node id derived from the owner's, since the model format
// does not require catches/timeouts to declare one.
func (b *builder) buildCatchesAndTimeouts(owner *domain.Node, catches []*domain.Catch, timeouts []*domain.Timeout, level int) error {
	for _, c := range catches {
		first, _, err := b.buildSteps(c.Steps, level)
		if err != nil {
			return err
		}
		if first == nil {
			continue
		}
		first.SetParentIn(domain.LinkCatch, c.On, owner)
	}

	for _, t := range timeouts {
		first, _, err := b.buildSteps(t.Steps, level)
		if err != nil {
			return err
		}
		if first == nil {
			continue
		}
		first.SetParentIn(domain.LinkTimeout, t.On, owner)
	}

	return nil
}
