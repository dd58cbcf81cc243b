package domain

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_NewCompiledNodeRegistersForLookup(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	root := tree.NewCompiledNode("root", 0, WorkflowContent(&Model{ID: "m1"}))
	tree.Root = root

	got, ok := tree.Node("root")
	require.True(t, ok)
	assert.Same(t, root, got)
	assert.Equal(t, 1, tree.Count())
}

func TestNode_SetParentLinksBothDirections(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	parent := tree.NewCompiledNode("p", 0, WorkflowContent(&Model{ID: "m1"}))
	child := tree.NewCompiledNode("c", 1, ActContent(&Act{ID: "c"}))

	child.SetParent(parent)

	assert.Same(t, parent, child.ParentNode())
	assert.Equal(t, []*Node{child}, parent.ChildrenSnapshot())
	assert.Equal(t, LinkNormal, child.LinkKind)
}

func TestNode_SetNextLinksSiblingWithoutReparenting(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	a := tree.NewCompiledNode("a", 1, ActContent(&Act{ID: "a"}))
	b := tree.NewCompiledNode("b", 1, ActContent(&Act{ID: "b"}))

	a.SetNext(b, false)

	assert.Same(t, b, a.NextNode())
	assert.Nil(t, b.ParentNode())
}

func TestNode_ChildrenInCatchAllMatchesEveryLabel(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	parent := tree.NewCompiledNode("p", 0, WorkflowContent(&Model{ID: "m1"}))
	catchAll := tree.NewCompiledNode("catch-all", 1, ActContent(&Act{ID: "catch-all"}))
	catchSpecific := tree.NewCompiledNode("catch-404", 1, ActContent(&Act{ID: "catch-404"}))

	catchAll.SetParentIn(LinkCatch, "", parent)
	catchSpecific.SetParentIn(LinkCatch, "404", parent)

	matches := parent.ChildrenIn(LinkCatch, "404")
	assert.ElementsMatch(t, []*Node{catchAll, catchSpecific}, matches)

	matches = parent.ChildrenIn(LinkCatch, "500")
	assert.ElementsMatch(t, []*Node{catchAll}, matches)
}

func TestNode_TimeoutChildrenReturnsOnlyTimeoutLinks(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	parent := tree.NewCompiledNode("p", 0, WorkflowContent(&Model{ID: "m1"}))
	normal := tree.NewCompiledNode("n", 1, ActContent(&Act{ID: "n"}))
	timeout := tree.NewCompiledNode("t", 1, ActContent(&Act{ID: "t"}))

	normal.SetParent(parent)
	timeout.SetParentIn(LinkTimeout, "1h", parent)

	assert.Equal(t, []*Node{timeout}, parent.TimeoutChildren())
}

// TestNode_ParentSurvivesWithoutStrongReference exercises the invariant
// that weak.Pointer parent/next links stay valid as long as the node is
// reachable through the tree's strong Children chain, even after a GC.
func TestNode_ParentSurvivesWithoutStrongReference(t *testing.T) {
	tree := NewTree(&Model{ID: "m1"})
	root := tree.NewCompiledNode("root", 0, WorkflowContent(&Model{ID: "m1"}))
	tree.Root = root
	child := tree.NewCompiledNode("c", 1, ActContent(&Act{ID: "c"}))
	child.SetParent(root)

	runtime.GC()

	assert.NotNil(t, child.ParentNode())
}
