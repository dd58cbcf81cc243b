package builder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/flowcore/internal/builder"
	"github.com/flowkit/flowcore/internal/domain"
)

func twoStepModel() *domain.Model {
	return &domain.Model{
		ID:   "m1",
		Name: "two steps",
		Steps: []*domain.Step{
			{ID: "step1", Acts: []*domain.Act{{ID: "act1", Uses: "core.msg"}}},
			{ID: "step2", Acts: []*domain.Act{{ID: "act2", Uses: "core.msg"}}},
		},
	}
}

func TestCompile_SiblingStepsChainViaNext(t *testing.T) {
	tree, err := builder.Compile(twoStepModel())
	require.NoError(t, err)

	step1, ok := tree.Node("step1")
	require.True(t, ok)
	step2, ok := tree.Node("step2")
	require.True(t, ok)

	assert.Equal(t, step2, step1.NextNode())
	assert.Equal(t, tree.Root, step1.ParentNode())
	assert.Equal(t, 1, step1.Level)
	assert.Equal(t, 1, step2.Level)
}

func TestCompile_ActIsChildOfItsStep(t *testing.T) {
	tree, err := builder.Compile(twoStepModel())
	require.NoError(t, err)

	step1, _ := tree.Node("step1")
	act1, ok := tree.Node("act1")
	require.True(t, ok)

	assert.Equal(t, step1, act1.ParentNode())
	assert.Equal(t, 2, act1.Level)
}

func TestCompile_DuplicateNodeIDIsRejected(t *testing.T) {
	m := &domain.Model{
		ID:   "m1",
		Name: "dup",
		Steps: []*domain.Step{
			{ID: "dup"},
			{ID: "dup"},
		},
	}
	_, err := builder.Compile(m)
	assert.Error(t, err)
}

func TestCompile_CatchAttachesAsTypedChild(t *testing.T) {
	m := &domain.Model{
		ID:   "m1",
		Name: "catch",
		Steps: []*domain.Step{
			{
				ID: "step1",
				Catches: []*domain.Catch{
					{On: "", Steps: []*domain.Step{{ID: "handler"}}},
				},
			},
		},
	}
	tree, err := builder.Compile(m)
	require.NoError(t, err)

	step1, _ := tree.Node("step1")
	handler, ok := tree.Node("handler")
	require.True(t, ok)

	assert.Equal(t, step1, handler.ParentNode())
	assert.Equal(t, domain.LinkCatch, handler.LinkKind)
	assert.Contains(t, step1.ChildrenIn(domain.LinkCatch, "any_code"), handler)
}

func TestCompile_TimeoutAttachesAsTypedChild(t *testing.T) {
	m := &domain.Model{
		ID:   "m1",
		Name: "timeout",
		Steps: []*domain.Step{
			{
				ID: "step1",
				Timeout: []*domain.Timeout{
					{On: "10s", Steps: []*domain.Step{{ID: "ontimeout"}}},
				},
			},
		},
	}
	tree, err := builder.Compile(m)
	require.NoError(t, err)

	step1, _ := tree.Node("step1")
	onTimeout, ok := tree.Node("ontimeout")
	require.True(t, ok)

	assert.Equal(t, domain.LinkTimeout, onTimeout.LinkKind)
	assert.Equal(t, "10s", onTimeout.LinkLabel)
	assert.Len(t, step1.ChildrenIn(domain.LinkTimeout, "10s"), 1)
}

func TestCompile_BranchChildrenAreIndependentOfEachOther(t *testing.T) {
	m := &domain.Model{
		ID:   "m1",
		Name: "branches",
		Steps: []*domain.Step{
			{
				ID: "step1",
				Branches: []*domain.Branch{
					{ID: "b1", If: "x > 1", Steps: []*domain.Step{{ID: "b1s1"}}},
					{ID: "b2", Else: true, Steps: []*domain.Step{{ID: "b2s1"}}},
				},
			},
		},
	}
	tree, err := builder.Compile(m)
	require.NoError(t, err)

	b1, ok := tree.Node("b1")
	require.True(t, ok)
	b2, ok := tree.Node("b2")
	require.True(t, ok)

	assert.Nil(t, b1.NextNode(), "branches are parallel alternatives, not chained")
	step1, _ := tree.Node("step1")
	assert.Equal(t, step1, b1.ParentNode())
	assert.Equal(t, step1, b2.ParentNode())
}

func TestCompile_ActsTemplateCompilesAsNormalChild(t *testing.T) {
	m := &domain.Model{
		ID:   "m1",
		Name: "dispatch",
		Steps: []*domain.Step{
			{ID: "step1", Acts: []*domain.Act{
				{ID: "dispatch1", Uses: "core.parallel", Acts: []*domain.Act{
					{ID: "item", Uses: "core.irq"},
				}},
			}},
		},
	}
	tree, err := builder.Compile(m)
	require.NoError(t, err)

	dispatch, ok := tree.Node("dispatch1")
	require.True(t, ok)
	item, ok := tree.Node("item")
	require.True(t, ok)

	assert.Equal(t, dispatch, item.ParentNode())
	assert.Equal(t, domain.LinkNormal, item.LinkKind)
}

func TestCompile_RejectsEmptyModel(t *testing.T) {
	_, err := builder.Compile(&domain.Model{ID: "m1", Name: "empty"})
	assert.Error(t, err)
}
