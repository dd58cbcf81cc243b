package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/flowcore/internal/domain"
)

func TestStore_DeployBumpsVersionAndPreservesCreateTime(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &domain.ModelRow{ID: "m1", Name: "demo", Version: 1, CreateTime: created, UpdateTime: created}
	require.NoError(t, store.Deploy(ctx, first))

	row, err := store.Collection().LoadModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, row.Version)
	assert.Equal(t, created, row.CreateTime)

	redeployed := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	second := &domain.ModelRow{ID: "m1", Name: "demo v2", Version: 1, CreateTime: redeployed, UpdateTime: redeployed}
	require.NoError(t, store.Deploy(ctx, second))

	row, err = store.Collection().LoadModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, row.Version, "redeploying the same id should bump Version past the stored one")
	assert.Equal(t, created, row.CreateTime, "redeploying the same id should preserve the original CreateTime")
	assert.Equal(t, redeployed, row.UpdateTime)
}

func TestStore_DeployNewIDStoresAsGiven(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	row := &domain.ModelRow{ID: "m1", Name: "demo", Version: 1}
	require.NoError(t, store.Deploy(ctx, row))

	loaded, err := store.Collection().LoadModel(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
}
