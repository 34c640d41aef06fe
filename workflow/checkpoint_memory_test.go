package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCheckpoint(workflowID string, superstep int) *Checkpoint {
	return &Checkpoint{
		WorkflowID:     workflowID,
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SuperstepIndex: superstep,
		PendingMessages: []MessageRecord{
			{TargetID: "sum", SourceID: "dispatcher", Payload: json.RawMessage(`[1,2,3]`), ProducedAt: superstep - 1},
		},
		SharedState: map[string]json.RawMessage{"k": json.RawMessage(`"v"`)},
		Metadata:    map[string]any{MetadataRunID: "run-1"},
		Version:     CheckpointSchemaVersion,
	}
}

func TestInMemoryCheckpointStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryCheckpointStore()

	cp := sampleCheckpoint("stats", 1)
	id, err := store.Save(ctx, cp)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Empty(t, cp.ID, "caller's checkpoint is not modified")

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID)
	assert.Equal(t, "stats", loaded.WorkflowID)
	assert.Equal(t, "run-1", loaded.RunID())
	assert.JSONEq(t, `[1,2,3]`, string(loaded.PendingMessages[0].Payload))

	// loaded copies are independent
	loaded.SharedState["k"] = json.RawMessage(`"changed"`)
	again, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `"v"`, string(again.SharedState["k"]))
}

func TestInMemoryCheckpointStore_AppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryCheckpointStore()

	cp := sampleCheckpoint("stats", 1)
	cp.ID = "fixed"
	_, err := store.Save(ctx, cp)
	require.NoError(t, err)

	_, err = store.Save(ctx, cp)
	assert.ErrorIs(t, err, ErrCheckpointExists)
}

func TestInMemoryCheckpointStore_LoadMissing(t *testing.T) {
	_, err := NewInMemoryCheckpointStore().Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestInMemoryCheckpointStore_ListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryCheckpointStore()

	third, err := store.Save(ctx, sampleCheckpoint("stats", 3))
	require.NoError(t, err)
	first, err := store.Save(ctx, sampleCheckpoint("stats", 1))
	require.NoError(t, err)
	other, err := store.Save(ctx, sampleCheckpoint("text", 2))
	require.NoError(t, err)

	ids, err := store.List(ctx, "stats")
	require.NoError(t, err)
	assert.Equal(t, []string{first, third}, ids)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{first, other, third}, all)
}

func TestInMemoryCheckpointStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryCheckpointStore()

	id, err := store.Save(ctx, sampleCheckpoint("stats", 1))
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}
