package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloom/inferloom/internal/blackboard"
	"github.com/inferloom/inferloom/internal/workspace"
	"github.com/inferloom/inferloom/reference"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleState(value int) State {
	bb := blackboard.New()
	bb.SetConceptValue("A", reference.NewScalar(value))
	ws := workspace.New()
	return Snapshot(bb, ws)
}

func TestStoreCheckpointAndLoadLatestRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Checkpoint(ctx, "run-1", 1, 5, sampleState(1)))
	require.NoError(t, store.Checkpoint(ctx, "run-1", 2, 9, sampleState(2)))

	state, cycle, count, err := store.LoadLatest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cycle)
	assert.Equal(t, 9, count)

	bb, _ := Hydrate(state)
	v, err := bb.ValueOfConcept("A")
	require.NoError(t, err)
	assert.Equal(t, []any{2}, v.Data)
}

func TestStoreCheckpointOverwritesSameKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Checkpoint(ctx, "run-1", 1, 1, sampleState(1)))
	require.NoError(t, store.Checkpoint(ctx, "run-1", 1, 1, sampleState(99)))

	state, err := store.LoadAt(ctx, "run-1", 1, 1)
	require.NoError(t, err)
	bb, _ := Hydrate(state)
	v, err := bb.ValueOfConcept("A")
	require.NoError(t, err)
	assert.Equal(t, []any{99}, v.Data)

	refs, err := store.ListCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, refs, 1, "overwriting the same (run_id, cycle, inference_count) key must not create a duplicate row")
}

func TestStoreLoadAtExactKey(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Checkpoint(ctx, "run-1", 1, 3, sampleState(7)))
	require.NoError(t, store.Checkpoint(ctx, "run-1", 2, 1, sampleState(8)))

	state, err := store.LoadAt(ctx, "run-1", 1, 3)
	require.NoError(t, err)
	bb, _ := Hydrate(state)
	v, err := bb.ValueOfConcept("A")
	require.NoError(t, err)
	assert.Equal(t, []any{7}, v.Data)
}

func TestStoreListCheckpointsOrdersByCycleThenInferenceCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Checkpoint(ctx, "run-1", 2, 1, sampleState(1)))
	require.NoError(t, store.Checkpoint(ctx, "run-1", 1, 5, sampleState(2)))
	require.NoError(t, store.Checkpoint(ctx, "run-1", 1, 2, sampleState(3)))

	refs, err := store.ListCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, CheckpointRef{Cycle: 1, InferenceCount: 2}, CheckpointRef{Cycle: refs[0].Cycle, InferenceCount: refs[0].InferenceCount})
	assert.Equal(t, CheckpointRef{Cycle: 1, InferenceCount: 5}, CheckpointRef{Cycle: refs[1].Cycle, InferenceCount: refs[1].InferenceCount})
	assert.Equal(t, CheckpointRef{Cycle: 2, InferenceCount: 1}, CheckpointRef{Cycle: refs[2].Cycle, InferenceCount: refs[2].InferenceCount})
}

func TestStoreCheckpointsAreIsolatedPerRunID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Checkpoint(ctx, "run-a", 1, 1, sampleState(1)))
	require.NoError(t, store.Checkpoint(ctx, "run-b", 1, 1, sampleState(2)))

	refsA, err := store.ListCheckpoints(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, refsA, 1)

	refsB, err := store.ListCheckpoints(ctx, "run-b")
	require.NoError(t, err)
	assert.Len(t, refsB, 1)
}

func TestStoreForkCopiesCheckpointsUpToCycleUnderNewRunID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Checkpoint(ctx, "source", 1, 1, sampleState(1)))
	require.NoError(t, store.Checkpoint(ctx, "source", 2, 1, sampleState(2)))
	require.NoError(t, store.Checkpoint(ctx, "source", 3, 1, sampleState(3)))

	require.NoError(t, store.Fork(ctx, "source", 2, "forked"))

	refs, err := store.ListCheckpoints(ctx, "forked")
	require.NoError(t, err)
	require.Len(t, refs, 2, "fork must copy only checkpoints at or before the given cycle")
	assert.Equal(t, 1, refs[0].Cycle)
	assert.Equal(t, 2, refs[1].Cycle)

	// Source run is untouched by the fork.
	sourceRefs, err := store.ListCheckpoints(ctx, "source")
	require.NoError(t, err)
	assert.Len(t, sourceRefs, 3)
}

func TestStoreForkedRunDivergesFromSourceAfterFork(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Checkpoint(ctx, "source", 1, 1, sampleState(1)))
	require.NoError(t, store.Fork(ctx, "source", 1, "forked"))
	require.NoError(t, store.Checkpoint(ctx, "forked", 2, 1, sampleState(2)))

	sourceRefs, err := store.ListCheckpoints(ctx, "source")
	require.NoError(t, err)
	assert.Len(t, sourceRefs, 1, "writes to the forked run must not leak back to the source run")
}

func TestStoreRecordExecutionStartThenComplete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.RecordExecutionStart(ctx, "run-1", 1, "1.2"))
	require.NoError(t, store.RecordExecutionComplete(ctx, "run-1", 1, "1.2", "complete", "success", ""))
}

func TestStoreAppendLogPersistsMsgpackPayload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AppendLog(ctx, "run-1", 1, "1.2", "dispatch", "info", map[string]any{"note": "started"}))
}
