package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritest/veritest/internal/db"
	"github.com/veritest/veritest/internal/model"
	"github.com/veritest/veritest/internal/stuckloop"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "veritest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewStore(conn)
}

func sampleCheckpoint() *Checkpoint {
	return &Checkpoint{
		SessionID:     "sess-roundtrip",
		Mode:          model.ModeGenerate,
		Stage:         model.StageClassify,
		Iteration:     2,
		MaxIterations: 5,
		Input:         model.Input{Requirement: "discount calculator"},
		Scenarios:     "1. regular customer\n2. premium customer",
		Artifact: model.Artifact{
			Implementation: "def calculate_discount(price):\n    return price",
			Tests:          "def test_zero():\n    assert calculate_discount(0) == 0",
		},
		LastResult: &model.SandboxResult{
			Passed:       3,
			Failed:       1,
			FailingCases: []string{"test_zero"},
			Output:       "1 failed, 3 passed",
		},
		LastClassification: &model.Classification{
			Kind:       model.KindTestBug,
			Confidence: 80,
			Rationale:  "assertion expects the wrong value",
		},
		SignatureHistory: []stuckloop.FailureSignature{
			stuckloop.Signature([]string{"test_zero"}),
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	cp := sampleCheckpoint()
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, cp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, cp.SessionID, loaded.SessionID)
	assert.Equal(t, cp.Mode, loaded.Mode)
	assert.Equal(t, cp.Stage, loaded.Stage)
	assert.Equal(t, cp.Iteration, loaded.Iteration)
	assert.Equal(t, cp.Input, loaded.Input)
	assert.Equal(t, cp.Scenarios, loaded.Scenarios)
	assert.Equal(t, cp.Artifact, loaded.Artifact)
	assert.Equal(t, cp.LastResult, loaded.LastResult)
	assert.Equal(t, cp.LastClassification, loaded.LastClassification)
	assert.Equal(t, cp.SignatureHistory, loaded.SignatureHistory)
}

func TestSaveReplacesAtomically(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	cp := sampleCheckpoint()
	require.NoError(t, store.Save(ctx, cp))

	cp.Stage = model.StageDone
	cp.Status = model.StatusCodeBug
	cp.Iteration = 3
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, cp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, loaded.Stage)
	assert.Equal(t, model.StatusCodeBug, loaded.Status)
	assert.Equal(t, 3, loaded.Iteration)
}

func TestLoadMissingSession(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.Load(context.Background(), "sess-missing")
	require.ErrorIs(t, err, ErrNoSuchSession)
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	cp := sampleCheckpoint()
	require.NoError(t, store.Save(ctx, cp))
	require.NoError(t, store.Delete(ctx, cp.SessionID))
	require.NoError(t, store.Delete(ctx, cp.SessionID))

	_, err := store.Load(ctx, cp.SessionID)
	require.ErrorIs(t, err, ErrNoSuchSession)
}

func TestAcquireRejectsConcurrentOwner(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	release, err := store.Acquire("sess-busy")
	require.NoError(t, err)

	_, err = store.Acquire("sess-busy")
	require.ErrorIs(t, err, ErrSessionBusy)

	// Other sessions are unaffected.
	otherRelease, err := store.Acquire("sess-other")
	require.NoError(t, err)
	otherRelease()

	release()
	release2, err := store.Acquire("sess-busy")
	require.NoError(t, err)
	release2()
}

func TestAppendEventOrdering(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	cp := sampleCheckpoint()
	cp.SessionID = "sess-events"
	require.NoError(t, store.Save(ctx, cp))

	seq, err := store.AppendEvent(ctx, cp.SessionID, model.StageIntake, "intake recorded")
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
	seq, err = store.AppendEvent(ctx, cp.SessionID, model.StageGenerateCandidate, "candidate generated")
	require.NoError(t, err)
	assert.Equal(t, 2, seq)
	seq, err = store.AppendEvent(ctx, cp.SessionID, model.StageExecute, "sandbox run finished")
	require.NoError(t, err)
	assert.Equal(t, 3, seq)

	events, err := store.ListEvents(ctx, cp.SessionID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
	}
	assert.Equal(t, model.StageIntake, events[0].Stage)
	assert.Equal(t, model.StageExecute, events[2].Stage)
}

func TestPruneKeepsRunningAndRecentSessions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	running := sampleCheckpoint()
	running.SessionID = "sess-running"
	require.NoError(t, store.Save(ctx, running))

	for _, id := range []string{"sess-old-1", "sess-old-2", "sess-old-3"} {
		cp := sampleCheckpoint()
		cp.SessionID = id
		cp.Stage = model.StageDone
		cp.Status = model.StatusSuccess
		require.NoError(t, store.Save(ctx, cp))
		time.Sleep(2 * time.Millisecond)
	}

	res, err := store.Prune(ctx, RetentionPolicy{KeepLast: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Considered)
	assert.Equal(t, 1, res.Kept)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, 1, res.Skipped)

	_, err = store.Load(ctx, "sess-running")
	require.NoError(t, err)
}
