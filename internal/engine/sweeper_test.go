package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/config"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

func testSweeperConfig() config.SweeperConfig {
	return config.SweeperConfig{
		Interval:      time.Minute,
		StaleAfter:    30 * time.Second,
		RecoveryLimit: 3,
	}
}

// A claimed job whose worker never heartbeats again goes back to pending
// once the stale threshold passes, and can be claimed again.
func TestSweeperRequeuesStaleJob(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()

	job, err := st.Enqueue(ctx, store.EnqueueRequest{JobType: "extract-menu", TenantID: "org-1"})
	require.NoError(t, err)
	claimed, err := st.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	sw := NewSweeper(st, testSweeperConfig(), testLogger())

	// Heartbeat still fresh: nothing to do.
	requeued, orphaned, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Zero(t, orphaned)

	clock.Advance(31 * time.Second)
	requeued, orphaned, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Zero(t, orphaned)

	got, err := st.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 1, got.Recoveries)
	assert.Equal(t, 0, got.Retries, "recovery does not consume a retry")

	reclaimed, err := st.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
}

// Sweeping twice with no intervening claims changes nothing the second
// time.
func TestSweeperIdempotent(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()

	job, err := st.Enqueue(ctx, store.EnqueueRequest{JobType: "extract-menu", TenantID: "org-1"})
	require.NoError(t, err)
	_, err = st.ClaimNext(ctx, nil)
	require.NoError(t, err)

	sw := NewSweeper(st, testSweeperConfig(), testLogger())
	clock.Advance(31 * time.Second)

	requeued, _, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	first, err := st.Get(ctx, job.ID)
	require.NoError(t, err)

	requeued, orphaned, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Zero(t, orphaned)

	second, err := st.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Recoveries, second.Recoveries)
}

// Once the recovery budget is spent the job fails permanently with the
// orphaned kind.
func TestSweeperOrphansAfterRecoveryLimit(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()

	cfg := testSweeperConfig()
	cfg.RecoveryLimit = 1
	sw := NewSweeper(st, cfg, testLogger())

	job, err := st.Enqueue(ctx, store.EnqueueRequest{JobType: "extract-menu", TenantID: "org-1"})
	require.NoError(t, err)

	// First crash: recovered.
	_, err = st.ClaimNext(ctx, nil)
	require.NoError(t, err)
	clock.Advance(31 * time.Second)
	requeued, orphaned, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Zero(t, orphaned)

	// Second crash: budget spent.
	_, err = st.ClaimNext(ctx, nil)
	require.NoError(t, err)
	clock.Advance(31 * time.Second)
	requeued, orphaned, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Equal(t, 1, orphaned)

	got, err := st.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, model.KindOrphaned, got.ErrorKind)
	assert.NotEmpty(t, got.ErrorMessage)
}

// A live worker's heartbeat keeps its job out of the sweep.
func TestSweeperSkipsHeartbeatingJob(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()

	job, err := st.Enqueue(ctx, store.EnqueueRequest{JobType: "extract-menu", TenantID: "org-1"})
	require.NoError(t, err)
	_, err = st.ClaimNext(ctx, nil)
	require.NoError(t, err)

	clock.Advance(29 * time.Second)
	require.NoError(t, st.Heartbeat(ctx, job.ID))
	clock.Advance(29 * time.Second)

	sw := NewSweeper(st, testSweeperConfig(), testLogger())
	requeued, orphaned, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Zero(t, orphaned)

	got, err := st.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Status)
}

func TestRetentionArchivesOldTerminalJobs(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()

	job, err := st.Enqueue(ctx, store.EnqueueRequest{JobType: "extract-menu", TenantID: "org-1"})
	require.NoError(t, err)
	_, err = st.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, st.Complete(ctx, job.ID, nil))

	ret := NewRetention(st, config.RetentionConfig{Interval: time.Hour, KeepFor: 24 * time.Hour}, testLogger())

	archived, purged, err := ret.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, archived, "still inside the retention window")
	assert.Zero(t, purged)

	clock.Advance(25 * time.Hour)
	archived, purged, err = ret.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)
	assert.Zero(t, purged)

	_, err = st.Get(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Archived rows are purged after the long bound.
	clock.Advance(4*24*time.Hour + time.Minute)
	_, purged, err = ret.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
