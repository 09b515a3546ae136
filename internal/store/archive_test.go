package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

func completeJob(t *testing.T, st *Store, id string) {
	t.Helper()
	ctx := context.Background()
	for {
		j, err := st.ClaimNext(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, j, "no claimable job while completing %s", id)
		if j.ID == id {
			require.NoError(t, st.Complete(ctx, id, nil))
			return
		}
		require.NoError(t, st.Complete(ctx, j.ID, nil))
	}
}

func TestArchiveTerminalBefore(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()

	oldJob := mustEnqueue(t, st, EnqueueRequest{TenantID: "org-1"})
	completeJob(t, st, oldJob)

	clock.Advance(48 * time.Hour)
	freshJob := mustEnqueue(t, st, EnqueueRequest{TenantID: "org-1"})
	completeJob(t, st, freshJob)
	pendingJob := mustEnqueue(t, st, EnqueueRequest{TenantID: "org-1"})

	archived, err := st.ArchiveTerminalBefore(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	// Old terminal row moved, fresh and pending rows untouched.
	_, err = st.Get(ctx, oldJob)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ctx, freshJob)
	require.NoError(t, err)
	_, err = st.Get(ctx, pendingJob)
	require.NoError(t, err)

	rows, err := st.ListArchived(ctx, "org-1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, oldJob, rows[0].ID)
	assert.Equal(t, model.StatusCompleted, rows[0].Status)
}

func TestDeleteArchivedBefore(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()

	id := mustEnqueue(t, st, EnqueueRequest{TenantID: "org-1"})
	completeJob(t, st, id)

	clock.Advance(24 * time.Hour)
	_, err := st.ArchiveTerminalBefore(ctx, clock.Now())
	require.NoError(t, err)

	n, err := st.DeleteArchivedBefore(ctx, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	clock.Advance(24 * time.Hour)
	n, err = st.DeleteArchivedBefore(ctx, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := st.ListArchived(ctx, "org-1", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReset(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()

	id := mustEnqueue(t, st, EnqueueRequest{TenantID: "org-1"})
	completeJob(t, st, id)
	clock.Advance(time.Hour)
	_, err := st.ArchiveTerminalBefore(ctx, clock.Now())
	require.NoError(t, err)
	mustEnqueue(t, st, EnqueueRequest{TenantID: "org-1"})

	require.NoError(t, st.Reset(ctx))

	stats, err := st.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
	rows, err := st.ListArchived(ctx, "org-1", 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
