package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	path := filepath.Join(t.TempDir(), fmt.Sprintf("test_%d.db", time.Now().UnixNano()))
	st, err := store.Open(context.Background(), store.Config{DSN: path}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewService(st, logger), st
}

func seedJobs(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	// One completed, one still pending, one belonging to another tenant.
	done, err := st.Enqueue(ctx, store.EnqueueRequest{JobType: "extract-menu", TenantID: "org-1"})
	require.NoError(t, err)
	_, err = st.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, st.Complete(ctx, done.ID, []byte(`{"items": 4}`)))

	_, err = st.Enqueue(ctx, store.EnqueueRequest{JobType: "clean-menu-csv", TenantID: "org-1"})
	require.NoError(t, err)
	_, err = st.Enqueue(ctx, store.EnqueueRequest{JobType: "extract-menu", TenantID: "org-2"})
	require.NoError(t, err)
}

func TestJobsCSV(t *testing.T) {
	svc, st := newTestService(t)
	seedJobs(t, st)

	out, err := svc.JobsCSV(context.Background(), "org-1", 100)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two org-1 jobs")
	assert.Equal(t, header, records[0])

	types := []string{records[1][1], records[2][1]}
	assert.Contains(t, types, "extract-menu")
	assert.Contains(t, types, "clean-menu-csv")
	assert.NotContains(t, string(out), "org-2")
}

func TestJobsCSVIncludesArchivedRows(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	job, err := st.Enqueue(ctx, store.EnqueueRequest{JobType: "extract-menu", TenantID: "org-1"})
	require.NoError(t, err)
	_, err = st.ClaimNext(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, st.Complete(ctx, job.ID, nil))

	moved, err := st.ArchiveTerminalBefore(ctx, st.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), moved)

	out, err := svc.JobsCSV(ctx, "org-1", 100)
	require.NoError(t, err)
	assert.Contains(t, string(out), job.ID)
}

func TestJobsXLSX(t *testing.T) {
	svc, st := newTestService(t)
	seedJobs(t, st)

	out, err := svc.JobsXLSX(context.Background(), "org-1", 100)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "Status", rows[0][2])
}

func TestExportEmptyTenant(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := svc.JobsCSV(context.Background(), "nobody", 100)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1, "header only")
}
