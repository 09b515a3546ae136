package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

func newTestStore(t *testing.T) (*store.Store, *fakeClock) {
	t.Helper()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("test_%d.db", time.Now().UnixNano()))
	st, err := store.Open(context.Background(), store.Config{DSN: path}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := &fakeClock{now: time.Now().UTC()}
	st.Now = clock.Now
	return st, clock
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// waitForStatus polls until the job reaches want or the deadline passes.
func waitForStatus(t *testing.T, st *store.Store, id string, want model.Status, deadline time.Duration) *model.Job {
	t.Helper()
	ctx := context.Background()
	end := time.Now().Add(deadline)
	for {
		j, err := st.Get(ctx, id)
		require.NoError(t, err)
		if j.Status == want {
			return j
		}
		if time.Now().After(end) {
			t.Fatalf("job %s stuck in %s, want %s", id, j.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
