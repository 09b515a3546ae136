package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/config"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

// Sweeper repairs jobs whose worker died mid-execution. A stale heartbeat
// is the only signal: a job stuck in_progress past the threshold is either
// returned to pending or, once its recovery budget is spent, failed as
// orphaned. The conditional updates in the store make a double sweep a
// no-op.
type Sweeper struct {
	store *store.Store
	cfg   config.SweeperConfig
	log   *slog.Logger
}

func NewSweeper(st *store.Store, cfg config.SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: st, cfg: cfg, log: logger}
}

// Run sweeps on a fixed schedule until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce performs a single scan. Returns how many jobs were requeued
// and how many were terminally failed as orphaned.
func (s *Sweeper) SweepOnce(ctx context.Context) (requeued, orphaned int, err error) {
	stale, err := s.store.FindStale(ctx, s.cfg.StaleAfter)
	if err != nil {
		return 0, 0, fmt.Errorf("find stale: %w", err)
	}
	if len(stale) == 0 {
		return 0, 0, nil
	}

	staleBefore := s.store.Now().UTC().Add(-s.cfg.StaleAfter)
	for _, j := range stale {
		if j.Recoveries < s.cfg.RecoveryLimit {
			ok, rerr := s.store.Requeue(ctx, j.ID, staleBefore)
			if rerr != nil {
				s.log.Error("requeue failed", "job_id", j.ID, "error", rerr)
				continue
			}
			if ok {
				requeued++
				s.log.Warn("recovered orphan job", "job_id", j.ID,
					"job_type", j.JobType, "recoveries", j.Recoveries+1)
			}
			continue
		}

		msg := fmt.Sprintf("worker heartbeat lost %d times; recovery limit %d reached",
			j.Recoveries+1, s.cfg.RecoveryLimit)
		ok, ferr := s.store.FailOrphaned(ctx, j.ID, staleBefore, msg)
		if ferr != nil {
			s.log.Error("orphan fail failed", "job_id", j.ID, "error", ferr)
			continue
		}
		if ok {
			orphaned++
			s.log.Error("orphan job failed permanently", "job_id", j.ID, "job_type", j.JobType)
		}
	}
	return requeued, orphaned, nil
}
