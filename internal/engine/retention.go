package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/config"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

// archivedKeepFactor keeps archived rows around several retention windows
// before they are dropped for good.
const archivedKeepFactor = 4

// Retention archives terminal jobs past the retention window and
// eventually deletes the archive itself.
type Retention struct {
	store *store.Store
	cfg   config.RetentionConfig
	log   *slog.Logger
}

func NewRetention(st *store.Store, cfg config.RetentionConfig, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{store: st, cfg: cfg, log: logger}
}

// Run cleans up on a fixed schedule until ctx is cancelled.
func (r *Retention) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("retention run failed", "error", err)
			}
		}
	}
}

// RunOnce archives and purges one batch. Returns rows archived and rows
// deleted from the archive.
func (r *Retention) RunOnce(ctx context.Context) (archived, purged int64, err error) {
	now := r.store.Now().UTC()

	archived, err = r.store.ArchiveTerminalBefore(ctx, now.Add(-r.cfg.KeepFor))
	if err != nil {
		return 0, 0, err
	}
	purged, err = r.store.DeleteArchivedBefore(ctx, now.Add(-archivedKeepFactor*r.cfg.KeepFor))
	if err != nil {
		return archived, 0, err
	}

	if archived > 0 || purged > 0 {
		r.log.Info("retention pass done", "archived", archived, "purged", purged)
	}
	return archived, purged, nil
}
