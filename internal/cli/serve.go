package cli

import (
	"log/slog"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/config"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/engine"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/policy"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/server"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

func newBackoff(cfg config.BackoffConfig) policy.Backoff {
	return policy.Backoff{
		Base:          cfg.Base,
		Multiplier:    cfg.Multiplier,
		Max:           cfg.Max,
		JitterPercent: cfg.JitterPercent,
		Rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewServeCmd runs the full service: job API, worker pool, orphan
// sweeper and retention in one process.
func NewServeCmd(st *store.Store, reg *engine.Registry, cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job API with workers, sweeper and retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !noWorker {
				w := engine.NewWorker(st, reg, newBackoff(cfg.Backoff), cfg.Worker, logger)
				go w.Run(ctx)
				go engine.NewSweeper(st, cfg.Sweeper, logger).Run(ctx)
				go engine.NewRetention(st, cfg.Retention, logger).Run(ctx)
			}

			srv := server.New(st, reg, cfg.Server, cfg.Worker.DefaultMaxRetries, logger)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API only, without background workers")
	return cmd
}

// NewWorkerCmd runs workers and the sweeper without the API, for scaling
// execution capacity independently of the HTTP boundary.
func NewWorkerCmd(st *store.Store, reg *engine.Registry, cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a worker pool and orphan sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			wcfg := cfg.Worker
			if count > 0 {
				wcfg.Count = count
			}

			go engine.NewSweeper(st, cfg.Sweeper, logger).Run(ctx)

			logger.Info("starting workers", "count", wcfg.Count, "types", reg.Types())
			engine.NewWorker(st, reg, newBackoff(cfg.Backoff), wcfg, logger).Run(ctx)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "number of workers (defaults to MENUQ_WORKER_COUNT)")
	return cmd
}

// NewSweepCmd runs a single orphan recovery pass.
func NewSweepCmd(st *store.Store, cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one orphan recovery pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			requeued, orphaned, err := engine.NewSweeper(st, cfg.Sweeper, logger).SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("requeued %d, orphaned %d\n", requeued, orphaned)
			return nil
		},
	}
}

// NewCleanupCmd runs a single retention pass.
func NewCleanupCmd(st *store.Store, cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Archive and purge old terminal jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			archived, purged, err := engine.NewRetention(st, cfg.Retention, logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("archived %d, purged %d\n", archived, purged)
			return nil
		},
	}
}
