package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/config"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/policy"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/store"
)

// Worker runs a pool of claim-and-execute loops. Coordination with other
// worker processes happens entirely through the store's conditional
// updates; the pool size is the concurrency cap for this process.
type Worker struct {
	store   *store.Store
	reg     *Registry
	backoff policy.Backoff
	cfg     config.WorkerConfig
	log     *slog.Logger
}

func NewWorker(st *store.Store, reg *Registry, backoff policy.Backoff, cfg config.WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	return &Worker{store: st, reg: reg, backoff: backoff, cfg: cfg, log: logger}
}

// Run starts the pool and blocks until ctx is cancelled. After
// cancellation no new jobs are claimed; in-flight jobs get the shutdown
// grace period and are otherwise abandoned for the sweeper to requeue.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Count; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.loop(ctx, n)
		}(i)
	}

	<-ctx.Done()
	w.log.Info("worker pool draining", "grace", w.cfg.ShutdownGrace)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.log.Info("worker pool stopped")
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("shutdown grace expired, abandoning in-flight jobs")
	}
}

func (w *Worker) loop(ctx context.Context, n int) {
	log := w.log.With("worker", n)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.store.ClaimNext(ctx, w.reg.Types())
		if err != nil {
			log.Error("claim failed", "error", err)
			sleep(ctx, w.cfg.PollInterval)
			continue
		}
		if job == nil {
			sleep(ctx, w.cfg.PollInterval)
			continue
		}

		log.Info("claimed job", "job_id", job.ID, "job_type", job.JobType, "attempt", job.Retries+1)
		w.execute(job, log)
	}
}

// execute runs one claimed job to a store transition. The handler context
// is detached from the pool context: shutdown must not fail a job that
// could still finish within the grace period.
func (w *Worker) execute(job *model.Job, log *slog.Logger) {
	hctx, cancel := context.WithTimeout(context.Background(), w.cfg.ExecTimeout)
	defer cancel()

	hbDone := make(chan struct{})
	go w.heartbeat(hctx, cancel, job.ID, hbDone)

	result, err := w.run(hctx, job)
	close(hbDone)

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()

	if err == nil {
		if cerr := w.store.Complete(sctx, job.ID, result); cerr != nil {
			// Job was cancelled or reclaimed while running; its result
			// is discarded.
			log.Warn("discarding result", "job_id", job.ID, "error", cerr)
			return
		}
		log.Info("job completed", "job_id", job.ID)
		return
	}

	kind, retryable := policy.Classify(err)
	delay := w.backoff.DelayFor(kind, job.Retries+1)
	requeued, ferr := w.store.Fail(sctx, job.ID, kind, err.Error(), retryable, delay)
	if ferr != nil {
		log.Warn("fail transition rejected", "job_id", job.ID, "error", ferr)
		return
	}
	if requeued {
		log.Info("job scheduled for retry", "job_id", job.ID, "kind", kind,
			"attempt", job.Retries+1, "delay", delay)
		return
	}
	log.Warn("job failed", "job_id", job.ID, "kind", kind, "error", err)
}

// run invokes the handler, converting panics into classified errors so a
// misbehaving handler cannot take the loop down.
func (w *Worker) run(ctx context.Context, job *model.Job) (result []byte, err error) {
	h, ok := w.reg.Handler(job.JobType)
	if !ok {
		return nil, policy.Fatal(model.KindValidation, fmt.Errorf("no handler registered for %q", job.JobType))
	}

	defer func() {
		if r := recover(); r != nil {
			err = policy.Retryable(model.KindProcessKilled, fmt.Errorf("handler panicked: %v", r))
		}
	}()

	result, err = h(ctx, job)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return result, err
}

// heartbeat refreshes liveness while the handler runs. A rejected
// heartbeat means the row left in_progress under us (cancel or sweeper
// requeue), so the handler context is cancelled to stop wasted work.
func (w *Worker) heartbeat(ctx context.Context, cancel context.CancelFunc, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, jobID); err != nil {
				if errors.Is(err, store.ErrConflict) {
					w.log.Info("job no longer running, cancelling handler", "job_id", jobID)
					cancel()
					return
				}
				w.log.Warn("heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
