// Package poll implements the client side of the queue: adaptive-interval
// status polling against the job API until a job reaches a terminal state.
package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

// Fetcher retrieves job state. Client is the HTTP implementation; tests
// stub it.
type Fetcher interface {
	Status(ctx context.Context, id string) (model.StatusView, error)
	Get(ctx context.Context, id string) (*model.Job, error)
}

// Client calls the job API over HTTP.
type Client struct {
	BaseURL    string
	TenantID   string
	HTTPClient *http.Client
}

func NewClient(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		TenantID:   tenantID,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Tenant-ID", c.TenantID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("job api returned %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Status(ctx context.Context, id string) (model.StatusView, error) {
	var sv model.StatusView
	err := c.do(ctx, "/jobs/"+id+"/status", &sv)
	return sv, err
}

func (c *Client) Get(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	if err := c.do(ctx, "/jobs/"+id, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Poller waits for a job to finish, polling the lightweight status
// endpoint. The interval starts short and grows with elapsed wall-clock
// time up to a cap, so a five-minute job does not cost a request every
// two seconds. Transport errors back off independently and are never
// treated as job failures.
type Poller struct {
	Fetcher Fetcher

	// Initial is the first poll interval. Doubles every GrowEvery of
	// elapsed time, capped at Max.
	Initial   time.Duration
	Max       time.Duration
	GrowEvery time.Duration

	mu      sync.Mutex
	latest  model.StatusView
	job     *model.Job
	lastErr error
}

func NewPoller(f Fetcher) *Poller {
	return &Poller{
		Fetcher:   f,
		Initial:   2 * time.Second,
		Max:       30 * time.Second,
		GrowEvery: 30 * time.Second,
	}
}

// Wait polls until the job is terminal or ctx is cancelled. On a terminal
// status it fetches and returns the full record. Cancelling ctx stops
// polling immediately; the job itself keeps running server-side.
func (p *Poller) Wait(ctx context.Context, id string) (*model.Job, error) {
	start := time.Now()
	consecutiveErrs := 0

	for {
		sv, err := p.Fetcher.Status(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			consecutiveErrs++
			p.setErr(err)
			if !sleepCtx(ctx, p.errDelay(consecutiveErrs)) {
				return nil, ctx.Err()
			}
			continue
		}
		consecutiveErrs = 0
		p.setStatus(sv)

		if sv.Status.Terminal() {
			job, err := p.Fetcher.Get(ctx, id)
			if err != nil {
				// Terminal status already known; return that much.
				p.setErr(err)
				return nil, err
			}
			p.setJob(job)
			return job, nil
		}

		if !sleepCtx(ctx, p.Interval(time.Since(start))) {
			return nil, ctx.Err()
		}
	}
}

// Interval returns the poll delay for the given elapsed wait time.
func (p *Poller) Interval(elapsed time.Duration) time.Duration {
	initial, max, grow := p.Initial, p.Max, p.GrowEvery
	if initial <= 0 {
		initial = 2 * time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	if grow <= 0 {
		grow = 30 * time.Second
	}

	steps := float64(elapsed) / float64(grow)
	d := time.Duration(float64(initial) * math.Pow(2, steps))
	if d > max || d <= 0 {
		d = max
	}
	return d
}

func (p *Poller) errDelay(consecutive int) time.Duration {
	initial, max := p.Initial, p.Max
	if initial <= 0 {
		initial = 2 * time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	d := initial << (consecutive - 1)
	if d > max || d <= 0 {
		d = max
	}
	return d
}

// Latest returns the last observed status view.
func (p *Poller) Latest() model.StatusView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Job returns the full record once the job finished, nil before that.
func (p *Poller) Job() *model.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job
}

// LastError returns the most recent transport error, if any.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// IsComplete reports whether the job finished successfully.
func (p *Poller) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest.Status == model.StatusCompleted
}

// IsError reports whether the job ended in failure or cancellation.
func (p *Poller) IsError() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest.Status == model.StatusFailed || p.latest.Status == model.StatusCancelled
}

func (p *Poller) setStatus(sv model.StatusView) {
	p.mu.Lock()
	p.latest = sv
	p.lastErr = nil
	p.mu.Unlock()
}

func (p *Poller) setJob(j *model.Job) {
	p.mu.Lock()
	p.job = j
	p.mu.Unlock()
}

func (p *Poller) setErr(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
