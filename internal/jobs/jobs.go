// Package jobs runs queued batch analyses. Workers claim pending jobs from
// the store, analyze each URL in turn, and record per-URL results as they
// go, so partial progress survives a restart.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/skopos/internal/config"
	"github.com/mtzanidakis/skopos/internal/store"
	"github.com/mtzanidakis/skopos/internal/swarm"
)

const idlePoll = 5 * time.Second

type Runner struct {
	store   *store.Store
	svc     *swarm.Service
	workers int
	wake    chan struct{}
}

// URLResult is one entry of a job's results column.
type URLResult struct {
	URL        string `json:"url"`
	Success    bool   `json:"success"`
	Score      int    `json:"score,omitempty"`
	AnalysisID string `json:"analysis_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

func New(st *store.Store, svc *swarm.Service, cfg config.JobsConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Runner{
		store:   st,
		svc:     svc,
		workers: workers,
		wake:    make(chan struct{}, 8),
	}
}

// Enqueue stores a new pending job and nudges an idle worker.
func (r *Runner) Enqueue(urls []string, industry string) (*store.Job, error) {
	if len(urls) == 0 {
		return nil, errors.New("no urls provided")
	}

	job := &store.Job{
		ID:       uuid.NewString(),
		URLs:     urls,
		Industry: industry,
		Status:   "pending",
		Total:    len(urls),
	}
	if err := r.store.SaveJob(job); err != nil {
		return nil, err
	}

	select {
	case r.wake <- struct{}{}:
	default:
	}

	slog.Info("job enqueued", "id", job.ID, "urls", len(urls))
	return job, nil
}

// Start runs the worker pool until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	slog.Info("job workers started", "workers", r.workers)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	slog.Info("job workers stopped")
}

func (r *Runner) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := r.store.ClaimJob()
		if err != nil {
			slog.Error("claim job failed", "worker", id, "error", err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-r.wake:
			case <-time.After(idlePoll):
			}
			continue
		}

		r.process(ctx, id, job)
	}
}

func (r *Runner) process(ctx context.Context, worker int, job *store.Job) {
	slog.Info("processing job", "worker", worker, "id", job.ID, "urls", len(job.URLs))

	results := make([]URLResult, 0, len(job.URLs))
	completed, failed := 0, 0

	for _, u := range job.URLs {
		if ctx.Err() != nil {
			if err := r.store.FinishJob(job.ID, "failed", "interrupted by shutdown"); err != nil {
				slog.Error("finish interrupted job failed", "id", job.ID, "error", err)
			}
			return
		}

		out, err := r.svc.Analyze(ctx, swarm.Request{URL: u, Industry: job.Industry}, swarm.Callbacks{})
		if err != nil {
			failed++
			results = append(results, URLResult{URL: u, Error: err.Error()})
		} else {
			completed++
			results = append(results, URLResult{
				URL:        u,
				Success:    out.Result.Success,
				Score:      out.Summary.YourScore,
				AnalysisID: out.ID,
			})
		}

		raw, err := json.Marshal(results)
		if err != nil {
			slog.Error("marshal job results failed", "id", job.ID, "error", err)
			raw = nil
		}
		if err := r.store.UpdateJobProgress(job.ID, completed, failed, raw); err != nil {
			slog.Error("update job progress failed", "id", job.ID, "error", err)
		}
	}

	status := "completed"
	if failed > 0 && completed == 0 {
		status = "failed"
	}
	if err := r.store.FinishJob(job.ID, status, ""); err != nil {
		slog.Error("finish job failed", "id", job.ID, "error", err)
	}

	slog.Info("job finished", "worker", worker, "id", job.ID,
		"status", status, "completed", completed, "failed", failed)
}
