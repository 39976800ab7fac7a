// Package scheduler runs recurring scans from the store and serves the
// operational IPC commands the stask CLI sends over the bus.
package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mtzanidakis/skopos/internal/config"
	"github.com/mtzanidakis/skopos/internal/natsbus"
	"github.com/mtzanidakis/skopos/internal/report"
	"github.com/mtzanidakis/skopos/internal/schedule"
	"github.com/mtzanidakis/skopos/internal/store"
	"github.com/mtzanidakis/skopos/internal/swarm"
)

// Notifier receives the outcome of a scheduled scan. A nil Notifier is
// fine; results are then only persisted and published.
type Notifier interface {
	ScanResult(scan store.Scan, sum *report.Summary, runErr error)
}

type Scheduler struct {
	store        *store.Store
	svc          *swarm.Service
	client       *natsbus.Client
	notifier     Notifier
	pollInterval time.Duration
	reloadCh     chan time.Duration
	wakeCh       chan struct{}
}

func New(st *store.Store, svc *swarm.Service, client *natsbus.Client, cfg config.SchedulerConfig, notifier Notifier) *Scheduler {
	return &Scheduler{
		store:        st,
		svc:          svc,
		client:       client,
		notifier:     notifier,
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan time.Duration, 1),
		wakeCh:       make(chan struct{}, 1),
	}
}

// UpdateConfig hands the run loop a new poll interval.
func (s *Scheduler) UpdateConfig(pollInterval time.Duration) {
	select {
	case s.reloadCh <- pollInterval:
	default:
	}
}

// Wake triggers an immediate poll. Callers that just created or removed a
// scan use it so changes take effect before the next tick.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	if err := s.subscribeIPC(); err != nil {
		slog.Error("scheduler ipc subscribe failed", "error", err)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case d := <-s.reloadCh:
			if d > 0 {
				s.pollInterval = d
				ticker.Reset(d)
			}
			slog.Info("scheduler config reloaded", "poll_interval", s.pollInterval)
		case <-s.wakeCh:
			s.poll(ctx)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	scans, err := s.store.GetDueScans(time.Now())
	if err != nil {
		slog.Error("failed to get due scans", "error", err)
		return
	}

	for _, scan := range scans {
		s.execute(ctx, scan)
	}
}

func (s *Scheduler) execute(ctx context.Context, scan store.Scan) {
	slog.Info("running scheduled scan", "id", scan.ID, "url", scan.URL)

	out, err := s.svc.Analyze(ctx, swarm.Request{
		URL:            scan.URL,
		CompetitorURLs: scan.CompetitorURLs,
		Industry:       scan.Industry,
	}, swarm.Callbacks{})

	var lastStatus, lastError string
	var score int
	var sum *report.Summary
	switch {
	case err != nil:
		lastStatus = "error"
		lastError = err.Error()
		slog.Error("scheduled scan failed", "id", scan.ID, "error", err)
	case !out.Result.Success:
		lastStatus = "partial"
		lastError = strings.Join(out.Result.Errors, "; ")
		sum = out.Summary
		score = sum.YourScore
	default:
		lastStatus = "success"
		sum = out.Summary
		score = sum.YourScore
	}

	nextRun := schedule.CalculateNextRun(scan.Schedule)

	if err := s.store.UpdateScanRun(scan.ID, lastStatus, lastError, score, nextRun); err != nil {
		slog.Error("failed to update scan run", "id", scan.ID, "error", err)
	}

	s.publishScanEvent(scan, lastStatus, score)

	if s.notifier != nil {
		s.notifier.ScanResult(scan, sum, err)
	}

	// A scan whose schedule cannot produce a next run would go hot on
	// every poll; retire it instead.
	if nextRun == nil {
		slog.Info("no next run, marking scan as completed", "id", scan.ID)
		if err := s.store.UpdateScanStatus(scan.ID, "completed"); err != nil {
			slog.Error("failed to complete scan", "id", scan.ID, "error", err)
		}
	}
}

func (s *Scheduler) publishScanEvent(scan store.Scan, status string, score int) {
	if s.client == nil {
		return
	}

	evt := map[string]any{
		"type":      "scan_executed",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"id":     scan.ID,
			"url":    scan.URL,
			"status": status,
			"score":  score,
		},
	}
	_ = s.client.PublishJSON(natsbus.TopicSystem, evt)
}
