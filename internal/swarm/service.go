package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/skopos/internal/agent"
	"github.com/mtzanidakis/skopos/internal/event"
	"github.com/mtzanidakis/skopos/internal/natsbus"
	"github.com/mtzanidakis/skopos/internal/report"
	"github.com/mtzanidakis/skopos/internal/store"
)

// ServiceOptions bound what one analysis run may ask for.
type ServiceOptions struct {
	MaxCompetitors int
	Language       string
}

// Service runs complete analyses: it builds a fresh orchestrator per run,
// streams events to the caller and the bus, persists the outcome, and
// returns the report. A Service is safe for concurrent Analyze calls since
// every run gets its own agent set.
type Service struct {
	store   *store.Store
	client  *natsbus.Client
	fetcher agent.Fetcher
	opts    ServiceOptions

	mu     sync.Mutex
	active map[string]ActiveRun
}

// ActiveRun describes one analysis currently in flight.
type ActiveRun struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
}

// RunOutcome is what one finished analysis run produced. ID identifies both
// the live event topic and the persisted analysis row.
type RunOutcome struct {
	ID      string
	Result  *Result
	Summary *report.Summary
}

func NewService(st *store.Store, client *natsbus.Client, fetcher agent.Fetcher, opts ServiceOptions) *Service {
	if opts.MaxCompetitors <= 0 {
		opts.MaxCompetitors = 5
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	return &Service{
		store:   st,
		client:  client,
		fetcher: fetcher,
		opts:    opts,
		active:  make(map[string]ActiveRun),
	}
}

// Roster returns the presentation card of every pipeline agent.
func (s *Service) Roster() []agent.Info {
	var infos []agent.Info
	for _, a := range agent.DefaultSet(s.fetcher) {
		infos = append(infos, a.Info())
	}
	return infos
}

// MaxCompetitors returns the per-run competitor cap.
func (s *Service) MaxCompetitors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.MaxCompetitors
}

// UpdateOptions swaps the run limits. Runs already in flight keep the
// values they started with.
func (s *Service) UpdateOptions(opts ServiceOptions) {
	if opts.MaxCompetitors <= 0 {
		opts.MaxCompetitors = 5
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// ExecutionPlan returns the tier layout the agents run in, one slice of
// agent IDs per tier.
func (s *Service) ExecutionPlan() [][]string {
	plan, err := BuildPlan(agent.DefaultSet(s.fetcher))
	if err != nil {
		return nil
	}
	tiers := make([][]string, 0, len(plan.Tiers))
	for _, t := range plan.Tiers {
		tiers = append(tiers, t.Agents)
	}
	return tiers
}

// ActiveRuns lists analyses currently in flight, oldest first.
func (s *Service) ActiveRuns() []ActiveRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	runs := make([]ActiveRun, 0, len(s.active))
	for _, r := range s.active {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	return runs
}

func (s *Service) trackRun(runID, url string) func() {
	s.mu.Lock()
	s.active[runID] = ActiveRun{ID: runID, URL: url, StartedAt: time.Now()}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.active, runID)
		s.mu.Unlock()
	}
}

// Analyze runs the full pipeline for one site. Caller callbacks fire as
// events happen; the same events are published on the run's bus topic for
// detached observers. Persistence is best effort: a storage failure is
// logged, never surfaced as an analysis failure.
func (s *Service) Analyze(ctx context.Context, req Request, cb Callbacks) (*RunOutcome, error) {
	if req.URL == "" {
		return nil, errors.New("url is required")
	}
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()
	if len(req.CompetitorURLs) > opts.MaxCompetitors {
		return nil, fmt.Errorf("too many competitors: %d (max %d)", len(req.CompetitorURLs), opts.MaxCompetitors)
	}
	if req.Language == "" {
		req.Language = opts.Language
	}

	runID := uuid.NewString()
	defer s.trackRun(runID, req.URL)()

	o, err := New(agent.DefaultSet(s.fetcher))
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	o.SetCallbacks(Callbacks{
		OnInsight: func(ins event.Insight) {
			if cb.OnInsight != nil {
				cb.OnInsight(ins)
			}
			s.publishEvent(runID, "new_insight", ins)
		},
		OnProgress: func(p event.Progress) {
			if cb.OnProgress != nil {
				cb.OnProgress(p)
			}
			s.publishEvent(runID, "agent_progress", p)
		},
		OnStatus: func(sc event.StatusChange) {
			if cb.OnStatus != nil {
				cb.OnStatus(sc)
			}
			s.publishEvent(runID, "agent_status_change", sc)
		},
	})

	slog.Info("starting analysis", "run", runID, "url", req.URL, "competitors", len(req.CompetitorURLs))
	s.publishEvent(runID, "analysis_started", map[string]any{
		"url":         req.URL,
		"competitors": req.CompetitorURLs,
	})

	res, err := o.Run(ctx, req)
	if err != nil {
		s.publishEvent(runID, "analysis_error", map[string]any{"error": err.Error()})
		return nil, err
	}

	sum := report.Build(res.Results, res.Errors, res.Duration)
	s.persist(runID, req, res, sum)

	s.publishEvent(runID, "analysis_complete", sum)
	s.publishSystem(runID, req.URL, sum)

	slog.Info("analysis finished", "run", runID, "url", req.URL,
		"success", res.Success, "score", sum.YourScore, "duration", res.Duration)

	return &RunOutcome{ID: runID, Result: res, Summary: sum}, nil
}

func (s *Service) persist(runID string, req Request, res *Result, sum *report.Summary) {
	if s.store == nil {
		return
	}

	raw, err := json.Marshal(sum)
	if err != nil {
		slog.Warn("marshal summary failed", "run", runID, "error", err)
		raw = nil
	}

	a := &store.Analysis{
		ID:         runID,
		URL:        req.URL,
		UserID:     req.UserID,
		Industry:   req.Industry,
		Success:    res.Success,
		Score:      sum.YourScore,
		Summary:    raw,
		Errors:     res.Errors,
		DurationMS: res.Duration.Milliseconds(),
	}
	if err := s.store.SaveAnalysis(a); err != nil {
		slog.Warn("persist analysis failed", "run", runID, "error", err)
		return
	}
	if err := s.store.SaveInsights(runID, res.Insights); err != nil {
		slog.Warn("persist insights failed", "run", runID, "error", err)
	}
}

func (s *Service) publishEvent(runID, eventType string, data any) {
	if s.client == nil {
		return
	}

	evt := map[string]any{
		"type":      eventType,
		"run_id":    runID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	}
	_ = s.client.PublishJSON(natsbus.TopicRunEvents(runID), evt)
}

func (s *Service) publishSystem(runID, url string, sum *report.Summary) {
	if s.client == nil {
		return
	}

	evt := map[string]any{
		"type":      "analysis_complete",
		"run_id":    runID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"url":     url,
			"success": sum.Success,
			"score":   sum.YourScore,
		},
	}
	_ = s.client.PublishJSON(natsbus.TopicSystem, evt)
}
