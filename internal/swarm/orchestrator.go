// Package swarm runs the analysis agents as a tiered pipeline and exposes
// the analysis service the rest of the application calls into.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtzanidakis/skopos/internal/agent"
	"github.com/mtzanidakis/skopos/internal/event"
)

// Request carries the inputs to one analysis run.
type Request struct {
	URL            string   `json:"url"`
	CompetitorURLs []string `json:"competitor_urls"`
	Industry       string   `json:"industry"`
	Language       string   `json:"language"`
	UserID         string   `json:"user_id"`
}

// Callbacks receive agent events as they happen. They are invoked from the
// goroutine of whichever agent emitted the event, so implementations must
// be safe for concurrent use.
type Callbacks struct {
	OnInsight  func(event.Insight)
	OnProgress func(event.Progress)
	OnStatus   func(event.StatusChange)
}

// Result is the outcome of one orchestration run. Success means every agent
// completed; Results only ever holds entries for agents that did.
type Result struct {
	Success         bool
	Duration        time.Duration
	AgentsCompleted int
	AgentsFailed    int
	Results         map[string]any
	Errors          []string
	Insights        []event.Insight
	Events          []event.Event
}

// Orchestrator executes a fixed agent set tier by tier. Agents within a tier
// run concurrently; a tier starts only after the previous one fully joined.
// A failed agent never aborts the run: its result is simply absent and
// downstream agents degrade.
//
// An Orchestrator serves one run at a time. Reset returns it to a fresh
// state for sequential reuse.
type Orchestrator struct {
	agents []agent.Agent
	byID   map[string]agent.Agent
	plan   *Plan
	cb     Callbacks

	mu       sync.Mutex
	running  bool
	insights []event.Insight
	events   []event.Event
}

// New validates the agent set's dependency graph and builds the tier plan.
// Invalid graphs are rejected here, not at run time.
func New(agents []agent.Agent) (*Orchestrator, error) {
	if len(agents) == 0 {
		return nil, errors.New("no agents provided")
	}
	plan, err := BuildPlan(agents)
	if err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}

	byID := make(map[string]agent.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID()] = a
	}
	return &Orchestrator{agents: agents, byID: byID, plan: plan}, nil
}

// SetCallbacks wires the event sinks. Must be set before Run, not during.
func (o *Orchestrator) SetCallbacks(cb Callbacks) {
	o.cb = cb
}

// Plan returns the derived tier layout.
func (o *Orchestrator) Plan() *Plan {
	return o.plan
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// AgentInfo reports every agent's presentation card in registration order.
func (o *Orchestrator) AgentInfo() []agent.Info {
	out := make([]agent.Info, 0, len(o.agents))
	for _, a := range o.agents {
		out = append(out, a.Info())
	}
	return out
}

// Reset returns every agent to idle and clears collected run state. It is
// rejected while a run is in flight.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestration is running")
	}
	o.insights = nil
	o.events = nil
	o.mu.Unlock()

	for _, a := range o.agents {
		a.Reset()
	}
	return nil
}

// Run executes the full tier plan and reports the aggregate outcome. Only
// setup problems surface as an error; individual agent failures are
// collected in Result.Errors and the run keeps going.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.URL == "" {
		return nil, errors.New("url is required")
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, errors.New("orchestration already running")
	}
	o.running = true
	o.insights = nil
	o.events = nil
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	ac := agent.NewContext(req.URL, req.CompetitorURLs)
	ac.Industry = req.Industry
	ac.Language = req.Language
	ac.UserID = req.UserID
	ac.OnInsight = o.recordInsight
	ac.OnProgress = o.recordProgress
	ac.OnStatus = o.recordStatus

	start := time.Now()
	res := &Result{Results: ac.Results()}

	for tierIdx, tier := range o.plan.Tiers {
		slog.Info("executing tier", "tier", tierIdx, "agents", tier.Agents)

		outcomes := make([]outcome, len(tier.Agents))
		var wg sync.WaitGroup
		for i, id := range tier.Agents {
			wg.Add(1)
			go func(i int, a agent.Agent) {
				defer wg.Done()
				outcomes[i] = runAgent(ctx, a, ac)
			}(i, o.byID[id])
		}
		wg.Wait()

		for i, id := range tier.Agents {
			out := outcomes[i]
			if out.err != nil {
				res.AgentsFailed++
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", id, out.err))
				slog.Warn("agent failed", "agent", id, "error", out.err)
				continue
			}
			res.AgentsCompleted++
			ac.SetResult(id, out.result)
		}
	}

	res.Duration = time.Since(start)
	res.Success = len(res.Errors) == 0

	o.mu.Lock()
	res.Insights = append([]event.Insight(nil), o.insights...)
	res.Events = append([]event.Event(nil), o.events...)
	o.mu.Unlock()

	slog.Info("orchestration finished", "url", req.URL, "success", res.Success,
		"completed", res.AgentsCompleted, "failed", res.AgentsFailed,
		"duration", res.Duration)
	return res, nil
}

type outcome struct {
	result any
	err    error
}

// runAgent shields the tier from panics: a panicking agent is a failed
// agent, never a crashed run.
func runAgent(ctx context.Context, a agent.Agent, ac *agent.Context) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	result, err := a.Run(ctx, ac)
	return outcome{result: result, err: err}
}

func (o *Orchestrator) recordInsight(ins event.Insight) {
	o.mu.Lock()
	o.insights = append(o.insights, ins)
	o.events = append(o.events, event.FromInsight(ins))
	o.mu.Unlock()

	if o.cb.OnInsight != nil {
		o.cb.OnInsight(ins)
	}
}

func (o *Orchestrator) recordProgress(p event.Progress) {
	o.mu.Lock()
	o.events = append(o.events, event.FromProgress(p))
	o.mu.Unlock()

	if o.cb.OnProgress != nil {
		o.cb.OnProgress(p)
	}
}

func (o *Orchestrator) recordStatus(sc event.StatusChange) {
	o.mu.Lock()
	o.events = append(o.events, event.FromStatus(sc))
	o.mu.Unlock()

	if o.cb.OnStatus != nil {
		o.cb.OnStatus(sc)
	}
}
