// Package agent defines the analysis agent contract and the six agents that
// make up the skopos pipeline. Each agent is an independently schedulable
// unit of work over a shared Context, with declared dependencies on other
// agents and a small lifecycle state machine.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/mtzanidakis/skopos/internal/event"
)

// State is an agent's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Agent is one analytical unit. Run performs the agent's work against the
// shared analysis context and returns a domain-specific result. Any returned
// error is treated by the orchestrator as a hard failure for this agent;
// partial results must not be returned silently.
type Agent interface {
	ID() string
	Dependencies() []string
	Info() Info
	Run(ctx context.Context, ac *Context) (any, error)
	Reset()
}

// Info is the presentation card for an agent, served to UI clients.
type Info struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Avatar       string   `json:"avatar"`
	Personality  string   `json:"personality"`
	Dependencies []string `json:"dependencies"`
	Status       State    `json:"status"`
	Progress     int      `json:"progress"`
}

// Base carries the identity, dependency set, and state machine shared by all
// agents. The mutex guards state fields because HTTP handlers read them
// while a run mutates them.
type Base struct {
	id          string
	name        string
	role        string
	avatar      string
	personality string
	deps        []string

	mu       sync.Mutex
	state    State
	percent  int
	task     string
	insights int
	started  time.Time
}

func NewBase(id, name, role, avatar, personality string, deps ...string) Base {
	return Base{
		id:          id,
		name:        name,
		role:        role,
		avatar:      avatar,
		personality: personality,
		deps:        deps,
		state:       StateIdle,
	}
}

func (b *Base) ID() string { return b.id }

func (b *Base) Dependencies() []string {
	out := make([]string, len(b.deps))
	copy(out, b.deps)
	return out
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Info{
		ID:           b.id,
		Name:         b.name,
		Role:         b.role,
		Avatar:       b.avatar,
		Personality:  b.personality,
		Dependencies: append([]string(nil), b.deps...),
		Status:       b.state,
		Progress:     b.percent,
	}
}

// Reset returns the agent to idle with zero progress. Only valid between
// runs, never during one.
func (b *Base) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateIdle
	b.percent = 0
	b.task = ""
	b.insights = 0
}

// begin transitions idle → running and announces it.
func (b *Base) begin(ac *Context) {
	b.mu.Lock()
	b.state = StateRunning
	b.percent = 0
	b.task = ""
	b.insights = 0
	b.started = time.Now()
	b.mu.Unlock()

	ac.emitStatus(event.StatusChange{
		AgentID: b.id,
		Status:  string(StateRunning),
	})
}

// finish transitions to the terminal state matching err and announces it
// with elapsed time and insight count. Terminal states are sticky until
// Reset.
func (b *Base) finish(ac *Context, err error) {
	b.mu.Lock()
	if err != nil {
		b.state = StateFailed
	} else {
		b.state = StateCompleted
		b.percent = 100
	}
	elapsed := time.Since(b.started)
	count := b.insights
	state := b.state
	b.mu.Unlock()

	ac.emitStatus(event.StatusChange{
		AgentID:         b.id,
		Status:          string(state),
		ExecutionTimeMS: elapsed.Milliseconds(),
		InsightCount:    count,
		HasError:        err != nil,
	})
}

func (b *Base) progress(ac *Context, percent int, task string) {
	b.mu.Lock()
	b.percent = percent
	b.task = task
	state := b.state
	b.mu.Unlock()

	ac.emitProgress(event.Progress{
		AgentID:     b.id,
		Status:      string(state),
		Percent:     percent,
		CurrentTask: task,
	})
}

func (b *Base) insight(ac *Context, msg string, cat event.Category, pri event.Priority, data map[string]any) {
	b.mu.Lock()
	b.insights++
	b.mu.Unlock()

	ac.emitInsight(event.Insight{
		AgentID:     b.id,
		AgentName:   b.name,
		AgentAvatar: b.avatar,
		Message:     msg,
		Priority:    pri,
		Category:    cat,
		Timestamp:   time.Now().UTC(),
		Data:        data,
	})
}
