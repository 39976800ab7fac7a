// Package event defines the typed messages agents emit while an analysis
// runs: insights, progress updates, and lifecycle status changes.
package event

import "time"

// Kind discriminates the payload carried by an Event.
type Kind string

const (
	KindInsight  Kind = "insight"
	KindProgress Kind = "progress"
	KindStatus   Kind = "status"
)

// Priority ranks how urgently an insight should be surfaced.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Category describes what kind of finding an insight is.
type Category string

const (
	CategoryDiscovery   Category = "discovery"
	CategoryBenchmark   Category = "benchmark"
	CategoryThreat      Category = "threat"
	CategoryOpportunity Category = "opportunity"
	CategoryStrategy    Category = "strategy"
	CategoryPlanning    Category = "planning"
	CategoryTechnical   Category = "technical"
)

// Insight is a noteworthy finding discovered by an agent while running.
type Insight struct {
	AgentID     string         `json:"agent_id"`
	AgentName   string         `json:"agent_name"`
	AgentAvatar string         `json:"agent_avatar"`
	Message     string         `json:"message"`
	Priority    Priority       `json:"priority"`
	Category    Category       `json:"insight_type"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}

// Progress reports how far through its work an agent is.
type Progress struct {
	AgentID     string `json:"agent_id"`
	Status      string `json:"status"`
	Percent     int    `json:"progress"`
	CurrentTask string `json:"current_task"`
}

// StatusChange marks an agent lifecycle transition.
type StatusChange struct {
	AgentID         string `json:"agent_id"`
	Status          string `json:"status"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	InsightCount    int    `json:"insights_count"`
	HasError        bool   `json:"has_error"`
}

// Event is the tagged union carried in a run's event list. Exactly one of
// Insight, Progress, or Status is set, matching Kind.
type Event struct {
	Kind      Kind          `json:"kind"`
	AgentID   string        `json:"agent_id"`
	Timestamp time.Time     `json:"timestamp"`
	Insight   *Insight      `json:"insight,omitempty"`
	Progress  *Progress     `json:"progress,omitempty"`
	Status    *StatusChange `json:"status,omitempty"`
}

func FromInsight(ins Insight) Event {
	return Event{Kind: KindInsight, AgentID: ins.AgentID, Timestamp: ins.Timestamp, Insight: &ins}
}

func FromProgress(p Progress) Event {
	return Event{Kind: KindProgress, AgentID: p.AgentID, Timestamp: time.Now().UTC(), Progress: &p}
}

func FromStatus(sc StatusChange) Event {
	return Event{Kind: KindStatus, AgentID: sc.AgentID, Timestamp: time.Now().UTC(), Status: &sc}
}
