package agent

import (
	"context"
	"fmt"

	"github.com/mtzanidakis/skopos/internal/event"
)

// PlanTask is one concrete action in the 90-day roadmap.
type PlanTask struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ImpactPoints int    `json:"impact_points"`
	EffortHours  int    `json:"effort_hours"`
}

// PlanPhase groups tasks into one 30-day window.
type PlanPhase struct {
	Name  string     `json:"name"`
	Focus string     `json:"focus"`
	Tasks []PlanTask `json:"tasks"`
}

// QuickAction is a this-week starter with its expected payoff.
type QuickAction struct {
	Title        string  `json:"title"`
	ImpactPoints int     `json:"impact_points"`
	TimeEstimate string  `json:"time_estimate"`
	ROIEstimate  float64 `json:"roi_estimate"`
}

type Milestone struct {
	Day  int    `json:"day"`
	Goal string `json:"goal"`
}

type ROIProjection struct {
	PotentialScoreGain int     `json:"potential_score_gain"`
	AnnualValue        float64 `json:"annual_value"`
}

type ResourceEstimate struct {
	TotalHours  int `json:"total_hours"`
	WeeklyHours int `json:"weekly_hours"`
}

// PlannerResult is the full 90-day action plan.
type PlannerResult struct {
	Phases           []PlanPhase      `json:"phases"`
	QuickStartGuide  []QuickAction    `json:"quick_start_guide"`
	ROIProjection    ROIProjection    `json:"roi_projection"`
	Milestones       []Milestone      `json:"milestones"`
	ResourceEstimate ResourceEstimate `json:"resource_estimate"`
}

// Planner turns gaps and threats into a dated, phased roadmap. Depends on
// analyst and strategist (and reads prospector output when present).
type Planner struct {
	Base
}

func NewPlanner() *Planner {
	return &Planner{
		Base: NewBase("planner", "Planner", "Roadmap", "🗓️",
			"Turns ambition into a dated checklist.",
			"analyst", "strategist"),
	}
}

func (a *Planner) Run(ctx context.Context, ac *Context) (any, error) {
	a.begin(ac)

	analyst, _ := analystResult(ac)
	prospector, _ := prospectorResult(ac)
	strategist, _ := strategistResult(ac)

	a.progress(ac, 25, "Collecting candidate actions")
	tasks := candidateTasks(prospector, strategist)

	a.progress(ac, 55, "Phasing the roadmap")
	result := &PlannerResult{Phases: phaseTasks(tasks)}

	for _, t := range firstPhaseTasks(result.Phases, 2) {
		result.QuickStartGuide = append(result.QuickStartGuide, QuickAction{
			Title:        t.Title,
			ImpactPoints: t.ImpactPoints,
			TimeEstimate: fmt.Sprintf("%dh", t.EffortHours),
			ROIEstimate:  float64(t.ImpactPoints) * pointValue,
		})
	}

	a.progress(ac, 80, "Projecting outcomes")
	gain := 0
	totalHours := 0
	for _, p := range result.Phases {
		for _, t := range p.Tasks {
			gain += t.ImpactPoints
			totalHours += t.EffortHours
		}
	}
	if analyst != nil && gain > 100-analyst.YourScore {
		gain = 100 - analyst.YourScore
	}
	result.ROIProjection = ROIProjection{
		PotentialScoreGain: gain,
		AnnualValue:        float64(gain) * pointValue,
	}
	result.ResourceEstimate = ResourceEstimate{
		TotalHours:  totalHours,
		WeeklyHours: (totalHours + 12) / 13,
	}
	result.Milestones = []Milestone{
		{Day: 30, Goal: "Technical fundamentals closed"},
		{Day: 60, Goal: "Content and visibility work shipping"},
		{Day: 90, Goal: fmt.Sprintf("Score up by ~%d points", gain)},
	}

	a.insight(ac, fmt.Sprintf("90-day plan ready: %d actions, ~%d score points within reach.",
		countTasks(result.Phases), gain),
		event.CategoryPlanning, event.PriorityHigh,
		map[string]any{"actions": countTasks(result.Phases), "potential_gain": gain})

	a.finish(ac, nil)
	return result, nil
}

// candidateTasks turns market gaps into tasks, highest impact first, and
// tops the list up with strategist plays when gaps are scarce.
func candidateTasks(prospector *ProspectorResult, strategist *StrategistResult) []PlanTask {
	var tasks []PlanTask
	if prospector != nil {
		for _, g := range prospector.MarketGaps {
			tasks = append(tasks, PlanTask{
				Title:        g.Title,
				Description:  g.Description,
				ImpactPoints: g.ImpactPoints,
				EffortHours:  g.EffortHours,
			})
		}
	}
	if strategist != nil && len(tasks) < 3 {
		for _, play := range strategist.Plays {
			tasks = append(tasks, PlanTask{
				Title:        play,
				ImpactPoints: 3,
				EffortHours:  8,
			})
			if len(tasks) >= 5 {
				break
			}
		}
	}
	return tasks
}

// phaseTasks splits tasks into three 30-day phases: quick wins first, then
// heavier work.
func phaseTasks(tasks []PlanTask) []PlanPhase {
	phases := []PlanPhase{
		{Name: "Days 1-30", Focus: "Quick technical wins"},
		{Name: "Days 31-60", Focus: "Content and visibility"},
		{Name: "Days 61-90", Focus: "Compounding advantages"},
	}
	for i, t := range tasks {
		idx := i / 3
		if idx > 2 {
			idx = 2
		}
		phases[idx].Tasks = append(phases[idx].Tasks, t)
	}
	return phases
}

func firstPhaseTasks(phases []PlanPhase, n int) []PlanTask {
	for _, p := range phases {
		if len(p.Tasks) == 0 {
			continue
		}
		if len(p.Tasks) < n {
			n = len(p.Tasks)
		}
		return p.Tasks[:n]
	}
	return nil
}

func countTasks(phases []PlanPhase) int {
	n := 0
	for _, p := range phases {
		n += len(p.Tasks)
	}
	return n
}

func strategistResult(ac *Context) (*StrategistResult, bool) {
	v, ok := ac.Result("strategist")
	if !ok {
		return nil, false
	}
	r, ok := v.(*StrategistResult)
	return r, ok
}
