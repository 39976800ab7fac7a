// Package report maps the raw per-agent results of an analysis run into the
// flat summary served to clients. Pure data transformation: it runs once,
// after all tiers complete, and tolerates any agent's result being absent.
package report

import (
	"time"

	"github.com/mtzanidakis/skopos/internal/agent"
)

// Summary is the externally consumable result of one analysis run. Field
// names are the wire contract consumed by UI clients and stored verbatim.
type Summary struct {
	Success         bool    `json:"success"`
	DurationSeconds float64 `json:"duration_seconds"`
	AgentsCompleted int     `json:"agents_completed"`
	AgentsFailed    int     `json:"agents_failed"`

	YourScore        int       `json:"your_score"`
	YourRanking      int       `json:"your_ranking"`
	TotalCompetitors int       `json:"total_competitors"`
	Benchmark        Benchmark `json:"benchmark"`

	RevenueAtRisk     float64  `json:"revenue_at_risk"`
	CompetitorThreats []Threat `json:"competitor_threats"`
	RASMScore         int      `json:"rasm_score"`

	MarketGaps         []agent.MarketGap `json:"market_gaps"`
	OpportunitiesCount int               `json:"opportunities_count"`

	PositionQuadrant string `json:"position_quadrant"`

	ActionPlan           *ActionPlan `json:"action_plan"`
	ProjectedImprovement int         `json:"projected_improvement"`

	OverallScore    int            `json:"overall_score"`
	CompositeScores map[string]int `json:"composite_scores"`
	Errors          []string       `json:"errors"`
}

// Benchmark carries both the short aliases the dashboard reads and the raw
// benchmark fields.
type Benchmark struct {
	Avg float64 `json:"avg"`
	Max int     `json:"max"`
	Min int     `json:"min"`

	YourScore          int     `json:"your_score"`
	AvgCompetitorScore float64 `json:"avg_competitor_score"`
	MaxCompetitorScore int     `json:"max_competitor_score"`
	YourPosition       int     `json:"your_position"`
	TotalAnalyzed      int     `json:"total_analyzed"`
}

// Threat is the client-facing view of one competitor assessment.
type Threat struct {
	Domain      string   `json:"domain"`
	Company     string   `json:"company"`
	URL         string   `json:"url"`
	Score       int      `json:"score"`
	ScoreDiff   int      `json:"score_diff"`
	ThreatLevel string   `json:"threat_level"`
	ThreatScore int      `json:"threat_score"`
	ThreatLabel string   `json:"threat_label"`
	Reasoning   string   `json:"reasoning"`
	Signals     []string `json:"signals"`
}

// ThisWeek is the single highest-leverage action to start immediately.
type ThisWeek struct {
	Action       string  `json:"action"`
	ImpactPoints int     `json:"impact_points"`
	EffortHours  string  `json:"effort_hours"`
	ROIEstimate  float64 `json:"roi_estimate"`
}

// ActionPlan is the phased 90-day roadmap view.
type ActionPlan struct {
	ThisWeek             *ThisWeek              `json:"this_week"`
	Phase1               []agent.PlanTask       `json:"phase1"`
	Phase2               []agent.PlanTask       `json:"phase2"`
	Phase3               []agent.PlanTask       `json:"phase3"`
	TotalActions         int                    `json:"total_actions"`
	ProjectedImprovement int                    `json:"projected_improvement"`
	Milestones           []agent.Milestone      `json:"milestones"`
	ResourceEstimate     agent.ResourceEstimate `json:"resource_estimate"`
}

// Build assembles the Summary from one run's outputs. Each section reads its
// agent's result when present and falls back to a neutral default when not;
// a partially failed run still produces a full, well-formed summary.
func Build(results map[string]any, errs []string, duration time.Duration) *Summary {
	s := &Summary{
		Success:          len(errs) == 0,
		DurationSeconds:  duration.Seconds(),
		AgentsCompleted:  len(results),
		AgentsFailed:     len(errs),
		PositionQuadrant: "challenger",
		Errors:           errs,
	}

	if analyst := analystResult(results); analyst != nil {
		s.YourScore = analyst.YourScore
		s.YourRanking = analyst.Benchmark.YourRank
		s.TotalCompetitors = analyst.Benchmark.TotalAnalyzed
		s.Benchmark = Benchmark{
			Avg:                analyst.Benchmark.AvgCompetitorScore,
			Max:                analyst.Benchmark.MaxCompetitorScore,
			Min:                analyst.Benchmark.MinCompetitorScore,
			YourScore:          analyst.YourScore,
			AvgCompetitorScore: analyst.Benchmark.AvgCompetitorScore,
			MaxCompetitorScore: analyst.Benchmark.MaxCompetitorScore,
			YourPosition:       analyst.Benchmark.YourRank,
			TotalAnalyzed:      analyst.Benchmark.TotalAnalyzed,
		}
		s.OverallScore = analyst.YourScore
		s.CompositeScores = analyst.YourAnalysis.Dimensions
	} else {
		s.YourRanking = 1
		s.TotalCompetitors = 1
		s.Benchmark = Benchmark{YourPosition: 1, TotalAnalyzed: 1}
	}
	if s.YourScore == 0 {
		s.YourScore = s.OverallScore
	}

	if guardian := guardianResult(results); guardian != nil {
		s.RevenueAtRisk = guardian.RevenueAtRisk
		s.RASMScore = guardian.RASMScore
		for _, t := range guardian.Assessments {
			s.CompetitorThreats = append(s.CompetitorThreats, Threat{
				Domain:      t.Domain,
				Company:     t.Name,
				URL:         t.URL,
				Score:       t.DigitalScore,
				ScoreDiff:   t.ScoreDiff,
				ThreatLevel: t.ThreatLevel,
				ThreatScore: t.ThreatScore,
				ThreatLabel: t.ThreatLabel,
				Reasoning:   t.Reasoning,
				Signals:     t.Signals,
			})
		}
	}

	if prospector := prospectorResult(results); prospector != nil {
		s.MarketGaps = prospector.MarketGaps
		s.OpportunitiesCount = len(prospector.MarketGaps)
	}

	if strategist := strategistResult(results); strategist != nil && strategist.PositionQuadrant != "" {
		s.PositionQuadrant = strategist.PositionQuadrant
	}

	if planner := plannerResult(results); planner != nil {
		s.ActionPlan = buildActionPlan(planner)
		s.ProjectedImprovement = planner.ROIProjection.PotentialScoreGain
	}

	return s
}

func buildActionPlan(p *agent.PlannerResult) *ActionPlan {
	plan := &ActionPlan{
		ProjectedImprovement: p.ROIProjection.PotentialScoreGain,
		Milestones:           p.Milestones,
		ResourceEstimate:     p.ResourceEstimate,
	}

	phases := p.Phases
	if len(phases) > 0 {
		plan.Phase1 = phases[0].Tasks
	}
	if len(phases) > 1 {
		plan.Phase2 = phases[1].Tasks
	}
	if len(phases) > 2 {
		plan.Phase3 = phases[2].Tasks
	}
	for _, ph := range phases {
		plan.TotalActions += len(ph.Tasks)
	}

	// The first quick-start action is the "this week" pick; without one,
	// fall back to the first phase-1 task.
	switch {
	case len(p.QuickStartGuide) > 0:
		qa := p.QuickStartGuide[0]
		plan.ThisWeek = &ThisWeek{
			Action:       qa.Title,
			ImpactPoints: qa.ImpactPoints,
			EffortHours:  qa.TimeEstimate,
			ROIEstimate:  qa.ROIEstimate,
		}
	case len(plan.Phase1) > 0:
		impact := plan.ProjectedImprovement / 3
		if impact == 0 {
			impact = 5
		}
		plan.ThisWeek = &ThisWeek{
			Action:       plan.Phase1[0].Title,
			ImpactPoints: impact,
			EffortHours:  "1 day",
		}
	}
	return plan
}

func analystResult(results map[string]any) *agent.AnalystResult {
	if r, ok := results["analyst"].(*agent.AnalystResult); ok {
		return r
	}
	return nil
}

func guardianResult(results map[string]any) *agent.GuardianResult {
	if r, ok := results["guardian"].(*agent.GuardianResult); ok {
		return r
	}
	return nil
}

func prospectorResult(results map[string]any) *agent.ProspectorResult {
	if r, ok := results["prospector"].(*agent.ProspectorResult); ok {
		return r
	}
	return nil
}

func strategistResult(results map[string]any) *agent.StrategistResult {
	if r, ok := results["strategist"].(*agent.StrategistResult); ok {
		return r
	}
	return nil
}

func plannerResult(results map[string]any) *agent.PlannerResult {
	if r, ok := results["planner"].(*agent.PlannerResult); ok {
		return r
	}
	return nil
}
