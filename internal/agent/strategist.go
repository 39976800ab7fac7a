package agent

import (
	"context"
	"fmt"

	"github.com/mtzanidakis/skopos/internal/event"
)

// StrategistResult places the subject in a market quadrant and names the
// plays that follow from it.
type StrategistResult struct {
	PositionQuadrant string   `json:"position_quadrant"`
	Summary          string   `json:"summary"`
	Plays            []string `json:"plays"`
}

// Strategist synthesizes the benchmark, the risk picture, and the gap list
// into a market position. Depends on analyst, guardian, and prospector.
type Strategist struct {
	Base
}

func NewStrategist() *Strategist {
	return &Strategist{
		Base: NewBase("strategist", "Strategist", "Positioning", "♟️",
			"Thinks three moves ahead, speaks in quadrants.",
			"analyst", "guardian", "prospector"),
	}
}

func (a *Strategist) Run(ctx context.Context, ac *Context) (any, error) {
	a.begin(ac)

	analyst, _ := analystResult(ac)
	guardian, _ := guardianResult(ac)
	prospector, _ := prospectorResult(ac)

	a.progress(ac, 40, "Placing you on the market map")
	result := &StrategistResult{PositionQuadrant: quadrant(analyst, guardian)}
	result.Summary = quadrantSummary(result.PositionQuadrant)

	a.progress(ac, 70, "Selecting plays")
	result.Plays = selectPlays(result.PositionQuadrant, guardian, prospector)

	a.insight(ac, fmt.Sprintf("Market position: %s. %s", result.PositionQuadrant, result.Summary),
		event.CategoryStrategy, event.PriorityHigh,
		map[string]any{"quadrant": result.PositionQuadrant})
	if len(result.Plays) > 0 {
		a.insight(ac, "Recommended play: "+result.Plays[0],
			event.CategoryStrategy, event.PriorityMedium, nil)
	}

	a.finish(ac, nil)
	return result, nil
}

// quadrant classifies the subject by score against the competitor average.
// Missing upstream data lands in "challenger", the neutral default.
func quadrant(analyst *AnalystResult, guardian *GuardianResult) string {
	if analyst == nil {
		return "challenger"
	}
	score := float64(analyst.YourScore)
	avg := analyst.Benchmark.AvgCompetitorScore

	criticalThreats := 0
	if guardian != nil {
		for _, t := range guardian.Assessments {
			if t.ThreatLevel == "critical" {
				criticalThreats++
			}
		}
	}

	switch {
	case score >= avg+10 && score >= 70 && criticalThreats == 0:
		return "leader"
	case score >= avg:
		return "challenger"
	case score >= avg-15:
		return "follower"
	default:
		return "niche"
	}
}

func quadrantSummary(q string) string {
	switch q {
	case "leader":
		return "You set the pace; defend the lead and widen it."
	case "challenger":
		return "You are within striking distance of the front."
	case "follower":
		return "The pack is ahead; close the fundamentals first."
	default:
		return "You compete on depth, not breadth; own your niche."
	}
}

func selectPlays(q string, guardian *GuardianResult, prospector *ProspectorResult) []string {
	var plays []string

	if prospector != nil && len(prospector.MarketGaps) > 0 {
		plays = append(plays, fmt.Sprintf("Close the top gap: %s.", prospector.MarketGaps[0].Title))
	}
	if guardian != nil && len(guardian.Assessments) > 0 {
		top := guardian.Assessments[0]
		if top.ScoreDiff > 0 {
			plays = append(plays, fmt.Sprintf("Neutralize %s's lead in its strongest signals.", top.Name))
		}
	}

	switch q {
	case "leader":
		plays = append(plays, "Invest in content depth to raise the cost of catching you.")
	case "challenger":
		plays = append(plays, "Pick one dimension where the leader is weakest and overtake there first.")
	case "follower":
		plays = append(plays, "Ship the low-effort technical fixes before any marketing spend.")
	default:
		plays = append(plays, "Double down on the audience the big players ignore.")
	}
	return plays
}

func guardianResult(ac *Context) (*GuardianResult, bool) {
	v, ok := ac.Result("guardian")
	if !ok {
		return nil, false
	}
	r, ok := v.(*GuardianResult)
	return r, ok
}

func prospectorResult(ac *Context) (*ProspectorResult, bool) {
	v, ok := ac.Result("prospector")
	if !ok {
		return nil, false
	}
	r, ok := v.(*ProspectorResult)
	return r, ok
}
