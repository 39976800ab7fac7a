package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/mtzanidakis/skopos/internal/event"
)

// ThreatAssessment grades one competitor against the subject.
type ThreatAssessment struct {
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	Domain       string   `json:"domain"`
	DigitalScore int      `json:"digital_score"`
	ScoreDiff    int      `json:"score_diff"`
	ThreatLevel  string   `json:"threat_level"`
	ThreatScore  int      `json:"threat_score"`
	ThreatLabel  string   `json:"threat_label"`
	Reasoning    string   `json:"reasoning"`
	Signals      []string `json:"signals"`
}

// GuardianResult is the risk picture: who is ahead, what that exposure is
// worth, and a risk-adjusted score margin.
type GuardianResult struct {
	RevenueAtRisk float64            `json:"revenue_at_risk"`
	RASMScore     int                `json:"rasm_score"`
	Assessments   []ThreatAssessment `json:"assessments"`
}

// Guardian assesses competitive risk from the analyst's scores. Depends on
// analyst (and transitively scout, for competitor signals).
type Guardian struct {
	Base
}

// Annual euro value of one digital-score point ceded to a stronger
// competitor, before the industry multiplier.
const pointValue = 420.0

var industryMultiplier = map[string]float64{
	"saas":      1.6,
	"ecommerce": 1.8,
	"finance":   2.0,
	"media":     1.3,
}

func NewGuardian() *Guardian {
	return &Guardian{
		Base: NewBase("guardian", "Guardian", "Risk Assessment", "🛡️",
			"Assumes every competitor is coming for your lunch.",
			"analyst"),
	}
}

func (a *Guardian) Run(ctx context.Context, ac *Context) (any, error) {
	a.begin(ac)

	result := &GuardianResult{}
	analyst, _ := analystResult(ac)
	if analyst == nil {
		a.insight(ac, "No scoring data available; risk assessment skipped.",
			event.CategoryThreat, event.PriorityMedium, nil)
		a.finish(ac, nil)
		return result, nil
	}

	scout, _ := scoutResult(ac)
	snapshots := map[string]*Snapshot{}
	if scout != nil {
		for _, s := range scout.Competitors {
			snapshots[s.Domain] = s
		}
	}

	a.progress(ac, 30, "Assessing competitor threats")
	for _, comp := range analyst.CompetitorScores {
		result.Assessments = append(result.Assessments,
			assessThreat(analyst.YourScore, comp, snapshots[comp.Domain]))
	}
	sort.SliceStable(result.Assessments, func(i, j int) bool {
		return result.Assessments[i].ThreatScore > result.Assessments[j].ThreatScore
	})

	a.progress(ac, 65, "Estimating revenue exposure")
	mult := industryMultiplier[ac.Industry]
	if mult == 0 {
		mult = 1.0
	}
	for _, t := range result.Assessments {
		if t.ScoreDiff > 0 {
			result.RevenueAtRisk += float64(t.ScoreDiff) * pointValue * mult
		}
	}

	a.progress(ac, 85, "Computing risk-adjusted margin")
	result.RASMScore = rasmScore(analyst.YourScore, result.Assessments)
	a.reportThreats(ac, result)

	a.finish(ac, nil)
	return result, nil
}

func (a *Guardian) reportThreats(ac *Context, r *GuardianResult) {
	if len(r.Assessments) > 0 {
		top := r.Assessments[0]
		if top.ThreatLevel == "critical" || top.ThreatLevel == "high" {
			a.insight(ac, fmt.Sprintf("%s is your biggest threat: %d points ahead (%s).",
				top.Name, top.ScoreDiff, top.ThreatLevel),
				event.CategoryThreat, event.PriorityCritical,
				map[string]any{"competitor": top.Domain, "score_diff": top.ScoreDiff})
		}
	}
	if r.RevenueAtRisk > 0 {
		a.insight(ac, fmt.Sprintf("Estimated €%.0f of annual revenue is exposed to stronger competitors.", r.RevenueAtRisk),
			event.CategoryThreat, event.PriorityHigh,
			map[string]any{"revenue_at_risk": r.RevenueAtRisk})
	} else {
		a.insight(ac, "No competitor currently outscores you; exposure is minimal.",
			event.CategoryThreat, event.PriorityLow, nil)
	}
}

func assessThreat(yourScore int, comp SiteScore, snap *Snapshot) ThreatAssessment {
	diff := comp.Score - yourScore
	t := ThreatAssessment{
		Name:         comp.Domain,
		URL:          comp.URL,
		Domain:       comp.Domain,
		DigitalScore: comp.Score,
		ScoreDiff:    diff,
	}

	switch {
	case diff >= 25:
		t.ThreatLevel, t.ThreatLabel = "critical", "Dominating"
	case diff >= 12:
		t.ThreatLevel, t.ThreatLabel = "high", "Pulling ahead"
	case diff >= 1:
		t.ThreatLevel, t.ThreatLabel = "medium", "Slightly ahead"
	default:
		t.ThreatLevel, t.ThreatLabel = "low", "Behind you"
	}

	if diff > 0 {
		t.ThreatScore = clamp(5+diff/4, 1, 10)
		t.Reasoning = fmt.Sprintf("Scores %d to your %d across the same dimensions.", comp.Score, yourScore)
	} else {
		t.ThreatScore = 2
		t.Reasoning = fmt.Sprintf("Currently behind you by %d points.", -diff)
	}

	if snap != nil {
		if snap.TLS {
			t.Signals = append(t.Signals, "TLS secured")
		}
		if snap.ResponseMillis > 0 && snap.ResponseMillis < 400 {
			t.Signals = append(t.Signals, "Fast site")
		}
		if snap.WordCount > 1500 {
			t.Signals = append(t.Signals, "Deep content library")
		}
		if snap.HasBlog {
			t.Signals = append(t.Signals, "Publishing regularly")
		}
	}
	if len(t.Signals) == 0 {
		t.Signals = []string{"No specific signals"}
	}
	return t
}

// rasmScore is the risk-adjusted score margin: the subject's score eroded
// by the strongest lead against it and by the number of critical threats.
func rasmScore(yourScore int, threats []ThreatAssessment) int {
	maxDiff, critical := 0, 0
	for _, t := range threats {
		if t.ScoreDiff > maxDiff {
			maxDiff = t.ScoreDiff
		}
		if t.ThreatLevel == "critical" {
			critical++
		}
	}
	return clamp(yourScore-maxDiff/2-critical*5, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func analystResult(ac *Context) (*AnalystResult, bool) {
	v, ok := ac.Result("analyst")
	if !ok {
		return nil, false
	}
	r, ok := v.(*AnalystResult)
	return r, ok
}
