package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/mtzanidakis/skopos/internal/event"
)

// MarketGap is a capability competitors demonstrate that the subject lacks.
type MarketGap struct {
	Gap             string   `json:"gap"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ImpactPoints    int      `json:"impact_points"`
	EffortHours     int      `json:"effort_hours"`
	CompetitorsWith []string `json:"competitors_with"`
}

// ProspectorResult lists market gaps, highest impact first.
type ProspectorResult struct {
	MarketGaps []MarketGap `json:"market_gaps"`
}

// Prospector mines the score dimensions for opportunities: signals at least
// one competitor has and the subject does not. Depends on analyst.
type Prospector struct {
	Base
}

func NewProspector() *Prospector {
	return &Prospector{
		Base: NewBase("prospector", "Prospector", "Opportunity Mining", "⛏️",
			"Sees gold in every gap the competition left open.",
			"analyst"),
	}
}

// gapProbe detects one signal on a snapshot and describes the gap when the
// subject lacks it.
type gapProbe struct {
	key         string
	title       string
	description string
	impact      int
	effort      int
	has         func(*Snapshot) bool
}

var gapProbes = []gapProbe{
	{"tls", "Serve the site over TLS",
		"Competitors are TLS secured; an unencrypted site loses trust and rankings.",
		weightTLS, 4, func(s *Snapshot) bool { return s.TLS }},
	{"performance", "Bring response time under 400ms",
		"Faster competitors win the first impression; tune caching and asset weight.",
		weightSpeedFast - weightSpeedSlow, 16, func(s *Snapshot) bool { return s.ResponseMillis > 0 && s.ResponseMillis < 400 }},
	{"viewport", "Add a mobile viewport",
		"Competitors render properly on phones; your page is desktop-only.",
		weightViewport, 2, func(s *Snapshot) bool { return s.HasViewport }},
	{"blog", "Start publishing content",
		"Competitors run blogs or news sections that feed search visibility.",
		weightBlog, 24, func(s *Snapshot) bool { return s.HasBlog }},
	{"description", "Write a proper meta description",
		"Competitors control their search snippet; yours is improvised by the engine.",
		weightDescription, 1, func(s *Snapshot) bool { return len(s.Description) >= 50 }},
	{"content_depth", "Deepen the landing content",
		"Competitors present substantially more content on their landing pages.",
		weightWordsDeep, 12, func(s *Snapshot) bool { return s.WordCount > 1500 }},
	{"hsts", "Enable HSTS",
		"Competitors pin TLS with Strict-Transport-Security.",
		weightHSTS, 1, func(s *Snapshot) bool { return s.HasHSTS }},
}

func (a *Prospector) Run(ctx context.Context, ac *Context) (any, error) {
	a.begin(ac)

	result := &ProspectorResult{}
	scout, _ := scoutResult(ac)
	if scout == nil || scout.Subject == nil {
		a.insight(ac, "No discovery data available; opportunity mining skipped.",
			event.CategoryOpportunity, event.PriorityMedium, nil)
		a.finish(ac, nil)
		return result, nil
	}

	a.progress(ac, 30, "Comparing capability signals")
	for _, probe := range gapProbes {
		if probe.has(scout.Subject) {
			continue
		}
		var with []string
		for _, comp := range scout.Competitors {
			if probe.has(comp) {
				with = append(with, comp.Domain)
			}
		}
		if len(with) == 0 {
			continue
		}
		result.MarketGaps = append(result.MarketGaps, MarketGap{
			Gap:             probe.key,
			Title:           probe.title,
			Description:     probe.description,
			ImpactPoints:    probe.impact,
			EffortHours:     probe.effort,
			CompetitorsWith: with,
		})
	}
	sort.SliceStable(result.MarketGaps, func(i, j int) bool {
		return result.MarketGaps[i].ImpactPoints > result.MarketGaps[j].ImpactPoints
	})

	a.progress(ac, 80, "Ranking opportunities")
	a.reportGaps(ac, result)

	a.finish(ac, nil)
	return result, nil
}

func (a *Prospector) reportGaps(ac *Context, r *ProspectorResult) {
	if len(r.MarketGaps) == 0 {
		a.insight(ac, "No capability gaps found against this competitor set.",
			event.CategoryOpportunity, event.PriorityLow, nil)
		return
	}

	top := r.MarketGaps[0]
	a.insight(ac, fmt.Sprintf("Biggest opening: %s (worth ~%d score points; %d of your competitors already have it).",
		top.Title, top.ImpactPoints, len(top.CompetitorsWith)),
		event.CategoryOpportunity, event.PriorityHigh,
		map[string]any{"gap": top.Gap, "impact_points": top.ImpactPoints})

	if len(r.MarketGaps) > 1 {
		a.insight(ac, fmt.Sprintf("%d exploitable gaps found in total.", len(r.MarketGaps)),
			event.CategoryOpportunity, event.PriorityMedium,
			map[string]any{"count": len(r.MarketGaps)})
	}
}
