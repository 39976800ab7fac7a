package agent

import (
	"context"
	"fmt"

	"github.com/mtzanidakis/skopos/internal/event"
)

// ScoutResult holds the site snapshots every later agent works from.
type ScoutResult struct {
	Subject     *Snapshot   `json:"subject"`
	Competitors []*Snapshot `json:"competitors"`
}

// Scout maps the terrain: it fetches the subject site and every competitor
// site once and records what a visitor-level probe can observe. It has no
// dependencies and always runs in the first tier.
type Scout struct {
	Base
	fetcher Fetcher
}

func NewScout(f Fetcher) *Scout {
	return &Scout{
		Base: NewBase("scout", "Scout", "Discovery", "🔍",
			"Methodical pathfinder; maps the terrain before anyone moves."),
		fetcher: f,
	}
}

func (a *Scout) Run(ctx context.Context, ac *Context) (any, error) {
	a.begin(ac)

	a.progress(ac, 5, "Probing "+ac.URL)
	subject, err := a.fetcher.Fetch(ctx, ac.URL)
	if err != nil {
		a.finish(ac, err)
		return nil, fmt.Errorf("subject site unreachable: %w", err)
	}
	a.reportSubject(ac, subject)

	result := &ScoutResult{Subject: subject}
	total := len(ac.CompetitorURLs)
	for i, cu := range ac.CompetitorURLs {
		pct := 20 + (70*(i+1))/max(total, 1)
		a.progress(ac, pct, "Probing competitor "+cu)

		snap, err := a.fetcher.Fetch(ctx, cu)
		if err != nil {
			a.insight(ac, fmt.Sprintf("Could not reach competitor %s; it is excluded from the comparison.", cu),
				event.CategoryDiscovery, event.PriorityMedium, map[string]any{"url": cu})
			continue
		}
		result.Competitors = append(result.Competitors, snap)
	}

	a.progress(ac, 95, "Compiling discovery report")
	a.insight(ac, fmt.Sprintf("Discovery complete: %d of %d competitor sites responded.",
		len(result.Competitors), total),
		event.CategoryDiscovery, event.PriorityLow,
		map[string]any{"responded": len(result.Competitors), "requested": total})

	a.finish(ac, nil)
	return result, nil
}

func (a *Scout) reportSubject(ac *Context, snap *Snapshot) {
	if !snap.TLS {
		a.insight(ac, "Your site is served without TLS; browsers flag it as not secure.",
			event.CategoryTechnical, event.PriorityCritical, map[string]any{"domain": snap.Domain})
	}
	if snap.ResponseMillis > 2500 {
		a.insight(ac, fmt.Sprintf("Your site answered in %dms; anything above 2.5s loses mobile visitors.", snap.ResponseMillis),
			event.CategoryTechnical, event.PriorityHigh, map[string]any{"response_ms": snap.ResponseMillis})
	}
	if snap.Description == "" {
		a.insight(ac, "Your landing page has no meta description; search snippets will be improvised.",
			event.CategoryTechnical, event.PriorityMedium, nil)
	}
}
