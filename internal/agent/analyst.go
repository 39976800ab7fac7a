package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/mtzanidakis/skopos/internal/event"
)

// SiteScore is one site's digital score with its dimension breakdown.
type SiteScore struct {
	URL        string         `json:"url"`
	Domain     string         `json:"domain"`
	Score      int            `json:"score"`
	Dimensions map[string]int `json:"dimensions"`
}

// Benchmark positions the subject among the scored competitor set.
type Benchmark struct {
	YourScore          int     `json:"your_score"`
	YourRank           int     `json:"your_rank"`
	TotalAnalyzed      int     `json:"total_analyzed"`
	AvgCompetitorScore float64 `json:"avg_competitor_score"`
	MaxCompetitorScore int     `json:"max_competitor_score"`
	MinCompetitorScore int     `json:"min_competitor_score"`
}

// AnalystResult scores every discovered site and benchmarks the subject.
type AnalystResult struct {
	YourScore        int         `json:"your_score"`
	YourAnalysis     SiteScore   `json:"your_analysis"`
	CompetitorScores []SiteScore `json:"competitor_scores"`
	Benchmark        Benchmark   `json:"benchmark"`
}

// Analyst turns scout snapshots into 0-100 digital scores and a benchmark.
// Depends on scout; degrades to a zero scorecard when discovery data is
// absent.
type Analyst struct {
	Base
}

func NewAnalyst() *Analyst {
	return &Analyst{
		Base: NewBase("analyst", "Analyst", "Scoring & Benchmarks", "📊",
			"Numbers first; opinions only when the data backs them.",
			"scout"),
	}
}

func (a *Analyst) Run(ctx context.Context, ac *Context) (any, error) {
	a.begin(ac)

	result := &AnalystResult{}
	scout, _ := scoutResult(ac)
	if scout == nil || scout.Subject == nil {
		a.insight(ac, "No discovery data available; scoring skipped.",
			event.CategoryBenchmark, event.PriorityMedium, nil)
		result.Benchmark.TotalAnalyzed = 1
		result.Benchmark.YourRank = 1
		a.finish(ac, nil)
		return result, nil
	}

	a.progress(ac, 20, "Scoring your site")
	result.YourAnalysis = scoreSite(scout.Subject)
	result.YourScore = result.YourAnalysis.Score

	a.progress(ac, 50, "Scoring competitors")
	for _, snap := range scout.Competitors {
		result.CompetitorScores = append(result.CompetitorScores, scoreSite(snap))
	}

	a.progress(ac, 80, "Building benchmark")
	result.Benchmark = buildBenchmark(result.YourScore, result.CompetitorScores)
	a.reportBenchmark(ac, result)

	a.finish(ac, nil)
	return result, nil
}

func (a *Analyst) reportBenchmark(ac *Context, r *AnalystResult) {
	b := r.Benchmark
	a.insight(ac, fmt.Sprintf("Your digital score is %d/100, rank %d of %d analyzed sites.",
		b.YourScore, b.YourRank, b.TotalAnalyzed),
		event.CategoryBenchmark, event.PriorityHigh,
		map[string]any{"score": b.YourScore, "rank": b.YourRank, "total": b.TotalAnalyzed})

	if len(r.CompetitorScores) == 0 {
		return
	}
	if gap := b.MaxCompetitorScore - b.YourScore; gap > 15 {
		a.insight(ac, fmt.Sprintf("The market leader scores %d points above you.", gap),
			event.CategoryBenchmark, event.PriorityHigh, map[string]any{"gap": gap})
	} else if float64(b.YourScore) >= b.AvgCompetitorScore {
		a.insight(ac, "You score at or above the competitor average.",
			event.CategoryBenchmark, event.PriorityMedium, nil)
	}

	weakest, score := weakestDimension(r.YourAnalysis)
	if weakest != "" && score < 10 {
		a.insight(ac, fmt.Sprintf("Weakest dimension: %s (%d points).", weakest, score),
			event.CategoryTechnical, event.PriorityMedium, map[string]any{"dimension": weakest})
	}
}

// Dimension weights. Reachability is the floor; everything else is earned.
const (
	weightReach       = 16
	weightTLS         = 16
	weightHSTS        = 4
	weightSpeedFast   = 20
	weightSpeedOK     = 15
	weightSpeedSlow   = 8
	weightSpeedCrawl  = 3
	weightTitle       = 4
	weightDescription = 8
	weightDescHalf    = 4
	weightWordsDeep   = 12
	weightWordsMid    = 8
	weightWordsThin   = 4
	weightViewport    = 12
	weightBlog        = 8
)

func scoreSite(s *Snapshot) SiteScore {
	sc := SiteScore{URL: s.URL, Domain: s.Domain, Dimensions: map[string]int{}}
	if !s.Reachable {
		return sc
	}

	sc.Dimensions["reachability"] = weightReach

	security := 0
	if s.TLS {
		security += weightTLS
	}
	if s.HasHSTS {
		security += weightHSTS
	}
	sc.Dimensions["security"] = security

	switch {
	case s.ResponseMillis < 400:
		sc.Dimensions["performance"] = weightSpeedFast
	case s.ResponseMillis < 1000:
		sc.Dimensions["performance"] = weightSpeedOK
	case s.ResponseMillis < 2500:
		sc.Dimensions["performance"] = weightSpeedSlow
	default:
		sc.Dimensions["performance"] = weightSpeedCrawl
	}

	content := 0
	if s.Title != "" {
		content += weightTitle
	}
	switch n := len(s.Description); {
	case n >= 50 && n <= 160:
		content += weightDescription
	case n > 0:
		content += weightDescHalf
	}
	switch {
	case s.WordCount > 1500:
		content += weightWordsDeep
	case s.WordCount > 600:
		content += weightWordsMid
	case s.WordCount > 200:
		content += weightWordsThin
	}
	sc.Dimensions["content"] = content

	presence := 0
	if s.HasViewport {
		presence += weightViewport
	}
	if s.HasBlog {
		presence += weightBlog
	}
	sc.Dimensions["presence"] = presence

	for _, v := range sc.Dimensions {
		sc.Score += v
	}
	if sc.Score > 100 {
		sc.Score = 100
	}
	return sc
}

func buildBenchmark(yourScore int, competitors []SiteScore) Benchmark {
	b := Benchmark{
		YourScore:     yourScore,
		YourRank:      1,
		TotalAnalyzed: len(competitors) + 1,
	}
	if len(competitors) == 0 {
		return b
	}

	sum := 0
	b.MinCompetitorScore = competitors[0].Score
	for _, c := range competitors {
		sum += c.Score
		if c.Score > b.MaxCompetitorScore {
			b.MaxCompetitorScore = c.Score
		}
		if c.Score < b.MinCompetitorScore {
			b.MinCompetitorScore = c.Score
		}
		if c.Score > yourScore {
			b.YourRank++
		}
	}
	b.AvgCompetitorScore = float64(sum) / float64(len(competitors))
	return b
}

func weakestDimension(sc SiteScore) (string, int) {
	names := make([]string, 0, len(sc.Dimensions))
	for name := range sc.Dimensions {
		if name == "reachability" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	weakest, low := "", 0
	for _, name := range names {
		if weakest == "" || sc.Dimensions[name] < low {
			weakest, low = name, sc.Dimensions[name]
		}
	}
	return weakest, low
}

// scoutResult reads the scout's output from the context, tolerating absence.
func scoutResult(ac *Context) (*ScoutResult, bool) {
	v, ok := ac.Result("scout")
	if !ok {
		return nil, false
	}
	r, ok := v.(*ScoutResult)
	return r, ok
}
