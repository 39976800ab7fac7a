package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mtzanidakis/skopos/internal/event"
)

// fakeFetcher serves canned snapshots keyed by raw URL.
type fakeFetcher struct {
	snaps map[string]*Snapshot
	fail  map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*Snapshot, error) {
	if err, ok := f.fail[rawURL]; ok {
		return nil, err
	}
	if s, ok := f.snaps[rawURL]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no snapshot for %s", rawURL)
}

// fullSnapshot is a site with every signal present, scoring 100.
func fullSnapshot(domain string) *Snapshot {
	return &Snapshot{
		URL:            "https://" + domain,
		Domain:         domain,
		Reachable:      true,
		StatusCode:     200,
		TLS:            true,
		ResponseMillis: 200,
		Title:          "Title",
		Description:    "A description long enough to clear the fifty character floor.",
		WordCount:      2000,
		HasViewport:    true,
		HasHSTS:        true,
		HasBlog:        true,
	}
}

func TestBase_Lifecycle(t *testing.T) {
	var statuses []event.StatusChange
	ac := NewContext("https://you.example", nil)
	ac.OnStatus = func(sc event.StatusChange) { statuses = append(statuses, sc) }

	b := NewBase("probe", "Probe", "Probing", "P", "")
	if b.State() != StateIdle {
		t.Fatalf("expected idle, got %s", b.State())
	}

	b.begin(ac)
	if b.State() != StateRunning {
		t.Fatalf("expected running, got %s", b.State())
	}

	b.finish(ac, nil)
	if b.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", b.State())
	}
	if b.Info().Progress != 100 {
		t.Fatalf("expected progress 100, got %d", b.Info().Progress)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 status changes, got %d", len(statuses))
	}
	if statuses[1].Status != string(StateCompleted) || statuses[1].HasError {
		t.Fatalf("unexpected final status %+v", statuses[1])
	}

	b.Reset()
	if b.State() != StateIdle || b.Info().Progress != 0 {
		t.Fatal("expected reset to idle with zero progress")
	}
}

func TestBase_FinishWithError(t *testing.T) {
	ac := NewContext("https://you.example", nil)
	var last event.StatusChange
	ac.OnStatus = func(sc event.StatusChange) { last = sc }

	b := NewBase("probe", "Probe", "Probing", "P", "")
	b.begin(ac)
	b.finish(ac, errors.New("boom"))

	if b.State() != StateFailed {
		t.Fatalf("expected failed, got %s", b.State())
	}
	if !last.HasError {
		t.Fatal("expected final status to carry the error flag")
	}
}

func TestDefaultSet(t *testing.T) {
	set := DefaultSet(&fakeFetcher{})
	want := []string{"scout", "analyst", "guardian", "prospector", "strategist", "planner"}
	if len(set) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(set))
	}
	for i, id := range want {
		if set[i].ID() != id {
			t.Fatalf("expected %s at position %d, got %s", id, i, set[i].ID())
		}
	}

	// Every call hands out fresh instances.
	other := DefaultSet(&fakeFetcher{})
	if set[0] == other[0] {
		t.Fatal("expected distinct agent instances per set")
	}
}

func TestScout_Run(t *testing.T) {
	f := &fakeFetcher{
		snaps: map[string]*Snapshot{
			"https://you.example": fullSnapshot("you.example"),
			"https://a.example":   fullSnapshot("a.example"),
		},
		fail: map[string]error{
			"https://b.example": errors.New("connection refused"),
		},
	}
	ac := NewContext("https://you.example", []string{"https://a.example", "https://b.example"})
	var insights []event.Insight
	ac.OnInsight = func(i event.Insight) { insights = append(insights, i) }

	s := NewScout(f)
	v, err := s.Run(context.Background(), ac)
	if err != nil {
		t.Fatal(err)
	}
	res := v.(*ScoutResult)
	if res.Subject == nil || res.Subject.Domain != "you.example" {
		t.Fatalf("unexpected subject %+v", res.Subject)
	}
	if len(res.Competitors) != 1 {
		t.Fatalf("expected 1 reachable competitor, got %d", len(res.Competitors))
	}
	if s.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", s.State())
	}
	// One insight for the dead competitor, one summary.
	if len(insights) != 2 {
		t.Fatalf("expected 2 insights, got %d", len(insights))
	}
}

func TestScout_SubjectUnreachable(t *testing.T) {
	f := &fakeFetcher{fail: map[string]error{"https://down.example": errors.New("timeout")}}
	s := NewScout(f)

	_, err := s.Run(context.Background(), NewContext("https://down.example", nil))
	if err == nil {
		t.Fatal("expected error for unreachable subject")
	}
	if s.State() != StateFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}
}

func TestScout_ReportsMissingSignals(t *testing.T) {
	weak := fullSnapshot("you.example")
	weak.TLS = false
	weak.ResponseMillis = 3000
	weak.Description = ""
	f := &fakeFetcher{snaps: map[string]*Snapshot{"https://you.example": weak}}

	ac := NewContext("https://you.example", nil)
	var insights []event.Insight
	ac.OnInsight = func(i event.Insight) { insights = append(insights, i) }

	if _, err := NewScout(f).Run(context.Background(), ac); err != nil {
		t.Fatal(err)
	}
	// TLS, speed, description, plus the summary.
	if len(insights) != 4 {
		t.Fatalf("expected 4 insights, got %d", len(insights))
	}
	if insights[0].Priority != event.PriorityCritical {
		t.Fatalf("expected the TLS finding to be critical, got %s", insights[0].Priority)
	}
}

func TestAnalyst_Run(t *testing.T) {
	weak := fullSnapshot("you.example")
	weak.TLS = false
	weak.HasHSTS = false

	ac := NewContext("https://you.example", nil)
	ac.SetResult("scout", &ScoutResult{
		Subject:     weak,
		Competitors: []*Snapshot{fullSnapshot("a.example")},
	})

	a := NewAnalyst()
	v, err := a.Run(context.Background(), ac)
	if err != nil {
		t.Fatal(err)
	}
	res := v.(*AnalystResult)
	if res.YourScore != 80 {
		t.Fatalf("expected score 80 without the security signals, got %d", res.YourScore)
	}
	if res.Benchmark.YourRank != 2 {
		t.Fatalf("expected rank 2, got %d", res.Benchmark.YourRank)
	}
	if res.Benchmark.TotalAnalyzed != 2 {
		t.Fatalf("expected 2 analyzed, got %d", res.Benchmark.TotalAnalyzed)
	}
	if a.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", a.State())
	}
}

func TestAnalyst_DegradesWithoutDiscovery(t *testing.T) {
	a := NewAnalyst()
	v, err := a.Run(context.Background(), NewContext("https://you.example", nil))
	if err != nil {
		t.Fatal(err)
	}
	res := v.(*AnalystResult)
	if res.Benchmark.TotalAnalyzed != 1 || res.Benchmark.YourRank != 1 {
		t.Fatalf("expected solo benchmark, got %+v", res.Benchmark)
	}
	if a.State() != StateCompleted {
		t.Fatalf("expected completed even when degraded, got %s", a.State())
	}
}

func TestScoreSite_FullSignals(t *testing.T) {
	sc := scoreSite(fullSnapshot("example.com"))
	if sc.Score != 100 {
		t.Fatalf("expected score 100, got %d", sc.Score)
	}
}

func TestScoreSite_Unreachable(t *testing.T) {
	sc := scoreSite(&Snapshot{Domain: "down.example", StatusCode: 503})
	if sc.Score != 0 {
		t.Fatalf("expected score 0, got %d", sc.Score)
	}
	if len(sc.Dimensions) != 0 {
		t.Fatalf("expected no dimensions, got %v", sc.Dimensions)
	}
}

func TestScoreSite_Dimensions(t *testing.T) {
	snap := fullSnapshot("example.com")
	snap.TLS = false
	snap.HasHSTS = false
	snap.ResponseMillis = 1200

	sc := scoreSite(snap)
	if sc.Dimensions["security"] != 0 {
		t.Fatalf("expected security 0, got %d", sc.Dimensions["security"])
	}
	if sc.Dimensions["performance"] != weightSpeedSlow {
		t.Fatalf("expected performance %d, got %d", weightSpeedSlow, sc.Dimensions["performance"])
	}
	if sc.Dimensions["reachability"] != weightReach {
		t.Fatalf("expected reachability %d, got %d", weightReach, sc.Dimensions["reachability"])
	}
}

func TestBuildBenchmark(t *testing.T) {
	comps := []SiteScore{{Score: 80}, {Score: 40}, {Score: 65}}
	b := buildBenchmark(60, comps)

	if b.YourRank != 3 {
		t.Fatalf("expected rank 3, got %d", b.YourRank)
	}
	if b.TotalAnalyzed != 4 {
		t.Fatalf("expected 4 analyzed, got %d", b.TotalAnalyzed)
	}
	if b.MaxCompetitorScore != 80 || b.MinCompetitorScore != 40 {
		t.Fatalf("unexpected min/max %d/%d", b.MinCompetitorScore, b.MaxCompetitorScore)
	}
}

func TestWeakestDimension(t *testing.T) {
	sc := SiteScore{Dimensions: map[string]int{
		"reachability": 16,
		"security":     20,
		"performance":  3,
		"content":      12,
	}}
	name, score := weakestDimension(sc)
	if name != "performance" || score != 3 {
		t.Fatalf("expected performance/3, got %s/%d", name, score)
	}
}
