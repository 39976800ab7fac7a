package swarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mtzanidakis/skopos/internal/agent"
)

// runLog records agent activity across goroutines for order assertions.
type runLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *runLog) add(s string) {
	l.mu.Lock()
	l.entries = append(l.entries, s)
	l.mu.Unlock()
}

func (l *runLog) index(s string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e == s {
			return i
		}
	}
	return -1
}

// fakeAgent is a scriptable agent for orchestration tests.
type fakeAgent struct {
	agent.Base
	result  any
	fail    error
	panics  bool
	delay   time.Duration
	block   chan struct{}
	log     *runLog
	sawDeps map[string]bool
}

func newFake(log *runLog, id string, deps ...string) *fakeAgent {
	return &fakeAgent{
		Base:    agent.NewBase(id, id, "", "", "", deps...),
		result:  id + "-result",
		log:     log,
		sawDeps: make(map[string]bool),
	}
}

func (f *fakeAgent) Run(ctx context.Context, ac *agent.Context) (any, error) {
	if f.log != nil {
		f.log.add(f.ID() + ":start")
	}
	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("boom")
	}
	for _, dep := range f.Dependencies() {
		_, ok := ac.Result(dep)
		f.sawDeps[dep] = ok
	}
	if f.log != nil {
		f.log.add(f.ID() + ":end")
	}
	if f.fail != nil {
		return nil, f.fail
	}
	return f.result, nil
}

// stubFetcher satisfies scout's fetcher without any network.
type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, rawURL string) (*agent.Snapshot, error) {
	return &agent.Snapshot{
		URL:       rawURL,
		Domain:    rawURL,
		Reachable: true,
		TLS:       true,
	}, nil
}

// diamond is the canonical test topology:
// a, then b, then c and d in parallel, then e.
func diamond(log *runLog) []agent.Agent {
	return []agent.Agent{
		newFake(log, "a"),
		newFake(log, "b", "a"),
		newFake(log, "c", "b"),
		newFake(log, "d", "b"),
		newFake(log, "e", "c", "d"),
	}
}

func tiersEqual(plan *Plan, want [][]string) bool {
	if len(plan.Tiers) != len(want) {
		return false
	}
	for i, tier := range plan.Tiers {
		if len(tier.Agents) != len(want[i]) {
			return false
		}
		for j, id := range tier.Agents {
			if id != want[i][j] {
				return false
			}
		}
	}
	return true
}

func TestBuildPlan_DiamondLayout(t *testing.T) {
	plan, err := BuildPlan(diamond(nil))
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"a"}, {"b"}, {"c", "d"}, {"e"}}
	if !tiersEqual(plan, want) {
		t.Fatalf("expected tiers %v, got %+v", want, plan.Tiers)
	}
}

func TestBuildPlan_SingleAgent(t *testing.T) {
	plan, err := BuildPlan([]agent.Agent{newFake(nil, "solo")})
	if err != nil {
		t.Fatal(err)
	}
	if !tiersEqual(plan, [][]string{{"solo"}}) {
		t.Fatalf("expected one tier, got %+v", plan.Tiers)
	}
}

func TestBuildPlan_UnknownDependency(t *testing.T) {
	_, err := BuildPlan([]agent.Agent{newFake(nil, "a", "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuildPlan_Cycle(t *testing.T) {
	_, err := BuildPlan([]agent.Agent{
		newFake(nil, "a", "b"),
		newFake(nil, "b", "a"),
	})
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestBuildPlan_DuplicateID(t *testing.T) {
	_, err := BuildPlan([]agent.Agent{newFake(nil, "a"), newFake(nil, "a")})
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestBuildPlan_DefaultSet(t *testing.T) {
	plan, err := BuildPlan(agent.DefaultSet(stubFetcher{}))
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"scout"}, {"analyst"}, {"guardian", "prospector"}, {"strategist"}, {"planner"}}
	if !tiersEqual(plan, want) {
		t.Fatalf("expected tiers %v, got %+v", want, plan.Tiers)
	}
}
