package swarm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mtzanidakis/skopos/internal/agent"
	"github.com/mtzanidakis/skopos/internal/event"
)

func TestNew_RejectsInvalidGraph(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty agent set")
	}
	if _, err := New([]agent.Agent{newFake(nil, "a", "ghost")}); err == nil {
		t.Fatal("expected unknown dependency to fail construction")
	}
	if _, err := New([]agent.Agent{newFake(nil, "a", "b"), newFake(nil, "b", "a")}); err == nil {
		t.Fatal("expected cycle to fail construction")
	}
}

func TestOrchestrator_RunTierOrder(t *testing.T) {
	log := &runLog{}
	agents := diamond(log)
	agents[2].(*fakeAgent).delay = 30 * time.Millisecond
	agents[3].(*fakeAgent).delay = 30 * time.Millisecond

	o, err := New(agents)
	if err != nil {
		t.Fatal(err)
	}
	res, err := o.Run(context.Background(), Request{URL: "https://you.example"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("expected success, got errors %v", res.Errors)
	}
	if res.AgentsCompleted != 5 || res.AgentsFailed != 0 {
		t.Fatalf("unexpected counts %d/%d", res.AgentsCompleted, res.AgentsFailed)
	}

	// Tiers are strictly sequential.
	if log.index("a:end") > log.index("b:start") {
		t.Fatal("expected a to finish before b started")
	}
	// c and d overlap: both start before either finishes.
	firstEnd := min(log.index("c:end"), log.index("d:end"))
	if log.index("c:start") > firstEnd || log.index("d:start") > firstEnd {
		t.Fatal("expected c and d to run concurrently")
	}
	if es := log.index("e:start"); es < log.index("c:end") || es < log.index("d:end") {
		t.Fatal("expected e to start only after c and d finished")
	}
}

func TestOrchestrator_AgentFailureIsolated(t *testing.T) {
	log := &runLog{}
	agents := diamond(log)
	agents[2].(*fakeAgent).fail = errors.New("probe blew up")
	e := agents[4].(*fakeAgent)

	o, err := New(agents)
	if err != nil {
		t.Fatal(err)
	}
	res, err := o.Run(context.Background(), Request{URL: "https://you.example"})
	if err != nil {
		t.Fatal(err)
	}

	if res.Success {
		t.Fatal("expected success false with a failed agent")
	}
	if res.AgentsCompleted != 4 || res.AgentsFailed != 1 {
		t.Fatalf("unexpected counts %d/%d", res.AgentsCompleted, res.AgentsFailed)
	}
	if len(res.Errors) != 1 || res.Errors[0] != "c: probe blew up" {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if _, ok := res.Results["c"]; ok {
		t.Fatal("expected no result entry for the failed agent")
	}
	// The last tier still ran, with c's result absent and d's present.
	if e.sawDeps["c"] {
		t.Fatal("expected e to see c's result absent")
	}
	if !e.sawDeps["d"] {
		t.Fatal("expected e to see d's result")
	}
}

func TestOrchestrator_PanicIsAgentFailure(t *testing.T) {
	agents := []agent.Agent{newFake(nil, "a"), newFake(nil, "b", "a")}
	agents[0].(*fakeAgent).panics = true

	o, err := New(agents)
	if err != nil {
		t.Fatal(err)
	}
	res, err := o.Run(context.Background(), Request{URL: "https://you.example"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected success false")
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "a: panic:") {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if res.AgentsCompleted != 1 {
		t.Fatal("expected the run to continue past the panic")
	}
}

func TestOrchestrator_RequiresURL(t *testing.T) {
	o, err := New([]agent.Agent{newFake(nil, "a")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Run(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestOrchestrator_RejectsConcurrentRuns(t *testing.T) {
	blocker := newFake(nil, "a")
	blocker.block = make(chan struct{})
	o, err := New([]agent.Agent{blocker})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.Run(context.Background(), Request{URL: "https://you.example"}); err != nil {
			t.Errorf("first run failed: %v", err)
		}
	}()

	deadline := time.After(2 * time.Second)
	for !o.Running() {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := o.Run(context.Background(), Request{URL: "https://you.example"}); err == nil {
		t.Fatal("expected the second run to be rejected while one is in flight")
	}

	close(blocker.block)
	<-done

	// With the first run finished, the orchestrator is free again.
	if _, err := o.Run(context.Background(), Request{URL: "https://you.example"}); err != nil {
		t.Fatal(err)
	}
}

func TestOrchestrator_ResetReturnsAgentsToIdle(t *testing.T) {
	o, err := New(agent.DefaultSet(stubFetcher{}))
	if err != nil {
		t.Fatal(err)
	}

	res, err := o.Run(context.Background(), Request{
		URL:            "https://you.example",
		CompetitorURLs: []string{"https://a.example"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("expected success, got errors %v", res.Errors)
	}
	for _, info := range o.AgentInfo() {
		if info.Status != agent.StateCompleted {
			t.Fatalf("expected %s completed, got %s", info.ID, info.Status)
		}
	}

	if err := o.Reset(); err != nil {
		t.Fatal(err)
	}
	for _, info := range o.AgentInfo() {
		if info.Status != agent.StateIdle || info.Progress != 0 {
			t.Fatalf("expected %s idle with zero progress, got %+v", info.ID, info)
		}
	}

	// Sequential reuse after reset.
	if _, err := o.Run(context.Background(), Request{URL: "https://you.example"}); err != nil {
		t.Fatal(err)
	}
}

func TestOrchestrator_CollectsEventsAndForwardsCallbacks(t *testing.T) {
	o, err := New(agent.DefaultSet(stubFetcher{}))
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var forwarded []event.Insight
	o.SetCallbacks(Callbacks{
		OnInsight: func(i event.Insight) {
			mu.Lock()
			forwarded = append(forwarded, i)
			mu.Unlock()
		},
	})

	res, err := o.Run(context.Background(), Request{
		URL:            "https://you.example",
		CompetitorURLs: []string{"https://a.example"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Insights) == 0 {
		t.Fatal("expected collected insights")
	}
	mu.Lock()
	n := len(forwarded)
	mu.Unlock()
	if n != len(res.Insights) {
		t.Fatalf("callback saw %d insights, result has %d", n, len(res.Insights))
	}

	kinds := map[event.Kind]bool{}
	for _, ev := range res.Events {
		kinds[ev.Kind] = true
	}
	for _, k := range []event.Kind{event.KindInsight, event.KindProgress, event.KindStatus} {
		if !kinds[k] {
			t.Fatalf("expected %s events in the run record", k)
		}
	}
}
