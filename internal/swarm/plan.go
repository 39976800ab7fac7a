package swarm

import (
	"errors"
	"fmt"

	"github.com/mtzanidakis/skopos/internal/agent"
)

// Plan is the ordered tier layout for one orchestration run.
type Plan struct {
	Tiers []Tier
}

// Tier is a group of agent IDs that execute in parallel. A tier starts only
// after every agent of the previous tier has returned.
type Tier struct {
	Agents []string
}

// BuildPlan derives the tier layout from the agents' declared dependencies.
// It returns an error if a dependency references an unknown agent or the
// dependency graph contains a cycle.
func BuildPlan(agents []agent.Agent) (*Plan, error) {
	ids := make(map[string]bool, len(agents))
	for _, a := range agents {
		if ids[a.ID()] {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID())
		}
		ids[a.ID()] = true
	}
	for _, a := range agents {
		for _, dep := range a.Dependencies() {
			if !ids[dep] {
				return nil, fmt.Errorf("agent %q depends on unknown agent %q", a.ID(), dep)
			}
		}
	}

	inDegree := make(map[string]int, len(agents))
	dependents := make(map[string][]string)
	for _, a := range agents {
		inDegree[a.ID()] = len(a.Dependencies())
		for _, dep := range a.Dependencies() {
			dependents[dep] = append(dependents[dep], a.ID())
		}
	}

	// Topological sort using Kahn's algorithm, grouping by depth: an agent's
	// depth is one past its deepest dependency.
	depth := make(map[string]int, len(agents))
	queue := make([]string, 0, len(agents))
	for _, a := range agents {
		if inDegree[a.ID()] == 0 {
			queue = append(queue, a.ID())
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++

		for _, next := range dependents[id] {
			if d := depth[id] + 1; d > depth[next] {
				depth[next] = d
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed != len(agents) {
		return nil, errors.New("dependency graph contains a cycle")
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	// Assign tiers by depth, preserving registration order within a tier.
	tierMap := make(map[int][]string)
	for _, a := range agents {
		tierMap[depth[a.ID()]] = append(tierMap[depth[a.ID()]], a.ID())
	}
	tiers := make([]Tier, 0, maxDepth+1)
	for d := 0; d <= maxDepth; d++ {
		if members := tierMap[d]; len(members) > 0 {
			tiers = append(tiers, Tier{Agents: members})
		}
	}

	return &Plan{Tiers: tiers}, nil
}
