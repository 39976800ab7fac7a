package agent

// DefaultSet returns a fresh instance of every pipeline agent, in
// registration order. Agents are stateful across one run, so every
// orchestration gets its own set.
func DefaultSet(f Fetcher) []Agent {
	return []Agent{
		NewScout(f),
		NewAnalyst(),
		NewGuardian(),
		NewProspector(),
		NewStrategist(),
		NewPlanner(),
	}
}
