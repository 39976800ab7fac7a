package agent

import "github.com/mtzanidakis/skopos/internal/event"

// Context carries the shared inputs and accumulated results of one analysis
// run. It is owned by a single orchestration run and never shared between
// concurrent runs.
//
// Agents of later tiers read results written by earlier tiers; only the
// orchestrator writes them, between tiers, so the map needs no lock.
type Context struct {
	URL            string
	CompetitorURLs []string
	Industry       string
	Language       string
	UserID         string

	OnInsight  func(event.Insight)
	OnProgress func(event.Progress)
	OnStatus   func(event.StatusChange)

	results map[string]any
}

func NewContext(url string, competitorURLs []string) *Context {
	return &Context{
		URL:            url,
		CompetitorURLs: competitorURLs,
		results:        make(map[string]any),
	}
}

// Result returns the completed result stored for an agent. The second value
// is false when that agent has not completed; after an upstream failure this
// is the normal case and callers must degrade instead of erroring.
func (c *Context) Result(agentID string) (any, bool) {
	v, ok := c.results[agentID]
	return v, ok
}

// SetResult records an agent's completed result. Called by the orchestrator
// after a tier resolves; agents themselves never write.
func (c *Context) SetResult(agentID string, result any) {
	c.results[agentID] = result
}

// Results returns the raw result map. The caller must treat it as read-only.
func (c *Context) Results() map[string]any {
	return c.results
}

func (c *Context) emitInsight(ins event.Insight) {
	if c.OnInsight != nil {
		c.OnInsight(ins)
	}
}

func (c *Context) emitProgress(p event.Progress) {
	if c.OnProgress != nil {
		c.OnProgress(p)
	}
}

func (c *Context) emitStatus(sc event.StatusChange) {
	if c.OnStatus != nil {
		c.OnStatus(sc)
	}
}
