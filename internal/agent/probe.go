package agent

import (
	"context"
)

// ProbeResult records one readiness probe outcome.
type ProbeResult struct {
	AgentID string
	Ready   bool
	Err     error
}

// ProbeAll sends the readiness prompt to every agent in canonical order. An
// agent counts as ready when it returns any non-blank response. Probes keep
// going past failures so one stuck agent does not hide the state of the rest.
func ProbeAll(ctx context.Context, agents []Proxy, prompt string) []ProbeResult {
	results := make([]ProbeResult, 0, len(agents))
	for _, p := range agents {
		if ctx.Err() != nil {
			results = append(results, ProbeResult{AgentID: p.ID(), Err: ctx.Err()})
			continue
		}
		out, err := p.Invoke(ctx, prompt)
		results = append(results, ProbeResult{
			AgentID: p.ID(),
			Ready:   err == nil && out != "",
			Err:     err,
		})
	}
	return results
}

// AllReady reports whether every probe in the batch succeeded.
func AllReady(results []ProbeResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Ready {
			return false
		}
	}
	return true
}
