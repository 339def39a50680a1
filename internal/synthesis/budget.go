package synthesis

import (
	"sync"
)

// AgentState tracks attempt spending for one agent within a synthesis run.
// Failures counts failed attempts; an agent is allowed MaxRetries+1 attempts
// in total.
type AgentState struct {
	AgentID    string `json:"agent_id"`
	Failures   int    `json:"failures"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`
	Succeeded  bool   `json:"succeeded,omitempty"`
}

// Budget tracks per-agent retry budgets. It is safe for concurrent use.
type Budget struct {
	mu         sync.RWMutex
	maxRetries int
	states     map[string]*AgentState
}

// NewBudget creates a Budget granting each agent maxRetries retries beyond
// the first attempt.
func NewBudget(maxRetries int) *Budget {
	return &Budget{
		maxRetries: maxRetries,
		states:     make(map[string]*AgentState),
	}
}

func (b *Budget) state(agentID string) *AgentState {
	s, ok := b.states[agentID]
	if !ok {
		s = &AgentState{AgentID: agentID, MaxRetries: b.maxRetries}
		b.states[agentID] = s
	}
	return s
}

// ShouldRetry reports whether the agent may attempt again after a failure.
func (b *Budget) ShouldRetry(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.states[agentID]; ok {
		return s.Failures <= s.MaxRetries
	}
	return true
}

// RecordFailure counts one failed attempt and remembers the error text.
func (b *Budget) RecordFailure(agentID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state(agentID)
	s.Failures++
	if err != nil {
		s.LastError = err.Error()
	}
}

// RecordSuccess marks the agent as the one that produced the decision.
func (b *Budget) RecordSuccess(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state(agentID).Succeeded = true
}

// Attempts returns the total attempts made across all agents.
func (b *Budget) Attempts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, s := range b.states {
		total += s.Failures
		if s.Succeeded {
			total++
		}
	}
	return total
}

// States returns a snapshot of every agent's retry state.
func (b *Budget) States() []AgentState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]AgentState, 0, len(b.states))
	for _, s := range b.states {
		out = append(out, *s)
	}
	return out
}
