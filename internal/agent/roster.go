package agent

import (
	"fmt"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// Roster holds the configured agents in canonical order. Canonical order is
// the config order; every fan-out walks it so transcripts and artifacts stay
// reproducible across runs.
type Roster struct {
	agents []Proxy
	byID   map[string]Proxy
	leader string
}

// NewRoster builds proxies for every configured agent.
func NewRoster(cfg *config.Config, logger *logging.Logger) (*Roster, error) {
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	r := &Roster{
		byID:   make(map[string]Proxy, len(cfg.Agents)),
		leader: cfg.Leader,
	}
	for _, ac := range cfg.Agents {
		if _, dup := r.byID[ac.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", ac.ID)
		}
		p := NewCommandProxy(ac, logger)
		r.agents = append(r.agents, p)
		r.byID[ac.ID] = p
	}
	if _, ok := r.byID[cfg.Leader]; !ok {
		return nil, fmt.Errorf("leader %q is not in the roster", cfg.Leader)
	}
	return r, nil
}

// NewRosterFromProxies wires a roster out of pre-built proxies. Tests use
// this to substitute scripted agents.
func NewRosterFromProxies(leader string, proxies ...Proxy) (*Roster, error) {
	if len(proxies) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	r := &Roster{
		byID:   make(map[string]Proxy, len(proxies)),
		leader: leader,
	}
	for _, p := range proxies {
		if _, dup := r.byID[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", p.ID())
		}
		r.agents = append(r.agents, p)
		r.byID[p.ID()] = p
	}
	if _, ok := r.byID[leader]; !ok {
		return nil, fmt.Errorf("leader %q is not in the roster", leader)
	}
	return r, nil
}

// Canonical returns all agents in canonical order.
func (r *Roster) Canonical() []Proxy {
	return append([]Proxy(nil), r.agents...)
}

// IDs returns the agent identifiers in canonical order.
func (r *Roster) IDs() []string {
	ids := make([]string, len(r.agents))
	for i, p := range r.agents {
		ids[i] = p.ID()
	}
	return ids
}

// Leader returns the configured leader proxy.
func (r *Roster) Leader() Proxy {
	return r.byID[r.leader]
}

// LeaderID returns the configured leader identifier.
func (r *Roster) LeaderID() string {
	return r.leader
}

// Fallbacks returns every non-leader agent in canonical order. This is the
// order synthesis walks when the leader is out of budget.
func (r *Roster) Fallbacks() []Proxy {
	var out []Proxy
	for _, p := range r.agents {
		if p.ID() != r.leader {
			out = append(out, p)
		}
	}
	return out
}

// Get looks an agent up by identifier.
func (r *Roster) Get(id string) (Proxy, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Len returns the roster size.
func (r *Roster) Len() int {
	return len(r.agents)
}
