// Package rebalance detects task overlap in a decision and drives the
// bounded leader re-synthesis that resolves it.
package rebalance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/decision"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/safety"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/synthesis"
)

// ReasonExhausted is the escalation reason when rebalancing gives up.
const ReasonExhausted = "rebalance_exhausted"

// OverlapGroup is a set of agents whose tasks collide after normalization.
type OverlapGroup struct {
	Normalized string   `json:"normalized"`
	Agents     []string `json:"agents"`
}

// Report describes every conflict found in a decision's task split.
type Report struct {
	CycleID string         `json:"cycle_id,omitempty"`
	Groups  []OverlapGroup `json:"groups,omitempty"`
	Blanks  []string       `json:"blanks,omitempty"`
}

// Clean reports whether the task split is conflict-free.
func (r *Report) Clean() bool {
	return len(r.Groups) == 0 && len(r.Blanks) == 0
}

// Agents returns every agent involved in a conflict, sorted.
func (r *Report) Agents() []string {
	seen := make(map[string]bool)
	for _, g := range r.Groups {
		for _, a := range g.Agents {
			seen[a] = true
		}
	}
	for _, a := range r.Blanks {
		seen[a] = true
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Detect normalizes every task in the split and reports agents sharing a
// normalized value or holding a blank one.
func Detect(d *decision.Decision, rosterIDs []string) *Report {
	report := &Report{}
	byNorm := make(map[string][]string)

	for _, id := range rosterIDs {
		task, ok := d.TaskSplit[id]
		if !ok {
			report.Blanks = append(report.Blanks, id)
			continue
		}
		norm := decision.Normalize(task)
		if norm == "" {
			report.Blanks = append(report.Blanks, id)
			continue
		}
		byNorm[norm] = append(byNorm[norm], id)
	}

	norms := make([]string, 0, len(byNorm))
	for n := range byNorm {
		norms = append(norms, n)
	}
	sort.Strings(norms)
	for _, n := range norms {
		if agents := byNorm[n]; len(agents) > 1 {
			report.Groups = append(report.Groups, OverlapGroup{Normalized: n, Agents: agents})
		}
	}
	return report
}

// Rebalancer prompts the leader for corrected decisions until the split is
// conflict-free or the attempt budget runs out.
type Rebalancer struct {
	roster       *agent.Roster
	cfg          config.RebalanceConfig
	artifactsDir string
	escalator    synthesis.Escalator
	guard        safety.Guard
	logger       *logging.Logger
}

// NewRebalancer builds a Rebalancer. escalator and guard may be nil.
func NewRebalancer(roster *agent.Roster, cfg config.RebalanceConfig, artifactsDir string, escalator synthesis.Escalator, guard safety.Guard, logger *logging.Logger) *Rebalancer {
	return &Rebalancer{
		roster:       roster,
		cfg:          cfg,
		artifactsDir: artifactsDir,
		escalator:    escalator,
		guard:        guard,
		logger:       logger,
	}
}

// Rebalance returns the decision unchanged when its split is already clean.
// Otherwise the leader is asked for a corrected decision, with the project
// identity re-pinned from the incoming decision, until one both re-validates
// and is overlap-free. Exhaustion persists the overlap report and is fatal.
func (r *Rebalancer) Rebalance(ctx context.Context, cycleID string, d *decision.Decision, rosterIDs []string) (*decision.Decision, error) {
	report := Detect(d, rosterIDs)
	if report.Clean() {
		return d, nil
	}
	report.CycleID = cycleID

	log := r.logger.WithCycle(cycleID).WithPhase("rebalance")
	log.Warn("task overlap detected",
		"groups", len(report.Groups),
		"blanks", len(report.Blanks),
		"agents", strings.Join(report.Agents(), ","))

	leader := r.roster.Leader()
	attempts := 0
	for attempts < r.cfg.MaxAttempts {
		if err := safety.Check(ctx, r.guard); err != nil {
			return nil, err
		}
		attempts++

		out, err := leader.Invoke(ctx, buildPrompt(cycleID, d, report, rosterIDs))
		if err != nil {
			log.Warn("rebalance attempt failed", "attempt", attempts, "error", err.Error())
			continue
		}

		candidate, perr := decision.Parse(out)
		if perr != nil {
			log.Warn("rebalance response unparsable", "attempt", attempts, "error", perr.Error())
			continue
		}

		// Identity is pinned: the leader cannot rename the project while
		// fixing the split.
		candidate.SelectedTitle = d.SelectedTitle
		candidate.SelectedTrack = d.SelectedTrack

		if result := candidate.Validate(rosterIDs); !result.OK() {
			log.Warn("rebalance response failed schema validation",
				"attempt", attempts,
				"problems", strings.Join(result.Problems, "; "))
			continue
		}
		next := Detect(candidate, rosterIDs)
		if !next.Clean() {
			log.Warn("rebalance response still overlaps",
				"attempt", attempts, "groups", len(next.Groups))
			report = next
			report.CycleID = cycleID
			continue
		}

		candidate.Enrich(rosterIDs, cycleID)
		log.Info("overlap resolved", "attempts", attempts)
		return candidate, nil
	}

	artifactPath := r.persistReport(report)
	log.Error("rebalance exhausted", "attempts", attempts, "artifact", artifactPath)

	if r.escalator != nil {
		detail := fmt.Sprintf("unresolved task overlap among %s after %d attempts",
			strings.Join(report.Agents(), ", "), attempts)
		if _, err := r.escalator.Escalate(ctx, ReasonExhausted, cycleID, detail); err != nil && !errors.Is(err, errors.ErrQuorumNotMet) {
			log.Error("rebalance escalation failed", "error", err.Error())
		}
	}

	cause := errors.NewConflictError("task overlap unresolved", nil).WithAgents(report.Agents())
	return nil, errors.NewExhaustionError("rebalance", attempts, cause).WithArtifact(artifactPath)
}

func (r *Rebalancer) persistReport(report *Report) string {
	if r.artifactsDir == "" {
		return ""
	}
	dir := filepath.Join(r.artifactsDir, report.CycleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "overlap-report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ""
	}
	return path
}

func buildPrompt(cycleID string, d *decision.Decision, report *Report, rosterIDs []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Your decision for cycle %s has conflicting task assignments and must be corrected.\n\n", cycleID)
	sb.WriteString("Current task split:\n")
	for _, id := range rosterIDs {
		fmt.Fprintf(&sb, "  %s: %s\n", id, d.TaskSplit[id])
	}

	sb.WriteString("\nConflicts:\n")
	for _, g := range report.Groups {
		fmt.Fprintf(&sb, "  agents %s share the same task after normalization\n", strings.Join(g.Agents, ", "))
	}
	for _, a := range report.Blanks {
		fmt.Fprintf(&sb, "  agent %s has a blank task\n", a)
	}

	sb.WriteString("\nProduce the full corrected decision as one fenced JSON block with the same schema as before. ")
	fmt.Fprintf(&sb, "Keep selectedTitle %q and selectedTrack %q unchanged. ", d.SelectedTitle, d.SelectedTrack)
	sb.WriteString("Every agent must receive a distinct, non-empty task.\n")
	return sb.String()
}
