package cycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/quarantine"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/safety"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/synthesis"
)

// ReasonQuarantineBlock is the escalation reason for quarantined content.
const ReasonQuarantineBlock = "quarantine_block"

// PromptContext is the shared context rendered into proposal prompts.
type PromptContext struct {
	CycleID     string
	Mode        string
	LockedTitle string
	LockedTrack string
	LastSummary string
}

// Collector fans proposal prompts out across the roster.
type Collector struct {
	roster       *agent.Roster
	gate         *quarantine.Gate
	escalator    synthesis.Escalator
	autoEscalate bool
	guard        safety.Guard
	logger       *logging.Logger
}

// NewCollector builds a Collector. escalator may be nil; when set together
// with autoEscalate, quarantined proposals raise an approval request. guard
// may be nil.
func NewCollector(roster *agent.Roster, gate *quarantine.Gate, escalator synthesis.Escalator, autoEscalate bool, guard safety.Guard, logger *logging.Logger) *Collector {
	return &Collector{
		roster:       roster,
		gate:         gate,
		escalator:    escalator,
		autoEscalate: autoEscalate,
		guard:        guard,
		logger:       logger,
	}
}

// Collect asks every agent for a proposal in canonical order. An agent
// failure or a quarantine violation becomes a placeholder proposal; the
// cycle keeps going on partial results. An operator block stops the fan-out
// immediately and returns the proposals gathered so far alongside the error.
func (c *Collector) Collect(ctx context.Context, pc PromptContext) ([]Proposal, error) {
	log := c.logger.WithCycle(pc.CycleID).WithPhase("proposals")
	prompt := proposalPrompt(pc)

	proposals := make([]Proposal, 0, c.roster.Len())
	for _, p := range c.roster.Canonical() {
		if err := safety.Check(ctx, c.guard); err != nil {
			return proposals, err
		}
		text, err := p.Invoke(ctx, prompt)
		if err != nil {
			log.Warn("proposal failed", "agent", p.ID(), "error", err.Error())
			proposals = append(proposals, Proposal{
				AgentID: p.ID(),
				Text:    fmt.Sprintf("(proposal failed: %s)", p.ID()),
			})
			continue
		}

		if report := c.gate.CheckContent(text); !report.OK() {
			codes := strings.Join(report.Codes(), ",")
			log.Warn("proposal quarantined", "agent", p.ID(), "codes", codes)
			proposals = append(proposals, Proposal{
				AgentID: p.ID(),
				Text:    fmt.Sprintf("(proposal quarantined: %s)", codes),
			})
			if c.autoEscalate && c.escalator != nil {
				detail := fmt.Sprintf("proposal from %s blocked: %s", p.ID(), codes)
				if _, err := c.escalator.Escalate(ctx, ReasonQuarantineBlock, pc.CycleID, detail); err != nil && !errors.Is(err, errors.ErrQuorumNotMet) {
					log.Error("quarantine escalation failed", "error", err.Error())
				}
			}
			continue
		}

		proposals = append(proposals, Proposal{AgentID: p.ID(), Text: text, OK: true})
	}
	return proposals, nil
}

func proposalPrompt(pc PromptContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Decision cycle %s has started in %s mode.\n\n", pc.CycleID, pc.Mode)

	if pc.LockedTitle != "" {
		fmt.Fprintf(&sb, "The team is committed to project %q on track %q. Propose the next concrete step for this project.\n",
			pc.LockedTitle, pc.LockedTrack)
	} else {
		sb.WriteString("No project is locked yet. Propose one project the team should commit to, with a title, a track, and a first milestone.\n")
	}

	if pc.LastSummary != "" {
		fmt.Fprintf(&sb, "\nPrevious cycle: %s\n", pc.LastSummary)
	}

	sb.WriteString("\nWrite your proposal as short markdown. Be concrete about what you would do and why.\n")
	return sb.String()
}
