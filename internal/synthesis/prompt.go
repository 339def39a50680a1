// Package synthesis turns the round of proposals into one schema-valid
// collective decision. The leader gets the first attempt; transient failures
// retry on a fixed delay, everything else falls through the rest of the
// roster in canonical order until someone produces a decision that validates.
package synthesis

import (
	"fmt"
	"strings"
)

// ProposalText is one agent's proposal as seen by the decision prompt.
type ProposalText struct {
	AgentID string
	Text    string
	Failed  bool
}

// PromptInput carries everything the decision prompt needs.
type PromptInput struct {
	CycleID     string
	Mode        string
	LockedTitle string
	LockedTrack string
	RosterIDs   []string
	Proposals   []ProposalText
}

// BuildPrompt renders the synthesis prompt: cycle context, the locked
// identity when one exists, every proposal in canonical order, and the exact
// response schema.
func BuildPrompt(in PromptInput) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are the leader for decision cycle %s (%s mode).\n", in.CycleID, in.Mode)
	sb.WriteString("Review every proposal below and synthesize one collective decision for the team.\n\n")

	if in.LockedTitle != "" {
		sb.WriteString("The project identity is locked and must be reused verbatim:\n")
		fmt.Fprintf(&sb, "  selectedTitle: %s\n", in.LockedTitle)
		fmt.Fprintf(&sb, "  selectedTrack: %s\n\n", in.LockedTrack)
	}

	sb.WriteString("Proposals:\n")
	for _, p := range in.Proposals {
		fmt.Fprintf(&sb, "\n--- %s ---\n", p.AgentID)
		if p.Failed {
			sb.WriteString("(this agent failed to produce a proposal)\n")
			continue
		}
		sb.WriteString(strings.TrimSpace(p.Text))
		sb.WriteString("\n")
	}

	sb.WriteString("\nRespond with exactly one fenced JSON block:\n")
	sb.WriteString("```json\n{\n")
	sb.WriteString("  \"selectedTitle\": \"<project title>\",\n")
	sb.WriteString("  \"selectedTrack\": \"<project track>\",\n")
	sb.WriteString("  \"reason\": \"<why this decision>\",\n")
	fmt.Fprintf(&sb, "  \"taskSplit\": {%s},\n", schemaMapHint(in.RosterIDs, "<distinct non-empty task>"))
	fmt.Fprintf(&sb, "  \"reviewAssignments\": {%s},\n", schemaMapHint(in.RosterIDs, "<another agent id>"))
	sb.WriteString("  \"evidencePlan\": \"<how results will be verified>\",\n")
	sb.WriteString("  \"optionalEnablers\": \"<nice-to-haves, or empty>\",\n")
	sb.WriteString("  \"costPlan\": \"<expected cost impact>\",\n")
	sb.WriteString("  \"failureModes\": [\"<risk>\"]\n")
	sb.WriteString("}\n```\n")
	fmt.Fprintf(&sb, "taskSplit must contain exactly these keys: %s. ", strings.Join(in.RosterIDs, ", "))
	sb.WriteString("Every task must be distinct. No agent may review itself, and every agent must review exactly one other agent.\n")
	return sb.String()
}

func schemaMapHint(ids []string, placeholder string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%q: %q", id, placeholder)
	}
	return strings.Join(parts, ", ")
}
