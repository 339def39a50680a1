// Package cycle owns the decision-cycle state machine: the persisted cycle
// and plan documents, the proposal collector, and the controller that runs
// phases in order.
package cycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/decision"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/discussion"
)

// Cycle modes.
const (
	ModeKickoff   = "kickoff"
	ModeExecution = "execution"
	// ModeAuto lets the controller pick based on the plan's locked identity.
	ModeAuto = "auto"
)

// Proposal is one agent's contribution to a cycle.
type Proposal struct {
	AgentID string `json:"agent_id"`
	Text    string `json:"text"`
	OK      bool   `json:"ok"`
}

// Task is one derived work assignment.
type Task struct {
	AgentID  string `json:"agent_id"`
	Text     string `json:"text"`
	Reviewer string `json:"reviewer"`
}

// Cycle is the full record of one decision cycle. It is persisted
// progressively while running and never modified after FinishedAt is set.
type Cycle struct {
	ID         string              `json:"id"`
	Mode       string              `json:"mode"`
	Leader     string              `json:"leader"`
	Proposals  []Proposal          `json:"proposals,omitempty"`
	Decision   *decision.Decision  `json:"decision,omitempty"`
	Tasks      []Task              `json:"tasks,omitempty"`
	Discussion *discussion.Outcome `json:"discussion,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Aborted    bool                `json:"aborted,omitempty"`
	AbortCause string              `json:"abort_cause,omitempty"`
}

// NewCycleID returns an identifier of the form cycle_<unix>_<hex8>.
func NewCycleID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("cycle_%d_%s", time.Now().Unix(), suffix)
}

// DeriveTasks builds one task per agent from the decision's split and
// reviewer assignment, in roster order.
func DeriveTasks(d *decision.Decision, rosterIDs []string) []Task {
	tasks := make([]Task, 0, len(rosterIDs))
	for _, id := range rosterIDs {
		tasks = append(tasks, Task{
			AgentID:  id,
			Text:     d.TaskSplit[id],
			Reviewer: d.ReviewAssignments[id],
		})
	}
	return tasks
}

// Summary renders the one-line cycle summary stored in the plan history.
func (c *Cycle) Summary() string {
	status := "completed"
	switch {
	case c.Aborted:
		status = "aborted"
	case c.Discussion != nil && !c.Discussion.Consensus:
		status = "completed without consensus"
	}
	title := ""
	if c.Decision != nil {
		title = c.Decision.SelectedTitle
	}
	return strings.TrimSpace(fmt.Sprintf("%s [%s] %s %s", c.ID, c.Mode, status, title))
}
