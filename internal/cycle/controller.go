package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/approval"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/decision"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/discussion"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/rebalance"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/safety"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/synthesis"
)

// Deps wires the controller's collaborators.
type Deps struct {
	Config      *config.Config
	Roster      *agent.Roster
	Stop        *safety.Switch
	Approvals   *approval.Store
	Collector   *Collector
	Synthesizer *synthesis.Synthesizer
	Rebalancer  *rebalance.Rebalancer
	Discussion  *discussion.Loop
	Plans       *PlanStore
	Cycles      *Store
	Logger      *logging.Logger
}

// Controller runs one decision cycle end to end.
type Controller struct {
	deps  Deps
	guard safety.Guard

	// sleep is swapped out in tests that exercise the readiness window.
	sleep func(time.Duration)
}

// NewController builds a Controller.
func NewController(deps Deps) *Controller {
	return &Controller{
		deps:  deps,
		guard: safety.NewGuard(deps.Stop, deps.Approvals),
		sleep: time.Sleep,
	}
}

// Run executes one full cycle and returns its id. The id is returned even on
// abort so the caller can point at the retained artifacts.
func (c *Controller) Run(ctx context.Context, requestedMode string) (string, error) {
	plan, err := c.deps.Plans.Load()
	if err != nil {
		return "", err
	}
	mode := resolveMode(requestedMode, plan)

	cyc := &Cycle{
		ID:        NewCycleID(),
		Mode:      mode,
		Leader:    c.deps.Roster.LeaderID(),
		StartedAt: time.Now().UTC(),
	}
	log := c.deps.Logger.WithCycle(cyc.ID)
	log.Info("cycle started", "mode", mode)

	if err := c.runPhases(ctx, cyc, plan, log); err != nil {
		c.abort(cyc, err, log)
		return cyc.ID, err
	}

	now := time.Now().UTC()
	cyc.FinishedAt = &now
	if err := c.deps.Cycles.Save(cyc); err != nil {
		return cyc.ID, err
	}
	if err := c.deps.Plans.RecordCycle(cyc); err != nil {
		return cyc.ID, err
	}
	log.Info("cycle completed",
		"consensus", cyc.Discussion != nil && cyc.Discussion.Consensus,
		"tasks", len(cyc.Tasks))
	return cyc.ID, nil
}

func (c *Controller) runPhases(ctx context.Context, cyc *Cycle, plan *Plan, log *logging.Logger) error {
	if err := safety.Check(ctx, c.guard); err != nil {
		return err
	}
	if err := c.waitReady(ctx, log); err != nil {
		return err
	}
	if err := c.deps.Cycles.Save(cyc); err != nil {
		return err
	}

	pc := PromptContext{
		CycleID:     cyc.ID,
		Mode:        cyc.Mode,
		LastSummary: plan.LastSummary,
	}
	if plan.Locked() {
		pc.LockedTitle = plan.Project.Title
		pc.LockedTrack = plan.Project.Track
	}

	if err := safety.Check(ctx, c.guard); err != nil {
		return err
	}
	proposals, cerr := c.deps.Collector.Collect(ctx, pc)
	cyc.Proposals = proposals
	if err := c.deps.Cycles.Save(cyc); err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}

	if err := safety.Check(ctx, c.guard); err != nil {
		return err
	}
	in := synthesis.PromptInput{
		CycleID:     cyc.ID,
		Mode:        cyc.Mode,
		LockedTitle: pc.LockedTitle,
		LockedTrack: pc.LockedTrack,
		RosterIDs:   c.deps.Roster.IDs(),
	}
	for _, p := range cyc.Proposals {
		in.Proposals = append(in.Proposals, synthesis.ProposalText{
			AgentID: p.AgentID,
			Text:    p.Text,
			Failed:  !p.OK,
		})
	}
	d, err := c.deps.Synthesizer.Synthesize(ctx, cyc.ID, in)
	if err != nil {
		return err
	}
	c.pinIdentity(cyc.Mode, d, plan)
	cyc.Decision = d
	if err := c.deps.Cycles.Save(cyc); err != nil {
		return err
	}

	if err := safety.Check(ctx, c.guard); err != nil {
		return err
	}
	d, err = c.deps.Rebalancer.Rebalance(ctx, cyc.ID, d, c.deps.Roster.IDs())
	if err != nil {
		return err
	}
	c.pinIdentity(cyc.Mode, d, plan)
	cyc.Decision = d

	if cyc.Mode == ModeKickoff {
		if err := c.deps.Plans.LockIdentity(d.SelectedTitle, d.SelectedTrack); err != nil {
			return err
		}
	}

	cyc.Tasks = DeriveTasks(d, c.deps.Roster.IDs())
	if err := c.deps.Cycles.Save(cyc); err != nil {
		return err
	}

	if err := safety.Check(ctx, c.guard); err != nil {
		return err
	}
	outcome, err := c.deps.Discussion.Run(ctx, cyc.ID, decisionTopic(d, cyc.Tasks))
	if outcome != nil {
		cyc.Discussion = outcome
	}
	if err != nil {
		return err
	}
	if !outcome.Consensus {
		log.Warn("cycle finishing without consensus", "rounds", outcome.Rounds, "reason", outcome.Reason)
	}
	return safety.Check(ctx, c.guard)
}

// waitReady polls the roster until every agent answers the probe prompt or
// the readiness deadline passes.
func (c *Controller) waitReady(ctx context.Context, log *logging.Logger) error {
	cfg := c.deps.Config.Readiness
	deadline := time.Now().Add(cfg.Timeout())
	attempts := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempts++
		results := agent.ProbeAll(ctx, c.deps.Roster.Canonical(), cfg.Prompt)
		if agent.AllReady(results) {
			log.Info("roster ready", "probes", attempts)
			return nil
		}

		var down []string
		for _, r := range results {
			if !r.Ready {
				down = append(down, r.AgentID)
			}
		}
		log.Warn("roster not ready", "probe", attempts, "down", strings.Join(down, ","))

		if time.Now().Add(cfg.PollInterval()).After(deadline) {
			return errors.NewExhaustionError("readiness", attempts, errors.ErrReadinessTimeout)
		}
		c.sleep(cfg.PollInterval())
	}
}

// pinIdentity force-overwrites the decision's identity with the locked one
// in execution mode. The leader cannot rename the project mid-stream.
func (c *Controller) pinIdentity(mode string, d *decision.Decision, plan *Plan) {
	if mode != ModeExecution || !plan.Locked() {
		return
	}
	d.SelectedTitle = plan.Project.Title
	d.SelectedTrack = plan.Project.Track
}

func (c *Controller) abort(cyc *Cycle, cause error, log *logging.Logger) {
	now := time.Now().UTC()
	cyc.FinishedAt = &now
	cyc.Aborted = true
	cyc.AbortCause = cause.Error()
	if err := c.deps.Cycles.Save(cyc); err != nil {
		log.Error("failed to persist aborted cycle", "error", err.Error())
	}
	if err := c.deps.Plans.RecordCycle(cyc); err != nil {
		log.Error("failed to record aborted cycle", "error", err.Error())
	}
	log.Error("cycle aborted",
		"reason", errors.Reason(cause),
		"artifact", errors.Artifact(cause),
		"error", cause.Error())
}

func resolveMode(requested string, plan *Plan) string {
	switch requested {
	case ModeKickoff, ModeExecution:
		return requested
	}
	if plan.Locked() {
		return ModeExecution
	}
	return ModeKickoff
}

// decisionTopic renders the decision for the discussion prompts.
func decisionTopic(d *decision.Decision, tasks []Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s (%s)\n", d.SelectedTitle, d.SelectedTrack)
	fmt.Fprintf(&sb, "Reason: %s\n", d.Reason)
	sb.WriteString("Tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "  %s: %s (reviewed by %s)\n", t.AgentID, t.Text, t.Reviewer)
	}
	if d.EvidencePlan != "" {
		fmt.Fprintf(&sb, "Evidence plan: %s\n", d.EvidencePlan)
	}
	if len(d.FailureModes) > 0 {
		data, _ := json.Marshal(d.FailureModes)
		fmt.Fprintf(&sb, "Failure modes: %s\n", data)
	}
	return sb.String()
}
