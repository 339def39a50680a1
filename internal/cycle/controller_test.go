package cycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/approval"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/discussion"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/rebalance"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/safety"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/synthesis"
)

const probePrompt = "Reply with the single word ready."

func decisionFixture(title string) string {
	return fmt.Sprintf("```json\n"+`{
  "selectedTitle": %q,
  "selectedTrack": "webapp",
  "reason": "strongest combined proposal",
  "taskSplit": {
    "gpt": "build the ingest API",
    "claude": "design the storage schema",
    "gemini": "implement the chart views",
    "grok": "write end to end tests"
  },
  "reviewAssignments": {
    "gpt": "claude",
    "claude": "gemini",
    "gemini": "grok",
    "grok": "gpt"
  },
  "evidencePlan": "demo with seeded data",
  "optionalEnablers": "",
  "costPlan": "within current quota",
  "failureModes": ["scope creep"]
}`+"\n```", title)
}

// cooperativeAgent answers every phase of a cycle well enough to complete it.
func cooperativeAgent(id, decisionJSON string) *fakeProxy {
	return &fakeProxy{id: id, handler: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "judging consensus"):
			return `{"consensus": true, "reason": "the team is aligned"}`, nil
		case strings.Contains(prompt, "synthesize one collective decision"):
			return decisionJSON, nil
		case strings.Contains(prompt, "team discussion"):
			return "sounds good, no objections from " + id, nil
		case strings.Contains(prompt, "Decision cycle"):
			return "proposal from " + id, nil
		default:
			return "ready", nil
		}
	}}
}

type controllerFixture struct {
	ctrl      *Controller
	cfg       *config.Config
	stop      *safety.Switch
	approvals *approval.Store
	plans     *PlanStore
	cycles    *Store
}

func newControllerFixture(t *testing.T, proxies ...agent.Proxy) *controllerFixture {
	t.Helper()
	stateDir := t.TempDir()
	log := logging.NopLogger()

	cfg := config.Default()
	cfg.Readiness.TimeoutSeconds = 5
	cfg.Readiness.PollIntervalSeconds = 1
	cfg.Readiness.Prompt = probePrompt
	cfg.Synthesis.MaxRetries = 0
	cfg.Synthesis.RetryDelaySeconds = 0
	cfg.Discussion.MinRounds = 1
	cfg.Discussion.MaxRounds = 2
	cfg.Discussion.LeaderCheckpoint = false

	if len(proxies) == 0 {
		j := decisionFixture("Metrics Dashboard")
		proxies = []agent.Proxy{
			cooperativeAgent("gpt", j),
			cooperativeAgent("claude", j),
			cooperativeAgent("gemini", j),
			cooperativeAgent("grok", j),
		}
	}
	roster, err := agent.NewRosterFromProxies("gemini", proxies...)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}

	approvals, err := approval.NewStore(stateDir, log)
	if err != nil {
		t.Fatalf("approvals: %v", err)
	}
	cycles, err := NewStore(stateDir, log)
	if err != nil {
		t.Fatalf("cycles: %v", err)
	}
	artifacts := filepath.Join(stateDir, "cycles")

	f := &controllerFixture{
		cfg:       cfg,
		stop:      safety.NewSwitch(stateDir, log),
		approvals: approvals,
		plans:     NewPlanStore(stateDir, log),
		cycles:    cycles,
	}
	gate := newTestGate(t)
	guard := safety.NewGuard(f.stop, approvals)
	f.ctrl = NewController(Deps{
		Config:      cfg,
		Roster:      roster,
		Stop:        f.stop,
		Approvals:   approvals,
		Collector:   NewCollector(roster, gate, nil, false, guard, log),
		Synthesizer: synthesis.NewSynthesizer(roster, cfg.Synthesis, artifacts, nil, guard, log),
		Rebalancer:  rebalance.NewRebalancer(roster, cfg.Rebalance, artifacts, nil, guard, log),
		Discussion:  discussion.NewLoop(roster, cfg.Discussion, guard, log),
		Plans:       f.plans,
		Cycles:      cycles,
		Logger:      log,
	})
	return f
}

func TestResolveMode(t *testing.T) {
	locked := &Plan{Project: &ProjectIdentity{Title: "Metrics Dashboard", Track: "webapp"}}
	unlocked := &Plan{}

	for _, tt := range []struct {
		requested string
		plan      *Plan
		want      string
	}{
		{ModeKickoff, locked, ModeKickoff},
		{ModeExecution, unlocked, ModeExecution},
		{ModeAuto, locked, ModeExecution},
		{ModeAuto, unlocked, ModeKickoff},
		{"", locked, ModeExecution},
		{"", unlocked, ModeKickoff},
	} {
		if got := resolveMode(tt.requested, tt.plan); got != tt.want {
			t.Errorf("resolveMode(%q, locked=%v) = %q, want %q",
				tt.requested, tt.plan.Locked(), got, tt.want)
		}
	}
}

func TestRunKickoffHappyPath(t *testing.T) {
	f := newControllerFixture(t)

	id, err := f.ctrl.Run(context.Background(), ModeAuto)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	c, err := f.cycles.Load(id)
	if err != nil {
		t.Fatalf("Load cycle: %v", err)
	}
	if c.Mode != ModeKickoff {
		t.Errorf("mode = %q, want kickoff on an unlocked plan", c.Mode)
	}
	if c.Aborted {
		t.Fatalf("cycle aborted: %s", c.AbortCause)
	}
	if len(c.Proposals) != 4 {
		t.Errorf("proposals = %d, want 4", len(c.Proposals))
	}
	if c.Decision == nil || c.Decision.SelectedTitle != "Metrics Dashboard" {
		t.Fatalf("decision = %+v", c.Decision)
	}
	if len(c.Tasks) != 4 {
		t.Fatalf("tasks = %d, want one per agent", len(c.Tasks))
	}
	for _, task := range c.Tasks {
		if task.Text == "" || task.Reviewer == "" || task.Reviewer == task.AgentID {
			t.Errorf("bad task %+v", task)
		}
	}
	if c.Discussion == nil || !c.Discussion.Consensus {
		t.Errorf("discussion = %+v, want consensus", c.Discussion)
	}
	if c.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}

	plan, err := f.plans.Load()
	if err != nil {
		t.Fatalf("Load plan: %v", err)
	}
	if !plan.Locked() || plan.Project.Title != "Metrics Dashboard" {
		t.Errorf("plan not locked to decision: %+v", plan.Project)
	}
	if plan.CycleCount != 1 || !strings.Contains(plan.LastSummary, id) {
		t.Errorf("plan record = count %d, summary %q", plan.CycleCount, plan.LastSummary)
	}
}

func TestRunExecutionPinsLockedIdentity(t *testing.T) {
	// The leader tries to rename the project; the locked identity wins.
	j := decisionFixture("Rogue Rename")
	f := newControllerFixture(t,
		cooperativeAgent("gpt", j),
		cooperativeAgent("claude", j),
		cooperativeAgent("gemini", j),
		cooperativeAgent("grok", j),
	)
	if err := f.plans.LockIdentity("Metrics Dashboard", "webapp"); err != nil {
		t.Fatalf("LockIdentity: %v", err)
	}

	id, err := f.ctrl.Run(context.Background(), ModeAuto)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	c, err := f.cycles.Load(id)
	if err != nil {
		t.Fatalf("Load cycle: %v", err)
	}
	if c.Mode != ModeExecution {
		t.Errorf("mode = %q, want execution on a locked plan", c.Mode)
	}
	if c.Decision.SelectedTitle != "Metrics Dashboard" || c.Decision.SelectedTrack != "webapp" {
		t.Errorf("identity = %q/%q, want the locked one",
			c.Decision.SelectedTitle, c.Decision.SelectedTrack)
	}

	plan, _ := f.plans.Load()
	if plan.Project.Title != "Metrics Dashboard" {
		t.Errorf("plan identity changed to %q", plan.Project.Title)
	}
}

func TestRunBlockedByEmergencyStop(t *testing.T) {
	f := newControllerFixture(t)
	if err := f.stop.Engage("maintenance window", "operator"); err != nil {
		t.Fatalf("Engage: %v", err)
	}

	id, err := f.ctrl.Run(context.Background(), ModeAuto)
	if !errors.Is(err, errors.ErrEmergencyStop) {
		t.Fatalf("Run error = %v, want ErrEmergencyStop", err)
	}
	if errors.ExitCode(err) != 4 {
		t.Errorf("exit code = %d, want 4", errors.ExitCode(err))
	}

	c, loadErr := f.cycles.Load(id)
	if loadErr != nil {
		t.Fatalf("aborted cycle not persisted: %v", loadErr)
	}
	if !c.Aborted || c.AbortCause == "" {
		t.Errorf("abort record = %+v", c)
	}
}

func TestRunBlockedByPendingApproval(t *testing.T) {
	f := newControllerFixture(t)
	req := &approval.Request{Reason: "synthesis_exhausted", Detail: "all agents failed"}
	if err := f.approvals.Create(context.Background(), req); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := f.ctrl.Run(context.Background(), ModeAuto)
	if !errors.Is(err, errors.ErrPendingApproval) {
		t.Fatalf("Run error = %v, want ErrPendingApproval", err)
	}
	var block *errors.OperatorBlockError
	if !errors.As(err, &block) {
		t.Fatalf("error %T is not an OperatorBlockError", err)
	}
	if len(block.RequestIDs) != 1 || block.RequestIDs[0] != req.ID {
		t.Errorf("blocking requests = %v, want [%s]", block.RequestIDs, req.ID)
	}
}

func TestRunReadinessTimeout(t *testing.T) {
	silent := &fakeProxy{id: "gpt", handler: func(string) (string, error) {
		return "", fmt.Errorf("gpt is unreachable")
	}}
	j := decisionFixture("Metrics Dashboard")
	f := newControllerFixture(t,
		silent,
		cooperativeAgent("claude", j),
		cooperativeAgent("gemini", j),
		cooperativeAgent("grok", j),
	)
	f.cfg.Readiness.TimeoutSeconds = 1
	f.cfg.Readiness.PollIntervalSeconds = 1

	start := time.Now()
	id, err := f.ctrl.Run(context.Background(), ModeAuto)
	elapsed := time.Since(start)

	if !errors.Is(err, errors.ErrReadinessTimeout) {
		t.Fatalf("Run error = %v, want ErrReadinessTimeout", err)
	}
	var ex *errors.ExhaustionError
	if !errors.As(err, &ex) || ex.Stage != "readiness" {
		t.Fatalf("error = %+v, want readiness exhaustion", err)
	}
	if errors.ExitCode(err) != 3 {
		t.Errorf("exit code = %d, want 3", errors.ExitCode(err))
	}
	// The poll loop must give up before the deadline, not one interval after.
	if elapsed > 1500*time.Millisecond {
		t.Errorf("readiness failure took %v, want under the deadline", elapsed)
	}

	c, loadErr := f.cycles.Load(id)
	if loadErr != nil {
		t.Fatalf("aborted cycle not persisted: %v", loadErr)
	}
	if !c.Aborted {
		t.Error("cycle should be marked aborted")
	}
}

func TestRunReadinessRecovers(t *testing.T) {
	j := decisionFixture("Metrics Dashboard")
	var probes int
	flaky := &fakeProxy{id: "gpt", handler: func(prompt string) (string, error) {
		if prompt == probePrompt {
			probes++
			if probes < 3 {
				return "", fmt.Errorf("still starting")
			}
			return "ready", nil
		}
		return cooperativeAgent("gpt", j).handler(prompt)
	}}
	f := newControllerFixture(t,
		flaky,
		cooperativeAgent("claude", j),
		cooperativeAgent("gemini", j),
		cooperativeAgent("grok", j),
	)
	f.cfg.Readiness.TimeoutSeconds = 30

	var slept []time.Duration
	f.ctrl.sleep = func(d time.Duration) { slept = append(slept, d) }

	id, err := f.ctrl.Run(context.Background(), ModeAuto)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if probes != 3 {
		t.Errorf("probes = %d, want 3", probes)
	}
	if len(slept) != 2 {
		t.Errorf("sleeps between probes = %d, want 2", len(slept))
	}
	for _, d := range slept {
		if d != time.Second {
			t.Errorf("poll interval = %v, want 1s", d)
		}
	}
	c, err := f.cycles.Load(id)
	if err != nil {
		t.Fatalf("Load cycle: %v", err)
	}
	if c.Aborted {
		t.Fatalf("cycle aborted after recovery: %s", c.AbortCause)
	}
}

func TestRunStopEngagedMidCycle(t *testing.T) {
	// The stop engages while the first proposal is being collected; the guard
	// before the next agent step must halt the fan-out.
	var f *controllerFixture
	j := decisionFixture("Metrics Dashboard")
	saboteur := &fakeProxy{id: "gpt", handler: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Decision cycle") {
			if err := f.stop.Engage("mid-cycle stop", "operator"); err != nil {
				return "", err
			}
		}
		return cooperativeAgent("gpt", j).handler(prompt)
	}}
	f = newControllerFixture(t,
		saboteur,
		cooperativeAgent("claude", j),
		cooperativeAgent("gemini", j),
		cooperativeAgent("grok", j),
	)

	id, err := f.ctrl.Run(context.Background(), ModeAuto)
	if !errors.Is(err, errors.ErrEmergencyStop) {
		t.Fatalf("Run error = %v, want ErrEmergencyStop", err)
	}

	c, loadErr := f.cycles.Load(id)
	if loadErr != nil {
		t.Fatalf("aborted cycle not persisted: %v", loadErr)
	}
	if !c.Aborted {
		t.Error("cycle should be marked aborted")
	}
	// The proposal collected before the stop is retained; no agent after the
	// saboteur is asked.
	if len(c.Proposals) != 1 || c.Proposals[0].AgentID != "gpt" {
		t.Errorf("proposals = %+v, want just the one collected before the stop", c.Proposals)
	}
	if c.Decision != nil {
		t.Error("synthesis must not run after the stop engaged")
	}
}

func TestRunStopEngagedDuringDiscussion(t *testing.T) {
	// The stop engages during a round-1 commentary. The guard before the next
	// agent step must abort the cycle instead of letting the remaining rounds
	// run to completion.
	var f *controllerFixture
	j := decisionFixture("Metrics Dashboard")
	stopped := false
	invokesAfterStop := 0
	counted := func(id string) *fakeProxy {
		inner := cooperativeAgent(id, j).handler
		return &fakeProxy{id: id, handler: func(prompt string) (string, error) {
			if stopped {
				invokesAfterStop++
			}
			return inner(prompt)
		}}
	}
	saboteur := &fakeProxy{id: "gpt", handler: func(prompt string) (string, error) {
		if stopped {
			invokesAfterStop++
		}
		if strings.Contains(prompt, "team discussion") {
			if err := f.stop.Engage("mid-discussion stop", "operator"); err != nil {
				return "", err
			}
			stopped = true
		}
		return cooperativeAgent("gpt", j).handler(prompt)
	}}
	f = newControllerFixture(t,
		saboteur,
		counted("claude"),
		counted("gemini"),
		counted("grok"),
	)

	id, err := f.ctrl.Run(context.Background(), ModeAuto)
	if !errors.Is(err, errors.ErrEmergencyStop) {
		t.Fatalf("Run error = %v, want ErrEmergencyStop", err)
	}
	if errors.ExitCode(err) != 4 {
		t.Errorf("exit code = %d, want 4", errors.ExitCode(err))
	}
	if invokesAfterStop != 0 {
		t.Errorf("agent invocations after the stop engaged = %d, want 0", invokesAfterStop)
	}

	c, loadErr := f.cycles.Load(id)
	if loadErr != nil {
		t.Fatalf("aborted cycle not persisted: %v", loadErr)
	}
	if !c.Aborted {
		t.Error("cycle should be marked aborted")
	}
	if c.Decision == nil {
		t.Error("decision synthesized before the stop should be retained")
	}
	if c.Discussion == nil || c.Discussion.Consensus {
		t.Fatalf("discussion = %+v, want the partial non-consensus outcome retained", c.Discussion)
	}
	if len(c.Discussion.History) != 1 || c.Discussion.History[0].AgentID != "gpt" {
		t.Errorf("history = %+v, want just the commentary gathered before the stop", c.Discussion.History)
	}
}
