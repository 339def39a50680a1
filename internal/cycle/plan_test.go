package cycle

import (
	"fmt"
	"testing"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/discussion"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

func newTestPlanStore(t *testing.T) *PlanStore {
	t.Helper()
	return NewPlanStore(t.TempDir(), logging.NopLogger())
}

func TestPlanLoadMissing(t *testing.T) {
	store := newTestPlanStore(t)

	plan, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if plan.Locked() {
		t.Error("empty plan should not be locked")
	}
	if plan.CycleCount != 0 {
		t.Errorf("CycleCount = %d, want 0", plan.CycleCount)
	}
}

func TestLockIdentity(t *testing.T) {
	store := newTestPlanStore(t)

	if err := store.LockIdentity("Metrics Dashboard", "webapp"); err != nil {
		t.Fatalf("first lock: %v", err)
	}

	plan, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !plan.Locked() {
		t.Fatal("plan should be locked")
	}
	if plan.Project.Title != "Metrics Dashboard" || plan.Project.Track != "webapp" {
		t.Errorf("identity = %q/%q", plan.Project.Title, plan.Project.Track)
	}
	if plan.Project.LockedAt.IsZero() {
		t.Error("LockedAt should be set")
	}

	// Re-locking the same identity is a no-op.
	if err := store.LockIdentity("Metrics Dashboard", "webapp"); err != nil {
		t.Errorf("idempotent lock: %v", err)
	}

	// A different identity is rejected.
	err = store.LockIdentity("Something Else", "cli")
	if !errors.Is(err, errors.ErrIdentityLocked) {
		t.Errorf("conflicting lock error = %v, want ErrIdentityLocked", err)
	}

	plan, _ = store.Load()
	if plan.Project.Title != "Metrics Dashboard" {
		t.Errorf("identity changed to %q after rejected lock", plan.Project.Title)
	}
}

func TestRecordCycle(t *testing.T) {
	store := newTestPlanStore(t)

	finished := time.Now().UTC()
	c := &Cycle{
		ID:         "cycle_100_aaaaaaaa",
		Mode:       ModeKickoff,
		FinishedAt: &finished,
	}
	if err := store.RecordCycle(c); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}

	plan, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if plan.CycleCount != 1 {
		t.Errorf("CycleCount = %d, want 1", plan.CycleCount)
	}
	if plan.LastSummary != c.Summary() {
		t.Errorf("LastSummary = %q, want %q", plan.LastSummary, c.Summary())
	}
	if len(plan.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(plan.History))
	}
	entry := plan.History[0]
	if entry.CycleID != c.ID || entry.Summary != c.Summary() {
		t.Errorf("history entry = %+v", entry)
	}
}

func TestRecordCycleCapsHistory(t *testing.T) {
	store := newTestPlanStore(t)

	total := historyCap + 5
	for i := 0; i < total; i++ {
		c := &Cycle{ID: fmt.Sprintf("cycle_%03d_aaaaaaaa", i), Mode: ModeExecution}
		if err := store.RecordCycle(c); err != nil {
			t.Fatalf("RecordCycle %d: %v", i, err)
		}
	}

	plan, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if plan.CycleCount != total {
		t.Errorf("CycleCount = %d, want %d", plan.CycleCount, total)
	}
	if len(plan.History) != historyCap {
		t.Fatalf("history length = %d, want %d", len(plan.History), historyCap)
	}
	// Oldest entries were dropped.
	if got, want := plan.History[0].CycleID, "cycle_005_aaaaaaaa"; got != want {
		t.Errorf("oldest retained entry = %q, want %q", got, want)
	}
	if got, want := plan.History[historyCap-1].CycleID, fmt.Sprintf("cycle_%03d_aaaaaaaa", total-1); got != want {
		t.Errorf("newest entry = %q, want %q", got, want)
	}
}

func TestCycleSummary(t *testing.T) {
	finished := time.Now()
	for _, tt := range []struct {
		name string
		c    Cycle
		want string
	}{
		{
			name: "aborted",
			c:    Cycle{ID: "cycle_1_a", Mode: ModeKickoff, Aborted: true, FinishedAt: &finished},
			want: "cycle_1_a [kickoff] aborted",
		},
		{
			name: "completed without consensus",
			c: Cycle{
				ID: "cycle_2_b", Mode: ModeExecution,
				Discussion: &discussion.Outcome{Rounds: 8, Consensus: false},
			},
			want: "cycle_2_b [execution] completed without consensus",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}
