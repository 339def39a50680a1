package discussion

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// discussAgent answers commentary, checkpoint, and consensus prompts with
// canned responses, keyed off the prompt text.
type discussAgent struct {
	id               string
	commentary       string
	failCommentary   bool
	consensusReplies []string
	consensusCalls   int
	prompts          []string
}

func (d *discussAgent) ID() string { return d.id }

func (d *discussAgent) Invoke(ctx context.Context, prompt string) (string, error) {
	d.prompts = append(d.prompts, prompt)
	switch {
	case strings.Contains(prompt, "judging consensus"):
		i := d.consensusCalls
		d.consensusCalls++
		if i >= len(d.consensusReplies) {
			i = len(d.consensusReplies) - 1
		}
		if i < 0 {
			return `{"consensus": false, "reason": "keep talking"}`, nil
		}
		return d.consensusReplies[i], nil
	case strings.Contains(prompt, "closing round"):
		return "checkpoint: " + d.id, nil
	default:
		if d.failCommentary {
			return "", errors.NewProviderError("down", nil).WithAgent(d.id)
		}
		return d.commentary, nil
	}
}

func newTestLoop(t *testing.T, cfg config.DiscussionConfig, agents ...*discussAgent) *Loop {
	t.Helper()
	proxies := make([]agent.Proxy, len(agents))
	for i, a := range agents {
		proxies[i] = a
	}
	roster, err := agent.NewRosterFromProxies("gemini", proxies...)
	if err != nil {
		t.Fatal(err)
	}
	return NewLoop(roster, cfg, nil, logging.NopLogger())
}

func defaultAgents() (gpt, claude, gemini *discussAgent) {
	gpt = &discussAgent{id: "gpt", commentary: "gpt thoughts"}
	claude = &discussAgent{id: "claude", commentary: "claude thoughts"}
	gemini = &discussAgent{id: "gemini", commentary: "gemini thoughts"}
	return
}

func baseCfg() config.DiscussionConfig {
	return config.DiscussionConfig{
		MinRounds:          2,
		MaxRounds:          8,
		CommentaryMaxChars: 2000,
	}
}

func TestRunConsensusAtMinRound(t *testing.T) {
	gpt, claude, gemini := defaultAgents()
	gemini.consensusReplies = []string{`{"consensus": true, "reason": "aligned"}`}
	l := newTestLoop(t, baseCfg(), gpt, claude, gemini)

	outcome, err := l.Run(context.Background(), "cycle-7", "the decision")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !outcome.Consensus {
		t.Error("consensus should be reached")
	}
	if outcome.Rounds != 2 {
		t.Errorf("Rounds = %d, want exactly the minimum", outcome.Rounds)
	}
	if outcome.Reason != "aligned" {
		t.Errorf("Reason = %q", outcome.Reason)
	}
	if gemini.consensusCalls != 1 {
		t.Errorf("consensus checked %d times, want 1 (never before the minimum round)", gemini.consensusCalls)
	}
}

func TestRunStopsAtMaxRounds(t *testing.T) {
	cfg := baseCfg()
	cfg.MaxRounds = 4
	gpt, claude, gemini := defaultAgents()
	gemini.consensusReplies = []string{`{"consensus": false, "reason": "still split"}`}
	l := newTestLoop(t, cfg, gpt, claude, gemini)

	outcome, err := l.Run(context.Background(), "cycle-7", "the decision")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Consensus {
		t.Error("consensus should not be reached")
	}
	if outcome.Rounds != 4 {
		t.Errorf("Rounds = %d, want the maximum", outcome.Rounds)
	}
	if outcome.Reason == "" {
		t.Error("a non-consensus exit should be flagged with a reason")
	}
	// Checks run at rounds 2, 3, and 4.
	if gemini.consensusCalls != 3 {
		t.Errorf("consensus checked %d times, want 3", gemini.consensusCalls)
	}
}

func TestRunHistoryOrder(t *testing.T) {
	gpt, claude, gemini := defaultAgents()
	gemini.consensusReplies = []string{`{"consensus": true, "reason": "done"}`}
	l := newTestLoop(t, baseCfg(), gpt, claude, gemini)

	outcome, err := l.Run(context.Background(), "cycle-7", "the decision")
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []struct {
		round int
		agent string
	}{
		{1, "gpt"}, {1, "claude"}, {1, "gemini"},
		{2, "gpt"}, {2, "claude"}, {2, "gemini"},
	}
	if len(outcome.History) != len(wantOrder) {
		t.Fatalf("history has %d entries, want %d", len(outcome.History), len(wantOrder))
	}
	for i, want := range wantOrder {
		got := outcome.History[i]
		if got.Round != want.round || got.AgentID != want.agent {
			t.Errorf("history[%d] = round %d %s, want round %d %s",
				i, got.Round, got.AgentID, want.round, want.agent)
		}
	}

	// Round 2 prompts must include round 1 commentary.
	roundTwoPrompt := gpt.prompts[1]
	if !strings.Contains(roundTwoPrompt, "[round 1] gpt: gpt thoughts") {
		t.Error("later rounds should see the accumulated history")
	}
	if !strings.Contains(roundTwoPrompt, "[round 1] gemini: gemini thoughts") {
		t.Error("history should include every agent from prior rounds")
	}
}

func TestRunCommentaryFailurePlaceholder(t *testing.T) {
	gpt, claude, gemini := defaultAgents()
	claude.failCommentary = true
	gemini.consensusReplies = []string{`{"consensus": true, "reason": "fine"}`}
	l := newTestLoop(t, baseCfg(), gpt, claude, gemini)

	outcome, err := l.Run(context.Background(), "cycle-7", "the decision")
	if err != nil {
		t.Fatalf("a commentary failure must not abort the loop, got %v", err)
	}

	placeholders := 0
	for _, c := range outcome.History {
		if c.AgentID == "claude" {
			if !c.Failed {
				t.Error("failed commentary should be flagged")
			}
			if c.Text == "" {
				t.Error("placeholder text should not be empty")
			}
			placeholders++
		}
	}
	if placeholders != outcome.Rounds {
		t.Errorf("placeholders = %d, want one per round (%d)", placeholders, outcome.Rounds)
	}
}

func TestRunConsensusFailClosed(t *testing.T) {
	cfg := baseCfg()
	cfg.MinRounds = 1
	gpt, claude, gemini := defaultAgents()
	gemini.consensusReplies = []string{
		"definitely maybe",
		`{"reason": "no boolean here"}`,
		`{"consensus": true, "reason": "finally"}`,
	}
	l := newTestLoop(t, cfg, gpt, claude, gemini)

	outcome, err := l.Run(context.Background(), "cycle-7", "the decision")
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Consensus {
		t.Error("consensus should be reached on the third check")
	}
	if outcome.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3 (two fail-closed checks first)", outcome.Rounds)
	}
}

func TestRunLeaderCheckpoint(t *testing.T) {
	cfg := baseCfg()
	cfg.MinRounds = 1
	cfg.LeaderCheckpoint = true
	gpt, claude, gemini := defaultAgents()
	gemini.consensusReplies = []string{`{"consensus": true, "reason": "done"}`}
	l := newTestLoop(t, cfg, gpt, claude, gemini)

	outcome, err := l.Run(context.Background(), "cycle-7", "the decision")
	if err != nil {
		t.Fatal(err)
	}

	var checkpoints []Comment
	for _, c := range outcome.History {
		if c.Checkpoint {
			checkpoints = append(checkpoints, c)
		}
	}
	if len(checkpoints) != 1 {
		t.Fatalf("checkpoints = %d, want 1", len(checkpoints))
	}
	if checkpoints[0].AgentID != "gemini" {
		t.Errorf("checkpoint author = %q, want the leader", checkpoints[0].AgentID)
	}
}

func TestRunGuardAbortsMidRound(t *testing.T) {
	gpt, claude, gemini := defaultAgents()
	roster, err := agent.NewRosterFromProxies("gemini", gpt, claude, gemini)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	guard := func(context.Context) error {
		calls++
		if calls > 2 {
			return errors.NewOperatorBlockError(errors.ErrEmergencyStop, "emergency stop is engaged")
		}
		return nil
	}
	l := NewLoop(roster, baseCfg(), guard, logging.NopLogger())

	outcome, err := l.Run(context.Background(), "cycle-7", "the decision")
	if !errors.Is(err, errors.ErrEmergencyStop) {
		t.Fatalf("Run() error = %v, want emergency stop", err)
	}
	if outcome == nil {
		t.Fatal("partial outcome should come back with the error")
	}
	if len(outcome.History) != 2 {
		t.Fatalf("history = %d entries, want the two gathered before the block", len(outcome.History))
	}
	if len(gemini.prompts) != 0 {
		t.Errorf("gemini was invoked %d times after the block", len(gemini.prompts))
	}
	if outcome.Consensus {
		t.Error("an aborted round must not report consensus")
	}
}

func TestRunTruncatesCommentary(t *testing.T) {
	cfg := baseCfg()
	cfg.MinRounds = 1
	cfg.CommentaryMaxChars = 300
	gpt, claude, gemini := defaultAgents()
	gpt.commentary = strings.Repeat("x", 1000)
	gemini.consensusReplies = []string{`{"consensus": true, "reason": "done"}`}
	l := newTestLoop(t, cfg, gpt, claude, gemini)

	outcome, err := l.Run(context.Background(), "cycle-7", "the decision")
	if err != nil {
		t.Fatal(err)
	}
	if got := len(outcome.History[0].Text); got != 300 {
		t.Errorf("commentary length = %d, want truncated to 300", got)
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	// 3-byte runes; a byte-index cut at 7 would split the third rune.
	s := strings.Repeat("あ", 4)
	got := truncate(s, 7)
	if got != strings.Repeat("あ", 2) {
		t.Errorf("truncate = %q, want the cut moved back to a rune boundary", got)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if truncate("short", 100) != "short" {
		t.Error("strings within the limit must pass through unchanged")
	}
}
