// Package discussion runs the bounded multi-round commentary loop that
// follows a decision. Every agent sees the full accumulated history in
// round-major, agent-minor order, and a dedicated leader check decides when
// consensus is reached.
package discussion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/safety"
)

// Comment is one entry in the discussion history.
type Comment struct {
	Round      int    `json:"round"`
	AgentID    string `json:"agent_id"`
	Text       string `json:"text"`
	Failed     bool   `json:"failed,omitempty"`
	Checkpoint bool   `json:"checkpoint,omitempty"`
}

// Outcome is the result of one discussion loop.
type Outcome struct {
	Rounds    int       `json:"rounds"`
	Consensus bool      `json:"consensus"`
	Reason    string    `json:"reason,omitempty"`
	History   []Comment `json:"history"`
}

// Loop drives the discussion rounds for one cycle.
type Loop struct {
	roster *agent.Roster
	cfg    config.DiscussionConfig
	guard  safety.Guard
	logger *logging.Logger
}

// NewLoop builds a discussion loop. guard may be nil.
func NewLoop(roster *agent.Roster, cfg config.DiscussionConfig, guard safety.Guard, logger *logging.Logger) *Loop {
	return &Loop{roster: roster, cfg: cfg, guard: guard, logger: logger}
}

// Run executes rounds until consensus is reached at or past the minimum
// round, or the maximum round completes. A failed commentary becomes a
// placeholder entry; a failed or non-boolean consensus check counts as "not
// reached". Exiting without consensus is not an error, the outcome is just
// flagged. The guard runs before every agent call: an operator block aborts
// the loop mid-round with the partial outcome attached to the error path.
func (l *Loop) Run(ctx context.Context, cycleID, topic string) (*Outcome, error) {
	minRounds, maxRounds := l.bounds()
	log := l.logger.WithCycle(cycleID).WithPhase("discussion")
	log.Info("discussion started", "min_rounds", minRounds, "max_rounds", maxRounds)

	outcome := &Outcome{}
	for round := 1; round <= maxRounds; round++ {
		outcome.Rounds = round

		for _, p := range l.roster.Canonical() {
			if err := safety.Check(ctx, l.guard); err != nil {
				return outcome, err
			}
			text, err := p.Invoke(ctx, l.commentaryPrompt(topic, outcome.History, p.ID(), round))
			comment := Comment{Round: round, AgentID: p.ID()}
			if err != nil {
				log.Warn("commentary failed", "round", round, "agent", p.ID(), "error", err.Error())
				comment.Text = fmt.Sprintf("(commentary unavailable: %s)", p.ID())
				comment.Failed = true
			} else {
				comment.Text = truncate(text, l.cfg.CommentaryMaxChars)
			}
			outcome.History = append(outcome.History, comment)
		}

		if l.cfg.LeaderCheckpoint {
			if err := safety.Check(ctx, l.guard); err != nil {
				return outcome, err
			}
			l.appendCheckpoint(ctx, log, topic, outcome, round)
		}

		if round >= minRounds {
			if err := safety.Check(ctx, l.guard); err != nil {
				return outcome, err
			}
			reached, reason := l.checkConsensus(ctx, log, topic, outcome.History, round)
			if reached {
				outcome.Consensus = true
				outcome.Reason = reason
				log.Info("consensus reached", "round", round, "reason", reason)
				return outcome, nil
			}
		}
	}

	outcome.Reason = "max rounds reached without consensus"
	log.Warn("discussion ended without consensus", "rounds", outcome.Rounds)
	return outcome, nil
}

func (l *Loop) bounds() (int, int) {
	maxRounds := l.cfg.MaxRounds
	if maxRounds < 1 {
		maxRounds = 1
	}
	minRounds := l.cfg.MinRounds
	if minRounds < 1 {
		minRounds = 1
	}
	if minRounds > maxRounds {
		minRounds = maxRounds
	}
	return minRounds, maxRounds
}

func (l *Loop) appendCheckpoint(ctx context.Context, log *logging.Logger, topic string, outcome *Outcome, round int) {
	leader := l.roster.Leader()
	text, err := leader.Invoke(ctx, l.checkpointPrompt(topic, outcome.History, round))
	if err != nil {
		log.Warn("leader checkpoint failed", "round", round, "error", err.Error())
		return
	}
	outcome.History = append(outcome.History, Comment{
		Round:      round,
		AgentID:    leader.ID(),
		Text:       truncate(text, l.cfg.CommentaryMaxChars),
		Checkpoint: true,
	})
}

// consensusReply is the shape the consensus-check call must return.
type consensusReply struct {
	Consensus *bool  `json:"consensus"`
	Reason    string `json:"reason"`
}

// checkConsensus asks the leader whether the discussion has converged. Any
// failure or a reply without an explicit boolean counts as not reached.
func (l *Loop) checkConsensus(ctx context.Context, log *logging.Logger, topic string, history []Comment, round int) (bool, string) {
	out, err := l.roster.Leader().Invoke(ctx, l.consensusPrompt(topic, history, round))
	if err != nil {
		log.Warn("consensus check failed", "round", round, "error", err.Error())
		return false, ""
	}

	obj := firstObject(out)
	if obj == "" {
		log.Warn("consensus check returned no structure", "round", round)
		return false, ""
	}
	var reply consensusReply
	if err := json.Unmarshal([]byte(obj), &reply); err != nil || reply.Consensus == nil {
		log.Warn("consensus check returned a non-boolean", "round", round)
		return false, ""
	}
	return *reply.Consensus, reply.Reason
}

func (l *Loop) commentaryPrompt(topic string, history []Comment, agentID string, round int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are agent %s in round %d of the team discussion.\n\n", agentID, round)
	writeTopicAndHistory(&sb, topic, history)
	fmt.Fprintf(&sb, "\nAdd one commentary of at most %d characters: agree, challenge, or refine the plan. Plain text only.\n",
		l.cfg.CommentaryMaxChars)
	return sb.String()
}

func (l *Loop) checkpointPrompt(topic string, history []Comment, round int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the leader closing round %d of the team discussion.\n\n", round)
	writeTopicAndHistory(&sb, topic, history)
	fmt.Fprintf(&sb, "\nSummarize where the discussion stands in at most %d characters. Plain text only.\n",
		l.cfg.CommentaryMaxChars)
	return sb.String()
}

func (l *Loop) consensusPrompt(topic string, history []Comment, round int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the leader judging consensus after round %d.\n\n", round)
	writeTopicAndHistory(&sb, topic, history)
	sb.WriteString("\nHas the team converged on the plan? Reply with exactly one JSON object:\n")
	sb.WriteString(`{"consensus": true|false, "reason": "<one sentence>"}`)
	sb.WriteString("\n")
	return sb.String()
}

func writeTopicAndHistory(sb *strings.Builder, topic string, history []Comment) {
	sb.WriteString("Decision under discussion:\n")
	sb.WriteString(strings.TrimSpace(topic))
	sb.WriteString("\n")
	if len(history) == 0 {
		return
	}
	sb.WriteString("\nDiscussion so far:\n")
	for _, c := range history {
		marker := ""
		if c.Checkpoint {
			marker = " (leader checkpoint)"
		}
		fmt.Fprintf(sb, "[round %d] %s%s: %s\n", c.Round, c.AgentID, marker, c.Text)
	}
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// firstObject returns the first balanced top-level JSON object in s.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
