// Package consensus implements the agent quorum vote that gates human
// escalation. Any phase that hits a safety condition asks the roster whether
// a human needs to see it; only a quorum of yes votes (or a broken vote)
// raises an approval request.
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/approval"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// ReasonAgentUnavailable marks an escalation raised because the vote itself
// could not complete. A roster that cannot vote cannot be trusted to decide
// nothing is wrong.
const ReasonAgentUnavailable = "agent_unavailable_during_consensus"

// DecisionError marks a ballot from an agent that failed to vote.
const DecisionError = "error"

// yesDecisions are the decision words that count as a yes vote alongside the
// requires_human flag.
var yesDecisions = map[string]bool{
	"approve":       true,
	"yes":           true,
	"request_human": true,
}

// Ballot is one agent's vote on whether a human should be pulled in.
type Ballot struct {
	Agent         string  `json:"agent"`
	Decision      string  `json:"decision"`
	RequiresHuman bool    `json:"requires_human"`
	Confidence    float64 `json:"confidence,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// Yes reports whether the ballot counts toward the quorum.
func (b *Ballot) Yes() bool {
	return b.Decision != DecisionError && (b.RequiresHuman || yesDecisions[strings.ToLower(b.Decision)])
}

// Run is the persisted artifact of one consensus vote.
type Run struct {
	RunID     string    `json:"run_id"`
	Reason    string    `json:"reason"`
	Context   string    `json:"context,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Votes     []Ballot  `json:"votes"`
	Yes       int       `json:"yes"`
	Required  int       `json:"required"`
	Outcome   string    `json:"outcome"` // escalated | not_escalated | escalated_on_error
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is told when a new approval request goes pending. The CLI wires a
// stderr notifier; tests collect.
type Notifier interface {
	Notify(req *approval.Request)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(req *approval.Request)

// Notify implements Notifier.
func (f NotifierFunc) Notify(req *approval.Request) { f(req) }

// Escalator runs consensus votes and raises deduplicated approval requests.
type Escalator struct {
	roster    *agent.Roster
	approvals *approval.Store
	cfg       config.ConsensusConfig
	dir       string
	notifier  Notifier
	logger    *logging.Logger
}

// NewEscalator builds an Escalator persisting vote artifacts under
// <stateDir>/consensus/.
func NewEscalator(roster *agent.Roster, approvals *approval.Store, cfg config.ConsensusConfig, stateDir string, notifier Notifier, logger *logging.Logger) (*Escalator, error) {
	dir := filepath.Join(stateDir, "consensus")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create consensus directory: %w", err)
	}
	if notifier == nil {
		notifier = NotifierFunc(func(*approval.Request) {})
	}
	return &Escalator{
		roster:    roster,
		approvals: approvals,
		cfg:       cfg,
		dir:       dir,
		notifier:  notifier,
		logger:    logger,
	}, nil
}

// Escalate decides whether the condition reaches a human. The dedup hash
// collapses repeats of the same condition onto the existing pending request;
// otherwise the roster votes, and a quorum of yes votes (or an incomplete
// vote) creates a new pending request. Returns the pending request when one
// exists after the call, nil with ErrQuorumNotMet when the roster voted the
// condition down.
func (e *Escalator) Escalate(ctx context.Context, reasonKey, contextLabel, detail string) (*approval.Request, error) {
	hash := approval.DedupHash(reasonKey, contextLabel, detail)
	if existing, err := e.approvals.FindPendingByHash(ctx, hash); err != nil {
		return nil, err
	} else if existing != nil {
		e.logger.Info("escalation deduplicated onto pending request",
			"request_id", existing.ID, "reason", reasonKey)
		return existing, nil
	}

	if !e.cfg.Required {
		return e.raise(ctx, reasonKey, contextLabel, detail, hash, nil)
	}

	run := e.vote(ctx, reasonKey, contextLabel, detail)

	errored := false
	for _, b := range run.Votes {
		if b.Decision == DecisionError {
			errored = true
			break
		}
	}

	switch {
	case run.Yes >= run.Required:
		run.Outcome = "escalated"
		if err := e.writeRun(run); err != nil {
			return nil, err
		}
		return e.raise(ctx, reasonKey, contextLabel, detail, hash, run)
	case errored:
		// The roster could not complete the vote, so the condition goes to a
		// human regardless of the tally.
		run.Outcome = "escalated_on_error"
		if err := e.writeRun(run); err != nil {
			return nil, err
		}
		unavailableDetail := fmt.Sprintf("consensus run %s incomplete; original reason: %s; %s",
			run.RunID, reasonKey, detail)
		// Hash without the run id so a repeat of the same broken vote
		// collapses onto the existing pending request.
		unavailableHash := approval.DedupHash(ReasonAgentUnavailable, contextLabel, reasonKey+"|"+detail)
		return e.raise(ctx, ReasonAgentUnavailable, contextLabel, unavailableDetail, unavailableHash, run)
	default:
		run.Outcome = "not_escalated"
		if err := e.writeRun(run); err != nil {
			return nil, err
		}
		e.logger.Info("consensus vote declined escalation",
			"run_id", run.RunID, "yes", run.Yes, "required", run.Required)
		return nil, fmt.Errorf("%w: %d of %d yes votes", errors.ErrQuorumNotMet, run.Yes, run.Required)
	}
}

// vote polls every agent in canonical order and tallies the ballots. Agent
// failures become error ballots rather than aborting the vote.
func (e *Escalator) vote(ctx context.Context, reasonKey, contextLabel, detail string) *Run {
	run := &Run{
		RunID:     NewRunID(),
		Reason:    reasonKey,
		Context:   contextLabel,
		Detail:    detail,
		Required:  e.cfg.Quorum,
		CreatedAt: time.Now().UTC(),
	}
	log := e.logger.With("run_id", run.RunID)
	log.Info("consensus vote started", "reason", reasonKey, "required", run.Required)

	prompt := ballotPrompt(reasonKey, contextLabel, detail)
	for _, p := range e.roster.Canonical() {
		out, err := p.Invoke(ctx, prompt)
		if err != nil {
			log.Warn("agent failed to vote", "agent", p.ID(), "error", err.Error())
			run.Votes = append(run.Votes, Ballot{Agent: p.ID(), Decision: DecisionError, Reason: err.Error()})
			continue
		}
		ballot, ok := parseBallot(p.ID(), out)
		if !ok {
			log.Warn("agent ballot unparsable", "agent", p.ID())
			run.Votes = append(run.Votes, Ballot{Agent: p.ID(), Decision: DecisionError, Reason: "unparsable ballot"})
			continue
		}
		run.Votes = append(run.Votes, ballot)
		if ballot.Yes() {
			run.Yes++
		}
	}
	return run
}

// raise creates the pending approval request and notifies the operator.
func (e *Escalator) raise(ctx context.Context, reasonKey, contextLabel, detail, hash string, run *Run) (*approval.Request, error) {
	req := &approval.Request{
		Reason:    reasonKey,
		Detail:    strings.TrimSpace(contextLabel + "\n" + detail),
		DedupHash: hash,
	}
	if run != nil {
		req.ConsensusMin = run.Required
		req.ConsensusYes = run.Yes
		req.ConsensusRunID = run.RunID
		req.ConsensusArtifact = e.runPath(run.RunID)
	}
	if err := e.approvals.Create(ctx, req); err != nil {
		return nil, err
	}
	e.notifier.Notify(req)
	e.logger.Warn("human escalation raised",
		"request_id", req.ID, "reason", reasonKey)
	return req, nil
}

// NewRunID returns an identifier of the form consensus_<unix>_<hex8>.
func NewRunID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("consensus_%d_%s", time.Now().Unix(), suffix)
}

func (e *Escalator) runPath(runID string) string {
	return filepath.Join(e.dir, runID+".json")
}

func (e *Escalator) writeRun(run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(e.runPath(run.RunID), data, 0o644)
}

func ballotPrompt(reasonKey, contextLabel, detail string) string {
	var sb strings.Builder
	sb.WriteString("A safety condition was raised and the roster must vote on whether a human operator needs to review it.\n\n")
	fmt.Fprintf(&sb, "Reason: %s\n", reasonKey)
	if contextLabel != "" {
		fmt.Fprintf(&sb, "Context: %s\n", contextLabel)
	}
	if detail != "" {
		fmt.Fprintf(&sb, "Detail: %s\n", detail)
	}
	sb.WriteString("\nReply with exactly one JSON object, no prose:\n")
	sb.WriteString(`{"agent": "<your id>", "decision": "approve|reject", "requires_human": true|false, "confidence": 0.0, "reason": "<one sentence>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// parseBallot extracts the first JSON object from the response and decodes
// it. Anything unparsable fails closed as an error ballot.
func parseBallot(agentID, response string) (Ballot, bool) {
	obj, ok := firstJSONObject(response)
	if !ok {
		return Ballot{}, false
	}
	var b Ballot
	if err := json.Unmarshal([]byte(obj), &b); err != nil {
		return Ballot{}, false
	}
	if b.Decision == "" && !b.RequiresHuman {
		return Ballot{}, false
	}
	b.Agent = agentID
	return b, true
}

// firstJSONObject scans for the first balanced top-level object, skipping
// brace characters inside JSON strings.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
