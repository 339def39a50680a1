package synthesis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/approval"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/decision"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/safety"
)

// ReasonExhausted is the escalation reason when every agent is spent.
const ReasonExhausted = "synthesis_exhausted"

// Escalator raises a human approval request. Satisfied by
// consensus.Escalator.
type Escalator interface {
	Escalate(ctx context.Context, reasonKey, contextLabel, detail string) (*approval.Request, error)
}

// Synthesizer runs the leader-first decision loop.
type Synthesizer struct {
	roster       *agent.Roster
	cfg          config.SynthesisConfig
	artifactsDir string
	escalator    Escalator
	guard        safety.Guard
	logger       *logging.Logger

	// sleep is swapped out in tests to avoid real retry delays.
	sleep func(time.Duration)
}

// NewSynthesizer builds a Synthesizer. Raw responses are persisted under
// artifactsDir when synthesis exhausts. escalator and guard may be nil.
func NewSynthesizer(roster *agent.Roster, cfg config.SynthesisConfig, artifactsDir string, escalator Escalator, guard safety.Guard, logger *logging.Logger) *Synthesizer {
	return &Synthesizer{
		roster:       roster,
		cfg:          cfg,
		artifactsDir: artifactsDir,
		escalator:    escalator,
		guard:        guard,
		logger:       logger,
		sleep:        time.Sleep,
	}
}

// Synthesize asks the leader, then each fallback agent in canonical order,
// for a schema-valid decision. Transient failures retry the same agent on a
// fixed delay within its budget; permanent and malformed responses move on.
// The returned decision is already enriched. Exhaustion is fatal: the last
// raw response is persisted and an ExhaustionError comes back.
func (s *Synthesizer) Synthesize(ctx context.Context, cycleID string, in PromptInput) (*decision.Decision, error) {
	prompt := BuildPrompt(in)
	budget := NewBudget(s.cfg.MaxRetries)
	log := s.logger.WithCycle(cycleID).WithPhase("synthesis")

	order := []agent.Proxy{s.roster.Leader()}
	if s.cfg.FallbackEnabled {
		order = append(order, s.roster.Fallbacks()...)
	}

	var lastRaw string
	var lastErr error

	for _, p := range order {
		agentLog := log.WithAgent(p.ID())
		for {
			if err := safety.Check(ctx, s.guard); err != nil {
				return nil, err
			}

			out, err := p.Invoke(ctx, prompt)
			if err != nil {
				budget.RecordFailure(p.ID(), err)
				lastErr = err
				if errors.IsTransient(err) && budget.ShouldRetry(p.ID()) {
					agentLog.Warn("transient failure, retrying",
						"delay", s.cfg.RetryDelay().String(), "error", err.Error())
					s.sleep(s.cfg.RetryDelay())
					continue
				}
				agentLog.Warn("agent abandoned", "error", err.Error())
				break
			}

			lastRaw = out
			d, perr := decision.Parse(out)
			var result *decision.ValidationResult
			if perr == nil {
				result = d.Validate(in.RosterIDs)
			}
			if perr != nil || !result.OK() {
				merr := schemaError(p.ID(), perr, result)
				budget.RecordFailure(p.ID(), merr)
				lastErr = merr
				if s.cfg.InvalidOutputConsumesRetry && budget.ShouldRetry(p.ID()) {
					agentLog.Warn("schema-invalid response, retrying same agent",
						"error", merr.Error())
					continue
				}
				agentLog.Warn("schema-invalid response, falling back", "error", merr.Error())
				break
			}

			budget.RecordSuccess(p.ID())
			d.Enrich(in.RosterIDs, cycleID)
			log.Info("decision synthesized",
				"agent", p.ID(),
				"title", d.SelectedTitle,
				"attempts", budget.Attempts())
			return d, nil
		}
	}

	artifactPath := s.persistRaw(cycleID, lastRaw, lastErr)
	log.Error("synthesis exhausted",
		"attempts", budget.Attempts(),
		"artifact", artifactPath)

	if s.cfg.EscalateOnExhaustion && s.escalator != nil {
		detail := "every agent failed to produce a valid decision"
		if lastErr != nil {
			detail = lastErr.Error()
		}
		if _, err := s.escalator.Escalate(ctx, ReasonExhausted, cycleID, detail); err != nil && !errors.Is(err, errors.ErrQuorumNotMet) {
			log.Error("exhaustion escalation failed", "error", err.Error())
		}
	}

	return nil, errors.NewExhaustionError("synthesis", budget.Attempts(), lastErr).WithArtifact(artifactPath)
}

func schemaError(agentID string, perr error, result *decision.ValidationResult) error {
	if perr != nil {
		var me *errors.MalformedOutputError
		if errors.As(perr, &me) {
			return me.WithAgent(agentID)
		}
		return errors.NewMalformedOutputError("response could not be parsed", perr).WithAgent(agentID)
	}
	return errors.NewMalformedOutputError("decision failed schema validation", nil).
		WithAgent(agentID).
		WithViolations(result.Problems)
}

// persistRaw writes the last raw response for the operator. Returns the
// artifact path, or empty when nothing was captured or the write failed.
func (s *Synthesizer) persistRaw(cycleID, raw string, cause error) string {
	if raw == "" || s.artifactsDir == "" {
		return ""
	}
	dir := filepath.Join(s.artifactsDir, cycleID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, "synthesis-raw.txt")
	header := ""
	if cause != nil {
		header = fmt.Sprintf("# last error: %s\n\n", cause.Error())
	}
	if err := os.WriteFile(path, []byte(header+raw), 0o644); err != nil {
		return ""
	}
	return path
}
