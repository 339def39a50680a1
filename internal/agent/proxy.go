// Package agent wraps the CLI processes that stand in for each model in the
// roster. Every invocation goes through a Proxy so failures come back already
// classified; nothing upstream re-reads provider output to guess what went
// wrong.
package agent

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

// Proxy is one invokable agent. Implementations classify their own failures:
// any non-nil error is either a tagged *errors.ProviderError or a context
// cancellation.
type Proxy interface {
	// ID returns the roster identifier for this agent.
	ID() string
	// Invoke sends the prompt and returns the trimmed response text.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// DefaultTimeout bounds a single invocation when the agent config does not
// set one.
const DefaultTimeout = 10 * time.Minute

// CommandProxy invokes an agent by running an external command with the
// prompt on stdin and reading the reply from stdout.
type CommandProxy struct {
	id      string
	command string
	args    []string
	timeout time.Duration
	logger  *logging.Logger
}

// NewCommandProxy builds a proxy from one roster entry.
func NewCommandProxy(cfg config.AgentConfig, logger *logging.Logger) *CommandProxy {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandProxy{
		id:      cfg.ID,
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		timeout: timeout,
		logger:  logger.WithAgent(cfg.ID),
	}
}

// ID returns the roster identifier for this agent.
func (p *CommandProxy) ID() string { return p.id }

// Invoke runs the agent command once. The prompt goes to stdin; stdout is the
// response. Failures are classified into transient or permanent provider
// errors so callers can branch on the tag alone.
func (p *CommandProxy) Invoke(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		p.logger.Warn("agent invocation timed out", "timeout", p.timeout.String())
		return "", errors.NewProviderError("invocation timed out after "+p.timeout.String(), context.DeadlineExceeded).
			WithAgent(p.id).
			WithKind(errors.KindTransient)
	}
	if ctx.Err() == context.Canceled {
		return "", ctx.Err()
	}

	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = runErr.Error()
		}
		kind := Classify(detail)
		p.logger.Warn("agent invocation failed",
			"kind", kind.String(),
			"elapsed", elapsed.String(),
			"detail", truncate(detail, 400))
		return "", errors.NewProviderError(truncate(detail, 400), runErr).
			WithAgent(p.id).
			WithKind(kind)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		p.logger.Warn("agent returned an empty response", "elapsed", elapsed.String())
		return "", errors.NewProviderError("empty response", nil).WithAgent(p.id)
	}

	p.logger.Debug("agent invocation completed",
		"elapsed", elapsed.String(),
		"response_bytes", len(out))
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
