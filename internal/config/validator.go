package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "synthesis.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// agentIDRegex validates agent identifier characters
var agentIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAgents()...)
	errors = append(errors, c.validateSynthesis()...)
	errors = append(errors, c.validateRebalance()...)
	errors = append(errors, c.validateDiscussion()...)
	errors = append(errors, c.validateConsensus()...)
	errors = append(errors, c.validateQuarantine()...)
	errors = append(errors, c.validateReadiness()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateAgents() []ValidationError {
	var errors []ValidationError

	if len(c.Agents) < 2 {
		errors = append(errors, ValidationError{
			Field:   "agents",
			Value:   len(c.Agents),
			Message: "at least two agents are required (reviewer rotation needs a second agent)",
		})
	}

	seen := make(map[string]bool)
	for i, a := range c.Agents {
		field := fmt.Sprintf("agents[%d]", i)
		if a.ID == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   a.ID,
				Message: "agent id must not be empty",
			})
			continue
		}
		if !agentIDRegex.MatchString(a.ID) {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   a.ID,
				Message: "agent id must be lowercase alphanumeric with - or _",
			})
		}
		if seen[a.ID] {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   a.ID,
				Message: "duplicate agent id",
			})
		}
		seen[a.ID] = true
		if a.Command == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".command",
				Value:   a.Command,
				Message: "agent command must not be empty",
			})
		}
		if a.TimeoutSeconds < 0 {
			errors = append(errors, ValidationError{
				Field:   field + ".timeout_seconds",
				Value:   a.TimeoutSeconds,
				Message: "timeout must not be negative",
			})
		}
	}

	if c.Leader == "" {
		errors = append(errors, ValidationError{
			Field:   "leader",
			Value:   c.Leader,
			Message: "leader must be set",
		})
	} else if len(c.Agents) > 0 && !seen[c.Leader] {
		errors = append(errors, ValidationError{
			Field:   "leader",
			Value:   c.Leader,
			Message: "leader must be one of the configured agents",
		})
	}

	return errors
}

func (c *Config) validateSynthesis() []ValidationError {
	var errors []ValidationError

	if c.Synthesis.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "synthesis.max_retries",
			Value:   c.Synthesis.MaxRetries,
			Message: "retry budget must not be negative",
		})
	}
	if c.Synthesis.RetryDelaySeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "synthesis.retry_delay_seconds",
			Value:   c.Synthesis.RetryDelaySeconds,
			Message: "retry delay must not be negative",
		})
	}

	return errors
}

func (c *Config) validateRebalance() []ValidationError {
	var errors []ValidationError

	if c.Rebalance.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "rebalance.max_attempts",
			Value:   c.Rebalance.MaxAttempts,
			Message: "at least one rebalance attempt is required",
		})
	}

	return errors
}

func (c *Config) validateDiscussion() []ValidationError {
	var errors []ValidationError

	if c.Discussion.MaxRounds < 1 || c.Discussion.MaxRounds > hardMaxRounds {
		errors = append(errors, ValidationError{
			Field:   "discussion.max_rounds",
			Value:   c.Discussion.MaxRounds,
			Message: fmt.Sprintf("must be between 1 and %d", hardMaxRounds),
		})
	}
	if c.Discussion.MinRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "discussion.min_rounds",
			Value:   c.Discussion.MinRounds,
			Message: "must be at least 1",
		})
	}
	if c.Discussion.CommentaryMaxChars < 200 {
		errors = append(errors, ValidationError{
			Field:   "discussion.commentary_max_chars",
			Value:   c.Discussion.CommentaryMaxChars,
			Message: "commentary budget below 200 characters is not usable",
		})
	}

	return errors
}

func (c *Config) validateConsensus() []ValidationError {
	var errors []ValidationError

	if c.Consensus.Quorum < 1 {
		errors = append(errors, ValidationError{
			Field:   "consensus.quorum",
			Value:   c.Consensus.Quorum,
			Message: "quorum must be at least 1",
		})
	}
	if n := len(c.Agents); n > 0 && c.Consensus.Quorum > n {
		errors = append(errors, ValidationError{
			Field:   "consensus.quorum",
			Value:   c.Consensus.Quorum,
			Message: fmt.Sprintf("quorum cannot exceed the roster size (%d)", n),
		})
	}

	return errors
}

func (c *Config) validateQuarantine() []ValidationError {
	var errors []ValidationError

	if len(c.Quarantine.AllowedHosts) == 0 {
		errors = append(errors, ValidationError{
			Field:   "quarantine.allowed_hosts",
			Value:   c.Quarantine.AllowedHosts,
			Message: "an empty allow-list blocks every URL; list at least one host",
		})
	}
	for i, h := range c.Quarantine.AllowedHosts {
		if strings.TrimSpace(h) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("quarantine.allowed_hosts[%d]", i),
				Value:   h,
				Message: "allow-list entry must not be blank",
			})
		}
	}
	if c.Quarantine.MaxEmbeddedURLs < 1 {
		errors = append(errors, ValidationError{
			Field:   "quarantine.max_embedded_urls",
			Value:   c.Quarantine.MaxEmbeddedURLs,
			Message: "must allow at least one embedded URL",
		})
	}

	return errors
}

func (c *Config) validateReadiness() []ValidationError {
	var errors []ValidationError

	if c.Readiness.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "readiness.timeout_seconds",
			Value:   c.Readiness.TimeoutSeconds,
			Message: "readiness timeout must be at least 1 second",
		})
	}
	if c.Readiness.PollIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "readiness.poll_interval_seconds",
			Value:   c.Readiness.PollIntervalSeconds,
			Message: "poll interval must be at least 1 second",
		})
	}
	if c.Readiness.PollIntervalSeconds > c.Readiness.TimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "readiness.poll_interval_seconds",
			Value:   c.Readiness.PollIntervalSeconds,
			Message: "poll interval exceeds the readiness timeout; no probe would ever run twice",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
