package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete autonomy orchestrator configuration
type Config struct {
	Agents     []AgentConfig    `mapstructure:"agents"`
	Leader     string           `mapstructure:"leader"`
	Synthesis  SynthesisConfig  `mapstructure:"synthesis"`
	Rebalance  RebalanceConfig  `mapstructure:"rebalance"`
	Discussion DiscussionConfig `mapstructure:"discussion"`
	Consensus  ConsensusConfig  `mapstructure:"consensus"`
	Quarantine QuarantineConfig `mapstructure:"quarantine"`
	Readiness  ReadinessConfig  `mapstructure:"readiness"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Paths      PathsConfig      `mapstructure:"paths"`
}

// AgentConfig describes one agent in the roster. Roster order is canonical:
// every fan-out (proposals, voting, discussion) walks agents in this order.
type AgentConfig struct {
	// ID is the agent's stable identifier (e.g. "gpt", "claude")
	ID string `mapstructure:"id"`
	// Command is the executable invoked to prompt this agent
	Command string `mapstructure:"command"`
	// Args are passed before the prompt argument
	Args []string `mapstructure:"args"`
	// TimeoutSeconds bounds one invocation (0 = no per-call timeout)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SynthesisConfig controls decision synthesis retry and fallback behavior
type SynthesisConfig struct {
	// MaxRetries is the per-agent retry budget for transient failures
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelaySeconds is the fixed delay between retries
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds"`
	// FallbackEnabled allows trying non-leader agents after the leader fails
	FallbackEnabled bool `mapstructure:"fallback_enabled"`
	// InvalidOutputConsumesRetry retries the same agent on a schema-invalid
	// response, spending one retry. When false (default) an invalid response
	// abandons the agent and falls back immediately.
	InvalidOutputConsumesRetry bool `mapstructure:"invalid_output_consumes_retry"`
	// EscalateOnExhaustion raises an approval request when every agent is spent
	EscalateOnExhaustion bool `mapstructure:"escalate_on_exhaustion"`
}

// RebalanceConfig controls conflict rebalancing
type RebalanceConfig struct {
	// MaxAttempts bounds leader re-synthesis attempts on task overlap
	MaxAttempts int `mapstructure:"max_attempts"`
}

// DiscussionConfig controls the multi-round discussion loop
type DiscussionConfig struct {
	// MinRounds is clamped into [1, max_rounds]
	MinRounds int `mapstructure:"min_rounds"`
	// MaxRounds is a hard bound on discussion rounds (capped at 40)
	MaxRounds int `mapstructure:"max_rounds"`
	// CommentaryMaxChars bounds one agent commentary
	CommentaryMaxChars int `mapstructure:"commentary_max_chars"`
	// LeaderCheckpoint appends a leader synthesis to history each round
	LeaderCheckpoint bool `mapstructure:"leader_checkpoint"`
}

// ConsensusConfig controls escalation quorum voting
type ConsensusConfig struct {
	// Required gates human-approval requests behind an agent vote
	Required bool `mapstructure:"required"`
	// Quorum is the minimum yes votes, clamped into [1, len(agents)]
	Quorum int `mapstructure:"quorum"`
}

// QuarantineConfig controls URL and content validation
type QuarantineConfig struct {
	// AllowedHosts are allow-list entries: exact hosts match themselves and
	// subdomains; entries containing wildcards are matched as glob patterns.
	AllowedHosts []string `mapstructure:"allowed_hosts"`
	// MaxEmbeddedURLs caps URLs extracted from one content blob
	MaxEmbeddedURLs int `mapstructure:"max_embedded_urls"`
	// ScanPatterns enables adversarial-pattern scanning of content blobs
	ScanPatterns bool `mapstructure:"scan_patterns"`
	// AutoEscalate raises an approval request on violations
	AutoEscalate bool `mapstructure:"auto_escalate"`
}

// ReadinessConfig controls the pre-cycle agent readiness probe
type ReadinessConfig struct {
	// TimeoutSeconds is the hard deadline for all agents to respond
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// PollIntervalSeconds is the fixed interval between probe rounds
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// Prompt is the one-line probe prompt sent to each agent
	Prompt string `mapstructure:"prompt"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Dir receives autonomy.log; empty logs to stderr
	Dir string `mapstructure:"dir"`
}

// PathsConfig controls where state documents live
type PathsConfig struct {
	// StateDir holds plan.json, cycles/, approvals/, consensus/,
	// emergency-stop.json
	StateDir string `mapstructure:"state_dir"`
}

// Timeout returns the per-invocation timeout as a time.Duration (0 = none)
func (a *AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RetryDelay returns the synthesis retry delay as a time.Duration
func (s *SynthesisConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelaySeconds) * time.Second
}

// Timeout returns the readiness deadline as a time.Duration
func (r *ReadinessConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// PollInterval returns the readiness poll interval as a time.Duration
func (r *ReadinessConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// AgentIDs returns the roster IDs in canonical (configuration) order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// hardMaxRounds is the absolute ceiling on discussion rounds.
const hardMaxRounds = 40

// Default returns a Config populated with default values, mirroring the
// four-agent deployment this orchestrator was built for.
func Default() *Config {
	return &Config{
		Agents: []AgentConfig{
			{ID: "gpt", Command: "scripts/prompt-one-agent.sh", Args: []string{"openclaw-gpt"}, TimeoutSeconds: 240},
			{ID: "claude", Command: "scripts/prompt-one-agent.sh", Args: []string{"openclaw-claude"}, TimeoutSeconds: 240},
			{ID: "gemini", Command: "scripts/prompt-one-agent.sh", Args: []string{"openclaw-gemini"}, TimeoutSeconds: 240},
			{ID: "grok", Command: "scripts/prompt-one-agent.sh", Args: []string{"openclaw-grok"}, TimeoutSeconds: 240},
		},
		Leader: "gemini",
		Synthesis: SynthesisConfig{
			MaxRetries:                 2,
			RetryDelaySeconds:          8,
			FallbackEnabled:            true,
			InvalidOutputConsumesRetry: false,
			EscalateOnExhaustion:       true,
		},
		Rebalance: RebalanceConfig{
			MaxAttempts: 3,
		},
		Discussion: DiscussionConfig{
			MinRounds:          2,
			MaxRounds:          8,
			CommentaryMaxChars: 1200,
			LeaderCheckpoint:   true,
		},
		Consensus: ConsensusConfig{
			Required: true,
			Quorum:   3,
		},
		Quarantine: QuarantineConfig{
			AllowedHosts:    []string{"github.com"},
			MaxEmbeddedURLs: 16,
			ScanPatterns:    true,
			AutoEscalate:    true,
		},
		Readiness: ReadinessConfig{
			TimeoutSeconds:      300,
			PollIntervalSeconds: 30,
			Prompt:              "Reply with one short sentence.",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Paths: PathsConfig{
			StateDir: "autonomy/state",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("leader", defaults.Leader)

	// Synthesis defaults
	viper.SetDefault("synthesis.max_retries", defaults.Synthesis.MaxRetries)
	viper.SetDefault("synthesis.retry_delay_seconds", defaults.Synthesis.RetryDelaySeconds)
	viper.SetDefault("synthesis.fallback_enabled", defaults.Synthesis.FallbackEnabled)
	viper.SetDefault("synthesis.invalid_output_consumes_retry", defaults.Synthesis.InvalidOutputConsumesRetry)
	viper.SetDefault("synthesis.escalate_on_exhaustion", defaults.Synthesis.EscalateOnExhaustion)

	// Rebalance defaults
	viper.SetDefault("rebalance.max_attempts", defaults.Rebalance.MaxAttempts)

	// Discussion defaults
	viper.SetDefault("discussion.min_rounds", defaults.Discussion.MinRounds)
	viper.SetDefault("discussion.max_rounds", defaults.Discussion.MaxRounds)
	viper.SetDefault("discussion.commentary_max_chars", defaults.Discussion.CommentaryMaxChars)
	viper.SetDefault("discussion.leader_checkpoint", defaults.Discussion.LeaderCheckpoint)

	// Consensus defaults
	viper.SetDefault("consensus.required", defaults.Consensus.Required)
	viper.SetDefault("consensus.quorum", defaults.Consensus.Quorum)

	// Quarantine defaults
	viper.SetDefault("quarantine.allowed_hosts", defaults.Quarantine.AllowedHosts)
	viper.SetDefault("quarantine.max_embedded_urls", defaults.Quarantine.MaxEmbeddedURLs)
	viper.SetDefault("quarantine.scan_patterns", defaults.Quarantine.ScanPatterns)
	viper.SetDefault("quarantine.auto_escalate", defaults.Quarantine.AutoEscalate)

	// Readiness defaults
	viper.SetDefault("readiness.timeout_seconds", defaults.Readiness.TimeoutSeconds)
	viper.SetDefault("readiness.poll_interval_seconds", defaults.Readiness.PollIntervalSeconds)
	viper.SetDefault("readiness.prompt", defaults.Readiness.Prompt)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Paths defaults
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
}

// Load unmarshals the current viper state into a Config and applies the
// clamps that keep runtime bounds sane regardless of what the file says.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = Default().Agents
	}
	cfg.Clamp()
	return cfg, nil
}

// Clamp enforces the hard bounds: max rounds ceiling, min rounds within
// [1, max], quorum within [1, len(agents)].
func (c *Config) Clamp() {
	if c.Discussion.MaxRounds < 1 {
		c.Discussion.MaxRounds = 1
	}
	if c.Discussion.MaxRounds > hardMaxRounds {
		c.Discussion.MaxRounds = hardMaxRounds
	}
	if c.Discussion.MinRounds < 1 {
		c.Discussion.MinRounds = 1
	}
	if c.Discussion.MinRounds > c.Discussion.MaxRounds {
		c.Discussion.MinRounds = c.Discussion.MaxRounds
	}

	if c.Consensus.Quorum < 1 {
		c.Consensus.Quorum = 1
	}
	if n := len(c.Agents); n > 0 && c.Consensus.Quorum > n {
		c.Consensus.Quorum = n
	}
}

// ConfigDir returns the directory where the config file lives
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "autonomy")
}
