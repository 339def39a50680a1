package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a starter config.yaml with the default roster and tuning knobs
to the user config directory. Edit the agent commands to point at the
real agent CLIs before running a cycle.`,
	RunE: runInitCmd,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInitCmd(cmd *cobra.Command, args []string) error {
	dir := config.ConfigDir()
	path := filepath.Join(dir, "config.yaml")

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := renderStarterConfig(config.Default())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", path)
	fmt.Println("edit the agent commands, then run: autonomy run")
	return nil
}

// sectionComments annotate the top-level keys of the starter file.
var sectionComments = map[string]string{
	"agents":     "One entry per agent CLI. The command receives the prompt on stdin.",
	"leader":     "Agent that synthesizes decisions and judges consensus.",
	"synthesis":  "Retry and fallback behavior for decision synthesis.",
	"rebalance":  "Leader re-synthesis attempts when task assignments overlap.",
	"discussion": "Bounded discussion rounds after every decision.",
	"consensus":  "Agent vote gating human-approval requests.",
	"quarantine": "URL allow-list and content scanning for agent output.",
	"readiness":  "Probe loop run before each cycle starts.",
	"logging":    "Level is one of debug, info, warn, error.",
	"paths":      "state_dir holds plan.json, cycles/, approvals/, consensus/.",
}

// renderStarterConfig marshals the defaults and attaches a comment to each
// top-level section.
func renderStarterConfig(cfg *config.Config) ([]byte, error) {
	data, err := yaml.Marshal(starterConfig(cfg))
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode {
		root := doc.Content[0]
		for i := 0; i+1 < len(root.Content); i += 2 {
			key := root.Content[i]
			if comment, ok := sectionComments[key.Value]; ok {
				key.HeadComment = comment
			}
		}
	}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, err
	}
	header := []byte("# autonomy configuration\n")
	return append(header, out...), nil
}

// starterConfig renders the default configuration with the key names the
// loader reads back.
func starterConfig(cfg *config.Config) map[string]any {
	agents := make([]map[string]any, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, map[string]any{
			"id":              a.ID,
			"command":         a.Command,
			"args":            a.Args,
			"timeout_seconds": a.TimeoutSeconds,
		})
	}
	return map[string]any{
		"agents": agents,
		"leader": cfg.Leader,
		"synthesis": map[string]any{
			"max_retries":                   cfg.Synthesis.MaxRetries,
			"retry_delay_seconds":           cfg.Synthesis.RetryDelaySeconds,
			"fallback_enabled":              cfg.Synthesis.FallbackEnabled,
			"invalid_output_consumes_retry": cfg.Synthesis.InvalidOutputConsumesRetry,
			"escalate_on_exhaustion":        cfg.Synthesis.EscalateOnExhaustion,
		},
		"rebalance": map[string]any{
			"max_attempts": cfg.Rebalance.MaxAttempts,
		},
		"discussion": map[string]any{
			"min_rounds":           cfg.Discussion.MinRounds,
			"max_rounds":           cfg.Discussion.MaxRounds,
			"commentary_max_chars": cfg.Discussion.CommentaryMaxChars,
			"leader_checkpoint":    cfg.Discussion.LeaderCheckpoint,
		},
		"consensus": map[string]any{
			"required": cfg.Consensus.Required,
			"quorum":   cfg.Consensus.Quorum,
		},
		"quarantine": map[string]any{
			"allowed_hosts":     cfg.Quarantine.AllowedHosts,
			"max_embedded_urls": cfg.Quarantine.MaxEmbeddedURLs,
			"scan_patterns":     cfg.Quarantine.ScanPatterns,
			"auto_escalate":     cfg.Quarantine.AutoEscalate,
		},
		"readiness": map[string]any{
			"timeout_seconds":       cfg.Readiness.TimeoutSeconds,
			"poll_interval_seconds": cfg.Readiness.PollIntervalSeconds,
			"prompt":                cfg.Readiness.Prompt,
		},
		"logging": map[string]any{
			"level": cfg.Logging.Level,
			"dir":   cfg.Logging.Dir,
		},
		"paths": map[string]any{
			"state_dir": cfg.Paths.StateDir,
		},
	}
}
