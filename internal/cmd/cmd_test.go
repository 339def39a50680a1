package cmd

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/config"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
)

func TestRootCommandWiring(t *testing.T) {
	if rootCmd.Use != "autonomy" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "autonomy")
	}

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expected := []string{"run", "status", "approvals", "plan", "init", "stop"}
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestApprovalsSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range approvalsCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range []string{"list", "approve", "reject", "wait"} {
		if !names[name] {
			t.Errorf("missing approvals subcommand %q", name)
		}
	}
}

func TestStarterConfigRoundTrip(t *testing.T) {
	data, err := renderStarterConfig(config.Default())
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var got map[string]any
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{
		"agents", "leader", "synthesis", "rebalance", "discussion",
		"consensus", "quarantine", "readiness", "logging", "paths",
	} {
		if _, ok := got[key]; !ok {
			t.Errorf("starter config missing %q section", key)
		}
	}

	agents, ok := got["agents"].([]any)
	if !ok || len(agents) != 4 {
		t.Fatalf("agents section = %v", got["agents"])
	}
	first, ok := agents[0].(map[string]any)
	if !ok {
		t.Fatalf("agent entry = %T", agents[0])
	}
	for _, key := range []string{"id", "command", "timeout_seconds"} {
		if _, ok := first[key]; !ok {
			t.Errorf("agent entry missing %q", key)
		}
	}

	if got["leader"] != config.Default().Leader {
		t.Errorf("leader = %v", got["leader"])
	}

	// Section comments survive rendering.
	text := string(data)
	if !strings.Contains(text, "# autonomy configuration") {
		t.Error("missing file header comment")
	}
	if !strings.Contains(text, "# "+sectionComments["agents"]) {
		t.Error("missing agents section comment")
	}
}

func TestExitCodeMapsValidationToUsage(t *testing.T) {
	verrs := config.ValidationErrors{{Field: "leader", Value: "nobody", Message: "must be a configured agent"}}
	if got := ExitCode(verrs); got != errors.ExitUsage {
		t.Errorf("ExitCode(validation) = %d, want %d", got, errors.ExitUsage)
	}
	if got := ExitCode(nil); got != errors.ExitOK {
		t.Errorf("ExitCode(nil) = %d, want %d", got, errors.ExitOK)
	}
	block := errors.NewOperatorBlockError(errors.ErrEmergencyStop, "stopped")
	if got := ExitCode(block); got != errors.ExitOperatorBlock {
		t.Errorf("ExitCode(operator block) = %d, want %d", got, errors.ExitOperatorBlock)
	}
}
