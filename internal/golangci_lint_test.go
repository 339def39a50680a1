package internal

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// TestGolangciLintCompliance runs golangci-lint over the module so lint
// regressions fail the suite instead of surfacing in review.
//
// The test is skipped when golangci-lint is not installed, and in short
// mode: a full lint run is too slow for the inner loop.
func TestGolangciLintCompliance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping lint run in short mode")
	}
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not found in PATH, skipping test")
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	// The test lives in internal/, so the module root is one level up
	// unless the runner already sits there.
	moduleRoot := filepath.Dir(wd)
	if filepath.Base(wd) != "internal" {
		moduleRoot = wd
	}

	// Sandboxed runners may mount the default build cache read-only.
	goCacheDir := t.TempDir()

	cmd := exec.Command("golangci-lint", "run", "--allow-parallel-runners", "./...")
	cmd.Dir = moduleRoot
	cmd.Env = append(os.Environ(), "GOCACHE="+goCacheDir)
	output, err := cmd.CombinedOutput()

	if err != nil {
		t.Errorf("golangci-lint found issues:\n%s", output)
		t.Errorf("\nRun 'golangci-lint run' from the module root to reproduce.")
	}
}
