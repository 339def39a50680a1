package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/cycle"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
)

var runMode string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one decision cycle",
	Long: `Run one full decision cycle: readiness check, proposal collection,
leader synthesis, conflict rebalance, and discussion to consensus.

With --mode auto the cycle is a kickoff until a project identity is
locked, and an execution cycle afterwards.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", cycle.ModeAuto, "cycle mode: auto, kickoff, or execution")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	switch runMode {
	case cycle.ModeAuto, cycle.ModeKickoff, cycle.ModeExecution:
	default:
		return fmt.Errorf("invalid --mode %q (want auto, kickoff, or execution)", runMode)
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	id, err := rt.controller.Run(ctx, runMode)
	if err != nil {
		line := fmt.Sprintf("reason=%s", errors.Reason(err))
		if artifact := errors.Artifact(err); artifact != "" {
			line += fmt.Sprintf(" artifact=%s", artifact)
		}
		fmt.Fprintln(os.Stderr, line)
		return err
	}

	fmt.Printf("cycle %s completed\n", id)
	return nil
}
