package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var planHistoryLimit int

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Inspect the cross-cycle plan",
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the locked project identity and cycle history",
	RunE:  runPlanShow,
}

func init() {
	planShowCmd.Flags().IntVar(&planHistoryLimit, "history", 10, "number of history entries to show")
	planCmd.AddCommand(planShowCmd)
	rootCmd.AddCommand(planCmd)
}

func runPlanShow(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	plan, err := rt.plans.Load()
	if err != nil {
		return err
	}

	if plan.Locked() {
		fmt.Printf("Project: %s (%s)\n", plan.Project.Title, plan.Project.Track)
		fmt.Printf("Locked: %s\n", plan.Project.LockedAt.Format(time.RFC3339))
	} else {
		fmt.Println("No project identity locked yet.")
	}
	fmt.Printf("Cycles run: %d\n", plan.CycleCount)

	if len(plan.History) == 0 {
		return nil
	}
	fmt.Println("\nRecent cycles:")
	start := 0
	if planHistoryLimit > 0 && len(plan.History) > planHistoryLimit {
		start = len(plan.History) - planHistoryLimit
	}
	for _, entry := range plan.History[start:] {
		fmt.Printf("  %s  %s\n", entry.FinishedAt.Format("2006-01-02 15:04"), entry.Summary)
	}
	return nil
}
