package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	stopClear  bool
	stopReason string
	stopBy     string
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Engage or release the emergency stop",
	Long: `Engage the emergency stop so no new cycle phase starts. A running
cycle halts at its next phase boundary. Use --clear to release the stop.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopClear, "clear", false, "release the emergency stop")
	stopCmd.Flags().StringVar(&stopReason, "reason", "manual stop", "why the stop is engaged")
	stopCmd.Flags().StringVar(&stopBy, "by", "operator", "who is changing the stop state")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	if stopClear {
		if err := rt.stop.Release(stopBy); err != nil {
			return err
		}
		fmt.Println("emergency stop released")
		return nil
	}

	if err := rt.stop.Engage(stopReason, stopBy); err != nil {
		return err
	}
	fmt.Printf("emergency stop engaged: %s\n", stopReason)
	return nil
}
