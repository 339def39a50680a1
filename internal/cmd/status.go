package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/agent"
)

var statusProbe bool

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show orchestrator status",
	Long: `Display the emergency-stop state, pending approval requests, the
locked project identity, and recent cycle history. With --probe, each
agent is probed for readiness.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "probe every agent for readiness")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	fmt.Println(headerStyle.Render("Safety"))
	stopState, err := rt.stop.Load()
	switch {
	case err != nil:
		fmt.Printf("  emergency stop: %s\n", alertStyle.Render("UNREADABLE (treated as engaged)"))
	case stopState.EmergencyStop:
		fmt.Printf("  emergency stop: %s (%s by %s)\n",
			alertStyle.Render("ENGAGED"), stopState.Reason, stopState.UpdatedBy)
	default:
		fmt.Printf("  emergency stop: %s\n", okStyle.Render("clear"))
	}

	pending, err := rt.approvals.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Printf("  pending approvals: %s\n", okStyle.Render("none"))
	} else {
		fmt.Printf("  pending approvals: %s\n", warnStyle.Render(fmt.Sprintf("%d", len(pending))))
		for _, req := range pending {
			fmt.Printf("    %s  %s\n", req.ID, dimStyle.Render(req.Reason))
		}
	}

	fmt.Println(headerStyle.Render("Plan"))
	plan, err := rt.plans.Load()
	if err != nil {
		return err
	}
	if plan.Locked() {
		fmt.Printf("  project: %s (%s)\n", plan.Project.Title, plan.Project.Track)
	} else {
		fmt.Printf("  project: %s\n", dimStyle.Render("not locked, next cycle is a kickoff"))
	}
	fmt.Printf("  cycles run: %d\n", plan.CycleCount)
	if plan.LastSummary != "" {
		fmt.Printf("  last cycle: %s\n", plan.LastSummary)
	}

	fmt.Println(headerStyle.Render("Roster"))
	fmt.Printf("  leader: %s\n", rt.roster.LeaderID())
	if statusProbe {
		results := agent.ProbeAll(ctx, rt.roster.Canonical(), rt.cfg.Readiness.Prompt)
		for _, r := range results {
			if r.Ready {
				fmt.Printf("  %-10s %s\n", r.AgentID, okStyle.Render("ready"))
			} else {
				fmt.Printf("  %-10s %s\n", r.AgentID, alertStyle.Render("not ready"))
			}
		}
	} else {
		fmt.Printf("  agents: %s\n", strings.Join(rt.roster.IDs(), ", "))
	}

	return nil
}
