package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/approval"
)

var (
	approvalsBy   string
	approvalsNote string
	waitTimeout   time.Duration
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Inspect and resolve human approval requests",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approval requests",
	RunE:  runApprovalsList,
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveApproval(cmd, args[0], true)
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveApproval(cmd, args[0], false)
	},
}

var approvalsWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Block until every pending request is resolved",
	Long: `Watch the approvals directory and return once no pending request
remains. Useful for schedulers that want to resume cycles as soon as an
operator has resolved the outstanding requests.`,
	RunE: runApprovalsWait,
}

func init() {
	approvalsApproveCmd.Flags().StringVar(&approvalsBy, "by", "operator", "who is resolving the request")
	approvalsApproveCmd.Flags().StringVar(&approvalsNote, "note", "", "optional resolution note")
	approvalsRejectCmd.Flags().StringVar(&approvalsBy, "by", "operator", "who is resolving the request")
	approvalsRejectCmd.Flags().StringVar(&approvalsNote, "note", "", "optional resolution note")
	approvalsWaitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "give up after this long (0 waits forever)")

	approvalsCmd.AddCommand(approvalsListCmd, approvalsApproveCmd, approvalsRejectCmd, approvalsWaitCmd)
	rootCmd.AddCommand(approvalsCmd)
}

func runApprovalsList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	pending, err := rt.approvals.Pending(cmd.Context())
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("no pending approval requests")
		return nil
	}
	for _, req := range pending {
		fmt.Printf("%s  %s\n", headerStyle.Render(req.ID), warnStyle.Render(req.Reason))
		fmt.Printf("    created: %s\n", dimStyle.Render(req.CreatedAt.Format(time.RFC3339)))
		if req.Detail != "" {
			fmt.Printf("    detail: %s\n", req.Detail)
		}
		if req.ConsensusRunID != "" {
			fmt.Printf("    consensus: %d/%d yes (%s)\n", req.ConsensusYes, req.ConsensusMin, req.ConsensusRunID)
		}
	}
	return nil
}

func resolveApproval(cmd *cobra.Command, id string, approve bool) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	var req *approval.Request
	if approve {
		req, err = rt.approvals.Approve(cmd.Context(), id, approvalsBy, approvalsNote)
	} else {
		req, err = rt.approvals.Reject(cmd.Context(), id, approvalsBy, approvalsNote)
	}
	if err != nil {
		return err
	}
	fmt.Printf("request %s %s by %s\n", req.ID, req.Status, req.ResolvedBy)
	return nil
}

func runApprovalsWait(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pending, err := rt.approvals.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("no pending approval requests")
		return nil
	}
	fmt.Printf("waiting on %d pending request(s)\n", len(pending))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(rt.approvals.Dir()); err != nil {
		return err
	}

	var deadline <-chan time.Time
	if waitTimeout > 0 {
		timer := time.NewTimer(waitTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("still pending after %s", waitTimeout)
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending, err := rt.approvals.Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("all requests resolved")
				return nil
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", watchErr)
		}
	}
}
