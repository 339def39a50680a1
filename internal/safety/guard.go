package safety

import (
	"context"
	"fmt"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/approval"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
)

// Guard re-checks the operator-controlled block conditions. Components that
// invoke agents call it before every blocking invocation so a stop engaged
// mid-phase halts the cycle at the next agent step, not at the next phase.
type Guard func(ctx context.Context) error

// Check runs the guard, tolerating a nil one. Context cancellation is
// checked either way.
func Check(ctx context.Context, g Guard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	return g(ctx)
}

// NewGuard builds the operator guard over the emergency-stop switch and the
// pending-approval queue. An engaged stop or an unresolved approval request
// blocks further agent work.
func NewGuard(stop *Switch, approvals *approval.Store) Guard {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stop.Stopped() {
			return errors.NewOperatorBlockError(errors.ErrEmergencyStop, "emergency stop is engaged")
		}
		pending, err := approvals.Pending(ctx)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			ids := make([]string, len(pending))
			for i, req := range pending {
				ids[i] = req.ID
			}
			return errors.NewOperatorBlockError(errors.ErrPendingApproval,
				fmt.Sprintf("%d approval request(s) await resolution", len(pending))).
				WithRequests(ids)
		}
		return nil
	}
}
