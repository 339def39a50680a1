package errors

// Exit codes returned by the autonomy binary. An external scheduler decides
// from the code alone whether rerunning the cycle later can help.
const (
	ExitOK                 = 0
	ExitFailure            = 1
	ExitUsage              = 2
	ExitReadinessTimeout   = 3
	ExitOperatorBlock      = 4
	ExitSynthesisExhausted = 5
	ExitRebalanceExhausted = 6
	ExitSafetyViolation    = 7
)

// ExitCode maps an error to the binary's exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if IsOperatorBlock(err) {
		return ExitOperatorBlock
	}
	if Is(err, ErrReadinessTimeout) {
		return ExitReadinessTimeout
	}

	var ee *ExhaustionError
	if As(err, &ee) {
		switch ee.Stage {
		case "synthesis":
			return ExitSynthesisExhausted
		case "rebalance":
			return ExitRebalanceExhausted
		case "readiness":
			return ExitReadinessTimeout
		}
		return ExitFailure
	}

	var se *SafetyViolationError
	if As(err, &se) {
		return ExitSafetyViolation
	}

	return ExitFailure
}

// Reason returns the machine-readable reason word for an error, for the
// "reason=..." line emitted on fatal aborts.
func Reason(err error) string {
	if err == nil {
		return "ok"
	}

	switch {
	case Is(err, ErrEmergencyStop):
		return "emergency_stop"
	case Is(err, ErrPendingApproval):
		return "pending_approval"
	case Is(err, ErrReadinessTimeout):
		return "readiness_timeout"
	}

	var ee *ExhaustionError
	if As(err, &ee) {
		switch ee.Stage {
		case "synthesis":
			return "decision_synthesis_exhausted"
		case "rebalance":
			return "rebalance_exhausted"
		}
		return ee.Stage + "_exhausted"
	}

	var se *SafetyViolationError
	if As(err, &se) {
		return "safety_violation"
	}

	return "error"
}

// Artifact returns the diagnostic artifact path carried by err, if any.
func Artifact(err error) string {
	var ee *ExhaustionError
	if As(err, &ee) {
		return ee.ArtifactPath
	}
	var ce *ConflictError
	if As(err, &ce) {
		return ce.ReportPath
	}
	var me *MalformedOutputError
	if As(err, &me) {
		return me.RawPath
	}
	return ""
}
