package agent

import (
	"strings"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
)

// transientMarkers are the substrings that mark a provider failure as worth
// retrying. The vocabulary covers rate limiting, quota and billing pauses,
// server-side 5xx errors, and plain connectivity trouble.
var transientMarkers = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"429",
	"too many requests",
	"quota",
	"402",
	"payment required",
	"insufficient credit",
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"overloaded",
	"timed out",
	"timeout",
	"connection refused",
	"connection reset",
	"network",
	"temporarily unavailable",
}

// Classify inspects a provider failure message and decides whether a retry
// could plausibly succeed. Anything not matching the transient vocabulary is
// permanent.
func Classify(detail string) errors.ProviderKind {
	lower := strings.ToLower(detail)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return errors.KindTransient
		}
	}
	return errors.KindPermanent
}
