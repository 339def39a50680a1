// Package approval persists human approval requests. Each request is one
// JSON file under the state directory so operators can inspect and resolve
// them with nothing but a text editor when the CLI is unavailable.
package approval

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// dedupDetailLimit bounds how much of the detail feeds the dedup hash.
// Long diagnostic tails vary between otherwise identical requests.
const dedupDetailLimit = 900

// Request is one human approval request.
type Request struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	Reason            string     `json:"reason"`
	Detail            string     `json:"detail,omitempty"`
	Note              string     `json:"note,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy        string     `json:"resolved_by,omitempty"`
	ConsensusMin      int        `json:"consensus_min,omitempty"`
	ConsensusYes      int        `json:"consensus_yes,omitempty"`
	ConsensusRunID    string     `json:"consensus_run_id,omitempty"`
	ConsensusArtifact string     `json:"consensus_artifact,omitempty"`
	DedupHash         string     `json:"dedup_hash,omitempty"`
}

// Pending reports whether the request still awaits a human decision.
func (r *Request) Pending() bool {
	return r.Status == StatusPending
}

// NewRequestID returns an identifier of the form req_<unix>_<hex8>.
func NewRequestID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("req_%d_%s", time.Now().Unix(), suffix)
}

// DedupHash fingerprints a request so repeated escalations for the same
// condition collapse onto one pending request. The hash covers the reason
// key, a context label, and a truncated detail, all lowercased with
// whitespace collapsed.
func DedupHash(reasonKey, contextLabel, detail string) string {
	if len(detail) > dedupDetailLimit {
		detail = detail[:dedupDetailLimit]
	}
	parts := []string{
		normalize(reasonKey),
		normalize(contextLabel),
		normalize(detail),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
