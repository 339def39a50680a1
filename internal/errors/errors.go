// Package errors provides centralized error definitions and error handling
// utilities for the autonomy orchestrator. It defines the failure taxonomy
// that cycle control flow branches on, error constructors with context
// wrapping, and classification helpers.
//
// # Error Types
//
//   - ProviderError: an agent invocation failed at the transport/provider
//     level. Carries a Kind tag (transient vs permanent) assigned by the
//     proxy; retry policy branches on the tag, never on error text.
//   - MalformedOutputError: an agent answered, but the output failed schema
//     or parse validation. Triggers fallback or repair, never a blind retry.
//   - ConflictError: a decision contains overlapping task assignments.
//   - SafetyViolationError: the quarantine gate blocked content or a URL.
//   - OperatorBlockError: an emergency stop or a pending approval request
//     blocks execution; resolved only by an external operator.
//   - ExhaustionError: every retry, fallback, or rebalance attempt was
//     spent. Fatal for the cycle; carries a pointer to the raw diagnostic
//     artifact.
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewProviderError("invoke leader", cause).
//		WithAgent("gemini").WithKind(errors.KindTransient)
//
// Checking errors:
//
//	if errors.IsTransient(err) { ... }
//
//	var exhausted *errors.ExhaustionError
//	if errors.As(err, &exhausted) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Operator and lifecycle sentinel errors.
var (
	// ErrEmergencyStop indicates that the emergency stop flag is set.
	ErrEmergencyStop = New("emergency stop is active")
	// ErrPendingApproval indicates an unresolved human approval request.
	ErrPendingApproval = New("approval request is pending")
	// ErrReadinessTimeout indicates the agent readiness window expired.
	ErrReadinessTimeout = New("agent readiness timeout")
	// ErrQuorumNotMet indicates an escalation vote did not reach quorum.
	ErrQuorumNotMet = New("escalation quorum not met")
)

// Document and store sentinel errors.
var (
	// ErrNotFound indicates a persisted document could not be found.
	ErrNotFound = New("document not found")
	// ErrAlreadyResolved indicates an approval request is no longer pending.
	ErrAlreadyResolved = New("approval request already resolved")
	// ErrIdentityLocked indicates an attempt to change a locked project identity.
	ErrIdentityLocked = New("project identity is locked")
)

// -----------------------------------------------------------------------------
// ProviderError
// -----------------------------------------------------------------------------

// ProviderKind classifies a provider failure for retry policy.
type ProviderKind int

const (
	// KindPermanent marks failures that retrying the same agent cannot fix
	// (bad credentials, revoked access, unknown model).
	KindPermanent ProviderKind = iota
	// KindTransient marks failures that a bounded retry may fix
	// (rate limits, quota windows, 5xx responses, connectivity).
	KindTransient
)

// String returns the string representation of the provider kind.
func (k ProviderKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ProviderError represents a transport- or provider-level agent failure.
// The Kind tag is assigned by the agent proxy at classification time; callers
// branch on the tag only and never re-parse error text.
type ProviderError struct {
	Message string
	AgentID string
	Kind    ProviderKind
	Cause   error
}

// NewProviderError creates a ProviderError with the given message and cause.
// The error defaults to KindPermanent; use WithKind to mark it transient.
func NewProviderError(message string, cause error) *ProviderError {
	return &ProviderError{
		Message: message,
		Cause:   cause,
	}
}

// WithAgent attaches the failing agent's ID.
func (e *ProviderError) WithAgent(id string) *ProviderError {
	e.AgentID = id
	return e
}

// WithKind sets the retry classification.
func (e *ProviderError) WithKind(k ProviderKind) *ProviderError {
	e.Kind = k
	return e
}

func (e *ProviderError) Error() string {
	var sb strings.Builder
	sb.WriteString("provider error")
	if e.AgentID != "" {
		sb.WriteString(fmt.Sprintf(" [agent=%s]", e.AgentID))
	}
	sb.WriteString(fmt.Sprintf(" [%s]", e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------
// MalformedOutputError
// -----------------------------------------------------------------------------

// MalformedOutputError represents agent output that failed parsing or schema
// validation. Violations lists the individual schema problems, and RawPath
// points at the persisted raw response when one was retained.
type MalformedOutputError struct {
	Message    string
	AgentID    string
	Violations []string
	RawPath    string
	Cause      error
}

// NewMalformedOutputError creates a MalformedOutputError.
func NewMalformedOutputError(message string, cause error) *MalformedOutputError {
	return &MalformedOutputError{
		Message: message,
		Cause:   cause,
	}
}

// WithAgent attaches the producing agent's ID.
func (e *MalformedOutputError) WithAgent(id string) *MalformedOutputError {
	e.AgentID = id
	return e
}

// WithViolations attaches the schema violation list.
func (e *MalformedOutputError) WithViolations(vs []string) *MalformedOutputError {
	e.Violations = vs
	return e
}

// WithRawPath attaches the path of the persisted raw response.
func (e *MalformedOutputError) WithRawPath(path string) *MalformedOutputError {
	e.RawPath = path
	return e
}

func (e *MalformedOutputError) Error() string {
	var sb strings.Builder
	sb.WriteString("malformed output")
	if e.AgentID != "" {
		sb.WriteString(fmt.Sprintf(" [agent=%s]", e.AgentID))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if len(e.Violations) > 0 {
		sb.WriteString(fmt.Sprintf(" (%d violations)", len(e.Violations)))
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------
// ConflictError
// -----------------------------------------------------------------------------

// ConflictError represents overlapping task assignments within a decision.
// Agents lists every agent involved in at least one collision group, and
// ReportPath points at the persisted overlap report when one was written.
type ConflictError struct {
	Message    string
	Agents     []string
	ReportPath string
	Cause      error
}

// NewConflictError creates a ConflictError.
func NewConflictError(message string, cause error) *ConflictError {
	return &ConflictError{
		Message: message,
		Cause:   cause,
	}
}

// WithAgents attaches the colliding agent IDs.
func (e *ConflictError) WithAgents(agents []string) *ConflictError {
	e.Agents = agents
	return e
}

// WithReportPath attaches the persisted overlap report path.
func (e *ConflictError) WithReportPath(path string) *ConflictError {
	e.ReportPath = path
	return e
}

func (e *ConflictError) Error() string {
	var sb strings.Builder
	sb.WriteString("task conflict: ")
	sb.WriteString(e.Message)
	if len(e.Agents) > 0 {
		sb.WriteString(fmt.Sprintf(" [agents=%s]", strings.Join(e.Agents, ",")))
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ConflictError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------
// SafetyViolationError
// -----------------------------------------------------------------------------

// SafetyViolationError represents a quarantine block. Codes lists the
// violation codes (host_not_allowlisted, pattern_blocked, ...) and Subject
// identifies what was checked (a URL or a content label). RequestID is set
// when the block auto-raised an approval request.
type SafetyViolationError struct {
	Subject   string
	Codes     []string
	RequestID string
}

// NewSafetyViolationError creates a SafetyViolationError for a subject.
func NewSafetyViolationError(subject string, codes []string) *SafetyViolationError {
	return &SafetyViolationError{
		Subject: subject,
		Codes:   codes,
	}
}

// WithRequestID attaches the auto-raised approval request's ID.
func (e *SafetyViolationError) WithRequestID(id string) *SafetyViolationError {
	e.RequestID = id
	return e
}

func (e *SafetyViolationError) Error() string {
	var sb strings.Builder
	sb.WriteString("safety violation")
	if e.Subject != "" {
		sb.WriteString(fmt.Sprintf(" [%s]", e.Subject))
	}
	sb.WriteString(": ")
	sb.WriteString(strings.Join(e.Codes, ", "))
	if e.RequestID != "" {
		sb.WriteString(fmt.Sprintf(" (approval request %s)", e.RequestID))
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// OperatorBlockError
// -----------------------------------------------------------------------------

// OperatorBlockError represents a hard stop imposed by an operator-controlled
// condition: the emergency stop flag or a pending approval request. Only an
// external operator mutation clears it.
type OperatorBlockError struct {
	Reason     error // ErrEmergencyStop or ErrPendingApproval
	Detail     string
	RequestIDs []string
}

// NewOperatorBlockError creates an OperatorBlockError for the given sentinel
// reason.
func NewOperatorBlockError(reason error, detail string) *OperatorBlockError {
	return &OperatorBlockError{
		Reason: reason,
		Detail: detail,
	}
}

// WithRequests attaches the pending approval request IDs.
func (e *OperatorBlockError) WithRequests(ids []string) *OperatorBlockError {
	e.RequestIDs = ids
	return e
}

func (e *OperatorBlockError) Error() string {
	var sb strings.Builder
	sb.WriteString("operator block: ")
	if e.Reason != nil {
		sb.WriteString(e.Reason.Error())
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if len(e.RequestIDs) > 0 {
		sb.WriteString(fmt.Sprintf(" [requests=%s]", strings.Join(e.RequestIDs, ",")))
	}
	return sb.String()
}

func (e *OperatorBlockError) Unwrap() error {
	return e.Reason
}

// -----------------------------------------------------------------------------
// ExhaustionError
// -----------------------------------------------------------------------------

// ExhaustionError represents a fatal condition where every retry, fallback,
// or rebalance attempt for a stage was spent. ArtifactPath points at the raw
// diagnostic artifact (last provider response, overlap report, vote record)
// an operator needs to inspect.
type ExhaustionError struct {
	Stage        string // "synthesis", "rebalance", "readiness"
	Attempts     int
	ArtifactPath string
	Cause        error
}

// NewExhaustionError creates an ExhaustionError for a stage.
func NewExhaustionError(stage string, attempts int, cause error) *ExhaustionError {
	return &ExhaustionError{
		Stage:    stage,
		Attempts: attempts,
		Cause:    cause,
	}
}

// WithArtifact attaches the diagnostic artifact path.
func (e *ExhaustionError) WithArtifact(path string) *ExhaustionError {
	e.ArtifactPath = path
	return e
}

func (e *ExhaustionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s exhausted after %d attempts", e.Stage, e.Attempts))
	if e.ArtifactPath != "" {
		sb.WriteString(fmt.Sprintf(" (artifact: %s)", e.ArtifactPath))
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *ExhaustionError) Unwrap() error {
	return e.Cause
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsTransient reports whether err is a provider failure tagged transient.
// Only transient provider failures are eligible for same-agent retry.
func IsTransient(err error) bool {
	var pe *ProviderError
	if As(err, &pe) {
		return pe.Kind == KindTransient
	}
	return false
}

// IsMalformed reports whether err is a malformed-output failure, which
// triggers fallback or repair rather than retry.
func IsMalformed(err error) bool {
	var me *MalformedOutputError
	return As(err, &me)
}

// IsOperatorBlock reports whether err is a hard operator-controlled stop.
func IsOperatorBlock(err error) bool {
	var oe *OperatorBlockError
	return As(err, &oe)
}

// IsFatal reports whether err aborts the cycle: exhaustion, operator block,
// or readiness timeout.
func IsFatal(err error) bool {
	var ee *ExhaustionError
	if As(err, &ee) {
		return true
	}
	return IsOperatorBlock(err) || Is(err, ErrReadinessTimeout)
}
