// Package coreerr defines the error taxonomy shared across the control
// plane. Errors are sentinel values wrapped with fmt.Errorf("...: %w", ...)
// at each layer; HTTP status mapping happens only at the inbound boundary.
package coreerr

import "errors"

// Kind classifies an error into one of the taxonomy buckets from the
// control plane's error handling design.
type Kind string

const (
	KindRequest   Kind = "request"   // 4xx-class, client caused
	KindRouting   Kind = "routing"   // intent router outcome
	KindExecution Kind = "execution" // tool execution failure
	KindProvider  Kind = "provider"  // LLM provider failure
	KindSystem    Kind = "system"    // 5xx-class, backend/infra failure
)

// Error wraps a sentinel reason with its taxonomy Kind so the inbound
// adapter can map it to an HTTP status and a stable wire error code
// without string-matching on Error().
type Error struct {
	Kind   Kind
	Code   string
	reason error
}

func (e *Error) Error() string {
	if e.reason != nil {
		return e.Code + ": " + e.reason.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.reason }

// New builds a coreerr.Error of the given kind and wire code, optionally
// wrapping a lower-level cause.
func New(kind Kind, code string, cause error) *Error {
	return &Error{Kind: kind, Code: code, reason: cause}
}

// Request-kind sentinel codes (client-visible, 4xx-class).
var (
	ErrUnauthorized    = New(KindRequest, "unauthorized", nil)
	ErrRateLimited     = New(KindRequest, "rate_limited", nil)
	ErrRequestTooLarge = New(KindRequest, "request_too_large", nil)
	ErrMalformed       = New(KindRequest, "malformed_request", nil)
	ErrPolicyDenied    = New(KindRequest, "policy_denied", nil)
	ErrApprovalNeeded  = New(KindRequest, "approval_required", nil)
	ErrToolNotFound    = New(KindRequest, "tool_not_found", nil)
)

// Routing-kind sentinel codes.
var (
	ErrNoMatch        = New(KindRouting, "no_match", nil)
	ErrAmbiguous      = New(KindRouting, "ambiguous_intent", nil)
	ErrHITLPending    = New(KindRouting, "hitl_pending", nil)
	ErrShadowNotBound = New(KindRouting, "shadow_not_bound", nil)
)

// Execution-kind sentinel codes.
var (
	ErrSandboxUnavailable    = New(KindExecution, "sandbox_unavailable", nil)
	ErrSandboxExecutionError = New(KindExecution, "sandbox_execution_error", nil)
	ErrHandlerError          = New(KindExecution, "handler_error", nil)
)

// Provider-kind sentinel codes.
var (
	ErrNetworkDisabled = New(KindProvider, "network_disabled", nil)
	ErrTimeout         = New(KindProvider, "timeout", nil)
	ErrNetwork         = New(KindProvider, "network", nil)
	ErrProtocol        = New(KindProvider, "protocol", nil)
	ErrModelRejected   = New(KindProvider, "model_rejected", nil)
	ErrCircuitOpen     = New(KindProvider, "circuit_open", nil)
)

// System-kind sentinel codes (5xx-class).
var (
	ErrTraceBackend    = New(KindSystem, "trace_backend_error", nil)
	ErrApprovalBackend = New(KindSystem, "approval_backend_error", nil)
	ErrCancelled       = New(KindSystem, "cancelled", nil)
	ErrDeadlineExceeded = New(KindSystem, "deadline_exceeded", nil)
)

// Wrap attaches cause to a sentinel *Error, producing a new *Error of the
// same kind/code so callers can still errors.Is/As against the sentinel.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, reason: cause}
}

// Is reports whether err carries the given wire code, looking through
// wrapped errors.
func Is(err error, sentinel *Error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == sentinel.Code
	}
	return false
}
