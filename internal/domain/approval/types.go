// Package approval implements the single-use, TTL-bound approval token
// contract (C4): issue a token for a tool+args pair, then validate and
// consume it exactly once before an unsafe tool executes.
package approval

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an Approval.
type Status string

const (
	StatusPending  Status = "pending"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
)

// DefaultTTL is the approval lifetime applied when issue doesn't specify one.
const DefaultTTL = 900 * time.Second

// Approval is a single-use permission binding a tool name and the
// canonical-JSON hash of its arguments.
type Approval struct {
	ID        uuid.UUID
	ToolName  string
	ArgsHash  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    Status
}

// Rejection is a consume-time failure reason, surfaced verbatim in the
// response and trace.
type Rejection string

const (
	RejectionNone              Rejection = ""
	RejectionMissingApproval   Rejection = "missing_approval"
	RejectionUnknownApproval   Rejection = "unknown_approval"
	RejectionAlreadyConsumed   Rejection = "already_consumed"
	RejectionToolMismatch      Rejection = "tool_mismatch"
	RejectionArgsHashMismatch  Rejection = "args_hash_mismatch"
	RejectionExpired           Rejection = "expired"
)

// ConsumeResult is the outcome of validate_and_consume.
type ConsumeResult struct {
	Approved  bool
	Rejection Rejection
	Approval  Approval
}

// RejectionError carries a Rejection reason as a typed error so callers
// above the orchestrator (the inbound HTTP adapter) can recover the exact
// reason via errors.As instead of parsing an error message.
type RejectionError struct {
	Reason Rejection
}

func (e *RejectionError) Error() string {
	return "approval rejected: " + string(e.Reason)
}
