package policy

import (
	"context"
	"time"
)

// EvaluationContext contains everything the engine needs to evaluate one
// tool call against a Document: the call itself plus enough identity/session
// context for a rule's CEL Expression to reference.
type EvaluationContext struct {
	// ToolName is the name of the tool being invoked.
	ToolName string
	// ToolArguments are the arguments passed to the tool.
	ToolArguments map[string]interface{}
	// SafeFlag is true when the Tool Registry classified this tool as safe
	// (no sandboxing/approval required on that basis alone — policy can
	// still deny or require approval for other reasons).
	SafeFlag bool
	// SessionID is the current session identifier.
	SessionID string
	// IdentityID is the authenticated caller's identity identifier.
	IdentityID string
	// IdentityName is the human-readable name of the identity.
	IdentityName string
	// RequestTime is when the tool call was received.
	RequestTime time.Time
}

// policyDecisionKey is the context key type for policy decisions.
type policyDecisionKey struct{}

// WithDecision stores a policy decision in the context.
// This lets a later stage of the same request read the decision back
// from ctx.
func WithDecision(ctx context.Context, d *Decision) context.Context {
	return context.WithValue(ctx, policyDecisionKey{}, d)
}

// DecisionFromContext retrieves a policy decision from the context.
// Returns nil if no decision is stored.
func DecisionFromContext(ctx context.Context) *Decision {
	d, _ := ctx.Value(policyDecisionKey{}).(*Decision)
	return d
}
