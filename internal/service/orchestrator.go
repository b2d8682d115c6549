// Package service implements the Orchestrator (C7): the top-level glue
// that drives the Intent Router, enforces the Policy Engine and Approval
// Store, invokes the Tool Registry or Provider Client, and emits every
// decision to the Trace Ledger.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/approval"
	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/intent"
	"github.com/aegiscore/aegis/internal/domain/policy"
	"github.com/aegiscore/aegis/internal/domain/provider"
	"github.com/aegiscore/aegis/internal/domain/toolspec"
	"github.com/aegiscore/aegis/internal/domain/trace"
)

// ChatRequest is one inbound /v1/chat/completions call.
type ChatRequest struct {
	SessionID    string
	IdentityID   string
	IdentityName string
	Input        string
	ApprovalID   string // optional; validated only if the resolved tool is unsafe
}

// ChatResponse is returned to the caller, with TraceID surfaced separately
// so the inbound adapter can set it as a response header.
type ChatResponse struct {
	TraceID    uuid.UUID
	Tool       string
	ToolResult *toolspec.Result
	Provider   *provider.Response
	PolicyHash string
}

// ApproveRequest asks the Approval Store to issue a token for a future
// execute call.
type ApproveRequest struct {
	ToolName string
	Args     map[string]interface{}
	TTL      time.Duration
}

// ExecuteRequest is the explicit tool-execution path: it names the tool
// directly rather than routing free-text input through the Intent Router.
type ExecuteRequest struct {
	SessionID    string
	IdentityID   string
	IdentityName string
	ToolName     string
	Args         map[string]interface{}
	ApprovalID   string
}

// Orchestrator wires C1-C6 together: open trace → route intent →
// evaluate policy → enforce approval → dispatch → close trace.
type Orchestrator struct {
	ledger     trace.Ledger
	router     *intent.Router
	policy     *policy.Engine
	approvals  approval.Store
	executor   *toolspec.Executor
	registry   *toolspec.Registry
	provider   *provider.Client

	approvalsEnforced bool
	approvalTTL       time.Duration

	now func() time.Time
}

// Config tunes Orchestrator-level behavior not owned by any one component.
type Config struct {
	// ApprovalsEnforced gates unsafe tool dispatch on a valid approval
	// token; false disables the approval gate entirely (local/dev mode).
	ApprovalsEnforced bool
	// ApprovalTTL is passed to Approval Store Issue when a caller doesn't
	// specify one; zero uses approval.DefaultTTL.
	ApprovalTTL time.Duration
}

// NewOrchestrator builds an Orchestrator over its collaborators. registry
// is needed separately from executor to classify a routed tool's safety
// before dispatch.
func NewOrchestrator(ledger trace.Ledger, router *intent.Router, engine *policy.Engine, approvals approval.Store, executor *toolspec.Executor, registry *toolspec.Registry, client *provider.Client, cfg Config) *Orchestrator {
	return &Orchestrator{
		ledger:            ledger,
		router:            router,
		policy:            engine,
		approvals:         approvals,
		executor:          executor,
		registry:          registry,
		provider:          client,
		approvalsEnforced: cfg.ApprovalsEnforced,
		approvalTTL:       cfg.ApprovalTTL,
		now:               time.Now,
	}
}

// WithClock overrides the Orchestrator's time source, for deterministic tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// HandleChat runs the full pipeline: route intent, evaluate policy, gate
// on approval, execute the tool, and append each step to the trace.
func (o *Orchestrator) HandleChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	tr, err := o.ledger.OpenTrace(ctx, nil)
	if err != nil {
		return ChatResponse{}, coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}
	resp := ChatResponse{TraceID: tr.ID, PolicyHash: o.policy.PolicyHash()}

	if _, err := o.ledger.AppendStep(ctx, tr.ID, trace.StepRequestReceived, map[string]interface{}{
		"session_id":  req.SessionID,
		"identity_id": req.IdentityID,
		"input_len":   len([]rune(req.Input)),
	}); err != nil {
		return resp, coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}

	decision, err := o.router.Route(ctx, req.Input, o.policy.PolicyHash())
	if err != nil {
		o.appendCancelled(ctx, tr.ID, "intent_router", err)
		_ = o.ledger.CloseTrace(ctx, tr.ID)
		return resp, err
	}
	stepType := trace.StepIntentRouter
	if decision.Shadow {
		stepType = trace.StepIntentRouterShadow
	}
	if _, err := o.ledger.AppendStep(ctx, tr.ID, stepType, map[string]interface{}{
		"tool":          decision.Tool,
		"confidence":    decision.Confidence,
		"gap":           decision.Gap,
		"tier":          int(decision.TierUsed),
		"reason":        decision.Reason,
		"requires_hitl": decision.RequiresHITL,
		"shadow":        decision.Shadow,
	}); err != nil {
		return resp, coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}
	if decision.Shadow {
		// Shadow mode computes a real decision end to end but must never
		// bind it to execution: the trace step above is the record, and
		// that's the only effect this request has.
		_ = o.ledger.CloseTrace(ctx, tr.ID)
		return resp, coreerr.Wrap(coreerr.ErrShadowNotBound, fmt.Errorf("intent routing ran in shadow mode and was not bound to execution: %s", decision.Reason))
	}
	if decision.RequiresHITL {
		_ = o.ledger.CloseTrace(ctx, tr.ID)
		return resp, coreerr.Wrap(coreerr.ErrHITLPending, fmt.Errorf("intent routing escalated to human review: %s", decision.Reason))
	}

	resp.Tool = decision.Tool
	return o.dispatch(ctx, tr.ID, resp, decision.Tool, decision.Params, req.IdentityID, req.IdentityName, req.SessionID, req.ApprovalID)
}

// HandleApprove delegates to the Approval Store and returns the issued
// approval summary.
func (o *Orchestrator) HandleApprove(ctx context.Context, req ApproveRequest) (approval.Approval, error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = o.approvalTTL
	}
	a, err := o.approvals.Issue(ctx, req.ToolName, req.Args, ttl)
	if err != nil {
		return approval.Approval{}, coreerr.Wrap(coreerr.ErrApprovalBackend, err)
	}
	return a, nil
}

// HandleExecute is the explicit tool-execution path: the same steps 3-6 as
// HandleChat, skipping intent routing entirely.
func (o *Orchestrator) HandleExecute(ctx context.Context, req ExecuteRequest) (ChatResponse, error) {
	tr, err := o.ledger.OpenTrace(ctx, nil)
	if err != nil {
		return ChatResponse{}, coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}
	resp := ChatResponse{TraceID: tr.ID, Tool: req.ToolName, PolicyHash: o.policy.PolicyHash()}

	if _, err := o.ledger.AppendStep(ctx, tr.ID, trace.StepRequestReceived, map[string]interface{}{
		"session_id":  req.SessionID,
		"identity_id": req.IdentityID,
		"tool":        req.ToolName,
	}); err != nil {
		return resp, coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}

	return o.dispatch(ctx, tr.ID, resp, req.ToolName, req.Args, req.IdentityID, req.IdentityName, req.SessionID, req.ApprovalID)
}

// dispatch is steps 3-6: policy evaluation, approval enforcement, tool or
// provider dispatch, response construction and trace close. Shared by
// HandleChat (after intent routing) and HandleExecute (which skips it).
func (o *Orchestrator) dispatch(ctx context.Context, traceID uuid.UUID, resp ChatResponse, toolName string, args map[string]interface{}, identityID, identityName, sessionID, approvalID string) (ChatResponse, error) {
	spec, hasTool := o.registry.Lookup(toolName)
	safe := !hasTool || spec.Safety == toolspec.SafetySafe

	evalCtx := policy.EvaluationContext{
		ToolName:      toolName,
		ToolArguments: args,
		SafeFlag:      safe,
		SessionID:     sessionID,
		IdentityID:    identityID,
		IdentityName:  identityName,
		RequestTime:   o.now(),
	}
	pd, err := o.policy.Evaluate(ctx, evalCtx)
	if err != nil {
		return resp, err
	}
	if _, stepErr := o.ledger.AppendStep(ctx, traceID, trace.StepPolicyDecision, map[string]interface{}{
		"tool":               toolName,
		"action":             string(pd.Action),
		"reason":             pd.Reason,
		"matched_rule_index": pd.MatchedRuleIndex,
		"policy_hash":        pd.PolicyHash,
	}); stepErr != nil {
		return resp, coreerr.Wrap(coreerr.ErrTraceBackend, stepErr)
	}
	if !pd.Allowed() {
		_ = o.ledger.CloseTrace(ctx, traceID)
		return resp, coreerr.Wrap(coreerr.ErrPolicyDenied, fmt.Errorf("%s", pd.Reason))
	}

	if hasTool && spec.Safety == toolspec.SafetyUnsafe && o.approvalsEnforced {
		rejection, rejErr := o.checkApproval(ctx, traceID, toolName, args, approvalID)
		if rejErr != nil {
			_ = o.ledger.CloseTrace(ctx, traceID)
			return resp, rejErr
		}
		_ = rejection
	}

	outcome, dispatchErr := o.runOutcome(ctx, traceID, toolName, args, hasTool)
	resp.ToolResult = outcome.toolResult
	resp.Provider = outcome.providerResp

	if _, stepErr := o.ledger.AppendStep(ctx, traceID, trace.StepResponseSent, map[string]interface{}{
		"tool":    toolName,
		"success": dispatchErr == nil,
	}); stepErr != nil && dispatchErr == nil {
		dispatchErr = coreerr.Wrap(coreerr.ErrTraceBackend, stepErr)
	}
	if err := o.ledger.CloseTrace(ctx, traceID); err != nil && dispatchErr == nil {
		dispatchErr = coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}
	return resp, dispatchErr
}

// checkApproval validates req.approvalID against toolName/args, appending
// the approval_check trace step regardless of outcome.
func (o *Orchestrator) checkApproval(ctx context.Context, traceID uuid.UUID, toolName string, args map[string]interface{}, approvalID string) (approval.Rejection, error) {
	if approvalID == "" {
		o.appendApprovalStep(ctx, traceID, toolName, false, approval.RejectionMissingApproval)
		return approval.RejectionMissingApproval, coreerr.Wrap(coreerr.ErrApprovalNeeded, &approval.RejectionError{Reason: approval.RejectionMissingApproval})
	}
	result, err := o.approvals.ValidateAndConsume(ctx, approvalID, toolName, args)
	if err != nil {
		return "", coreerr.Wrap(coreerr.ErrApprovalBackend, err)
	}
	o.appendApprovalStep(ctx, traceID, toolName, result.Approved, result.Rejection)
	if !result.Approved {
		return result.Rejection, coreerr.Wrap(coreerr.ErrApprovalNeeded, &approval.RejectionError{Reason: result.Rejection})
	}
	return approval.RejectionNone, nil
}

func (o *Orchestrator) appendApprovalStep(ctx context.Context, traceID uuid.UUID, toolName string, approved bool, rejection approval.Rejection) {
	_, _ = o.ledger.AppendStep(ctx, traceID, trace.StepApprovalCheck, map[string]interface{}{
		"tool":      toolName,
		"approved":  approved,
		"rejection": string(rejection),
	})
}

type dispatchOutcome struct {
	toolResult   *toolspec.Result
	providerResp *provider.Response
}

// runOutcome is step 5: dispatch to the Tool Registry for a registered
// tool, or the Provider Client for generative intents. toolspec.Executor
// emits its own tool_execute trace step, so this must not append a second
// one for that branch.
func (o *Orchestrator) runOutcome(ctx context.Context, traceID uuid.UUID, toolName string, args map[string]interface{}, hasTool bool) (dispatchOutcome, error) {
	if hasTool {
		result, err := o.executor.Execute(ctx, traceID, toolName, args)
		if err != nil {
			return dispatchOutcome{toolResult: &result}, err
		}
		return dispatchOutcome{toolResult: &result}, nil
	}

	if o.provider == nil {
		return dispatchOutcome{}, coreerr.Wrap(coreerr.ErrToolNotFound, fmt.Errorf("tool %q is not registered and no provider is configured", toolName))
	}
	messages := []provider.Message{{Role: "user", Content: fmt.Sprintf("%v", args["message"])}}
	resp, err := o.provider.Generate(ctx, provider.Request{Messages: messages})
	if _, stepErr := o.ledger.AppendStep(ctx, traceID, trace.StepProviderCall, map[string]interface{}{
		"success":  err == nil,
		"attempts": resp.Attempts,
	}); stepErr != nil && err == nil {
		err = coreerr.Wrap(coreerr.ErrTraceBackend, stepErr)
	}
	if err != nil {
		return dispatchOutcome{}, err
	}
	return dispatchOutcome{providerResp: &resp}, nil
}

func (o *Orchestrator) appendCancelled(ctx context.Context, traceID uuid.UUID, stage string, cause error) {
	_, _ = o.ledger.AppendStep(ctx, traceID, trace.StepCancelled, map[string]interface{}{
		"stage": stage,
		"error": cause.Error(),
	})
}
