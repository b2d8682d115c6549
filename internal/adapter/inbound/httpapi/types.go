// Package httpapi is the inbound HTTP adapter: it parses requests, builds
// the Orchestrator's core request structs, calls it, and writes the
// response. It owns no domain logic — every decision is made by
// internal/service.Orchestrator and the C1-C6 components behind it.
package httpapi

import "time"

// chatRequest is the wire body for POST /v1/chat/completions.
type chatRequest struct {
	SessionID  string `json:"session_id"`
	Input      string `json:"input"`
	ApprovalID string `json:"approval_id,omitempty"`
}

// chatResponse is the wire body returned by a successful chat or execute call.
type chatResponse struct {
	TraceID        string        `json:"trace_id"`
	Tool           string        `json:"tool,omitempty"`
	Status         string        `json:"status"`
	Result         interface{}   `json:"result,omitempty"`
	OutputScrubbed bool          `json:"output_scrubbed,omitempty"`
	Provider       *providerWire `json:"provider,omitempty"`
	PolicyHash     string        `json:"policy_hash"`
}

type providerWire struct {
	Content   string `json:"content"`
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	LatencyMS int64  `json:"latency_ms"`
	Attempts  int    `json:"attempts"`
	Truncated bool   `json:"truncated"`
}

// approveRequest is the wire body for POST /v1/tools/approve.
type approveRequest struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
	TTL  string                 `json:"ttl,omitempty"`
}

// approveResponse is the wire shape for an issued approval token.
type approveResponse struct {
	ApprovalID string `json:"approval_id"`
	Tool       string `json:"tool"`
	ArgsHash   string `json:"args_hash"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	Status     string `json:"status"`
}

// executeRequest is the wire body for POST /v1/tools/execute.
type executeRequest struct {
	SessionID  string                 `json:"session_id"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args"`
	ApprovalID string                 `json:"approval_id,omitempty"`
}

// errorResponse is the generic error envelope. ApprovalReason is only
// populated for approval_required rejections.
type errorResponse struct {
	Status         string `json:"status"`
	Tool           string `json:"tool,omitempty"`
	Error          string `json:"error"`
	ApprovalReason string `json:"approval_reason,omitempty"`
}

// traceStepWire is one redacted step, as returned by the trust endpoints.
type traceStepWire struct {
	Position  int64       `json:"position"`
	StepType  string      `json:"step_type"`
	CreatedAt time.Time   `json:"created_at"`
	Payload   interface{} `json:"payload"`
	EventHash string      `json:"event_hash"`
	ChainHash string      `json:"chain_hash"`
}

// traceWire is the full redacted trace returned by GET /v1/trust/trace/{id}.
type traceWire struct {
	TraceID string          `json:"trace_id"`
	Steps   []traceStepWire `json:"steps"`
}

// verifyResponse is the wire shape for a trace chain verification result.
type verifyResponse struct {
	TraceID   string `json:"trace_id"`
	ChainHash string `json:"chain_hash"`
	OK        *bool  `json:"ok,omitempty"`
}
