// Package aegis provides a Go client for the Aegis Core control plane.
//
// Aegis Core fronts tool calls for an agent: every request is routed
// through an intent router, checked against a policy engine, executed
// through a sandboxed tool registry or gated provider client, and
// recorded in a tamper-evident trace ledger. This client talks to that
// HTTP surface using only the standard library (net/http), with zero
// external dependencies.
//
// Quick start:
//
//	// Set AEGIS_SERVER_ADDR and AEGIS_API_KEY env vars, then:
//	client := aegis.NewClient()
//
//	resp, err := client.Chat(ctx, aegis.ChatRequest{
//	    SessionID: "session-1",
//	    Input:     "echo hello world",
//	})
//	if err != nil {
//	    var denied *aegis.PolicyDeniedError
//	    if errors.As(err, &denied) {
//	        fmt.Printf("denied: %s\n", denied.Reason)
//	    }
//	}
package aegis

// ChatRequest is one /v1/chat/completions call: free-text input routed
// through the intent router to a tool or the provider client.
type ChatRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	Input      string `json:"input"`
	ApprovalID string `json:"approval_id,omitempty"`
}

// ExecuteRequest names a tool directly, bypassing intent routing.
type ExecuteRequest struct {
	SessionID  string         `json:"session_id,omitempty"`
	Name       string         `json:"name"`
	Args       map[string]any `json:"args,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`
}

// ChatResponse is returned by both Chat and Execute.
type ChatResponse struct {
	Status         string          `json:"status"`
	TraceID        string          `json:"trace_id"`
	Tool           string          `json:"tool,omitempty"`
	Result         any             `json:"result,omitempty"`
	Provider       *ProviderResult `json:"provider,omitempty"`
	PolicyHash     string          `json:"policy_hash,omitempty"`
	Error          string          `json:"error,omitempty"`
	ApprovalReason string          `json:"approval_reason,omitempty"`
}

// ProviderResult is the outbound LLM provider's response, present when
// the routed tool call falls through to the provider client.
type ProviderResult struct {
	Content   string `json:"content"`
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	LatencyMS int64  `json:"latency_ms"`
	Attempts  int    `json:"attempts"`
	Truncated bool   `json:"truncated"`
}

// ApproveRequest asks the approval store to issue a token for a future
// Execute call against an unsafe tool.
type ApproveRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
	TTL  string         `json:"ttl,omitempty"`
}

// ApproveResponse is the issued approval token.
type ApproveResponse struct {
	ApprovalID string `json:"approval_id"`
	Tool       string `json:"tool"`
	ArgsHash   string `json:"args_hash"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at"`
	Status     string `json:"status"`
}

// TraceStep is one step of a recorded trace.
type TraceStep struct {
	Position  int    `json:"position"`
	StepType  string `json:"step_type"`
	CreatedAt string `json:"created_at"`
	Payload   any    `json:"payload"`
	EventHash string `json:"event_hash"`
	ChainHash string `json:"chain_hash"`
}

// TraceResponse is the full step sequence for one trace.
type TraceResponse struct {
	TraceID string      `json:"trace_id"`
	Steps   []TraceStep `json:"steps"`
}

// VerifyResponse is the result of recomputing a trace's chain hash.
type VerifyResponse struct {
	TraceID   string `json:"trace_id"`
	ChainHash string `json:"chain_hash"`
	OK        *bool  `json:"ok,omitempty"`
}
