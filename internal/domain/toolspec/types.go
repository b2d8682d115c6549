// Package toolspec implements the Tool Registry & Executor (C3): a
// name-unique registry of handlers plus the dispatch logic that routes
// unsafe tools to a sandbox driver and caps/scrubs every handler's output.
package toolspec

import (
	"context"
	"encoding/json"
)

// Safety classifies whether a tool may run in-process or must be
// sandboxed when sandboxing is required.
type Safety string

const (
	SafetySafe   Safety = "safe"
	SafetyUnsafe Safety = "unsafe"
)

// Handler is an in-process tool implementation. args are not validated
// against InputSchema: the Executor only rejects keys that the schema's
// properties do not declare (unless OpenSchema is set).
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ToolSpec is one entry in the Registry.
type ToolSpec struct {
	// Name uniquely identifies the tool; re-registration under the same
	// name fails.
	Name string
	// Description is a human-readable summary surfaced to the intent
	// router's semantic tier (C6) as the text embedded for similarity
	// scoring.
	Description string
	// InputSchema is the declared JSON Schema for the tool's parameters.
	InputSchema json.RawMessage
	// Safety gates whether the tool may run without a sandbox.
	Safety Safety
	// OpenSchema, when true, allows extra argument keys beyond those named
	// in InputSchema's properties; when false, extra keys are rejected.
	OpenSchema bool
	// Handler is invoked for safe tools, and for unsafe tools whenever the
	// Executor's SandboxRequired is false (even if a sandbox is
	// configured) or when SandboxFallbackAllowed lets a required-but-absent
	// sandbox fall back to in-process execution.
	Handler Handler
}

// Status is the outcome of one Execute call.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is returned by Execute.
type Result struct {
	Status      Status
	Value       interface{}
	Error       string
	Truncated   bool
	Scrubbed    bool
	SandboxUsed bool
	LatencyMS   int64
}
