package toolspec

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/trace"
)

// DefaultOutputCharCap is the output character cap applied when Config
// doesn't set one.
const DefaultOutputCharCap = 4000

// Sandbox runs an unsafe ToolSpec outside the control-plane process. The
// os/exec Runner in internal/adapter/outbound/sandbox gives the child its
// own process group, a minimal environment, a wall-clock timeout and
// optional ulimit CPU/memory caps; it does not block network access and
// does not mount a read-only root filesystem. A nil Sandbox means
// sandboxing is unconfigured.
type Sandbox interface {
	Run(ctx context.Context, spec ToolSpec, args map[string]interface{}) (output string, err error)
}

// Config tunes Executor behavior.
type Config struct {
	// OutputCharCap caps a handler/sandbox result's serialized length;
	// zero uses DefaultOutputCharCap.
	OutputCharCap int
	// SandboxRequired forces unsafe tools through Sandbox even when one
	// isn't configured — that combination fails with SandboxUnavailable.
	SandboxRequired bool
	// SandboxFallbackAllowed permits an unsafe tool to run in-process via
	// its Handler when SandboxRequired is true but Sandbox is nil.
	SandboxFallbackAllowed bool
}

// Executor is the C3 dispatch logic: lookup, sandbox-or-in-process
// dispatch, output capping/scrubbing, and trace emission.
type Executor struct {
	registry *Registry
	sandbox  Sandbox
	ledger   trace.Ledger
	cfg      Config
}

// NewExecutor builds an Executor over registry. sandbox and ledger may be
// nil (no sandboxing configured / no trace emission, respectively).
func NewExecutor(registry *Registry, sandbox Sandbox, ledger trace.Ledger, cfg Config) *Executor {
	if cfg.OutputCharCap <= 0 {
		cfg.OutputCharCap = DefaultOutputCharCap
	}
	return &Executor{registry: registry, sandbox: sandbox, ledger: ledger, cfg: cfg}
}

// Execute looks up the tool, rejects argument keys its schema does not
// declare (unless OpenSchema), runs it
// (sandboxed when required), caps its output, and returns the result.
func (e *Executor) Execute(ctx context.Context, traceID uuid.UUID, name string, args map[string]interface{}) (Result, error) {
	start := time.Now()

	spec, ok := e.registry.Lookup(name)
	if !ok {
		return Result{}, coreerr.Wrap(coreerr.ErrToolNotFound, fmt.Errorf("tool %q is not registered", name))
	}

	if err := rejectExtraKeys(spec, args); err != nil {
		return Result{}, coreerr.Wrap(coreerr.ErrHandlerError, err)
	}

	var (
		rawOutput   string
		sandboxUsed bool
		execErr     error
	)

	if spec.Safety == SafetyUnsafe && e.cfg.SandboxRequired {
		switch {
		case e.sandbox != nil:
			sandboxUsed = true
			rawOutput, execErr = e.sandbox.Run(ctx, spec, args)
			if execErr != nil {
				execErr = coreerr.Wrap(coreerr.ErrSandboxExecutionError, execErr)
			}
		case e.cfg.SandboxFallbackAllowed && spec.Handler != nil:
			rawOutput, execErr = runHandler(ctx, spec, args)
		default:
			execErr = coreerr.Wrap(coreerr.ErrSandboxUnavailable, fmt.Errorf("tool %q requires a sandbox but none is configured", name))
		}
	} else {
		rawOutput, execErr = runHandler(ctx, spec, args)
	}

	latency := time.Since(start)
	result := Result{SandboxUsed: sandboxUsed, LatencyMS: latency.Milliseconds()}

	if execErr != nil {
		result.Status = StatusError
		result.Error = execErr.Error()
	} else {
		result.Status = StatusOK
		scrubbedOutput, _ := trace.ScrubSecrets(rawOutput, 0)
		capped, truncated := capOutput(scrubbedOutput, e.cfg.OutputCharCap)
		result.Value = capped
		result.Truncated = truncated
		result.Scrubbed = scrubbedOutput != rawOutput
	}

	if e.ledger != nil {
		payload := map[string]interface{}{
			"name":            name,
			"sanitized_args":  sanitizeArgsForTrace(args),
			"status":          string(result.Status),
			"truncated":       result.Truncated,
			"output_scrubbed": result.Scrubbed,
			"sandbox_used":    result.SandboxUsed,
			"latency_ms":      result.LatencyMS,
		}
		if _, stepErr := e.ledger.AppendStep(ctx, traceID, trace.StepToolExecute, payload); stepErr != nil {
			return result, coreerr.Wrap(coreerr.ErrTraceBackend, stepErr)
		}
	}

	if execErr != nil {
		return result, execErr
	}
	return result, nil
}

func runHandler(ctx context.Context, spec ToolSpec, args map[string]interface{}) (string, error) {
	if spec.Handler == nil {
		return "", fmt.Errorf("tool %q has no in-process handler", spec.Name)
	}
	value, err := spec.Handler(ctx, args)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", value), nil
}

func rejectExtraKeys(spec ToolSpec, args map[string]interface{}) error {
	if spec.OpenSchema || len(spec.InputSchema) == 0 {
		return nil
	}
	allowed, err := schemaPropertyNames(spec.InputSchema)
	if err != nil || allowed == nil {
		// A schema we can't introspect doesn't block execution; the
		// handler is the final arbiter of its own arguments.
		return nil
	}
	for key := range args {
		if !allowed[key] {
			return fmt.Errorf("argument %q is not declared in the schema for %q", key, spec.Name)
		}
	}
	return nil
}

func capOutput(s string, maxLen int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s, false
	}
	return string(runes[:maxLen]), true
}

// sanitizeArgsForTrace avoids re-implementing redaction here: the ledger
// adapter applies the canonical redaction rules on read, so the trace step
// payload carries args as-is and relies on that read-time sanitization.
func sanitizeArgsForTrace(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}
