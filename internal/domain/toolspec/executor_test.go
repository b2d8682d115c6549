package toolspec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func echoHandler(_ context.Context, args map[string]interface{}) (interface{}, error) {
	return "Echo: " + fmt.Sprint(args["message"]), nil
}

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()
	spec := ToolSpec{Name: "echo", Safety: SafetySafe}
	if err := r.Register(spec); err != nil {
		t.Fatalf("first Register() error: %v", err)
	}
	if err := r.Register(spec); err == nil {
		t.Fatal("expected re-registration to fail")
	}
}

func TestRegistry_InfersSafetyFromNameWhenUnset(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolSpec{Name: "delete_record"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	spec, ok := r.Lookup("delete_record")
	if !ok {
		t.Fatal("expected tool to be registered")
	}
	if spec.Safety != SafetyUnsafe {
		t.Errorf("Safety = %v, want %v (inferred from name)", spec.Safety, SafetyUnsafe)
	}
}

func TestRegistry_RespectsExplicitSafety(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolSpec{Name: "delete_record", Safety: SafetySafe}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	spec, _ := r.Lookup("delete_record")
	if spec.Safety != SafetySafe {
		t.Errorf("Safety = %v, want %v (explicit value should not be overridden)", spec.Safety, SafetySafe)
	}
}

func TestExecutor_ToolNotFound(t *testing.T) {
	exec := NewExecutor(NewRegistry(), nil, nil, Config{})
	_, err := exec.Execute(context.Background(), uuid.New(), "missing", nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered tool")
	}
}

func TestExecutor_SafeToolRunsInProcess(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolSpec{
		Name:    "echo",
		Safety:  SafetySafe,
		Handler: echoHandler,
	}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	exec := NewExecutor(r, nil, nil, Config{})

	result, err := exec.Execute(context.Background(), uuid.New(), "echo", map[string]interface{}{"message": "hello world"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.Status != StatusOK {
		t.Fatalf("expected status ok, got %v (%s)", result.Status, result.Error)
	}
	if result.Value != "Echo: hello world" {
		t.Errorf("unexpected value: %v", result.Value)
	}
	if result.SandboxUsed {
		t.Error("a safe tool should not report sandbox_used")
	}
}

func TestExecutor_UnsafeToolRequiresSandboxWhenRequired(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolSpec{
		Name:    "python_exec",
		Safety:  SafetyUnsafe,
		Handler: echoHandler,
	}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	exec := NewExecutor(r, nil, nil, Config{SandboxRequired: true})

	result, err := exec.Execute(context.Background(), uuid.New(), "python_exec", nil)
	if err == nil {
		t.Fatal("expected SandboxUnavailable when sandbox is required but not configured")
	}
	if result.Status != StatusError {
		t.Errorf("expected error status, got %v", result.Status)
	}
}

func TestExecutor_UnsafeToolUsesSandboxWhenConfigured(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolSpec{Name: "python_exec", Safety: SafetyUnsafe}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	sb := stubSandbox{output: "1"}
	exec := NewExecutor(r, sb, nil, Config{SandboxRequired: true})

	result, err := exec.Execute(context.Background(), uuid.New(), "python_exec", map[string]interface{}{"code": "print(1)"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !result.SandboxUsed {
		t.Error("expected sandbox_used to be true")
	}
	if result.Value != "1" {
		t.Errorf("unexpected value: %v", result.Value)
	}
}

func TestExecutor_SandboxExecutionErrorWraps(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolSpec{Name: "python_exec", Safety: SafetyUnsafe}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	sb := stubSandbox{err: errors.New("exit status 1")}
	exec := NewExecutor(r, sb, nil, Config{SandboxRequired: true})

	result, err := exec.Execute(context.Background(), uuid.New(), "python_exec", nil)
	if err == nil {
		t.Fatal("expected an error from a failing sandbox run")
	}
	if result.Status != StatusError {
		t.Errorf("expected error status, got %v", result.Status)
	}
}

func TestExecutor_OutputCapTruncates(t *testing.T) {
	r := NewRegistry()
	longOutput := strings.Repeat("x", 10)
	if err := r.Register(ToolSpec{
		Name:   "noisy",
		Safety: SafetySafe,
		Handler: func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
			return longOutput, nil
		},
	}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	exec := NewExecutor(r, nil, nil, Config{OutputCharCap: 4})

	result, err := exec.Execute(context.Background(), uuid.New(), "noisy", nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !result.Truncated {
		t.Error("expected truncated to be true")
	}
	if result.Value != "xxxx" {
		t.Errorf("expected capped value 'xxxx', got %v", result.Value)
	}
}

func TestExecutor_ScrubsSecretLikeOutput(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolSpec{
		Name:   "leaky",
		Safety: SafetySafe,
		Handler: func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
			return "here is a token: Bearer abc123.def456.ghi789", nil
		},
	}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	exec := NewExecutor(r, nil, nil, Config{})

	result, err := exec.Execute(context.Background(), uuid.New(), "leaky", nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !result.Scrubbed {
		t.Error("expected scrubbed to be true")
	}
	if strings.Contains(fmt.Sprintf("%v", result.Value), "abc123") {
		t.Errorf("expected the bearer token to be scrubbed from output, got %v", result.Value)
	}
}

func TestExecutor_RejectsUndeclaredExtraKeys(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(ToolSpec{
		Name:        "strict",
		Safety:      SafetySafe,
		InputSchema: []byte(`{"type":"object","properties":{"path":{"type":"string"}}}`),
		Handler:     echoHandler,
	}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	exec := NewExecutor(r, nil, nil, Config{})

	_, err := exec.Execute(context.Background(), uuid.New(), "strict", map[string]interface{}{"path": "/tmp", "extra": true})
	if err == nil {
		t.Fatal("expected an error for an undeclared extra argument key")
	}
}

func TestClassifyRisk(t *testing.T) {
	cases := map[string]RiskLevel{
		"list_files":     RiskLow,
		"fetch_data":     RiskMedium,
		"create_user":    RiskHigh,
		"delete_account": RiskCritical,
	}
	for name, want := range cases {
		if got := ClassifyRisk(name); got != want {
			t.Errorf("ClassifyRisk(%q) = %v, want %v", name, got, want)
		}
	}
}

type stubSandbox struct {
	output string
	err    error
}

func (s stubSandbox) Run(_ context.Context, _ ToolSpec, _ map[string]interface{}) (string, error) {
	return s.output, s.err
}
