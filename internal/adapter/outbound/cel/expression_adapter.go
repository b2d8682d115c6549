package cel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/aegiscore/aegis/internal/domain/policy"
)

// RuleEvaluator adapts Evaluator to policy.ExpressionEvaluator, caching the
// compiled cel.Program for each distinct expression string a Document uses
// so a hot-reloaded policy with repeated conditions only compiles once per
// unique expression.
type RuleEvaluator struct {
	eval *Evaluator

	mu       sync.RWMutex
	compiled map[string]cel.Program
}

// NewRuleEvaluator builds a RuleEvaluator with a fresh CEL environment.
func NewRuleEvaluator() (*RuleEvaluator, error) {
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	return &RuleEvaluator{eval: eval, compiled: make(map[string]cel.Program)}, nil
}

// Evaluate implements policy.ExpressionEvaluator.
func (r *RuleEvaluator) Evaluate(_ context.Context, expression string, evalCtx policy.EvaluationContext) (bool, error) {
	prg, err := r.programFor(expression)
	if err != nil {
		return false, err
	}
	return r.eval.Evaluate(prg, evalCtx)
}

func (r *RuleEvaluator) programFor(expression string) (cel.Program, error) {
	r.mu.RLock()
	prg, ok := r.compiled[expression]
	r.mu.RUnlock()
	if ok {
		return prg, nil
	}

	if err := r.eval.ValidateExpression(expression); err != nil {
		return nil, fmt.Errorf("cel: invalid rule expression %q: %w", expression, err)
	}
	prg, err := r.eval.Compile(expression)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.compiled[expression] = prg
	r.mu.Unlock()
	return prg, nil
}
