package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aegiscore/aegis/internal/domain/canon"
)

// ExpressionEvaluator evaluates a rule's optional Conditions.Expression.
// The policy package has no CEL dependency of its own; the outbound cel
// adapter implements this interface, keeping the evaluation engine free to
// compute decisions and policy_hash without a compiler dependency.
type ExpressionEvaluator interface {
	Evaluate(ctx context.Context, expression string, evalCtx EvaluationContext) (bool, error)
}

// Engine evaluates an EvaluationContext against a compiled Document in
// rule order, stopping at the first rule whose pattern and conditions both
// match.
type Engine struct {
	doc        Document
	policyHash string
	evaluator  ExpressionEvaluator
}

// NewEngine compiles doc's rule patterns and computes its policy_hash. doc
// is copied; mutating the caller's Document afterward has no effect on the
// engine. evaluator may be nil if no rule in doc uses Conditions.Expression.
func NewEngine(doc Document, evaluator ExpressionEvaluator) (*Engine, error) {
	if err := doc.Compile(); err != nil {
		return nil, fmt.Errorf("policy: compile document: %w", err)
	}
	h, err := Hash(doc)
	if err != nil {
		return nil, fmt.Errorf("policy: hash document: %w", err)
	}
	return &Engine{doc: doc, policyHash: h, evaluator: evaluator}, nil
}

// PolicyHash returns the hash stamped onto every Decision this engine
// produces.
func (e *Engine) PolicyHash() string { return e.policyHash }

// Evaluate walks the document's rules in order and returns the first
// matching rule's action, or the document's default action if none match.
func (e *Engine) Evaluate(ctx context.Context, evalCtx EvaluationContext) (Decision, error) {
	for i := range e.doc.Rules {
		rule := &e.doc.Rules[i]
		if !rule.Matches(evalCtx.ToolName) {
			continue
		}
		satisfied, err := e.conditionsSatisfied(ctx, rule.Conditions, evalCtx)
		if err != nil {
			return Decision{}, err
		}
		if !satisfied {
			continue
		}
		return Decision{
			Action:           rule.Action,
			Reason:           rule.Reason,
			MatchedRuleIndex: i,
			PolicyHash:       e.policyHash,
		}, nil
	}
	return Decision{
		Action:           e.doc.DefaultAction,
		Reason:           "no rule matched; default action applied",
		MatchedRuleIndex: -1,
		PolicyHash:       e.policyHash,
	}, nil
}

func (e *Engine) conditionsSatisfied(ctx context.Context, c Conditions, evalCtx EvaluationContext) (bool, error) {
	if c.InputParam != "" && c.MaxInputLen > 0 {
		if v, ok := evalCtx.ToolArguments[c.InputParam]; ok {
			if s, ok := v.(string); ok && len([]rune(s)) > c.MaxInputLen {
				return false, nil
			}
		}
	}

	for _, flag := range c.RequiredFlags {
		v, ok := evalCtx.ToolArguments[flag]
		if !ok {
			return false, nil
		}
		b, ok := v.(bool)
		if !ok || !b {
			return false, nil
		}
	}

	if c.Expression != "" {
		if e.evaluator == nil {
			return false, fmt.Errorf("policy: rule has an expression condition but no evaluator is configured")
		}
		ok, err := e.evaluator.Evaluate(ctx, c.Expression, evalCtx)
		if err != nil {
			return false, fmt.Errorf("policy: evaluate expression: %w", err)
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// Hash computes the policy_hash: SHA-256 over the canonical JSON encoding
// of doc's rules and default action, via the same canon package used for
// args_hash and the intent cache signature.
func Hash(doc Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("policy: marshal document: %w", err)
	}
	decoded, err := canon.DecodeNumberPreserving(raw)
	if err != nil {
		return "", fmt.Errorf("policy: decode document: %w", err)
	}
	canonical, err := canon.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("policy: canonicalize document: %w", err)
	}
	return canon.SHA256Hex(canonical), nil
}
