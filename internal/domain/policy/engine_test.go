package policy

import (
	"context"
	"testing"
)

func TestEngine_FirstMatchWins(t *testing.T) {
	doc := Document{
		Rules: []Rule{
			{MatchPattern: `^delete_.*`, Action: ActionDeny, Reason: "destructive tool blocked"},
			{MatchPattern: `^delete_temp$`, Action: ActionAllow, Reason: "temp deletion allowed"},
		},
		DefaultAction: ActionAllow,
	}
	eng, err := NewEngine(doc, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	decision, err := eng.Evaluate(context.Background(), EvaluationContext{ToolName: "delete_temp"})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if decision.Action != ActionDeny {
		t.Errorf("expected the first matching rule (deny) to win, got %v", decision.Action)
	}
	if decision.MatchedRuleIndex != 0 {
		t.Errorf("expected MatchedRuleIndex 0, got %d", decision.MatchedRuleIndex)
	}
}

func TestEngine_DefaultActionWhenNoRuleMatches(t *testing.T) {
	doc := Document{
		Rules: []Rule{
			{MatchPattern: `^exec_.*`, Action: ActionDeny},
		},
		DefaultAction: ActionAllow,
	}
	eng, err := NewEngine(doc, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	decision, err := eng.Evaluate(context.Background(), EvaluationContext{ToolName: "read_file"})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if decision.Action != ActionAllow {
		t.Errorf("expected default action allow, got %v", decision.Action)
	}
	if decision.MatchedRuleIndex != -1 {
		t.Errorf("expected MatchedRuleIndex -1 for default, got %d", decision.MatchedRuleIndex)
	}
}

func TestEngine_MaxInputLenConditionSkipsRule(t *testing.T) {
	doc := Document{
		Rules: []Rule{
			{
				MatchPattern: `^search$`,
				Action:       ActionAllow,
				Conditions:   Conditions{InputParam: "query", MaxInputLen: 10},
			},
		},
		DefaultAction: ActionDeny,
	}
	eng, err := NewEngine(doc, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	short, err := eng.Evaluate(context.Background(), EvaluationContext{
		ToolName:      "search",
		ToolArguments: map[string]interface{}{"query": "short"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if short.Action != ActionAllow {
		t.Errorf("expected allow for short query, got %v", short.Action)
	}

	long, err := eng.Evaluate(context.Background(), EvaluationContext{
		ToolName:      "search",
		ToolArguments: map[string]interface{}{"query": "this query is far too long"},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if long.Action != ActionDeny {
		t.Errorf("expected deny (default) for over-length query, got %v", long.Action)
	}
}

func TestEngine_RequiredFlagsCondition(t *testing.T) {
	doc := Document{
		Rules: []Rule{
			{
				MatchPattern: `^send_email$`,
				Action:       ActionAllow,
				Conditions:   Conditions{RequiredFlags: []string{"confirmed"}},
			},
		},
		DefaultAction: ActionDeny,
	}
	eng, err := NewEngine(doc, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	missing, err := eng.Evaluate(context.Background(), EvaluationContext{ToolName: "send_email"})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if missing.Action != ActionDeny {
		t.Errorf("expected deny when required flag is absent, got %v", missing.Action)
	}

	present, err := eng.Evaluate(context.Background(), EvaluationContext{
		ToolName:      "send_email",
		ToolArguments: map[string]interface{}{"confirmed": true},
	})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if present.Action != ActionAllow {
		t.Errorf("expected allow when required flag is true, got %v", present.Action)
	}
}

type stubEvaluator struct {
	result bool
	err    error
}

func (s stubEvaluator) Evaluate(_ context.Context, _ string, _ EvaluationContext) (bool, error) {
	return s.result, s.err
}

func TestEngine_ExpressionConditionUsesEvaluator(t *testing.T) {
	doc := Document{
		Rules: []Rule{
			{MatchPattern: `^run$`, Action: ActionAllow, Conditions: Conditions{Expression: `safe`}},
		},
		DefaultAction: ActionDeny,
	}

	allow, err := NewEngine(doc, stubEvaluator{result: true})
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	d, err := allow.Evaluate(context.Background(), EvaluationContext{ToolName: "run"})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if d.Action != ActionAllow {
		t.Errorf("expected allow when evaluator returns true, got %v", d.Action)
	}

	deny, err := NewEngine(doc, stubEvaluator{result: false})
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	d2, err := deny.Evaluate(context.Background(), EvaluationContext{ToolName: "run"})
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if d2.Action != ActionDeny {
		t.Errorf("expected default deny when evaluator returns false, got %v", d2.Action)
	}
}

func TestEngine_ExpressionConditionWithoutEvaluatorErrors(t *testing.T) {
	doc := Document{
		Rules: []Rule{
			{MatchPattern: `^run$`, Action: ActionAllow, Conditions: Conditions{Expression: `safe`}},
		},
		DefaultAction: ActionDeny,
	}
	eng, err := NewEngine(doc, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	if _, err := eng.Evaluate(context.Background(), EvaluationContext{ToolName: "run"}); err == nil {
		t.Fatal("expected an error when a rule needs an expression evaluator that isn't configured")
	}
}

func TestHash_StableAndSensitiveToRuleOrder(t *testing.T) {
	a := Document{
		Rules: []Rule{
			{MatchPattern: "^a$", Action: ActionAllow},
			{MatchPattern: "^b$", Action: ActionDeny},
		},
		DefaultAction: ActionDeny,
	}
	b := Document{
		Rules: []Rule{
			{MatchPattern: "^b$", Action: ActionDeny},
			{MatchPattern: "^a$", Action: ActionAllow},
		},
		DefaultAction: ActionDeny,
	}

	h1, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	h2, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if h1 != h2 {
		t.Error("Hash() should be stable for the same document")
	}

	h3, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if h1 == h3 {
		t.Error("Hash() should differ when rule order differs")
	}
}

func TestEngine_InvalidMatchPatternFailsCompile(t *testing.T) {
	doc := Document{
		Rules: []Rule{
			{MatchPattern: "(unterminated", Action: ActionAllow},
		},
		DefaultAction: ActionDeny,
	}
	if _, err := NewEngine(doc, nil); err == nil {
		t.Fatal("expected NewEngine() to fail on an invalid regular expression")
	}
}
