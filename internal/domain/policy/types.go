// Package policy implements the rule-based allow/deny engine (C2): an
// ordered list of Rule evaluated against a tool call, hashed into a
// policy_hash that stamps every decision made under it.
package policy

import "regexp"

// Action is the outcome of a matched rule.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Conditions gates a rule match on properties of the call arguments. A
// rule whose pattern matches but whose conditions fail is skipped —
// evaluation continues to the next rule in order.
type Conditions struct {
	// InputParam names the argument Rule checks the length of.
	InputParam string `yaml:"input_param,omitempty" json:"input_param,omitempty"`
	// MaxInputLen is the maximum allowed length (in runes) of
	// args[InputParam]; zero means unchecked.
	MaxInputLen int `yaml:"max_input_len,omitempty" json:"max_input_len,omitempty"`
	// RequiredFlags lists boolean argument keys that must be present and
	// true for the rule to match.
	RequiredFlags []string `yaml:"required_flags,omitempty" json:"required_flags,omitempty"`
	// Expression is an optional CEL expression evaluated against the tool
	// name and arguments; when present it must also evaluate true. This is
	// the engine's escape hatch for conditions the declarative shape above
	// can't express.
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// Rule is a single ordered entry in a policy Document.
type Rule struct {
	// MatchPattern is a regular expression evaluated against the tool name.
	MatchPattern string     `yaml:"match_pattern" json:"match_pattern"`
	Action       Action     `yaml:"action" json:"action"`
	Reason       string     `yaml:"reason" json:"reason"`
	Conditions   Conditions `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	compiled *regexp.Regexp
}

// Compile parses MatchPattern once; invoked by Document.Compile.
func (r *Rule) Compile() error {
	re, err := regexp.Compile(r.MatchPattern)
	if err != nil {
		return err
	}
	r.compiled = re
	return nil
}

// Matches reports whether toolName matches the rule's compiled pattern.
// Compile must have been called first.
func (r *Rule) Matches(toolName string) bool {
	if r.compiled == nil {
		return false
	}
	return r.compiled.MatchString(toolName)
}

// Document is the loaded, ordered policy rule set plus the default action
// applied when no rule matches.
type Document struct {
	Rules         []Rule `yaml:"rules" json:"rules"`
	DefaultAction Action `yaml:"default_action" json:"default_action"`
}

// Compile compiles every rule's MatchPattern. Called once after load.
func (d *Document) Compile() error {
	for i := range d.Rules {
		if err := d.Rules[i].Compile(); err != nil {
			return err
		}
	}
	return nil
}

// Decision is the outcome of evaluating a Document against a call.
type Decision struct {
	Action           Action
	Reason           string
	MatchedRuleIndex int // -1 when the default action applied
	PolicyHash       string
}

// Allowed reports whether the decision permits execution.
func (d Decision) Allowed() bool { return d.Action == ActionAllow }
