package cel

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/aegiscore/aegis/internal/domain/policy"
)

// NewUniversalPolicyEnvironment creates a CEL environment for policy rule
// expressions (C2's Conditions.Expression escape hatch). It exposes the tool
// call and caller identity as typed variables plus two helper functions for
// argument inspection.
func NewUniversalPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("tool_name", cel.StringType),
		cel.Variable("args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("safe", cel.BoolType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("identity_id", cel.StringType),
		cel.Variable("identity_name", cel.StringType),
		cel.Variable("request_time", cel.TimestampType),

		// arg: extract a specific argument by key from args.
		// Usage: arg(args, "path")
		cel.Function("arg",
			cel.Overload("arg_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(func(mapVal, keyVal ref.Val) ref.Val {
					key := keyVal.Value().(string)
					goVal := mapVal.Value()
					if goMap, ok := goVal.(map[string]any); ok {
						if v, found := goMap[key]; found {
							return types.DefaultTypeAdapter.NativeToValue(v)
						}
					}
					if refMap, ok := goVal.(map[ref.Val]ref.Val); ok {
						if v, found := refMap[types.String(key)]; found {
							return v
						}
					}
					return types.NullValue
				}),
			),
		),

		// arg_contains: true if any argument value is a string containing substr.
		// Usage: arg_contains(args, "password")
		cel.Function("arg_contains",
			cel.Overload("arg_contains_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(mapVal, substrVal ref.Val) ref.Val {
					substr := substrVal.Value().(string)
					goVal := mapVal.Value()
					if goMap, ok := goVal.(map[string]any); ok {
						for _, v := range goMap {
							if s, ok := v.(string); ok && strings.Contains(s, substr) {
								return types.Bool(true)
							}
						}
					}
					if refMap, ok := goVal.(map[ref.Val]ref.Val); ok {
						for _, v := range refMap {
							if s, ok := v.Value().(string); ok && strings.Contains(s, substr) {
								return types.Bool(true)
							}
						}
					}
					return types.Bool(false)
				}),
			),
		),
	)
}

// BuildUniversalActivation creates a CEL activation map from an
// EvaluationContext for evaluating a Rule's Conditions.Expression.
func BuildUniversalActivation(evalCtx policy.EvaluationContext) map[string]any {
	args := evalCtx.ToolArguments
	if args == nil {
		args = map[string]interface{}{}
	}
	return map[string]any{
		"tool_name":     evalCtx.ToolName,
		"args":          args,
		"safe":          evalCtx.SafeFlag,
		"session_id":    evalCtx.SessionID,
		"identity_id":   evalCtx.IdentityID,
		"identity_name": evalCtx.IdentityName,
		"request_time":  evalCtx.RequestTime,
	}
}
