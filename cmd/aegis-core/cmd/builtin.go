package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/aegiscore/aegis/internal/domain/intent"
	"github.com/aegiscore/aegis/internal/domain/toolspec"
)

// registerBuiltinTools registers the demo tool set the echo/python_exec
// scenarios exercise: one safe, in-process tool and one unsafe tool that
// always routes through the sandbox driver.
func registerBuiltinTools(registry *toolspec.Registry) error {
	if err := registry.Register(toolspec.ToolSpec{
		Name:        "echo",
		Description: "echoes the provided text back",
		Safety:      toolspec.SafetySafe,
		OpenSchema:  true,
		Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			text, _ := args["text"].(string)
			return "Echo: " + text, nil
		},
	}); err != nil {
		return fmt.Errorf("register echo: %w", err)
	}

	if err := registry.Register(toolspec.ToolSpec{
		Name:        "python_exec",
		Description: "runs a short Python snippet in an isolated sandbox",
		Safety:      toolspec.SafetyUnsafe,
		OpenSchema:  true,
	}); err != nil {
		return fmt.Errorf("register python_exec: %w", err)
	}

	return nil
}

// builtinRuleRoutes returns the Tier-0 rule set matched before any
// semantic or cache lookup runs. The echo rule reproduces the canonical
// echo-tool walkthrough.
func builtinRuleRoutes() []intent.RuleRoute {
	return []intent.RuleRoute{
		{
			Name: "echo_rule",
			Match: func(input string) (string, map[string]interface{}, bool) {
				const prefix = "echo "
				if !strings.HasPrefix(input, prefix) {
					return "", nil, false
				}
				return "echo", map[string]interface{}{"text": strings.TrimPrefix(input, prefix)}, true
			},
		},
	}
}

// builtinToolDescriptors mirrors the registered tools for the semantic
// tier's candidate set.
func builtinToolDescriptors() []intent.ToolDescriptor {
	return []intent.ToolDescriptor{
		{Name: "echo", Description: "echoes the provided text back", Enabled: true},
		{Name: "python_exec", Description: "runs a short Python snippet in an isolated sandbox", Enabled: true, Tier3Required: true},
	}
}
