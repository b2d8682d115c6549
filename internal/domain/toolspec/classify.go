package toolspec

import "strings"

// RiskLevel is a finer-grained classification than Safety, used only to
// pick a sensible Safety default for a tool that a config file registers
// without naming one explicitly.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// criticalPatterns indicate destructive operations or system commands.
var criticalPatterns = []string{
	"delete", "remove", "drop", "destroy", "execute", "exec",
	"shell", "command", "admin", "sudo", "root", "truncate",
}

// highPatterns indicate write operations or network access.
var highPatterns = []string{
	"write", "create", "update", "modify", "send", "post",
	"upload", "deploy", "install", "connect", "put",
}

// mediumPatterns indicate read operations with potential sensitivity.
var mediumPatterns = []string{
	"fetch", "download", "export", "query", "search",
}

// ClassifyRisk estimates a RiskLevel from a tool name via substring
// matching. Limitations: "undelete" also matches "delete"; descriptions
// are not analyzed, only names. Good enough as a default; operators can
// always register a tool with an explicit Safety to override it.
func ClassifyRisk(name string) RiskLevel {
	lower := strings.ToLower(name)
	for _, p := range criticalPatterns {
		if strings.Contains(lower, p) {
			return RiskCritical
		}
	}
	for _, p := range highPatterns {
		if strings.Contains(lower, p) {
			return RiskHigh
		}
	}
	for _, p := range mediumPatterns {
		if strings.Contains(lower, p) {
			return RiskMedium
		}
	}
	return RiskLow
}

// DefaultSafety maps a RiskLevel to the binary Safety the Executor acts
// on: low/medium risk tools default to safe (in-process), high/critical
// default to unsafe (sandboxed when sandboxing is configured).
func DefaultSafety(name string) Safety {
	switch ClassifyRisk(name) {
	case RiskHigh, RiskCritical:
		return SafetyUnsafe
	default:
		return SafetySafe
	}
}
