// Package config provides the configuration schema for Aegis Core.
//
// This is the control-plane configuration: provider gating, tool policy,
// sandboxing, intent routing, the trace ledger, approvals, and transport
// safety. It intentionally excludes concerns that sit outside the
// control plane's scope: upstream MCP framing, SSO/SCIM, and
// multi-tenant admin features.
package config

import (
	"github.com/spf13/viper"
)

// OSSConfig is the top-level configuration for the Aegis Core control
// plane.
type OSSConfig struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Auth configures file-based identities and API keys.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Provider configures the outbound LLM provider client (C5).
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`

	// Policy configures the tool policy engine (C2).
	Policy PolicyEngineConfig `yaml:"policy" mapstructure:"policy"`

	// Sandbox configures the tool executor's sandbox driver (C3).
	Sandbox SandboxConfig `yaml:"sandbox" mapstructure:"sandbox"`

	// IntentRouting configures the four-tier intent router (C6).
	IntentRouting IntentRoutingConfig `yaml:"intent_routing" mapstructure:"intent_routing"`

	// Trace configures the tamper-evident trace ledger (C1).
	Trace TraceConfig `yaml:"trace" mapstructure:"trace"`

	// Approvals configures the approval token store (C4).
	Approvals ApprovalsConfig `yaml:"approvals" mapstructure:"approvals"`

	// Transport configures the request-boundary safety limits.
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`

	// DevMode enables development features (verbose logging, permissive defaults).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// AuthConfig configures file-based authentication.
type AuthConfig struct {
	// Identities defines the known identities (users/services).
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" validate:"omitempty,dive"`

	// APIKeys defines the API keys that map to identities.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// IdentityConfig defines a file-based identity.
type IdentityConfig struct {
	ID    string   `yaml:"id" mapstructure:"id" validate:"required"`
	Name  string   `yaml:"name" mapstructure:"name" validate:"required"`
	Roles []string `yaml:"roles" mapstructure:"roles" validate:"required,min=1"`
}

// APIKeyConfig defines an API key that authenticates as an identity.
type APIKeyConfig struct {
	// KeyHash is the SHA-256 hash of the API key, prefixed with "sha256:".
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,startswith=sha256:"`
	// IdentityID references the identity this key authenticates as.
	IdentityID string `yaml:"identity_id" mapstructure:"identity_id" validate:"required"`
}

// ProviderConfig configures the outbound LLM provider client (C5):
// network-enabled flag, per-provider URL, timeout, retry count, retry
// backoff, output-char cap, circuit max failures, circuit reset, and
// model allowlist.
type ProviderConfig struct {
	NetworkEnabled  bool     `yaml:"network_enabled" mapstructure:"network_enabled"`
	URL             string   `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	APIKey          string   `yaml:"api_key" mapstructure:"api_key"`
	Timeout         string   `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
	RetryCount      int      `yaml:"retry_count" mapstructure:"retry_count" validate:"omitempty,min=0"`
	RetryBackoff    string   `yaml:"retry_backoff" mapstructure:"retry_backoff" validate:"omitempty"`
	MaxOutputChars  int      `yaml:"max_output_chars" mapstructure:"max_output_chars" validate:"omitempty,min=1"`
	CircuitMaxFails int      `yaml:"circuit_max_fails" mapstructure:"circuit_max_fails" validate:"omitempty,min=1"`
	CircuitReset    string   `yaml:"circuit_reset" mapstructure:"circuit_reset" validate:"omitempty"`
	ModelAllowlist  []string `yaml:"model_allowlist" mapstructure:"model_allowlist"`
}

// PolicyEngineConfig configures the tool policy engine (C2): enforcement
// flag and policy document path.
type PolicyEngineConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	DocumentPath string `yaml:"document_path" mapstructure:"document_path"`
}

// SandboxConfig configures the tool executor's sandbox driver (C3):
// enabled flag, required flag, fallback flag, image reference, CPU quota,
// memory cap, wall-clock timeout, tool directory.
type SandboxConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Required        bool   `yaml:"required" mapstructure:"required"`
	FallbackAllowed bool   `yaml:"fallback_allowed" mapstructure:"fallback_allowed"`
	Image           string `yaml:"image" mapstructure:"image"`
	CPUQuota        string `yaml:"cpu_quota" mapstructure:"cpu_quota"`
	MemoryCapMB     int    `yaml:"memory_cap_mb" mapstructure:"memory_cap_mb" validate:"omitempty,min=1"`
	Timeout         string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
	ToolDir         string `yaml:"tool_dir" mapstructure:"tool_dir"`
}

// IntentRoutingConfig configures the four-tier intent router (C6):
// enabled, shadow mode, cache enabled/path/TTL, HITL enabled/path,
// minimum confidence, minimum gap.
type IntentRoutingConfig struct {
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	ShadowMode    bool    `yaml:"shadow_mode" mapstructure:"shadow_mode"`
	CacheEnabled  bool    `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTL      string  `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty"`
	HITLEnabled   bool    `yaml:"hitl_enabled" mapstructure:"hitl_enabled"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence" validate:"omitempty,min=0,max=1"`
	MinGap        float64 `yaml:"min_gap" mapstructure:"min_gap" validate:"omitempty,min=0,max=1"`
	// EmbedModelID, when set, routes the semantic tier's embeddings
	// through the provider client against this model instead of the
	// in-repo hashing embedder.
	EmbedModelID string `yaml:"embed_model_id" mapstructure:"embed_model_id" validate:"omitempty"`
}

// TraceConfig configures the tamper-evident trace ledger (C1): enabled
// flag and the database path or URL the ledger persists to.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DBPath  string `yaml:"db_path" mapstructure:"db_path"`
}

// ApprovalsConfig configures the approval token store (C4): enforcement
// flag, TTL seconds, and the database path it persists to.
type ApprovalsConfig struct {
	Enforced  bool `yaml:"enforced" mapstructure:"enforced"`
	TTLSeconds int `yaml:"ttl_seconds" mapstructure:"ttl_seconds" validate:"omitempty,min=1"`
	DBPath    string `yaml:"db_path" mapstructure:"db_path"`
}

// TransportConfig configures request-boundary safety: max request bytes
// and rate limit (requests per minute) with optional external storage URL.
type TransportConfig struct {
	MaxRequestBytes int64  `yaml:"max_request_bytes" mapstructure:"max_request_bytes" validate:"omitempty,min=1"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" mapstructure:"rate_limit_per_min" validate:"omitempty,min=1"`
	RateLimitStoreURL string `yaml:"rate_limit_store_url" mapstructure:"rate_limit_store_url" validate:"omitempty,url"`
}

// SetDevDefaults applies permissive defaults for development mode. These
// defaults are applied BEFORE validation so required fields are satisfied.
func (c *OSSConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if len(c.Auth.Identities) == 0 {
		c.Auth.Identities = []IdentityConfig{
			{ID: "dev-user", Name: "Development User", Roles: []string{"admin"}},
		}
	}
	if len(c.Auth.APIKeys) == 0 {
		c.Auth.APIKeys = []APIKeyConfig{
			{KeyHash: "sha256:6e1e4e1b8f8b36d08901cdb51b97841dfe20f5efd2fd2fd00768971408c46274", IdentityID: "dev-user"},
		}
	}
	if c.Policy.DocumentPath == "" {
		c.Trace.Enabled = true
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *OSSConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Provider.Timeout == "" {
		c.Provider.Timeout = "30s"
	}
	if c.Provider.RetryBackoff == "" {
		c.Provider.RetryBackoff = "500ms"
	}
	if c.Provider.MaxOutputChars == 0 {
		c.Provider.MaxOutputChars = 8000
	}
	if c.Provider.CircuitMaxFails == 0 {
		c.Provider.CircuitMaxFails = 5
	}
	if c.Provider.CircuitReset == "" {
		c.Provider.CircuitReset = "30s"
	}

	if c.Sandbox.Timeout == "" {
		c.Sandbox.Timeout = "10s"
	}
	if c.Sandbox.MemoryCapMB == 0 {
		c.Sandbox.MemoryCapMB = 256
	}

	if c.IntentRouting.CacheTTL == "" {
		c.IntentRouting.CacheTTL = "5m"
	}
	if c.IntentRouting.MinConfidence == 0 {
		c.IntentRouting.MinConfidence = 0.6
	}
	if c.IntentRouting.MinGap == 0 {
		c.IntentRouting.MinGap = 0.1
	}

	if c.Trace.DBPath == "" {
		c.Trace.DBPath = "aegis-trace.db"
	}

	if c.Approvals.TTLSeconds == 0 {
		c.Approvals.TTLSeconds = 900
	}
	if c.Approvals.DBPath == "" {
		c.Approvals.DBPath = c.Trace.DBPath
	}

	if c.Transport.MaxRequestBytes == 0 {
		c.Transport.MaxRequestBytes = 1 << 20
	}
	// Rate limiting is enabled by default for security; only apply the
	// default when the user hasn't explicitly set it.
	if !viper.IsSet("transport.rate_limit_per_min") && c.Transport.RateLimitPerMin == 0 {
		c.Transport.RateLimitPerMin = 120
	}
}
