// Package config provides configuration loading for Aegis Core OSS.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for aegis-core.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("aegis-core")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: AEGIS_CORE_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("AEGIS_CORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Bind nested keys for env var support
	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a aegis-core config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "aegis-core" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".aegis-core"),
	}
	if runtime.GOOS == "windows" {
		// %ProgramData%\aegis-core (typically C:\ProgramData\aegis-core)
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "aegis-core"))
		}
	} else {
		paths = append(paths, "/etc/aegis-core")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for aegis-core.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "aegis-core"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all OSS config keys for environment variable support.
// This enables overriding nested config values via environment variables.
// Example: AEGIS_CORE_SERVER_HTTP_ADDR overrides server.http_addr
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")

	// Note: auth.identities and auth.api_keys are arrays, complex to
	// override via env. Users should use a config file for these.

	_ = viper.BindEnv("provider.network_enabled")
	_ = viper.BindEnv("provider.url")
	_ = viper.BindEnv("provider.api_key")
	_ = viper.BindEnv("provider.timeout")
	_ = viper.BindEnv("provider.retry_count")
	_ = viper.BindEnv("provider.retry_backoff")
	_ = viper.BindEnv("provider.circuit_max_fails")
	_ = viper.BindEnv("provider.circuit_reset")

	_ = viper.BindEnv("policy.enabled")
	_ = viper.BindEnv("policy.document_path")

	_ = viper.BindEnv("sandbox.enabled")
	_ = viper.BindEnv("sandbox.required")
	_ = viper.BindEnv("sandbox.fallback_allowed")

	_ = viper.BindEnv("intent_routing.enabled")
	_ = viper.BindEnv("intent_routing.shadow_mode")
	_ = viper.BindEnv("intent_routing.cache_enabled")
	_ = viper.BindEnv("intent_routing.min_confidence")
	_ = viper.BindEnv("intent_routing.min_gap")

	_ = viper.BindEnv("trace.enabled")
	_ = viper.BindEnv("trace.db_path")

	_ = viper.BindEnv("approvals.enforced")
	_ = viper.BindEnv("approvals.ttl_seconds")
	_ = viper.BindEnv("approvals.db_path")

	_ = viper.BindEnv("transport.max_request_bytes")
	_ = viper.BindEnv("transport.rate_limit_per_min")
	_ = viper.BindEnv("transport.rate_limit_store_url")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the OSSConfig.
// Note: Caller should apply any CLI flag overrides (e.g. --dev), then call
// cfg.SetDevDefaults() and cfg.Validate() to complete initialization.
func LoadConfig() (*OSSConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only
		// This allows running with pure environment variable configuration
	}

	var cfg OSSConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply default values for optional fields
	cfg.SetDefaults()

	// In dev mode, apply permissive defaults before validation
	cfg.SetDevDefaults()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*OSSConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg OSSConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
