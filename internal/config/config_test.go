package config

import "testing"

func TestSetDefaults_Server(t *testing.T) {
	cfg := &OSSConfig{}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Server.HTTPAddr = %q, want 127.0.0.1:8080", cfg.Server.HTTPAddr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("Server.LogLevel = %q, want info", cfg.Server.LogLevel)
	}
}

func TestSetDefaults_DoesNotOverrideExplicitValues(t *testing.T) {
	cfg := &OSSConfig{Server: ServerConfig{HTTPAddr: "0.0.0.0:9090", LogLevel: "debug"}}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("Server.HTTPAddr = %q, want 0.0.0.0:9090", cfg.Server.HTTPAddr)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("Server.LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
}

func TestSetDefaults_Provider(t *testing.T) {
	cfg := &OSSConfig{}
	cfg.SetDefaults()

	if cfg.Provider.Timeout != "30s" {
		t.Errorf("Provider.Timeout = %q, want 30s", cfg.Provider.Timeout)
	}
	if cfg.Provider.MaxOutputChars != 8000 {
		t.Errorf("Provider.MaxOutputChars = %d, want 8000", cfg.Provider.MaxOutputChars)
	}
	if cfg.Provider.CircuitMaxFails != 5 {
		t.Errorf("Provider.CircuitMaxFails = %d, want 5", cfg.Provider.CircuitMaxFails)
	}
	if cfg.Provider.CircuitReset != "30s" {
		t.Errorf("Provider.CircuitReset = %q, want 30s", cfg.Provider.CircuitReset)
	}
}

func TestSetDefaults_IntentRouting(t *testing.T) {
	cfg := &OSSConfig{}
	cfg.SetDefaults()

	if cfg.IntentRouting.CacheTTL != "5m" {
		t.Errorf("IntentRouting.CacheTTL = %q, want 5m", cfg.IntentRouting.CacheTTL)
	}
	if cfg.IntentRouting.MinConfidence != 0.6 {
		t.Errorf("IntentRouting.MinConfidence = %v, want 0.6", cfg.IntentRouting.MinConfidence)
	}
	if cfg.IntentRouting.MinGap != 0.1 {
		t.Errorf("IntentRouting.MinGap = %v, want 0.1", cfg.IntentRouting.MinGap)
	}
}

func TestSetDefaults_TraceAndApprovals(t *testing.T) {
	cfg := &OSSConfig{}
	cfg.SetDefaults()

	if cfg.Trace.DBPath != "aegis-trace.db" {
		t.Errorf("Trace.DBPath = %q, want aegis-trace.db", cfg.Trace.DBPath)
	}
	if cfg.Approvals.TTLSeconds != 900 {
		t.Errorf("Approvals.TTLSeconds = %d, want 900", cfg.Approvals.TTLSeconds)
	}
	if cfg.Approvals.DBPath != cfg.Trace.DBPath {
		t.Errorf("Approvals.DBPath = %q, want it to default to Trace.DBPath %q", cfg.Approvals.DBPath, cfg.Trace.DBPath)
	}
}

func TestSetDefaults_Transport(t *testing.T) {
	cfg := &OSSConfig{}
	cfg.SetDefaults()

	if cfg.Transport.MaxRequestBytes != 1<<20 {
		t.Errorf("Transport.MaxRequestBytes = %d, want %d", cfg.Transport.MaxRequestBytes, 1<<20)
	}
	if cfg.Transport.RateLimitPerMin != 120 {
		t.Errorf("Transport.RateLimitPerMin = %d, want 120", cfg.Transport.RateLimitPerMin)
	}
}

func TestSetDevDefaults_SeedsDevIdentity(t *testing.T) {
	cfg := &OSSConfig{DevMode: true}
	cfg.SetDevDefaults()

	if len(cfg.Auth.Identities) != 1 || cfg.Auth.Identities[0].ID != "dev-user" {
		t.Fatalf("expected a seeded dev-user identity, got %+v", cfg.Auth.Identities)
	}
	if len(cfg.Auth.APIKeys) != 1 {
		t.Fatalf("expected a seeded dev API key, got %+v", cfg.Auth.APIKeys)
	}
}

func TestSetDevDefaults_NoopWhenDevModeDisabled(t *testing.T) {
	cfg := &OSSConfig{}
	cfg.SetDevDefaults()

	if len(cfg.Auth.Identities) != 0 || len(cfg.Auth.APIKeys) != 0 {
		t.Error("expected SetDevDefaults to be a no-op when DevMode is false")
	}
}
