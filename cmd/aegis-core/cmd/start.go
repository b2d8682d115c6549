// Package cmd provides the CLI commands for Aegis Core.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aegiscore/aegis/internal/adapter/inbound/httpapi"
	"github.com/aegiscore/aegis/internal/adapter/outbound/cel"
	"github.com/aegiscore/aegis/internal/adapter/outbound/embedder"
	"github.com/aegiscore/aegis/internal/adapter/outbound/memory"
	"github.com/aegiscore/aegis/internal/adapter/outbound/policyfile"
	"github.com/aegiscore/aegis/internal/adapter/outbound/providerhttp"
	"github.com/aegiscore/aegis/internal/adapter/outbound/sandbox"
	"github.com/aegiscore/aegis/internal/adapter/outbound/sqlitestore"
	"github.com/aegiscore/aegis/internal/adapter/outbound/telemetry"
	"github.com/aegiscore/aegis/internal/config"
	"github.com/aegiscore/aegis/internal/domain/auth"
	"github.com/aegiscore/aegis/internal/domain/intent"
	"github.com/aegiscore/aegis/internal/domain/policy"
	"github.com/aegiscore/aegis/internal/domain/provider"
	"github.com/aegiscore/aegis/internal/domain/toolspec"
	"github.com/aegiscore/aegis/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Aegis Core control plane",
	Long: `Start the Aegis Core control plane.

Boots the trace ledger, policy engine, sandboxed tool registry, intent
router, and provider client, then serves the HTTP control plane described
in the configuration file.

Examples:
  # Start with config file settings
  aegis-core start

  # Start with a specific config file
  aegis-core --config /path/to/config.yaml start

  # Start in development mode (permissive defaults, debug logging)
  aegis-core start --dev`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, permissive defaults)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}

	cfg.SetDevDefaults()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("aegis-core stopped")
	return nil
}

// run wires every component the control plane needs and serves until ctx
// is cancelled: the SQLite-backed stores first (trace ledger C1, approval
// store C4, intent cache, HITL queue, candidate log), then the policy
// engine (C2), the tool registry, sandbox and executor (C3), provider
// client (C5), intent router (C6), and finally the orchestrator (C7) that
// ties them together behind the inbound HTTP adapter.
func run(ctx context.Context, cfg *config.OSSConfig, logger *slog.Logger) error {
	db, err := sqlitestore.Open(ctx, cfg.Trace.DBPath, logger.With("component", "sqlitestore"))
	if err != nil {
		return fmt.Errorf("failed to open trace database: %w", err)
	}
	defer db.Close()

	ledger := sqlitestore.NewTraceLedger(db)
	approvals := sqlitestore.NewApprovalStore(db)
	intentCache := sqlitestore.NewIntentCache(db)
	hitlQueue := sqlitestore.NewHITLQueue(db)
	candidateLog := sqlitestore.NewMemoryCandidateLog(db)

	evaluator, err := cel.NewRuleEvaluator()
	if err != nil {
		return fmt.Errorf("failed to build policy expression evaluator: %w", err)
	}

	var policyLoader *policyfile.Loader
	var policyEngine *policy.Engine
	if cfg.Policy.DocumentPath != "" {
		policyLoader = policyfile.NewLoader(cfg.Policy.DocumentPath, evaluator, logger.With("component", "policyfile"))
		if err := policyLoader.Load(); err != nil {
			return fmt.Errorf("failed to load policy document: %w", err)
		}
		policyEngine = policyLoader.Engine()
	} else {
		doc := policy.Document{DefaultAction: policy.ActionAllow}
		if err := doc.Compile(); err != nil {
			return fmt.Errorf("failed to compile default policy document: %w", err)
		}
		policyEngine, err = policy.NewEngine(doc, evaluator)
		if err != nil {
			return fmt.Errorf("failed to build default policy engine: %w", err)
		}
	}
	logger.Info("policy engine ready", "policy_hash", policyEngine.PolicyHash())

	registry := toolspec.NewRegistry()
	if err := registerBuiltinTools(registry); err != nil {
		return fmt.Errorf("failed to register built-in tools: %w", err)
	}

	var sandboxRunner toolspec.Sandbox
	if cfg.Sandbox.Enabled {
		timeout, err := time.ParseDuration(cfg.Sandbox.Timeout)
		if err != nil {
			return fmt.Errorf("invalid sandbox.timeout %q: %w", cfg.Sandbox.Timeout, err)
		}
		sandboxRunner = sandbox.NewRunner(cfg.Sandbox.ToolDir, sandbox.Config{
			Timeout:       timeout,
			MaxMemoryBytes: int64(cfg.Sandbox.MemoryCapMB) << 20,
		})
	}

	executor := toolspec.NewExecutor(registry, sandboxRunner, ledger, toolspec.Config{
		SandboxRequired:        cfg.Sandbox.Required,
		SandboxFallbackAllowed: cfg.Sandbox.FallbackAllowed,
	})

	providerTimeout, err := time.ParseDuration(cfg.Provider.Timeout)
	if err != nil {
		return fmt.Errorf("invalid provider.timeout %q: %w", cfg.Provider.Timeout, err)
	}
	retryBackoff, err := time.ParseDuration(cfg.Provider.RetryBackoff)
	if err != nil {
		return fmt.Errorf("invalid provider.retry_backoff %q: %w", cfg.Provider.RetryBackoff, err)
	}
	circuitReset, err := time.ParseDuration(cfg.Provider.CircuitReset)
	if err != nil {
		return fmt.Errorf("invalid provider.circuit_reset %q: %w", cfg.Provider.CircuitReset, err)
	}

	transport := providerhttp.New(cfg.Provider.URL, cfg.Provider.APIKey, providerTimeout)
	providerClient := provider.NewClient(transport, provider.Config{
		NetworkEnabled:  cfg.Provider.NetworkEnabled,
		Timeout:         providerTimeout,
		RetryCount:      cfg.Provider.RetryCount,
		RetryBackoff:    retryBackoff,
		MaxOutputChars:  cfg.Provider.MaxOutputChars,
		ModelAllowlist:  cfg.Provider.ModelAllowlist,
		CircuitMaxFails: cfg.Provider.CircuitMaxFails,
		CircuitReset:    circuitReset,
	})

	cacheTTL, err := time.ParseDuration(cfg.IntentRouting.CacheTTL)
	if err != nil {
		return fmt.Errorf("invalid intent_routing.cache_ttl %q: %w", cfg.IntentRouting.CacheTTL, err)
	}

	var routerCache intent.Cache
	var routerHITL intent.HITLQueue
	var routerEmbedder intent.Embedder
	if cfg.IntentRouting.CacheEnabled {
		routerCache = intentCache
	}
	if cfg.IntentRouting.HITLEnabled {
		routerHITL = hitlQueue
	}
	if cfg.IntentRouting.Enabled {
		if cfg.IntentRouting.EmbedModelID != "" {
			routerEmbedder = embedder.NewProviderEmbedder(providerClient, cfg.IntentRouting.EmbedModelID)
		} else {
			routerEmbedder = embedder.NewHashingEmbedder(256)
		}
	}

	router := intent.NewRouter(builtinRuleRoutes(), builtinToolDescriptors(), routerCache, routerHITL, routerEmbedder, intent.Config{
		CacheTTL:      cacheTTL,
		MinConfidence: cfg.IntentRouting.MinConfidence,
		MinGap:        cfg.IntentRouting.MinGap,
		ShadowMode:    cfg.IntentRouting.ShadowMode,
	}).WithCandidateLog(candidateLog)

	orchestrator := service.NewOrchestrator(ledger, router, policyEngine, approvals, executor, registry, providerClient, service.Config{
		ApprovalsEnforced: cfg.Approvals.Enforced,
		ApprovalTTL:       time.Duration(cfg.Approvals.TTLSeconds) * time.Second,
	})

	authStore := memory.NewAuthStore()
	if err := seedAuthFromConfig(cfg, authStore); err != nil {
		return fmt.Errorf("failed to seed auth: %w", err)
	}
	apiKeyService := auth.NewAPIKeyService(authStore)

	rateLimiter := memory.NewRateLimiter()
	rateLimiter.StartCleanup(ctx)
	defer rateLimiter.Stop()

	metricsRegistry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(metricsRegistry)
	healthChecker := httpapi.NewHealthChecker(db.DB, providerClient, metricsRegistry)

	if cfg.DevMode {
		providers, err := telemetry.NewProviders(ctx, "aegis-core", os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to start telemetry providers: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Warn("failed to shut down telemetry providers", "error", err)
			}
		}()
	}

	server := httpapi.New(httpapi.Config{
		Addr:            cfg.Server.HTTPAddr,
		RequireAuth:     !cfg.DevMode,
		MaxRequestBytes: cfg.Transport.MaxRequestBytes,
		RateLimitPerMin: cfg.Transport.RateLimitPerMin,
	}, httpapi.Deps{
		Orchestrator: orchestrator,
		Ledger:       ledger,
		APIKeys:      apiKeyService,
		RateLimiter:  rateLimiter,
		Metrics:      metrics,
		Registry:     metricsRegistry,
		Health:       healthChecker,
		Logger:       logger.With("component", "httpapi"),
	})

	if policyLoader != nil {
		go policyLoader.Watch(ctx, 5*time.Second, func(policyHash string) {
			logger.Info("policy document reloaded", "policy_hash", policyHash)
			if routerCache != nil {
				if err := routerCache.Flush(ctx, policyHash); err != nil {
					logger.Warn("failed to flush intent cache after policy reload", "error", err)
				}
			}
		})
	}

	printBanner(Version, server.Addr(), cfg.DevMode, len(registry.List()))

	return server.Start(ctx)
}

// seedAuthFromConfig loads the file-based identities and API keys from
// configuration into the in-memory auth store.
func seedAuthFromConfig(cfg *config.OSSConfig, authStore *memory.AuthStore) error {
	for _, identityCfg := range cfg.Auth.Identities {
		roles := make([]auth.Role, len(identityCfg.Roles))
		for i, role := range identityCfg.Roles {
			roles[i] = auth.Role(role)
		}
		authStore.AddIdentity(&auth.Identity{
			ID:    identityCfg.ID,
			Name:  identityCfg.Name,
			Roles: roles,
		})
	}

	for _, keyCfg := range cfg.Auth.APIKeys {
		hash := strings.TrimPrefix(keyCfg.KeyHash, "sha256:")
		authStore.AddKey(&auth.APIKey{
			Key:        hash,
			IdentityID: keyCfg.IdentityID,
			CreatedAt:  time.Now(),
		})
	}

	return nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr with version,
// listen address, mode, and the number of registered tools.
func printBanner(version, httpAddr string, devMode bool, toolCount int) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	url := fmt.Sprintf("http://%s", httpAddr)
	if strings.HasPrefix(httpAddr, ":") {
		url = fmt.Sprintf("http://localhost%s", httpAddr)
	}

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset + dim + " (permissive auth defaults)" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s Aegis Core %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Listening:", url)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %d registered\n", "Tools:", toolCount)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}

// pidFilePath returns the standard location for the Aegis PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".aegis", "server.pid")
	}
	return filepath.Join(os.TempDir(), "aegis-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
