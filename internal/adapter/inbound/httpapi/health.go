package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegiscore/aegis/internal/adapter/outbound/telemetry"
	"github.com/aegiscore/aegis/internal/domain/provider"
)

// healthResponse is the JSON body for /health and /ready.
type healthResponse struct {
	Status  string             `json:"status"`
	Checks  map[string]string  `json:"checks"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// HealthChecker verifies the control plane's dependencies for /ready.
// Pass nil for any component that isn't configured; the check degrades to
// "not configured" rather than failing readiness.
type HealthChecker struct {
	db       *sql.DB
	provider *provider.Client
	registry *prometheus.Registry
}

// NewHealthChecker builds a HealthChecker over the ledger's database
// handle, the provider client's circuit breaker, and the Prometheus
// registry metrics are gathered from for /ready's summary.
func NewHealthChecker(db *sql.DB, client *provider.Client, registry *prometheus.Registry) *HealthChecker {
	return &HealthChecker{db: db, provider: client, registry: registry}
}

// handleHealth is the liveness endpoint: always 200 once the process is
// serving requests, no dependency checks.
func (h *HealthChecker) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Checks: map[string]string{"goroutines": fmt.Sprintf("%d", runtime.NumGoroutine())},
	})
}

// handleReady is the readiness endpoint: pings the trace/approval
// database and reports the provider circuit state.
func (h *HealthChecker) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = "unreachable: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	if h.provider != nil {
		state := h.provider.Breaker().State()
		checks["provider_circuit"] = string(state)
		if state == provider.CircuitOpen {
			// Degraded, not unready: the control plane still serves tool
			// calls and trust endpoints with the provider unavailable.
			checks["provider_circuit"] = checks["provider_circuit"] + " (degraded)"
		}
	} else {
		checks["provider_circuit"] = "not configured"
	}

	var snapshot map[string]float64
	if h.registry != nil {
		if s, err := telemetry.Snapshot(h.registry); err == nil {
			snapshot = s
		}
	}

	status := "ready"
	code := http.StatusOK
	if !healthy {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Checks: checks, Metrics: snapshot})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
