// Package telemetry wires the control plane's two observability
// backends: Prometheus counters/histograms/gauges scraped over
// /metrics, and OpenTelemetry tracing/metrics providers exporting to
// stdout in development.
package telemetry

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Metrics holds the Prometheus instrumentation surface for the control
// plane, one metric per C1-C6 component that the inbound HTTP adapter
// and service layer record against.
type Metrics struct {
	RequestsTotal           *prometheus.CounterVec
	RequestDuration         *prometheus.HistogramVec
	PolicyDecisions         *prometheus.CounterVec
	IntentTierHits          *prometheus.CounterVec
	ApprovalsIssued         prometheus.Counter
	ApprovalsConsumed       *prometheus.CounterVec
	ToolExecutions          *prometheus.CounterVec
	ProviderBreakerState    *prometheus.GaugeVec
	TraceChainVerifications *prometheus.CounterVec
}

// NewMetrics registers every control-plane metric against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "requests_total",
				Help:      "Total number of control-plane requests processed",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aegis",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		PolicyDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "policy_decisions_total",
				Help:      "Total policy engine decisions",
			},
			[]string{"decision"}, // allow/deny/require_approval
		),
		IntentTierHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "intent_tier_hits_total",
				Help:      "Total intent routing decisions per tier",
			},
			[]string{"tier"}, // rule/cache/semantic/hitl
		),
		ApprovalsIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "approvals_issued_total",
				Help:      "Total approval tokens issued",
			},
		),
		ApprovalsConsumed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "approvals_consumed_total",
				Help:      "Total approval token consumption attempts",
			},
			[]string{"result"}, // approved/expired/already_consumed/mismatch
		),
		ToolExecutions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "tool_executions_total",
				Help:      "Total tool executions",
			},
			[]string{"tool", "status"},
		),
		ProviderBreakerState: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "aegis",
				Name:      "provider_circuit_breaker_state",
				Help:      "Circuit breaker state per provider (0=closed, 1=half_open, 2=open)",
			},
			[]string{"provider"},
		),
		TraceChainVerifications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aegis",
				Name:      "trace_chain_verifications_total",
				Help:      "Total trace hash-chain verification attempts",
			},
			[]string{"result"}, // ok/tampered
		),
	}
}

// Snapshot gathers every registered family from reg and sums its samples
// into a flat name->value map, giving callers like the readiness
// endpoint a cheap summary without standing up a separate scraper.
// Histogram and summary families, which have no single scalar value,
// are skipped.
func Snapshot(reg *prometheus.Registry) (map[string]float64, error) {
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var total float64
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		case dto.MetricType_GAUGE:
			for _, m := range mf.GetMetric() {
				total += m.GetGauge().GetValue()
			}
		default:
			continue
		}
		out[mf.GetName()] = total
	}
	return out, nil
}

// Providers bundles the OTel trace/meter providers so main can defer
// their shutdown together.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// Shutdown flushes and closes both providers, collecting errors from
// either side rather than stopping at the first.
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewProviders builds stdout-exporting trace and meter providers for
// serviceName, and installs them as the process-global OTel providers.
// A stdout exporter keeps the control plane's telemetry self-contained
// (no collector dependency to stand up for the gateway to run), writing
// spans and metric snapshots to w.
func NewProviders(ctx context.Context, serviceName string, w io.Writer) (*Providers, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Providers{TracerProvider: tp, MeterProvider: mp}, nil
}
