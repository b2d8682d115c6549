package httpapi

import (
	"net/http"
	"time"

	"github.com/aegiscore/aegis/internal/adapter/outbound/telemetry"
)

// metricsMiddleware records request duration and outcome against the
// injected Metrics recorder. metrics may be nil, in which case this is a
// no-op passthrough.
func metricsMiddleware(metrics *telemetry.Metrics, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			metrics.RequestsTotal.WithLabelValues(endpoint, statusLabel(rec.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
