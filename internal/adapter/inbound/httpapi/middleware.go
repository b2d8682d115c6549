package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/ctxkey"
	"github.com/aegiscore/aegis/internal/domain/auth"
	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/ratelimit"
)

// requestIDMiddleware extracts or generates a request ID and enriches the
// logger so every log line for a request carries its ID.
func requestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			enriched := logger.With("request_id", requestID)
			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, requestID)
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, enriched)
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggerFromContext retrieves the enriched logger, falling back to the
// process default when none was attached.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// dnsRebindingProtection validates the Origin header against an allowlist,
// blocking cross-origin browser requests to a control plane that is
// otherwise assumed to be localhost-only.
func dnsRebindingProtection(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[origin]; !ok {
				http.Error(w, "forbidden: origin not allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// realIPMiddleware extracts the client's real IP for rate limiting,
// trusting only the first hop of X-Forwarded-For.
func realIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), realIPKey{}, extractRealIP(r))))
	})
}

type realIPKey struct{}

func realIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(realIPKey{}).(string)
	return ip
}

func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if parts := strings.Split(xff, ","); len(parts) > 0 {
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// bearerAuthMiddleware validates the Authorization: Bearer header against
// keys, storing the resolved identity in context. Returns 401 when
// enforcement is required and validation fails.
func bearerAuthMiddleware(keys *auth.APIKeyService, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			rawKey, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || rawKey == "" {
				if required {
					writeError(r.Context(), w, unauthorized("missing bearer token"), "")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			identity, err := keys.Validate(r.Context(), rawKey)
			if err != nil {
				if required {
					writeError(r.Context(), w, unauthorized("invalid bearer token"), "")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ctxkey.IdentityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromContext(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(ctxkey.IdentityKey{}).(*auth.Identity)
	return identity
}

// disclosureMiddleware sets the AI-generation disclosure header on every
// response.
func disclosureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-AI-Generated", "true")
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware enforces a requests-per-minute cap per client IP
// using the GCRA limiter, keyed by FormatKey so it shares the key
// namespace with any other rate-limited surface.
func rateLimitMiddleware(limiter ratelimit.RateLimiter, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || perMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ip := realIPFromContext(r.Context())
			if ip == "" {
				ip = extractRealIP(r)
			}
			key := ratelimit.FormatKey(ratelimit.KeyTypeIP, ip)
			result, err := limiter.Allow(r.Context(), key, ratelimit.RateLimitConfig{
				Rate:   perMinute,
				Period: time.Minute,
			})
			if err == nil && !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrRateLimited, fmt.Errorf("rate limit exceeded for %s", ip)), "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxBodyMiddleware rejects a request whose declared Content-Length exceeds
// maxBytes with request_too_large before any handler work occurs. A body
// without a declared length is cut off at maxBytes, which the handler's
// JSON decode then reports as a malformed request.
func maxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				if r.ContentLength > maxBytes {
					writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrRequestTooLarge, fmt.Errorf("request body of %d bytes exceeds %d", r.ContentLength, maxBytes)), "")
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
