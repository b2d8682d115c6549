// Package providerhttp is the HTTP provider.Transport implementation:
// a JSON chat-completions call wrapped in the same shape as the
// teacher's resiliency.EnhancedClient (trace header injection, classified
// errors), with retry/backoff/circuit-breaking left to provider.Client so
// this package only does the single HTTP round trip.
package providerhttp

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/provider"
)

var tracer = otel.Tracer("aegis/provider")

// Transport is the HTTP-backed provider.Transport: one request, one
// response, classified errors. It implements provider.Transport.
type Transport struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// New builds a Transport calling endpoint with apiKey as a bearer token.
func New(endpoint, apiKey string, timeout time.Duration) *Transport {
	return &Transport{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

var _ provider.Transport = (*Transport)(nil)

type chatRequest struct {
	Model    string            `json:"model"`
	Messages []provider.Message `json:"messages"`
}

type chatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// Send issues one HTTP call; errors are classified and wrapped in a
// coreerr sentinel so provider.Client's retry/circuit-breaker logic
// never has to inspect transport-specific error types.
func (t *Transport) Send(ctx context.Context, req provider.Request) (provider.Response, error) {
	ctx, span := tracer.Start(ctx, "provider.send",
		trace.WithAttributes(attribute.String("provider.id", req.ProviderID), attribute.String("model.id", req.ModelID)))
	defer span.End()

	body, err := json.Marshal(chatRequest{Model: req.ModelID, Messages: req.Messages})
	if err != nil {
		span.SetStatus(codes.Error, "encode request")
		return provider.Response{}, coreerr.Wrap(coreerr.ErrProtocol, fmt.Errorf("providerhttp: encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return provider.Response{}, coreerr.Wrap(coreerr.ErrProtocol, fmt.Errorf("providerhttp: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	httpReq.Header.Set("traceparent", traceparent())

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return provider.Response{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest {
		span.SetStatus(codes.Error, "model rejected")
		return provider.Response{}, coreerr.Wrap(coreerr.ErrModelRejected, fmt.Errorf("providerhttp: provider rejected the request: status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, "upstream error")
		return provider.Response{}, coreerr.Wrap(coreerr.ErrNetwork, fmt.Errorf("providerhttp: upstream returned status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, "protocol error")
		return provider.Response{}, coreerr.Wrap(coreerr.ErrProtocol, fmt.Errorf("providerhttp: unexpected status %d", resp.StatusCode))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		span.SetStatus(codes.Error, "decode response")
		return provider.Response{}, coreerr.Wrap(coreerr.ErrProtocol, fmt.Errorf("providerhttp: decode response: %w", err))
	}

	return provider.Response{Content: decoded.Content, Model: decoded.Model, Provider: req.ProviderID}, nil
}

// classifyTransportError maps a net/http transport-level failure to the
// timeout/network sentinels the circuit breaker watches.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return coreerr.Wrap(coreerr.ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return coreerr.Wrap(coreerr.ErrTimeout, err)
	}
	return coreerr.Wrap(coreerr.ErrNetwork, err)
}

func traceparent() string {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return fmt.Sprintf("00-%032x-0000000000000001-01", time.Now().UnixNano())
	}
	return fmt.Sprintf("00-%s-0000000000000001-01", hex.EncodeToString(id[:]))
}
