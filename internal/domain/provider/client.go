package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
)

// Transport performs one outbound attempt. Implementations classify their
// own failures by returning an error wrapping one of coreerr's
// provider-kind sentinels (ErrTimeout, ErrNetwork, ErrProtocol,
// ErrModelRejected); the Client only inspects the sentinel to decide
// whether to retry and whether it counts against the circuit breaker.
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Config tunes Client behavior: network gating, retries, circuit
// breaking, and output capping.
type Config struct {
	NetworkEnabled  bool
	Timeout         time.Duration
	RetryCount      int
	RetryBackoff    time.Duration
	MaxOutputChars  int
	ModelAllowlist  []string // empty means unrestricted
	CircuitMaxFails int
	CircuitReset    time.Duration
}

// Client is the C5 provider client: gate → retry loop → circuit breaker
// → output cap.
type Client struct {
	transport Transport
	breaker   *CircuitBreaker
	cfg       Config

	now func() time.Time
}

// NewClient builds a Client. now defaults to time.Now; tests may override
// it via WithClock.
func NewClient(transport Transport, cfg Config) *Client {
	if cfg.CircuitMaxFails <= 0 {
		cfg.CircuitMaxFails = 5
	}
	if cfg.CircuitReset <= 0 {
		cfg.CircuitReset = 30 * time.Second
	}
	return &Client{
		transport: transport,
		breaker:   NewCircuitBreaker(cfg.CircuitMaxFails, cfg.CircuitReset),
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock overrides the Client's time source, for deterministic tests
// of the circuit breaker's reset window.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Breaker exposes the circuit breaker for inspection (metrics, health).
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// Generate drives the gate → retry loop → circuit breaker → output cap
// pipeline for a single provider call.
func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	if !c.cfg.NetworkEnabled {
		return Response{}, coreerr.Wrap(coreerr.ErrNetworkDisabled, fmt.Errorf("outbound provider calls are disabled"))
	}
	if !c.modelAllowed(req.ModelID) {
		return Response{}, coreerr.Wrap(coreerr.ErrModelRejected, fmt.Errorf("model %q is not in the configured allowlist", req.ModelID))
	}

	attempts := 1 + c.cfg.RetryCount
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		now := c.now()
		if !c.breaker.Allow(now) {
			return Response{}, coreerr.Wrap(coreerr.ErrCircuitOpen, fmt.Errorf("circuit open for provider %q", req.ProviderID))
		}

		start := time.Now()
		attemptCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		}
		resp, err := c.transport.Send(attemptCtx, req)
		if cancel != nil {
			cancel()
		}
		latency := time.Since(start)

		if err == nil {
			c.breaker.RecordSuccess()
			resp.Attempts = attempt
			resp.LatencyMS = latency.Milliseconds()
			resp.Content, resp.Truncated = capContent(resp.Content, c.cfg.MaxOutputChars)
			return resp, nil
		}

		lastErr = err
		if countsAgainstBreaker(err) {
			c.breaker.RecordFailure(c.now())
		}
		if !retryable(err) || attempt == attempts {
			break
		}
		if c.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return Response{}, coreerr.Wrap(coreerr.ErrCancelled, ctx.Err())
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
	}

	return Response{}, lastErr
}

func (c *Client) modelAllowed(modelID string) bool {
	if len(c.cfg.ModelAllowlist) == 0 {
		return true
	}
	for _, m := range c.cfg.ModelAllowlist {
		if m == modelID {
			return true
		}
	}
	return false
}

// countsAgainstBreaker reports whether err should increment the circuit
// breaker's failure counter: only timeout and network failures do.
func countsAgainstBreaker(err error) bool {
	return coreerr.Is(err, coreerr.ErrTimeout) || coreerr.Is(err, coreerr.ErrNetwork)
}

// retryable reports whether the Client's attempt loop should try again:
// the same timeout/network class, but not protocol/model_rejected.
func retryable(err error) bool {
	return countsAgainstBreaker(err)
}

func capContent(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}
	return string(runes[:max]), true
}
