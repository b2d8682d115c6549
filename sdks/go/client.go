package aegis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the Aegis Core SDK client. It communicates with a running
// control plane's HTTP surface to route input through the intent router,
// issue approvals, execute tools directly, and inspect trace records.
type Client struct {
	serverAddr string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a new Aegis Core client.
// It reads configuration from AEGIS_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("AEGIS_SERVER_ADDR"),
		apiKey:     os.Getenv("AEGIS_API_KEY"),
		timeout:    parseDurationEnv("AEGIS_TIMEOUT", 30*time.Second),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	return c
}

// Chat sends free-text input to /v1/chat/completions, routing it through
// the intent router to a tool or the provider client. On a policy denial
// it returns *PolicyDeniedError; on a missing or mismatched approval it
// returns *ApprovalRequiredError.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/chat/completions", req, &resp); err != nil {
		return nil, classifyResponseError(err, resp)
	}
	return &resp, nil
}

// Execute calls a named tool directly at /v1/tools/execute, bypassing
// intent routing. Use this when the caller already knows which tool it
// wants rather than expressing intent as free text.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/tools/execute", req, &resp); err != nil {
		return nil, classifyResponseError(err, resp)
	}
	return &resp, nil
}

// Approve issues an approval token at /v1/tools/approve for a future
// Chat or Execute call against an unsafe tool.
func (c *Client) Approve(ctx context.Context, req ApproveRequest) (*ApproveResponse, error) {
	var resp ApproveResponse
	if err := c.doRequest(ctx, http.MethodPost, "/v1/tools/approve", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trace fetches the recorded step sequence for a trace ID from
// /v1/trust/trace/{id}.
func (c *Client) Trace(ctx context.Context, traceID string) (*TraceResponse, error) {
	var resp TraceResponse
	path := fmt.Sprintf("/v1/trust/trace/%s", traceID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyTrace recomputes a trace's chain hash via /v1/trust/verify/{id}.
// If expected is non-empty, the server also reports whether it matches.
func (c *Client) VerifyTrace(ctx context.Context, traceID, expected string) (*VerifyResponse, error) {
	var resp VerifyResponse
	path := fmt.Sprintf("/v1/trust/verify/%s", traceID)
	if expected != "" {
		path += "?expected=" + expected
	}
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// classifyResponseError turns a generic request failure into the most
// specific error type the partially-decoded response body supports.
func classifyResponseError(err error, resp ChatResponse) error {
	var aegisErr *AegisError
	if !errors.As(err, &aegisErr) {
		return err
	}
	switch aegisErr.Code {
	case "policy_denied":
		return &PolicyDeniedError{Tool: resp.Tool, Reason: resp.Error, TraceID: resp.TraceID}
	case "approval_required":
		return &ApprovalRequiredError{Tool: resp.Tool, TraceID: resp.TraceID, ApprovalReason: resp.ApprovalReason}
	default:
		return aegisErr
	}
}

// doRequest performs an HTTP request against the Aegis Core server. On a
// non-2xx response it decodes the JSON error envelope into result (best
// effort) before returning an *AegisError carrying the wire code.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	url := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &ServerUnreachableError{Cause: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		if result != nil {
			_ = json.Unmarshal(respBody, result)
		}
		code := fmt.Sprintf("http_%d", httpResp.StatusCode)
		if errResp, ok := result.(*ChatResponse); ok && errResp.Error != "" {
			code = errResp.Error
		}
		return &AegisError{Code: code, Err: fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
