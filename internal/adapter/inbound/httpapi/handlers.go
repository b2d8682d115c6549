package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/auth"
	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/toolspec"
	"github.com/aegiscore/aegis/internal/domain/trace"
	"github.com/aegiscore/aegis/internal/service"
)

var errMissingTraceID = errors.New("trace_id query parameter is required")

// decodeJSON reads and decodes the request body, rejecting unknown fields
// so malformed callers fail fast instead of silently dropping typos.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func toolResultWire(result *toolspec.Result) (string, interface{}) {
	if result == nil {
		return "", nil
	}
	if result.Status == toolspec.StatusError {
		return "error", result.Error
	}
	return "ok", result.Value
}

func writeChatResponse(w http.ResponseWriter, status int, resp service.ChatResponse) {
	w.Header().Set("X-Trace-ID", resp.TraceID.String())
	body := chatResponse{
		TraceID:    resp.TraceID.String(),
		Tool:       resp.Tool,
		PolicyHash: resp.PolicyHash,
	}
	switch {
	case resp.ToolResult != nil:
		body.Status, body.Result = toolResultWire(resp.ToolResult)
		body.OutputScrubbed = resp.ToolResult.Scrubbed
	case resp.Provider != nil:
		body.Status = "ok"
		body.Provider = &providerWire{
			Content:   resp.Provider.Content,
			Model:     resp.Provider.Model,
			Provider:  resp.Provider.Provider,
			LatencyMS: resp.Provider.LatencyMS,
			Attempts:  resp.Provider.Attempts,
			Truncated: resp.Provider.Truncated,
		}
	default:
		body.Status = "ok"
	}
	writeJSON(w, status, body)
}

// handleChat implements POST /v1/chat/completions.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrMalformed, err), "")
		return
	}
	identity := identityFromContext(r.Context())
	resp, err := s.orchestrator.HandleChat(r.Context(), service.ChatRequest{
		SessionID:    req.SessionID,
		IdentityID:   identityID(identity),
		IdentityName: identityName(identity),
		Input:        req.Input,
		ApprovalID:   req.ApprovalID,
	})
	if resp.TraceID != uuid.Nil {
		w.Header().Set("X-Trace-ID", resp.TraceID.String())
	}
	if err != nil {
		writeError(r.Context(), w, err, resp.Tool)
		return
	}
	writeChatResponse(w, http.StatusOK, resp)
}

// handleApprove implements POST /v1/tools/approve.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrMalformed, err), "")
		return
	}
	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil {
			writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrMalformed, err), req.Name)
			return
		}
		ttl = parsed
	}
	approved, err := s.orchestrator.HandleApprove(r.Context(), service.ApproveRequest{
		ToolName: req.Name,
		Args:     req.Args,
		TTL:      ttl,
	})
	if err != nil {
		writeError(r.Context(), w, err, req.Name)
		return
	}
	writeJSON(w, http.StatusOK, approveResponse{
		ApprovalID: approved.ID.String(),
		Tool:       approved.ToolName,
		ArgsHash:   approved.ArgsHash,
		CreatedAt:  approved.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:  approved.ExpiresAt.UTC().Format(time.RFC3339),
		Status:     string(approved.Status),
	})
}

// handleExecute implements POST /v1/tools/execute.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrMalformed, err), "")
		return
	}
	identity := identityFromContext(r.Context())
	resp, err := s.orchestrator.HandleExecute(r.Context(), service.ExecuteRequest{
		SessionID:    req.SessionID,
		IdentityID:   identityID(identity),
		IdentityName: identityName(identity),
		ToolName:     req.Name,
		Args:         req.Args,
		ApprovalID:   req.ApprovalID,
	})
	if resp.TraceID != uuid.Nil {
		w.Header().Set("X-Trace-ID", resp.TraceID.String())
	}
	if err != nil {
		writeError(r.Context(), w, err, req.Name)
		return
	}
	writeChatResponse(w, http.StatusOK, resp)
}

// handleTrustEvents implements GET /v1/trust/events: the steps of the one
// trace named by the trace_id query parameter. The ledger is keyed by
// trace, so there is no cross-trace event feed; omitting trace_id is a
// malformed request.
func (s *Server) handleTrustEvents(w http.ResponseWriter, r *http.Request) {
	traceIDParam := r.URL.Query().Get("trace_id")
	if traceIDParam == "" {
		writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrMalformed, errMissingTraceID), "")
		return
	}
	s.writeTraceSteps(w, r, traceIDParam)
}

// handleTrustTrace implements GET /v1/trust/trace/{id}.
func (s *Server) handleTrustTrace(w http.ResponseWriter, r *http.Request) {
	s.writeTraceSteps(w, r, r.PathValue("id"))
}

func (s *Server) writeTraceSteps(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrMalformed, err), "")
		return
	}
	steps, err := s.ledger.ReadSteps(r.Context(), id, trace.RedactionProfile{})
	if err != nil {
		writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrTraceBackend, err), "")
		return
	}
	wire := traceWire{TraceID: id.String(), Steps: make([]traceStepWire, 0, len(steps))}
	for _, step := range steps {
		var payload interface{}
		_ = json.Unmarshal(step.SanitizedPayload, &payload)
		wire.Steps = append(wire.Steps, traceStepWire{
			Position:  step.Position,
			StepType:  string(step.StepType),
			CreatedAt: step.CreatedAt,
			Payload:   payload,
			EventHash: step.EventHash,
			ChainHash: step.ChainHash,
		})
	}
	writeJSON(w, http.StatusOK, wire)
}

// handleTrustVerify implements GET /v1/trust/verify/{id}, recomputing the
// chain hash and optionally comparing it against an ?expected= query param.
func (s *Server) handleTrustVerify(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrMalformed, err), "")
		return
	}
	expected := r.URL.Query().Get("expected")
	ok, computed, err := s.ledger.VerifyChain(r.Context(), id, expected)
	if err != nil {
		writeError(r.Context(), w, coreerr.Wrap(coreerr.ErrTraceBackend, err), "")
		return
	}
	resp := verifyResponse{TraceID: id.String(), ChainHash: computed}
	if expected != "" {
		resp.OK = &ok
	}
	writeJSON(w, http.StatusOK, resp)
}

func identityID(identity *auth.Identity) string {
	if identity == nil {
		return ""
	}
	return identity.ID
}

func identityName(identity *auth.Identity) string {
	if identity == nil {
		return ""
	}
	return identity.Name
}
