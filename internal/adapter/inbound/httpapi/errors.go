package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aegiscore/aegis/internal/domain/approval"
	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/trace"
)

// unauthorized builds the boundary's ErrUnauthorized with reason attached.
func unauthorized(reason string) error {
	return coreerr.Wrap(coreerr.ErrUnauthorized, fmt.Errorf("%s", reason))
}

// statusForError maps a coreerr.Error's Kind/Code to the HTTP status the
// boundary returns. Routing-kind errors that aren't a direct policy/approval
// rejection still surface as 422 (unprocessable) rather than 500, since they
// reflect an ambiguous or unmatched request rather than a backend failure.
func statusForError(err error) int {
	var ce *coreerr.Error
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError
	}
	switch ce.Kind {
	case coreerr.KindRequest:
		switch {
		case coreerr.Is(err, coreerr.ErrUnauthorized):
			return http.StatusUnauthorized
		case coreerr.Is(err, coreerr.ErrRateLimited):
			return http.StatusTooManyRequests
		case coreerr.Is(err, coreerr.ErrRequestTooLarge):
			return http.StatusRequestEntityTooLarge
		case coreerr.Is(err, coreerr.ErrToolNotFound):
			return http.StatusNotFound
		default:
			return http.StatusBadRequest
		}
	case coreerr.KindRouting:
		return http.StatusUnprocessableEntity
	case coreerr.KindExecution:
		return http.StatusUnprocessableEntity
	case coreerr.KindProvider:
		if coreerr.Is(err, coreerr.ErrCircuitOpen) || coreerr.Is(err, coreerr.ErrTimeout) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default: // KindSystem
		return http.StatusInternalServerError
	}
}

// approvalReason extracts the structured Rejection reason from err, if any.
func approvalReason(err error) string {
	var rerr *approval.RejectionError
	if errors.As(err, &rerr) {
		return string(rerr.Reason)
	}
	return ""
}

// writeError scrubs err's message, writes the sanitized generic error
// envelope, and sets the mapped HTTP status. Unmapped (internal_error)
// failures are logged server-side with the full, unscrubbed message before
// the sanitized body is sent, since those are the ones worth investigating.
func writeError(ctx context.Context, w http.ResponseWriter, err error, tool string) {
	var ce *coreerr.Error
	code := "internal_error"
	if errors.As(err, &ce) {
		code = ce.Code
	}
	scrubbed, _ := trace.ScrubSecrets(err.Error(), 500)
	body := errorResponse{
		Status:         "error",
		Tool:           tool,
		Error:          code,
		ApprovalReason: approvalReason(err),
	}
	if code == "internal_error" {
		body.Error = scrubbed
		loggerFromContext(ctx).Error("unhandled error crossing http boundary", "tool", tool, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForError(err))
	_ = json.NewEncoder(w).Encode(body)
}
