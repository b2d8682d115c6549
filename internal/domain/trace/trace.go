// Package trace contains the domain types and chain-hashing logic for the
// tamper-evident trace ledger (C1). The ledger is append-only: every step
// folds a SHA-256 event hash into the previous step's chain hash, so
// mutating any stored payload is detectable by recomputing the chain.
package trace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/canon"
)

// StepType enumerates the kinds of steps the orchestrator appends.
type StepType string

const (
	StepRequestReceived   StepType = "request_received"
	StepIntentRouter      StepType = "intent_router"
	StepIntentRouterShadow StepType = "intent_router_shadow"
	StepPolicyDecision    StepType = "policy_decision"
	StepApprovalCheck     StepType = "approval_check"
	StepToolExecute       StepType = "tool_execute"
	StepProviderCall      StepType = "provider_call"
	StepResponseSent      StepType = "response_sent"
	StepCancelled         StepType = "cancelled"
)

// Status is the terminal state of a Trace.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// zeroChain is the prior-chain value for a trace's first step.
var zeroChain = make([]byte, sha256.Size)

// Trace is an ordered, immutable sequence of steps recording one
// request's decisions. Immutable once closed.
type Trace struct {
	ID        uuid.UUID
	ParentID  *uuid.UUID
	CreatedAt time.Time
	Status    Status
}

// Step is a single, never-mutated entry in a Trace, ordered by Position.
type Step struct {
	TraceID         uuid.UUID
	Position        int64
	StepType        StepType
	CreatedAt       time.Time
	SanitizedPayload json.RawMessage
	EventHash       string // hex-encoded SHA-256
	ChainHash       string // hex-encoded SHA-256
}

// NewTrace creates a new open Trace with a fresh opaque identifier.
func NewTrace(parent *uuid.UUID) Trace {
	return Trace{
		ID:        uuid.New(),
		ParentID:  parent,
		CreatedAt: time.Now().UTC(),
		Status:    StatusOpen,
	}
}

// EventHash computes SHA256(step_type || created_at_iso8601 ||
// canonical_json(sanitized_payload)) per the ledger's hashing contract.
func EventHash(stepType StepType, createdAt time.Time, payload interface{}) (string, error) {
	canonPayload, err := canonicalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("trace: canonicalize payload: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(stepType))
	h.Write([]byte(createdAt.UTC().Format(time.RFC3339Nano)))
	h.Write(canonPayload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalPayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		decoded, err := canon.DecodeNumberPreserving(p)
		if err != nil {
			return nil, err
		}
		return canon.Marshal(decoded)
	case nil:
		return canon.Marshal(map[string]interface{}{})
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		decoded, err := canon.DecodeNumberPreserving(raw)
		if err != nil {
			return nil, err
		}
		return canon.Marshal(decoded)
	}
}

// ChainHash folds eventHash into prevChainHash: C_0 = 0^32,
// C_i = SHA256(C_{i-1} || event_hash_i). prevChainHashHex may be empty to
// mean the all-zero genesis chain.
func ChainHash(prevChainHashHex string, eventHashHex string) (string, error) {
	prev := zeroChain
	if prevChainHashHex != "" {
		decoded, err := hex.DecodeString(prevChainHashHex)
		if err != nil {
			return "", fmt.Errorf("trace: decode prev chain hash: %w", err)
		}
		prev = decoded
	}
	eventBytes, err := hex.DecodeString(eventHashHex)
	if err != nil {
		return "", fmt.Errorf("trace: decode event hash: %w", err)
	}
	h := sha256.New()
	h.Write(prev)
	h.Write(eventBytes)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// BuildStep computes event_hash and chain_hash for a new step given the
// previous step's chain hash (empty string for the first step in a trace).
func BuildStep(traceID uuid.UUID, position int64, stepType StepType, payload interface{}, prevChainHash string) (Step, error) {
	createdAt := time.Now().UTC()
	sanitized, err := canonicalPayload(payload)
	if err != nil {
		return Step{}, err
	}
	eh, err := EventHash(stepType, createdAt, json.RawMessage(sanitized))
	if err != nil {
		return Step{}, err
	}
	ch, err := ChainHash(prevChainHash, eh)
	if err != nil {
		return Step{}, err
	}
	return Step{
		TraceID:          traceID,
		Position:         position,
		StepType:         stepType,
		CreatedAt:        createdAt,
		SanitizedPayload: json.RawMessage(sanitized),
		EventHash:        eh,
		ChainHash:        ch,
	}, nil
}

// VerifyChain recomputes event_hash from each step's step_type, created_at,
// and sanitized_payload — never trusting the stored event_hash column — so
// a payload tampered directly in the backing store is caught here even if
// its stored event_hash/chain_hash were left untouched. It then folds the
// recomputed hashes into a chain and reports whether it matches the last
// step's stored chain_hash (and, if expected is non-empty, whether it
// matches expected too).
func VerifyChain(steps []Step, expected string) (ok bool, computed string, err error) {
	prev := ""
	for _, s := range steps {
		eh, eerr := EventHash(s.StepType, s.CreatedAt, json.RawMessage(s.SanitizedPayload))
		if eerr != nil {
			return false, "", eerr
		}
		ch, cerr := ChainHash(prev, eh)
		if cerr != nil {
			return false, "", cerr
		}
		prev = ch
	}
	computed = prev
	if len(steps) == 0 {
		computed = hex.EncodeToString(zeroChain)
	}
	storedOK := true
	if len(steps) > 0 {
		storedOK = computed == steps[len(steps)-1].ChainHash
	}
	if expected == "" {
		return storedOK, computed, nil
	}
	return storedOK && computed == expected, computed, nil
}

// Ledger is the C1 contract: open a trace, append steps, read them back
// (redacted), and verify the chain.
type Ledger interface {
	OpenTrace(ctx context.Context, parent *uuid.UUID) (Trace, error)
	AppendStep(ctx context.Context, traceID uuid.UUID, stepType StepType, payload interface{}) (Step, error)
	CloseTrace(ctx context.Context, traceID uuid.UUID) error
	ReadSteps(ctx context.Context, traceID uuid.UUID, profile RedactionProfile) ([]Step, error)
	VerifyChain(ctx context.Context, traceID uuid.UUID, expected string) (bool, string, error)
}
