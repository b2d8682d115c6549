package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/trace"
)

// TraceLedger implements trace.Ledger over a *DB. Appends are serialized
// per trace via an in-process mutex (matching the read-modify-write-under-lock
// lock-then-write shape) before the single SQLite connection also
// serializes them at the storage layer; concurrent traces proceed
// independently.
type TraceLedger struct {
	db *DB

	mu      sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewTraceLedger builds a TraceLedger over db.
func NewTraceLedger(db *DB) *TraceLedger {
	return &TraceLedger{db: db, locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *TraceLedger) lockFor(traceID uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[traceID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[traceID] = m
	}
	return m
}

// OpenTrace inserts a new open Trace row.
func (l *TraceLedger) OpenTrace(ctx context.Context, parent *uuid.UUID) (trace.Trace, error) {
	t := trace.NewTrace(parent)
	var parentStr interface{}
	if parent != nil {
		parentStr = parent.String()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO traces (id, parent_id, created_at, status) VALUES (?, ?, ?, ?)`,
		t.ID.String(), parentStr, t.CreatedAt.Format(time.RFC3339Nano), string(t.Status))
	if err != nil {
		return trace.Trace{}, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("open trace: %w", err))
	}
	return t, nil
}

// AppendStep computes the next position and chained hash for traceID and
// inserts the step, holding that trace's lock for the duration.
func (l *TraceLedger) AppendStep(ctx context.Context, traceID uuid.UUID, stepType trace.StepType, payload interface{}) (trace.Step, error) {
	lock := l.lockFor(traceID)
	lock.Lock()
	defer lock.Unlock()

	var (
		maxPos     sql.NullInt64
		prevChain  sql.NullString
	)
	row := l.db.QueryRowContext(ctx,
		`SELECT position, chain_hash FROM trace_steps WHERE trace_id = ? ORDER BY position DESC LIMIT 1`,
		traceID.String())
	switch err := row.Scan(&maxPos, &prevChain); err {
	case nil:
	case sql.ErrNoRows:
	default:
		return trace.Step{}, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("append step: read tail: %w", err))
	}

	position := int64(0)
	prevChainHash := ""
	if maxPos.Valid {
		position = maxPos.Int64 + 1
		prevChainHash = prevChain.String
	}

	step, err := trace.BuildStep(traceID, position, stepType, payload, prevChainHash)
	if err != nil {
		return trace.Step{}, coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO trace_steps (trace_id, position, step_type, created_at, sanitized_payload, event_hash, chain_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		traceID.String(), step.Position, string(step.StepType), step.CreatedAt.Format(time.RFC3339Nano),
		string(step.SanitizedPayload), step.EventHash, step.ChainHash)
	if err != nil {
		return trace.Step{}, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("append step: insert: %w", err))
	}
	return step, nil
}

// CloseTrace marks a Trace closed; closing an already-closed trace is a
// no-op, matching the "immutable once closed" invariant by simply never
// allowing further AppendStep calls to matter semantically.
func (l *TraceLedger) CloseTrace(ctx context.Context, traceID uuid.UUID) error {
	_, err := l.db.ExecContext(ctx, `UPDATE traces SET status = ? WHERE id = ?`, string(trace.StatusClosed), traceID.String())
	if err != nil {
		return coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("close trace: %w", err))
	}
	return nil
}

// ReadSteps returns every step for traceID in position order, with
// profile's redaction applied to each payload.
func (l *TraceLedger) ReadSteps(ctx context.Context, traceID uuid.UUID, profile trace.RedactionProfile) ([]trace.Step, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT position, step_type, created_at, sanitized_payload, event_hash, chain_hash
		 FROM trace_steps WHERE trace_id = ? ORDER BY position ASC`, traceID.String())
	if err != nil {
		return nil, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("read steps: %w", err))
	}
	defer rows.Close()

	var steps []trace.Step
	for rows.Next() {
		var (
			s         trace.Step
			createdAt string
			payload   string
		)
		if err := rows.Scan(&s.Position, &s.StepType, &createdAt, &payload, &s.EventHash, &s.ChainHash); err != nil {
			return nil, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("read steps: scan: %w", err))
		}
		s.TraceID = traceID
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			s.CreatedAt = t
		}
		redacted, err := trace.RedactPayload(json.RawMessage(payload), profile)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("read steps: redact: %w", err))
		}
		s.SanitizedPayload = redacted
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}
	return steps, nil
}

// VerifyChain reads every step's stored step_type, created_at, and
// sanitized_payload (unredacted, since redaction must not affect the hash
// recomputation) plus its stored chain_hash, and hands them to
// trace.VerifyChain, which recomputes event_hash from those fields rather
// than trusting the stored event_hash column — so tampering the payload
// alone in the backing store is caught.
func (l *TraceLedger) VerifyChain(ctx context.Context, traceID uuid.UUID, expected string) (bool, string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT step_type, created_at, sanitized_payload, chain_hash FROM trace_steps WHERE trace_id = ? ORDER BY position ASC`, traceID.String())
	if err != nil {
		return false, "", coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("verify chain: %w", err))
	}
	defer rows.Close()

	var steps []trace.Step
	for rows.Next() {
		var (
			createdAt string
			payload   string
			s         trace.Step
		)
		if err := rows.Scan(&s.StepType, &createdAt, &payload, &s.ChainHash); err != nil {
			return false, "", coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("verify chain: scan: %w", err))
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			s.CreatedAt = t
		}
		s.SanitizedPayload = json.RawMessage(payload)
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return false, "", coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}
	return trace.VerifyChain(steps, expected)
}
