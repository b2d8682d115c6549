package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/intent"
)

// HITLQueue implements intent.HITLQueue over table hitl_queue.
type HITLQueue struct {
	db *DB
}

// NewHITLQueue builds a HITLQueue over db.
func NewHITLQueue(db *DB) *HITLQueue {
	return &HITLQueue{db: db}
}

func (q *HITLQueue) Enqueue(ctx context.Context, req intent.HITLRequest) error {
	candidatesJSON, err := json.Marshal(req.Candidates)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("hitl enqueue: encode candidates: %w", err))
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO hitl_queue (id, input, policy_hash, candidates, guard_reason, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID.String(), req.Input, req.PolicyHash, string(candidatesJSON), req.GuardReason,
		string(req.State), req.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("hitl enqueue: %w", err))
	}
	return nil
}

func (q *HITLQueue) Get(ctx context.Context, id string) (intent.HITLRequest, bool, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, input, policy_hash, candidates, guard_reason, state, created_at FROM hitl_queue WHERE id = ?`, id)

	var (
		idStr, input, policyHash, candidatesJSON, guardReason, state, createdAt string
	)
	switch err := row.Scan(&idStr, &input, &policyHash, &candidatesJSON, &guardReason, &state, &createdAt); err {
	case nil:
	case sql.ErrNoRows:
		return intent.HITLRequest{}, false, nil
	default:
		return intent.HITLRequest{}, false, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("hitl get: %w", err))
	}

	var candidates []intent.Candidate
	if err := json.Unmarshal([]byte(candidatesJSON), &candidates); err != nil {
		return intent.HITLRequest{}, false, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("hitl get: decode candidates: %w", err))
	}
	parsedID, _ := uuid.Parse(idStr)
	created, _ := time.Parse(time.RFC3339Nano, createdAt)

	return intent.HITLRequest{
		ID: parsedID, Input: input, PolicyHash: policyHash, Candidates: candidates,
		GuardReason: guardReason, State: intent.HITLState(state), CreatedAt: created,
	}, true, nil
}

func (q *HITLQueue) Resolve(ctx context.Context, id string, state intent.HITLState) error {
	result, err := q.db.ExecContext(ctx, `UPDATE hitl_queue SET state = ? WHERE id = ?`, string(state), id)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("hitl resolve: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return coreerr.Wrap(coreerr.ErrTraceBackend, err)
	}
	if affected == 0 {
		return coreerr.Wrap(coreerr.ErrNoMatch, fmt.Errorf("hitl request %q not found", id))
	}
	return nil
}
