package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/intent"
)

// MemoryCandidateLog persists the semantic router's top-k candidate
// scores for HITL evidence replay.
type MemoryCandidateLog struct {
	db *DB
}

// NewMemoryCandidateLog builds a MemoryCandidateLog over db.
func NewMemoryCandidateLog(db *DB) *MemoryCandidateLog {
	return &MemoryCandidateLog{db: db}
}

// Record stores one decision's scored candidates.
func (l *MemoryCandidateLog) Record(ctx context.Context, decisionID uuid.UUID, candidates []intent.Candidate) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, c := range candidates {
		if _, err := l.db.ExecContext(ctx,
			`INSERT INTO memory_candidates (decision_id, tool, confidence, created_at) VALUES (?, ?, ?, ?)`,
			decisionID.String(), c.Tool, c.Confidence, now); err != nil {
			return coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("record memory candidates: %w", err))
		}
	}
	return nil
}
