package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/approval"
	"github.com/aegiscore/aegis/internal/domain/coreerr"
)

// ApprovalStore implements approval.Store over table tool_approvals. The
// consume path runs a single UPDATE ... WHERE status='pending' AND
// args_hash=? AND expires_at>? inside an explicit transaction, checking
// RowsAffected()==1 — a TOCTOU-safe single transactional section without
// row-locking tricks.
type ApprovalStore struct {
	db *DB
}

// NewApprovalStore builds an ApprovalStore over db.
func NewApprovalStore(db *DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

func (s *ApprovalStore) Issue(ctx context.Context, toolName string, args map[string]interface{}, ttl time.Duration) (approval.Approval, error) {
	argsHash, err := approval.ArgsHash(args)
	if err != nil {
		return approval.Approval{}, coreerr.Wrap(coreerr.ErrApprovalBackend, err)
	}
	if ttl <= 0 {
		ttl = approval.DefaultTTL
	}
	now := time.Now().UTC()
	a := approval.Approval{
		ID:        uuid.New(),
		ToolName:  toolName,
		ArgsHash:  argsHash,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Status:    approval.StatusPending,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_approvals (id, tool_name, args_hash, created_at, expires_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.ToolName, a.ArgsHash, a.CreatedAt.Format(time.RFC3339Nano), a.ExpiresAt.Format(time.RFC3339Nano), string(a.Status))
	if err != nil {
		return approval.Approval{}, coreerr.Wrap(coreerr.ErrApprovalBackend, fmt.Errorf("issue approval: %w", err))
	}
	return a, nil
}

func (s *ApprovalStore) Get(ctx context.Context, approvalID string) (approval.Approval, error) {
	a, found, err := s.scanByID(ctx, s.db.DB, approvalID)
	if err != nil {
		return approval.Approval{}, coreerr.Wrap(coreerr.ErrApprovalBackend, err)
	}
	if !found {
		return approval.Approval{}, coreerr.Wrap(coreerr.ErrApprovalBackend, fmt.Errorf("approval %q not found", approvalID))
	}
	return a, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *ApprovalStore) scanByID(ctx context.Context, q queryer, approvalID string) (approval.Approval, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, tool_name, args_hash, created_at, expires_at, status FROM tool_approvals WHERE id = ?`, approvalID)
	var (
		a                     approval.Approval
		id                    string
		createdAt, expiresAt  string
		status                string
	)
	switch err := row.Scan(&id, &a.ToolName, &a.ArgsHash, &createdAt, &expiresAt, &status); err {
	case nil:
	case sql.ErrNoRows:
		return approval.Approval{}, false, nil
	default:
		return approval.Approval{}, false, err
	}
	a.ID, _ = uuid.Parse(id)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
	a.Status = approval.Status(status)
	return a, true, nil
}

// ValidateAndConsume implements the consume-once, args-bound approval
// check.
func (s *ApprovalStore) ValidateAndConsume(ctx context.Context, approvalID string, toolName string, args map[string]interface{}) (approval.ConsumeResult, error) {
	argsHash, err := approval.ArgsHash(args)
	if err != nil {
		return approval.ConsumeResult{}, coreerr.Wrap(coreerr.ErrApprovalBackend, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return approval.ConsumeResult{}, coreerr.Wrap(coreerr.ErrApprovalBackend, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	a, found, err := s.scanByID(ctx, tx, approvalID)
	if err != nil {
		return approval.ConsumeResult{}, coreerr.Wrap(coreerr.ErrApprovalBackend, err)
	}
	if !found {
		return approval.ConsumeResult{Rejection: approval.RejectionUnknownApproval}, nil
	}

	now := time.Now().UTC()
	switch {
	case a.Status == approval.StatusConsumed:
		return approval.ConsumeResult{Rejection: approval.RejectionAlreadyConsumed, Approval: a}, nil
	case a.Status == approval.StatusExpired || now.After(a.ExpiresAt):
		_, _ = tx.ExecContext(ctx, `UPDATE tool_approvals SET status = ? WHERE id = ? AND status = 'pending'`, string(approval.StatusExpired), approvalID)
		_ = tx.Commit()
		a.Status = approval.StatusExpired
		return approval.ConsumeResult{Rejection: approval.RejectionExpired, Approval: a}, nil
	case a.ToolName != toolName:
		return approval.ConsumeResult{Rejection: approval.RejectionToolMismatch, Approval: a}, nil
	case a.ArgsHash != argsHash:
		return approval.ConsumeResult{Rejection: approval.RejectionArgsHashMismatch, Approval: a}, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE tool_approvals SET status = 'consumed' WHERE id = ? AND status = 'pending' AND args_hash = ? AND expires_at > ?`,
		approvalID, argsHash, now.Format(time.RFC3339Nano))
	if err != nil {
		return approval.ConsumeResult{}, coreerr.Wrap(coreerr.ErrApprovalBackend, fmt.Errorf("consume approval: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return approval.ConsumeResult{}, coreerr.Wrap(coreerr.ErrApprovalBackend, fmt.Errorf("consume approval: rows affected: %w", err))
	}
	if affected != 1 {
		// Lost a race with a concurrent consumer between the read above
		// and this UPDATE; report already_consumed rather than success.
		return approval.ConsumeResult{Rejection: approval.RejectionAlreadyConsumed, Approval: a}, nil
	}
	if err := tx.Commit(); err != nil {
		return approval.ConsumeResult{}, coreerr.Wrap(coreerr.ErrApprovalBackend, fmt.Errorf("commit: %w", err))
	}

	a.Status = approval.StatusConsumed
	return approval.ConsumeResult{Approved: true, Approval: a}, nil
}

// GarbageCollect lazily reaps pending approvals past their expiry,
// marking them expired. Lazy reaping on read/GC is sufficient; there is
// no background sweep (see DESIGN.md).
func (s *ApprovalStore) GarbageCollect(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tool_approvals SET status = 'expired' WHERE status = 'pending' AND expires_at <= ?`,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, coreerr.Wrap(coreerr.ErrApprovalBackend, fmt.Errorf("garbage collect: %w", err))
	}
	return result.RowsAffected()
}
