package approval

import (
	"context"
	"time"

	"github.com/aegiscore/aegis/internal/domain/canon"
)

// ArgsHash computes the args_hash: SHA-256 of the canonical-JSON encoding
// of args, shared with the policy engine's policy_hash and the intent
// router's cache signature.
func ArgsHash(args map[string]interface{}) (string, error) {
	canonical, err := canon.MarshalArgs(args)
	if err != nil {
		return "", err
	}
	return canon.SHA256Hex(canonical), nil
}

// Store is the C4 contract: issue a token, validate-and-consume it exactly
// once, and lazily reap expired pending approvals.
type Store interface {
	// Issue persists a new pending Approval for toolName/args with the
	// given ttl (DefaultTTL when ttl <= 0) and returns it.
	Issue(ctx context.Context, toolName string, args map[string]interface{}, ttl time.Duration) (Approval, error)

	// ValidateAndConsume atomically checks that an approval exists, is
	// pending, matches toolName and args' hash, and has not expired, then
	// transitions it to consumed — all within a single transactional
	// section, closing the check-then-use race.
	ValidateAndConsume(ctx context.Context, approvalID string, toolName string, args map[string]interface{}) (ConsumeResult, error)

	// GarbageCollect marks pending approvals whose expires_at is before now
	// as expired. Reaping is lazy-on-access elsewhere; this is the explicit
	// sweep entry point for callers that want to reclaim space eagerly.
	GarbageCollect(ctx context.Context, now time.Time) (int64, error)

	// Get returns a single approval by id, for read paths (e.g. an admin
	// inspection endpoint) that don't need to consume it.
	Get(ctx context.Context, approvalID string) (Approval, error)
}
