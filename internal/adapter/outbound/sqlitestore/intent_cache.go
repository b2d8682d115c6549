package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
	"github.com/aegiscore/aegis/internal/domain/intent"
)

// IntentCache implements intent.Cache over table policy_cache.
type IntentCache struct {
	db *DB
}

// NewIntentCache builds an IntentCache over db.
func NewIntentCache(db *DB) *IntentCache {
	return &IntentCache{db: db}
}

func (c *IntentCache) Get(ctx context.Context, policyHash string, signature uint64, now time.Time) (intent.Decision, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT tool, params, confidence, gap, reason, created_at, ttl_seconds
		 FROM policy_cache WHERE policy_hash = ? AND signature = ?`,
		policyHash, fmt.Sprintf("%d", signature))

	var (
		tool, paramsJSON, reason, createdAt string
		confidence, gap                     float64
		ttlSeconds                           int64
	)
	switch err := row.Scan(&tool, &paramsJSON, &confidence, &gap, &reason, &createdAt, &ttlSeconds); err {
	case nil:
	case sql.ErrNoRows:
		return intent.Decision{}, false, nil
	default:
		return intent.Decision{}, false, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("intent cache get: %w", err))
	}

	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	if now.Sub(created) >= time.Duration(ttlSeconds)*time.Second {
		return intent.Decision{}, false, nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return intent.Decision{}, false, coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("intent cache get: decode params: %w", err))
	}

	return intent.Decision{
		Tool: tool, Params: params, Confidence: confidence, Gap: gap,
		Reason: reason, PolicyHash: policyHash,
	}, true, nil
}

func (c *IntentCache) Put(ctx context.Context, entry intent.CacheEntry) error {
	paramsJSON, err := json.Marshal(entry.Decision.Params)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("intent cache put: encode params: %w", err))
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO policy_cache
		 (policy_hash, signature, tool, params, confidence, gap, reason, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PolicyHash, fmt.Sprintf("%d", entry.Signature), entry.Decision.Tool, string(paramsJSON),
		entry.Decision.Confidence, entry.Decision.Gap, entry.Decision.Reason,
		entry.CreatedAt.Format(time.RFC3339Nano), int64(entry.TTL/time.Second))
	if err != nil {
		return coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("intent cache put: %w", err))
	}
	return nil
}

// Flush evicts every row not stamped with currentPolicyHash.
func (c *IntentCache) Flush(ctx context.Context, currentPolicyHash string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM policy_cache WHERE policy_hash != ?`, currentPolicyHash)
	if err != nil {
		return coreerr.Wrap(coreerr.ErrTraceBackend, fmt.Errorf("intent cache flush: %w", err))
	}
	return nil
}
