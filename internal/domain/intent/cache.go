package intent

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/aegiscore/aegis/internal/domain/canon"
)

// Cache stores Tier-1 entries. An implementation (e.g. sqlitestore) must
// evict on TTL expiry and on Flush, which the router calls whenever
// policy_hash changes.
type Cache interface {
	Get(ctx context.Context, policyHash string, signature uint64, now time.Time) (Decision, bool, error)
	Put(ctx context.Context, entry CacheEntry) error
	// Flush evicts every entry not stamped with currentPolicyHash; any
	// policy_hash change invalidates the cache.
	Flush(ctx context.Context, currentPolicyHash string) error
}

// Signature computes hash(policy_hash || canonical(input_text)), the
// Tier-1 cache key.
func Signature(policyHash, input string) (uint64, error) {
	canonical, err := canon.Marshal(input)
	if err != nil {
		return 0, err
	}
	h := xxhash.New()
	_, _ = h.WriteString(policyHash)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(canonical)
	return h.Sum64(), nil
}
