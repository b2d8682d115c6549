// Package intent implements the four-tier Intent Router (C6): rule gate,
// signature cache, semantic similarity, and human-in-the-loop escalation.
package intent

import (
	"time"

	"github.com/google/uuid"
)

// Tier identifies which stage of the pipeline produced a Decision.
type Tier int

const (
	TierRule Tier = iota
	TierCache
	TierSemantic
	TierHITL
)

// Decision is the result of routing one piece of user input to a tool.
// Shadow is set when the Router computed this Decision under
// cfg.ShadowMode: the pipeline ran end to end, but the caller must record
// it for comparison only and must never bind or execute it.
type Decision struct {
	Tool         string
	Params       map[string]interface{}
	Confidence   float64
	Gap          float64
	TierUsed     Tier
	Reason       string
	RequiresHITL bool
	Shadow       bool
	PolicyHash   string
	DecisionID   uuid.UUID
}

// CacheEntry is a Tier-1 cached Decision keyed by (policy_hash, signature
// of the normalized input text).
type CacheEntry struct {
	PolicyHash string
	Signature  uint64
	Decision   Decision
	CreatedAt  time.Time
	TTL        time.Duration
}

func (e CacheEntry) expiredAt(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// HITLState is the lifecycle of a queued human-in-the-loop request.
type HITLState string

const (
	HITLQueued   HITLState = "queued"
	HITLApproved HITLState = "approved"
	HITLRejected HITLState = "rejected"
	HITLExpired  HITLState = "expired"
)

// Candidate is one scored tool considered by the semantic tier.
type Candidate struct {
	Tool       string
	Confidence float64
}

// HITLRequest is a human-in-the-loop escalation record. The orchestrator
// does not wait on a queued entry: it answers hitl_pending at once and
// executes nothing for that request.
type HITLRequest struct {
	ID         uuid.UUID
	Input      string
	PolicyHash string
	Candidates []Candidate
	GuardReason string
	State      HITLState
	CreatedAt  time.Time
}

// RuleRoute is a Tier-0 ordered predicate: the first RuleRoute whose
// Match reports true governs the input, either resolving a tool directly
// or denying outright.
type RuleRoute struct {
	Name    string
	Match   func(input string) (matchedTool string, params map[string]interface{}, ok bool)
	Deny    bool
	Reason  string
}

// ToolDescriptor is what the semantic tier embeds and scores against.
type ToolDescriptor struct {
	Name        string
	Description string
	Enabled     bool
	Tier3Required bool
}

// Config tunes the router's tiers.
type Config struct {
	CacheTTL      time.Duration
	MinConfidence float64
	MinGap        float64
	TopK          int
	DefaultTool   string
	ShadowMode    bool
}
