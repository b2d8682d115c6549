package intent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aegiscore/aegis/internal/domain/coreerr"
)

// CandidateRecorder logs the ranked tool candidates the semantic tier
// scored for a decision, independent of the trace ledger's own
// intent_router step. Implementations must tolerate being nil-checked by
// the caller; Router only invokes a non-nil recorder.
type CandidateRecorder interface {
	Record(ctx context.Context, decisionID uuid.UUID, candidates []Candidate) error
}

// Router drives the four-tier pipeline: rule gate, cache, semantic,
// HITL. It holds no I/O of its own beyond its injected collaborators
// (Cache, HITLQueue, Embedder), so it stays a pure domain type.
type Router struct {
	rules      []RuleRoute
	cache      Cache
	hitl       HITLQueue
	embedder   Embedder
	tools      []ToolDescriptor
	cfg        Config
	candidates CandidateRecorder

	now func() time.Time
}

// NewRouter builds a Router. embedder and cache/hitl may be nil to
// disable the semantic and caching tiers respectively.
func NewRouter(rules []RuleRoute, tools []ToolDescriptor, cache Cache, hitl HITLQueue, embedder Embedder, cfg Config) *Router {
	if cfg.TopK <= 0 {
		cfg.TopK = 2
	}
	return &Router{
		rules:    rules,
		cache:    cache,
		hitl:     hitl,
		embedder: embedder,
		tools:    tools,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock overrides the Router's time source for deterministic tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// WithCandidateLog attaches a CandidateRecorder that logs every semantic
// tier's ranked candidates, for offline comparison against confirmed
// decisions. Optional; nil disables the log.
func (r *Router) WithCandidateLog(recorder CandidateRecorder) *Router {
	r.candidates = recorder
	return r
}

// Route evaluates input through the pipeline and returns the resulting
// Decision. When cfg.ShadowMode is set, the returned Decision still
// reflects what the pipeline computed but carries Shadow=true: the caller
// must record it for comparison only and never bind or execute it.
func (r *Router) Route(ctx context.Context, input string, policyHash string) (Decision, error) {
	decision, err := r.route(ctx, input, policyHash)
	if err != nil {
		return Decision{}, err
	}
	if r.cfg.ShadowMode {
		decision.Shadow = true
	}
	return decision, nil
}

func (r *Router) route(ctx context.Context, input string, policyHash string) (Decision, error) {
	decisionID := uuid.New()

	// Tier 0: rule gate, first match wins.
	for _, rule := range r.rules {
		tool, params, ok := rule.Match(input)
		if !ok {
			continue
		}
		if rule.Deny {
			return Decision{}, coreerr.Wrap(coreerr.ErrNoMatch, fmt.Errorf("rule %q denied: %s", rule.Name, rule.Reason))
		}
		return Decision{
			Tool:       tool,
			Params:     params,
			Confidence: 1,
			TierUsed:   TierRule,
			Reason:     "rule_match:" + rule.Name,
			PolicyHash: policyHash,
			DecisionID: decisionID,
		}, nil
	}

	// Tier 1: signature cache.
	if r.cache != nil {
		sig, err := Signature(policyHash, input)
		if err != nil {
			return Decision{}, err
		}
		if cached, hit, err := r.cache.Get(ctx, policyHash, sig, r.now()); err != nil {
			return Decision{}, err
		} else if hit {
			cached.TierUsed = TierCache
			cached.DecisionID = decisionID
			return cached, nil
		}
	}

	// Empty input: configured default tool, else no_match.
	if input == "" {
		if r.cfg.DefaultTool != "" {
			return Decision{
				Tool:       r.cfg.DefaultTool,
				Confidence: 1,
				TierUsed:   TierRule,
				Reason:     "default_tool",
				PolicyHash: policyHash,
				DecisionID: decisionID,
			}, nil
		}
		return Decision{}, coreerr.Wrap(coreerr.ErrNoMatch, fmt.Errorf("empty input and no default tool configured"))
	}

	// Tier 2: semantic similarity.
	if r.embedder != nil {
		decision, candidates, escalate, err := r.routeSemantic(ctx, input, policyHash, decisionID)
		if err != nil {
			return Decision{}, err
		}
		if !escalate {
			if r.cache != nil {
				sig, sigErr := Signature(policyHash, input)
				if sigErr == nil {
					_ = r.cache.Put(ctx, CacheEntry{
						PolicyHash: policyHash,
						Signature:  sig,
						Decision:   decision,
						CreatedAt:  r.now(),
						TTL:        r.cfg.CacheTTL,
					})
				}
			}
			return decision, nil
		}
		// Falls through to Tier 3 with decision carrying the ambiguous
		// guard reason and candidates carrying the full top-k scored list.
		return r.routeHITL(ctx, input, policyHash, decisionID, decision, candidates)
	}

	return Decision{}, coreerr.Wrap(coreerr.ErrNoMatch, fmt.Errorf("no semantic embedder configured and no rule matched"))
}

// routeSemantic scores every enabled tool description against input and
// applies the confidence/gap acceptance rule. The escalate return
// indicates whether the caller must escalate to Tier 3; candidates is
// always the top-k scored list, for the caller to carry into a HITL
// escalation.
func (r *Router) routeSemantic(ctx context.Context, input, policyHash string, decisionID uuid.UUID) (Decision, []Candidate, bool, error) {
	inputVec, err := r.embedder.Embed(ctx, input)
	if err != nil {
		return Decision{}, nil, false, err
	}

	type scored struct {
		tool       ToolDescriptor
		confidence float64
	}
	var scores []scored
	for _, t := range r.tools {
		if !t.Enabled {
			continue
		}
		vec, err := r.embedder.Embed(ctx, t.Description)
		if err != nil {
			return Decision{}, nil, false, err
		}
		scores = append(scores, scored{tool: t, confidence: cosineSimilarity(inputVec, vec)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].confidence > scores[j].confidence })

	candidates := make([]Candidate, 0, len(scores))
	limit := r.cfg.TopK
	if limit > len(scores) {
		limit = len(scores)
	}
	for i := 0; i < limit; i++ {
		candidates = append(candidates, Candidate{Tool: scores[i].tool.Name, Confidence: scores[i].confidence})
	}
	if r.candidates != nil && len(candidates) > 0 {
		_ = r.candidates.Record(ctx, decisionID, candidates)
	}

	if len(scores) == 0 || scores[0].confidence < r.cfg.MinConfidence {
		if len(scores) > 0 && scores[0].tool.Tier3Required {
			return r.ambiguousDecision(policyHash, decisionID, candidates, "below_min_confidence_tier3_required"), candidates, true, nil
		}
		return Decision{}, candidates, false, coreerr.Wrap(coreerr.ErrNoMatch, fmt.Errorf("no candidate met min_confidence"))
	}

	top := scores[0]
	if len(scores) == 1 {
		return Decision{
			Tool: top.tool.Name, Confidence: top.confidence, Gap: top.confidence,
			TierUsed: TierSemantic, Reason: "semantic_accept", PolicyHash: policyHash, DecisionID: decisionID,
		}, candidates, false, nil
	}

	second := scores[1]
	gap := top.confidence - second.confidence
	// Exact tie is always ambiguous regardless of min_gap.
	if top.confidence == second.confidence || gap < r.cfg.MinGap {
		return r.ambiguousDecision(policyHash, decisionID, candidates, "ambiguous_gap"), candidates, true, nil
	}

	return Decision{
		Tool: top.tool.Name, Confidence: top.confidence, Gap: gap,
		TierUsed: TierSemantic, Reason: "semantic_accept", PolicyHash: policyHash, DecisionID: decisionID,
	}, candidates, false, nil
}

func (r *Router) ambiguousDecision(policyHash string, decisionID uuid.UUID, candidates []Candidate, reason string) Decision {
	var top Candidate
	if len(candidates) > 0 {
		top = candidates[0]
	}
	gap := 0.0
	if len(candidates) > 1 {
		gap = candidates[0].Confidence - candidates[1].Confidence
	}
	return Decision{
		Tool:         top.Tool,
		Confidence:   top.Confidence,
		Gap:          gap,
		TierUsed:     TierSemantic,
		Reason:       reason,
		RequiresHITL: true,
		PolicyHash:   policyHash,
		DecisionID:   decisionID,
	}
}

func (r *Router) routeHITL(ctx context.Context, input, policyHash string, decisionID uuid.UUID, ambiguous Decision, candidates []Candidate) (Decision, error) {
	if r.hitl == nil {
		return Decision{}, coreerr.Wrap(coreerr.ErrAmbiguous, fmt.Errorf("ambiguous intent and no HITL queue configured"))
	}
	req := HITLRequest{
		ID:          decisionID,
		Input:       input,
		PolicyHash:  policyHash,
		Candidates:  candidates,
		GuardReason: ambiguous.Reason,
		State:       HITLQueued,
		CreatedAt:   r.now(),
	}
	if err := r.hitl.Enqueue(ctx, req); err != nil {
		return Decision{}, err
	}
	ambiguous.RequiresHITL = true
	ambiguous.Reason = "hitl_pending:" + ambiguous.Reason
	return ambiguous, nil
}

// InvalidateOnPolicyChange flushes every cache entry stamped with a
// policy_hash other than current.
func (r *Router) InvalidateOnPolicyChange(ctx context.Context, current string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Flush(ctx, current)
}
