// Package policy turns matcher candidates into links: it sets the final
// confidence and the review flag, and decides which links may move gauges.
package policy

import (
	"math"

	"github.com/okian/signpost/internal/domain/model"
)

// DefaultReviewThreshold is the final confidence below which a link needs review.
const DefaultReviewThreshold = 0.6

// DefaultTierBoosts are added to a candidate's base confidence.
var DefaultTierBoosts = map[model.Tier]float64{
	model.TierA: 0.10,
	model.TierB: 0.05,
	model.TierC: 0,
	model.TierD: 0,
}

// Policy is a deterministic, total function of tier, source kind, base
// confidence and match source.
type Policy struct {
	tierBoosts      map[model.Tier]float64
	kindAdjustments map[model.SourceKind]float64
	reviewThreshold float64
}

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithReviewThreshold sets the final confidence below which links need review.
func WithReviewThreshold(t float64) Option {
	return func(p *Policy) {
		if t >= 0 && t <= 1 {
			p.reviewThreshold = t
		}
	}
}

// WithSourceKindAdjustments adds a per source-kind delta before clamping.
// None are applied by default.
func WithSourceKindAdjustments(adj map[model.SourceKind]float64) Option {
	return func(p *Policy) {
		p.kindAdjustments = make(map[model.SourceKind]float64, len(adj))
		for k, v := range adj {
			p.kindAdjustments[k] = v
		}
	}
}

// New creates a Policy.
func New(opts ...Option) *Policy {
	p := &Policy{
		tierBoosts:      DefaultTierBoosts,
		kindAdjustments: map[model.SourceKind]float64{},
		reviewThreshold: DefaultReviewThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FinalConfidence is base + tier boost (+ source-kind delta), clamped to [0,1].
func (p *Policy) FinalConfidence(tier model.Tier, kind model.SourceKind, base float64) float64 {
	v := base + p.tierBoosts[tier] + p.kindAdjustments[kind]
	return math.Max(0, math.Min(1, v))
}

// NeedsReview is true for tier C and D, for low confidence and for every
// oracle suggestion.
func (p *Policy) NeedsReview(tier model.Tier, final float64, source model.MatchSource) bool {
	return !tier.Verified() || final < p.reviewThreshold || source == model.SourceOracle
}

// Decision is the policy outcome for one candidate.
type Decision struct {
	Candidate   model.Candidate
	Confidence  float64
	NeedsReview bool
}

// Decide applies the policy to a candidate for claim.
func (p *Policy) Decide(claim *model.Claim, c model.Candidate) Decision { //nolint:gocritic // candidates are small values
	final := p.FinalConfidence(claim.Tier, claim.SourceKind, c.BaseConfidence)
	return Decision{
		Candidate:   c,
		Confidence:  final,
		NeedsReview: p.NeedsReview(claim.Tier, final, c.Source),
	}
}

// GaugeEligible reports whether l may contribute to aggregation. Tier C and
// D never qualify, approved or not. Rejection and retraction always
// disqualify.
func GaugeEligible(l *model.Link) bool {
	if !l.Tier.Verified() || l.ClaimRetracted || l.Rejected() {
		return false
	}
	return !l.NeedsReview || l.Approved()
}
