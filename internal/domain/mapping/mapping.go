// Package mapping links a stored claim to milestones: alias rules first, the
// fallback oracle only when no rule fires, then the tier and confidence
// policy and the per-claim cap.
package mapping

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okian/signpost/internal/domain/matcher"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/policy"
	"github.com/okian/signpost/pkg/logger"
)

// Oracle is the fallback consulted when the matcher finds nothing. It must
// not fail; an unusable answer is an empty slice.
type Oracle interface {
	Candidates(ctx context.Context, text string) []model.Candidate
}

// Source describes where a claim's links came from.
type Source string

const (
	FromRules    Source = "rules"
	FromOracle   Source = "oracle"
	Inconclusive Source = "inconclusive"
)

// Result is the outcome of mapping one claim.
type Result struct {
	Links  []model.Link
	Source Source
	// Found is the number of candidates before the cap was applied.
	Found int
}

// Mapper is stateless per claim and safe for concurrent use.
type Mapper struct {
	matcher *matcher.Matcher
	oracle  Oracle
	policy  *policy.Policy
	limit   int
	now     func() time.Time
	newID   func() string
	logger  logger.Logger
}

// Option applies a configuration option to the Mapper.
type Option func(*Mapper)

// WithLimit sets the maximum number of links per claim.
func WithLimit(k int) Option {
	return func(m *Mapper) {
		if k > 0 {
			m.limit = k
		}
	}
}

// WithOracle sets the fallback oracle.
func WithOracle(o Oracle) Option {
	return func(m *Mapper) { m.oracle = o }
}

// WithClock overrides the link creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets a custom logger for the mapper.
func WithLogger(l logger.Logger) Option {
	return func(m *Mapper) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Mapper. The cap defaults to the matcher's limit.
func New(mt *matcher.Matcher, p *policy.Policy, opts ...Option) *Mapper {
	m := &Mapper{
		matcher: mt,
		policy:  p,
		limit:   mt.Limit(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		logger:  logger.Get().Named("mapper"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map proposes links for claim. The links are the top K candidates by final
// confidence; every candidate survives as a link regardless of its review
// flag.
func (m *Mapper) Map(ctx context.Context, claim *model.Claim) Result {
	text := claim.Text()
	candidates := m.matcher.Candidates(text)
	source := FromRules
	if len(candidates) == 0 && m.oracle != nil {
		candidates = m.oracle.Candidates(ctx, text)
		source = FromOracle
	}
	if len(candidates) == 0 {
		m.logger.Info(ctx, "claim left unmapped", logger.String("claim_id", claim.ID))
		return Result{Source: Inconclusive}
	}

	decisions := make([]policy.Decision, 0, len(candidates))
	for _, c := range candidates {
		decisions = append(decisions, m.policy.Decide(claim, c))
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		a, b := decisions[i], decisions[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Candidate.BaseConfidence != b.Candidate.BaseConfidence {
			return a.Candidate.BaseConfidence > b.Candidate.BaseConfidence
		}
		return a.Candidate.MilestoneCode < b.Candidate.MilestoneCode
	})
	found := len(decisions)
	if len(decisions) > m.limit {
		decisions = decisions[:m.limit]
	}

	now := m.now()
	links := make([]model.Link, 0, len(decisions))
	for _, d := range decisions {
		links = append(links, model.Link{
			ID:             m.newID(),
			ClaimID:        claim.ID,
			MilestoneCode:  d.Candidate.MilestoneCode,
			Confidence:     d.Confidence,
			BaseConfidence: d.Candidate.BaseConfidence,
			Rationale:      d.Candidate.Rationale,
			Relation:       d.Candidate.Relation,
			Source:         d.Candidate.Source,
			Tier:           claim.Tier,
			NeedsReview:    d.NeedsReview,
			ObservedAt:     claim.PublishedAt,
			ObservedValue:  d.Candidate.ObservedValue,
			CreatedAt:      now,
		})
	}
	return Result{Links: links, Source: source, Found: found}
}
