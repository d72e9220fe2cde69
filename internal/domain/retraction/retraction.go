// Package retraction withdraws claims and clears the derived state that
// counted them.
package retraction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/pkg/logger"
	"github.com/okian/signpost/pkg/metrics"
)

// Sentinel kinds for retraction errors.
var (
	ErrInvalidRequest = errors.New("invalid retraction request")
)

// Store commits a retraction and its audit entry atomically. An empty
// reason is accepted only for a claim that is already retracted; otherwise
// it returns model.ErrReasonRequired.
type Store interface {
	RetractClaim(ctx context.Context, id, reason, evidenceURL, actor string) (model.Retraction, error)
}

// Invalidator drops cached aggregates for milestones and categories.
type Invalidator interface {
	InvalidateAggregates(codes []string, categories []model.Category) int
}

// Recomputer rebuilds persisted snapshots.
type Recomputer interface {
	RecomputeAll(ctx context.Context) error
}

// Request is one retraction.
type Request struct {
	ClaimID     string `json:"-"`
	Reason      string `json:"reason"`
	EvidenceURL string `json:"evidence_url"`
	Actor       string `json:"actor"`
}

// Outcome reports what a retraction did.
type Outcome struct {
	model.Retraction
	Categories  []model.Category `json:"categories"`
	Invalidated int              `json:"invalidated_entries"`
	Recomputed  bool             `json:"recomputed"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecomputer sets the snapshot rebuild run after each retraction.
func WithRecomputer(r Recomputer) Option {
	return func(c *Coordinator) { c.recomputer = r }
}

// WithCategoryLookup resolves a milestone code to its category.
func WithCategoryLookup(fn func(code string) (model.Category, bool)) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.category = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// Coordinator runs retractions.
type Coordinator struct {
	store      Store
	cache      Invalidator
	recomputer Recomputer
	category   func(code string) (model.Category, bool)
	logger     logger.Logger
}

// New creates a Coordinator.
func New(store Store, cache Invalidator, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		cache:    cache,
		category: func(string) (model.Category, bool) { return "", false },
		logger:   logger.Get().Named("retraction"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retract marks the claim retracted. A reason is required unless the claim
// is already retracted, in which case the call is an idempotent success.
// Cached aggregates for the affected
// milestones are invalidated before it returns, whether or not this call
// changed the claim. Snapshot recomputation follows and its failure is
// logged, not returned, since the retraction itself is committed.
func (c *Coordinator) Retract(ctx context.Context, req Request) (Outcome, error) {
	req.ClaimID = strings.TrimSpace(req.ClaimID)
	if req.ClaimID == "" {
		return Outcome{}, fmt.Errorf("%w: claim id is required", ErrInvalidRequest)
	}
	req.Reason = strings.TrimSpace(req.Reason)

	r, err := c.store.RetractClaim(ctx, req.ClaimID, req.Reason, strings.TrimSpace(req.EvidenceURL), req.Actor)
	if errors.Is(err, model.ErrReasonRequired) {
		metrics.RecordRetraction("invalid")
		return Outcome{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err != nil {
		metrics.RecordRetraction("error")
		return Outcome{}, fmt.Errorf("retract %s: %w", req.ClaimID, err)
	}

	out := Outcome{Retraction: r, Categories: c.categories(r.MilestoneCodes)}
	if c.cache != nil {
		out.Invalidated = c.cache.InvalidateAggregates(r.MilestoneCodes, out.Categories)
	}

	if r.AlreadyRetracted {
		metrics.RecordRetraction("already_retracted")
		c.logger.Info(ctx, "claim already retracted", logger.String("claim_id", req.ClaimID))
		return out, nil
	}
	metrics.RecordRetraction("retracted")
	c.logger.Info(ctx, "claim retracted",
		logger.String("claim_id", req.ClaimID),
		logger.String("actor", req.Actor),
		logger.Strings("milestones", r.MilestoneCodes),
		logger.Int("invalidated", out.Invalidated))

	if c.recomputer != nil && len(r.MilestoneCodes) > 0 {
		start := time.Now()
		if err := c.recomputer.RecomputeAll(ctx); err != nil {
			c.logger.Error(ctx, "recompute after retraction failed",
				logger.String("claim_id", req.ClaimID), logger.Error(err))
		} else {
			out.Recomputed = true
			c.logger.Debug(ctx, "recomputed after retraction", logger.Duration("took", time.Since(start)))
		}
	}
	return out, nil
}

func (c *Coordinator) categories(codes []string) []model.Category {
	seen := make(map[model.Category]struct{}, len(codes))
	out := []model.Category{}
	for _, code := range codes {
		cat, ok := c.category(code)
		if !ok {
			continue
		}
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
