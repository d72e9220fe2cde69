package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/signpost/internal/adapters/mq/queue"
	"github.com/okian/signpost/internal/domain/dedupe"
	"github.com/okian/signpost/internal/domain/mapping"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/pkg/logger"
	"github.com/okian/signpost/pkg/metrics"
)

// IngestResult is the outcome of ingesting one raw claim.
type IngestResult struct {
	Claim   model.Claim    `json:"claim"`
	Status  dedupe.Status  `json:"status"`
	Mapping mapping.Source `json:"mapping,omitempty"`
	Links   []model.Link   `json:"links"`
}

// Ingest validates, deduplicates, maps and stores one raw claim. The claim
// and its links are committed together. Duplicates return the existing
// claim and its links without error.
func (s *Service) Ingest(ctx context.Context, raw model.RawClaim) (IngestResult, error) { //nolint:gocritic // raw claims arrive by value from the queue
	claim, err := raw.Validate()
	if err != nil {
		metrics.RecordClaimInvalid()
		return IngestResult{}, err
	}

	var res mapping.Result
	admitted, err := s.dedupe.AdmitWithLinks(ctx, claim, func(ctx context.Context, c *model.Claim) []model.Link {
		res = s.mapper.Map(ctx, c)
		return res.Links
	})
	if err != nil {
		metrics.RecordClaimIngested("error")
		return IngestResult{}, fmt.Errorf("admit claim: %w", err)
	}
	metrics.RecordClaimIngested(string(admitted.Status))

	out := IngestResult{Claim: admitted.Claim, Status: admitted.Status}
	if !admitted.Status.Stored() {
		links, err := s.store.Links(ctx, linksOfClaim(admitted.Claim.ID))
		if err != nil {
			return IngestResult{}, fmt.Errorf("load links of existing claim: %w", err)
		}
		out.Links = links
		return out, nil
	}

	metrics.RecordMappingOutcome(string(res.Source))
	out.Mapping = res.Source
	out.Links = admitted.Links
	if out.Links == nil {
		out.Links = []model.Link{}
	}
	if len(out.Links) == 0 {
		return out, nil
	}

	codes := make([]string, 0, len(out.Links))
	for i := range out.Links {
		l := &out.Links[i]
		codes = append(codes, l.MilestoneCode)
		metrics.RecordLinkCreated(string(l.Tier), l.NeedsReview)
	}
	s.invalidate(ctx, codes)

	s.logger.Debug(ctx, "claim ingested",
		logger.String("claim_id", out.Claim.ID),
		logger.String("status", string(out.Status)),
		logger.String("mapping", string(res.Source)),
		logger.Int("links", len(out.Links)),
		logger.Int("candidates", res.Found),
	)
	return out, nil
}

// Handle implements the worker handler for queued claims.
func (s *Service) Handle(ctx context.Context, raw queue.Item) error { //nolint:gocritic // items are values on the queue
	_, err := s.Ingest(ctx, raw)
	return err
}

// Enqueue validates every raw claim and queues them for asynchronous
// ingestion. Nothing is queued when any claim is invalid. A full queue
// stops at the first rejected claim and reports ErrBackpressure with the
// number accepted so far.
func (s *Service) Enqueue(ctx context.Context, raws []model.RawClaim) (int, error) {
	for i := range raws {
		if _, err := raws[i].Validate(); err != nil {
			metrics.RecordClaimInvalid()
			return 0, fmt.Errorf("claim #%d: %w", i, err)
		}
	}
	for i := range raws {
		if err := s.queue.Enqueue(ctx, raws[i]); err != nil {
			if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
				return i, fmt.Errorf("%w: accepted %d of %d", ErrBackpressure, i, len(raws))
			}
			return i, fmt.Errorf("enqueue: %w", err)
		}
	}
	return len(raws), nil
}

// invalidate drops cached aggregates touched by milestone codes.
func (s *Service) invalidate(ctx context.Context, codes []string) {
	seen := map[model.Category]bool{}
	var cats []model.Category
	for _, code := range codes {
		if cat, ok := s.catalog.Category(code); ok && !seen[cat] {
			seen[cat] = true
			cats = append(cats, cat)
		}
	}
	n := s.cache.InvalidateAggregates(codes, cats)
	if n > 0 {
		s.logger.Debug(ctx, "cache invalidated", logger.Strings("milestones", codes), logger.Int("entries", n))
	}
}
