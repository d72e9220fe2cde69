package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/signpost/internal/adapters/repository"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/retraction"
	"github.com/okian/signpost/pkg/logger"
	"github.com/okian/signpost/pkg/metrics"
)

// ClaimDetail is a claim with its links.
type ClaimDetail struct {
	Claim model.Claim  `json:"claim"`
	Links []model.Link `json:"links"`
}

// ClaimDetail returns one claim and its links.
func (s *Service) ClaimDetail(ctx context.Context, id string) (ClaimDetail, error) {
	c, err := s.store.Claim(ctx, id)
	if err != nil {
		return ClaimDetail{}, err
	}
	links, err := s.store.Links(ctx, linksOfClaim(id))
	if err != nil {
		return ClaimDetail{}, fmt.Errorf("load links: %w", err)
	}
	return ClaimDetail{Claim: c, Links: links}, nil
}

// ListClaims returns claims matching f.
func (s *Service) ListClaims(ctx context.Context, f repository.ClaimFilter) ([]model.Claim, error) {
	out, err := s.store.ListClaims(ctx, f)
	if errors.Is(err, repository.ErrInvalidLimit) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return out, err
}

// ListLinks returns links matching f.
func (s *Service) ListLinks(ctx context.Context, f repository.LinkFilter) ([]model.Link, error) {
	out, err := s.store.Links(ctx, f)
	if errors.Is(err, repository.ErrInvalidLimit) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return out, err
}

// Retract withdraws a claim and clears aggregates that counted it.
func (s *Service) Retract(ctx context.Context, req retraction.Request) (retraction.Outcome, error) {
	out, err := s.retraction.Retract(ctx, req)
	if errors.Is(err, retraction.ErrInvalidRequest) {
		return retraction.Outcome{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return out, err
}

// ApproveLink marks a link approved so it counts toward scores.
func (s *Service) ApproveLink(ctx context.Context, id, actor string) (model.Link, error) {
	return s.review(ctx, id, model.ReviewApproved, actor)
}

// RejectLink marks a link rejected so it never counts toward scores.
func (s *Service) RejectLink(ctx context.Context, id, actor string) (model.Link, error) {
	return s.review(ctx, id, model.ReviewRejected, actor)
}

func (s *Service) review(ctx context.Context, id string, status model.ReviewStatus, actor string) (model.Link, error) {
	l, err := s.store.ReviewLink(ctx, id, status, actor)
	if err != nil {
		return model.Link{}, err
	}
	metrics.RecordLinkReview(string(status))
	s.invalidate(ctx, []string{l.MilestoneCode})
	s.logger.Info(ctx, "link reviewed",
		logger.String("link_id", id),
		logger.String("decision", string(status)),
		logger.String("actor", actor),
	)
	return l, nil
}

// RunCredibility scores every publisher over the window ending at date and
// stores the snapshots. Existing rows for the date are left untouched; the
// returned slice holds what was computed and inserted reports how many rows
// were new.
func (s *Service) RunCredibility(ctx context.Context, date string) ([]model.SourceCredibilitySnapshot, int, error) {
	asOf, err := s.parseDate(date)
	if err != nil {
		return nil, 0, err
	}
	from, to := s.credibility.Window(asOf)
	stats, err := s.store.PublisherStats(ctx, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("publisher stats: %w", err)
	}
	snaps := s.credibility.ScoreAll(stats, model.DateOf(asOf))
	inserted, err := s.store.SaveCredibility(ctx, snaps)
	if err != nil {
		return nil, 0, fmt.Errorf("save credibility: %w", err)
	}
	metrics.RecordCredibilitySnapshots(inserted)
	s.logger.Info(ctx, "credibility snapshot",
		logger.String("date", model.DateOf(asOf)),
		logger.Int("publishers", len(snaps)),
		logger.Int("inserted", inserted),
	)
	return snaps, inserted, nil
}

// Credibility returns stored snapshots for date, or the latest date when
// date is empty.
func (s *Service) Credibility(ctx context.Context, date string) ([]model.SourceCredibilitySnapshot, error) {
	if date != "" {
		if _, err := s.parseDate(date); err != nil {
			return nil, err
		}
	}
	return s.store.Credibility(ctx, date)
}

// AuditLog lists administrative changes to an entity.
func (s *Service) AuditLog(ctx context.Context, entity, id string) ([]model.AuditEntry, error) {
	return s.store.AuditLog(ctx, entity, id)
}
