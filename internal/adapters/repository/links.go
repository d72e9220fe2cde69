package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/signpost/internal/domain/model"
)

const linkColumns = `id, claim_id, milestone_code, confidence, base_confidence, rationale, relation,
	source, evidence_tier, needs_review, review_status, observed_at, observed_value, created_at`

const linkSelect = `SELECT ` + `l.id, l.claim_id, l.milestone_code, l.confidence, l.base_confidence, l.rationale,
	l.relation, l.source, l.evidence_tier, l.needs_review, l.review_status, l.observed_at, l.observed_value,
	l.created_at, c.retracted AS claim_retracted, c.publisher, c.title AS claim_title
	FROM links l JOIN claims c ON c.id = l.claim_id`

// LinkFilter narrows Links. Zero fields do not filter. From and To bound
// the observation time.
type LinkFilter struct {
	ClaimID       string
	MilestoneCode string
	Category      model.Category
	Tier          model.Tier
	From          *time.Time
	To            *time.Time
	MinConfidence *float64
	NeedsReview   *bool
	// Pending selects links awaiting a reviewer decision.
	Pending bool
	Limit   int
	Offset  int
}

// InsertLinks stores links in one transaction.
func (s *Store) InsertLinks(ctx context.Context, links []model.Link) (err error) {
	defer s.observe("insert_links", time.Now(), &err)
	if len(links) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return s.insertLinks(ctx, tx, links)
	})
}

func (s *Store) insertLinks(ctx context.Context, tx *sqlx.Tx, links []model.Link) error {
	q := tx.Rebind(`INSERT INTO links (` + linkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i := range links {
		l := &links[i]
		if l.CreatedAt.IsZero() {
			l.CreatedAt = s.now()
		}
		if _, err := tx.ExecContext(ctx, q, l.ID, l.ClaimID, l.MilestoneCode, l.Confidence, l.BaseConfidence,
			l.Rationale, l.Relation, l.Source, l.Tier, l.NeedsReview, l.ReviewStatus, l.ObservedAt.UTC(),
			l.ObservedValue, l.CreatedAt.UTC()); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("link %s/%s: %w", l.ClaimID, l.MilestoneCode, ErrDuplicate)
			}
			return fmt.Errorf("insert link: %w", err)
		}
	}
	return nil
}

// Link returns one link joined with its claim.
func (s *Store) Link(ctx context.Context, id string) (l model.Link, err error) {
	defer s.observe("link", time.Now(), &err)
	if err = s.db.GetContext(ctx, &l, s.db.Rebind(linkSelect+` WHERE l.id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Link{}, ErrNotFound
		}
		return model.Link{}, fmt.Errorf("link: %w", err)
	}
	normalizeLink(&l)
	return l, nil
}

// Links lists links ordered by observation time, newest first.
func (s *Store) Links(ctx context.Context, f LinkFilter) (out []model.Link, err error) {
	defer s.observe("links", time.Now(), &err)
	limit, err := clampLimit(f.Limit)
	if err != nil {
		return nil, err
	}
	var where []string
	var args []any
	if f.ClaimID != "" {
		where = append(where, "l.claim_id = ?")
		args = append(args, f.ClaimID)
	}
	if f.MilestoneCode != "" {
		where = append(where, "l.milestone_code = ?")
		args = append(args, f.MilestoneCode)
	}
	if f.Category != "" {
		where = append(where, "l.milestone_code IN (SELECT code FROM milestones WHERE category = ?)")
		args = append(args, f.Category)
	}
	if f.Tier != "" {
		where = append(where, "l.evidence_tier = ?")
		args = append(args, f.Tier)
	}
	if f.From != nil {
		where = append(where, "l.observed_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "l.observed_at <= ?")
		args = append(args, f.To.UTC())
	}
	if f.MinConfidence != nil {
		where = append(where, "l.confidence >= ?")
		args = append(args, *f.MinConfidence)
	}
	if f.NeedsReview != nil {
		where = append(where, "l.needs_review = ?")
		args = append(args, *f.NeedsReview)
	}
	if f.Pending {
		where = append(where, "l.needs_review = ? AND l.review_status IS NULL")
		args = append(args, true)
	}
	q := linkSelect
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY l.observed_at DESC, l.id LIMIT ? OFFSET ?`
	args = append(args, limit, max(f.Offset, 0))
	if err = s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("links: %w", err)
	}
	for i := range out {
		normalizeLink(&out[i])
	}
	return out, nil
}

// ScoringLinks returns every verified-tier link that has not been rejected,
// with its claim's retraction state. Remaining eligibility checks are left
// to the caller.
func (s *Store) ScoringLinks(ctx context.Context) (out []model.Link, err error) {
	defer s.observe("scoring_links", time.Now(), &err)
	q := s.db.Rebind(linkSelect + ` WHERE l.evidence_tier IN (?, ?)
		AND (l.review_status IS NULL OR l.review_status <> ?)
		ORDER BY l.observed_at, l.id`)
	if err = s.db.SelectContext(ctx, &out, q, model.TierA, model.TierB, model.ReviewRejected); err != nil {
		return nil, fmt.Errorf("scoring links: %w", err)
	}
	for i := range out {
		normalizeLink(&out[i])
	}
	return out, nil
}

// ReviewLink records a reviewer decision and audits it.
func (s *Store) ReviewLink(ctx context.Context, id string, status model.ReviewStatus, actor string) (l model.Link, err error) {
	defer s.observe("review_link", time.Now(), &err)
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &l, tx.Rebind(linkSelect+` WHERE l.id = ?`), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load link: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE links SET review_status = ? WHERE id = ?`), status, id); err != nil {
			return fmt.Errorf("review link: %w", err)
		}
		if err := s.audit(ctx, tx, "link", id, string(status), actor, l.MilestoneCode); err != nil {
			return err
		}
		l.ReviewStatus = &status
		return nil
	})
	if err != nil {
		return model.Link{}, err
	}
	normalizeLink(&l)
	return l, nil
}

func normalizeLink(l *model.Link) {
	l.ObservedAt = l.ObservedAt.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
}
