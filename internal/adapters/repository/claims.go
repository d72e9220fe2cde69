package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/signpost/internal/domain/credibility"
	"github.com/okian/signpost/internal/domain/model"
)

const claimColumns = `id, title, summary, publisher, source_url, source_kind, evidence_tier,
	published_at, ingested_at, content_fingerprint, secondary_fingerprint, probable_duplicate_of,
	retracted, retraction_reason, retraction_evidence_url, retracted_at`

// MaxLimit bounds list queries.
const MaxLimit = 1000

// ClaimFilter narrows ListClaims. Zero fields do not filter. Link-level
// fields match claims with at least one such link.
type ClaimFilter struct {
	Tier              model.Tier
	Publisher         string
	From              *time.Time
	To                *time.Time
	Category          model.Category
	MinConfidence     *float64
	NeedsReview       *bool
	Retracted         *bool
	ProbableDuplicate *bool
	// Unmapped selects claims with no links at all when true, and claims
	// with at least one link when false.
	Unmapped *bool
	Limit    int
	Offset   int
}

// InsertClaim stores a new claim. A primary fingerprint collision returns
// ErrDuplicate.
func (s *Store) InsertClaim(ctx context.Context, c *model.Claim) error {
	return s.InsertClaimWithLinks(ctx, c, nil)
}

// InsertClaimWithLinks stores a new claim and its links in one transaction,
// so a claim is never left behind without the links it was mapped to. A
// primary fingerprint collision returns ErrDuplicate; a link conflict
// returns ErrLinkConflict and stores nothing.
func (s *Store) InsertClaimWithLinks(ctx context.Context, c *model.Claim, links []model.Link) (err error) {
	defer s.observe("insert_claim", time.Now(), &err)
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO claims (`+claimColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			c.ID, c.Title, c.Summary, c.Publisher, c.SourceURL, c.SourceKind, c.Tier,
			c.PublishedAt.UTC(), c.IngestedAt.UTC(), c.Fingerprint, c.SecondaryFingerprint, c.ProbableDuplicateOf,
			c.Retracted, c.RetractionReason, c.RetractionEvidence, c.RetractedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("claim %s: %w", c.Fingerprint, ErrDuplicate)
			}
			return fmt.Errorf("insert claim: %w", err)
		}
		if err := s.insertLinks(ctx, tx, links); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return fmt.Errorf("%w: %v", ErrLinkConflict, err)
			}
			return err
		}
		return nil
	})
}

func (s *Store) claimWhere(ctx context.Context, op, where string, arg any) (c model.Claim, err error) {
	defer s.observe(op, time.Now(), &err)
	q := s.db.Rebind(`SELECT ` + claimColumns + ` FROM claims WHERE ` + where + ` ORDER BY ingested_at, id LIMIT 1`)
	if err = s.db.GetContext(ctx, &c, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Claim{}, ErrNotFound
		}
		return model.Claim{}, fmt.Errorf("%s: %w", op, err)
	}
	normalizeClaim(&c)
	return c, nil
}

// Claim returns a claim by id.
func (s *Store) Claim(ctx context.Context, id string) (model.Claim, error) {
	return s.claimWhere(ctx, "claim", "id = ?", id)
}

// ClaimByFingerprint returns the claim with the primary fingerprint.
func (s *Store) ClaimByFingerprint(ctx context.Context, fp string) (model.Claim, error) {
	return s.claimWhere(ctx, "claim_by_fingerprint", "content_fingerprint = ?", fp)
}

// ClaimBySecondaryFingerprint returns the earliest claim with the secondary
// fingerprint.
func (s *Store) ClaimBySecondaryFingerprint(ctx context.Context, fp string) (model.Claim, error) {
	return s.claimWhere(ctx, "claim_by_secondary", "secondary_fingerprint = ?", fp)
}

// ClaimBySourceURL returns the earliest claim with the source URL.
func (s *Store) ClaimBySourceURL(ctx context.Context, url string) (model.Claim, error) {
	if url == "" {
		return model.Claim{}, ErrNotFound
	}
	return s.claimWhere(ctx, "claim_by_url", "source_url = ?", url)
}

// ListClaims returns claims newest first.
func (s *Store) ListClaims(ctx context.Context, f ClaimFilter) (out []model.Claim, err error) {
	defer s.observe("list_claims", time.Now(), &err)
	limit, err := clampLimit(f.Limit)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	add := func(clause string, a ...any) {
		where = append(where, clause)
		args = append(args, a...)
	}
	if f.Tier != "" {
		add("c.evidence_tier = ?", f.Tier)
	}
	if f.Publisher != "" {
		add("c.publisher = ?", f.Publisher)
	}
	if f.From != nil {
		add("c.published_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		add("c.published_at <= ?", f.To.UTC())
	}
	if f.Retracted != nil {
		add("c.retracted = ?", *f.Retracted)
	}
	if f.ProbableDuplicate != nil {
		if *f.ProbableDuplicate {
			add("c.probable_duplicate_of IS NOT NULL")
		} else {
			add("c.probable_duplicate_of IS NULL")
		}
	}
	if f.Unmapped != nil {
		if *f.Unmapped {
			add("NOT EXISTS (SELECT 1 FROM links u WHERE u.claim_id = c.id)")
		} else {
			add("EXISTS (SELECT 1 FROM links u WHERE u.claim_id = c.id)")
		}
	}
	var linkWhere []string
	var linkArgs []any
	if f.Category != "" {
		linkWhere = append(linkWhere, "m.category = ?")
		linkArgs = append(linkArgs, f.Category)
	}
	if f.MinConfidence != nil {
		linkWhere = append(linkWhere, "l.confidence >= ?")
		linkArgs = append(linkArgs, *f.MinConfidence)
	}
	if f.NeedsReview != nil {
		linkWhere = append(linkWhere, "l.needs_review = ?")
		linkArgs = append(linkArgs, *f.NeedsReview)
	}
	if len(linkWhere) > 0 {
		add(`EXISTS (SELECT 1 FROM links l LEFT JOIN milestones m ON m.code = l.milestone_code
			WHERE l.claim_id = c.id AND `+strings.Join(linkWhere, " AND ")+`)`, linkArgs...)
	}

	q := `SELECT ` + prefixed("c.", claimColumns) + ` FROM claims c`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY c.published_at DESC, c.id LIMIT ? OFFSET ?`
	args = append(args, limit, max(f.Offset, 0))

	if err = s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	for i := range out {
		normalizeClaim(&out[i])
	}
	return out, nil
}

// CountClaims returns the number of stored claims.
func (s *Store) CountClaims(ctx context.Context) (n int, err error) {
	defer s.observe("count_claims", time.Now(), &err)
	err = s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM claims`)
	return n, err
}

// RetractClaim marks a claim retracted and writes an audit entry in one
// transaction. Retracting twice succeeds without a second audit entry and
// needs no reason; a first retraction without one is ErrReasonRequired.
func (s *Store) RetractClaim(ctx context.Context, id, reason, evidenceURL, actor string) (r model.Retraction, err error) {
	defer s.observe("retract_claim", time.Now(), &err)
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		var c model.Claim
		if err := tx.GetContext(ctx, &c, tx.Rebind(`SELECT `+claimColumns+` FROM claims WHERE id = ?`), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load claim: %w", err)
		}
		if err := tx.SelectContext(ctx, &r.MilestoneCodes,
			tx.Rebind(`SELECT DISTINCT milestone_code FROM links WHERE claim_id = ? ORDER BY milestone_code`), id); err != nil {
			return fmt.Errorf("load claim links: %w", err)
		}
		if c.Retracted {
			r.AlreadyRetracted = true
			r.Claim = c
			return nil
		}
		if strings.TrimSpace(reason) == "" {
			return model.ErrReasonRequired
		}

		at := s.now()
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE claims
			SET retracted = ?, retraction_reason = ?, retraction_evidence_url = ?, retracted_at = ?
			WHERE id = ? AND retracted = ?`), true, nullable(reason), nullable(evidenceURL), at, id, false)
		if err != nil {
			return fmt.Errorf("retract claim: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			r.AlreadyRetracted = true
			r.Claim = c
			return nil
		}
		if err := s.audit(ctx, tx, "claim", id, "retract", actor, reason); err != nil {
			return err
		}
		c.Retracted = true
		c.RetractionReason = nullable(reason)
		c.RetractionEvidence = nullable(evidenceURL)
		c.RetractedAt = &at
		r.Claim = c
		return nil
	})
	if err != nil {
		return model.Retraction{}, err
	}
	normalizeClaim(&r.Claim)
	if r.MilestoneCodes == nil {
		r.MilestoneCodes = []string{}
	}
	return r, nil
}

// PublisherStats counts claims and retractions per publisher for claims
// published in [from, to].
func (s *Store) PublisherStats(ctx context.Context, from, to time.Time) (out []credibility.PublisherStats, err error) {
	defer s.observe("publisher_stats", time.Now(), &err)
	q := s.db.Rebind(`SELECT publisher,
			COUNT(*) AS total_claims,
			SUM(CASE WHEN retracted THEN 1 ELSE 0 END) AS retracted_count
		FROM claims
		WHERE published_at >= ? AND published_at <= ?
		GROUP BY publisher
		ORDER BY publisher`)
	if err = s.db.SelectContext(ctx, &out, q, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("publisher stats: %w", err)
	}
	return out, nil
}

func normalizeClaim(c *model.Claim) {
	c.PublishedAt = c.PublishedAt.UTC()
	c.IngestedAt = c.IngestedAt.UTC()
	if c.RetractedAt != nil {
		t := c.RetractedAt.UTC()
		c.RetractedAt = &t
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clampLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	case limit == 0:
		return 100, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	}
	return limit, nil
}

// prefixed qualifies every column in a comma separated list.
func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
