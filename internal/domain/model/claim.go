// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Tier is the evidence credibility class of a claim.
type Tier string

// Evidence tiers, A strongest.
const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// Valid reports whether t is one of the enumerated tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierA, TierB, TierC, TierD:
		return true
	}
	return false
}

// Verified reports whether the tier may move aggregate scores.
func (t Tier) Verified() bool { return t == TierA || t == TierB }

// ParseTier normalizes s into a Tier.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// SourceKind classifies where a claim came from.
type SourceKind string

const (
	SourcePaper       SourceKind = "paper"
	SourceBlog        SourceKind = "blog"
	SourceNews        SourceKind = "news"
	SourceLeaderboard SourceKind = "leaderboard"
	SourceSocial      SourceKind = "social"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourcePaper, SourceBlog, SourceNews, SourceLeaderboard, SourceSocial:
		return true
	}
	return false
}

// Claim is a single piece of externally sourced evidence. Only the
// retraction fields change after creation.
type Claim struct {
	ID                   string     `db:"id" json:"id"`
	Title                string     `db:"title" json:"title"`
	Summary              string     `db:"summary" json:"summary"`
	Publisher            string     `db:"publisher" json:"publisher"`
	SourceURL            string     `db:"source_url" json:"source_url,omitempty"`
	SourceKind           SourceKind `db:"source_kind" json:"source_kind"`
	Tier                 Tier       `db:"evidence_tier" json:"evidence_tier"`
	PublishedAt          time.Time  `db:"published_at" json:"published_at"`
	IngestedAt           time.Time  `db:"ingested_at" json:"ingested_at"`
	Fingerprint          string     `db:"content_fingerprint" json:"content_fingerprint"`
	SecondaryFingerprint string     `db:"secondary_fingerprint" json:"secondary_fingerprint"`
	ProbableDuplicateOf  *string    `db:"probable_duplicate_of" json:"probable_duplicate_of,omitempty"`
	Retracted            bool       `db:"retracted" json:"retracted"`
	RetractionReason     *string    `db:"retraction_reason" json:"retraction_reason,omitempty"`
	RetractionEvidence   *string    `db:"retraction_evidence_url" json:"retraction_evidence_url,omitempty"`
	RetractedAt          *time.Time `db:"retracted_at" json:"retracted_at,omitempty"`
}

// Text returns the text scanned by the mapper.
func (c *Claim) Text() string {
	if c.Summary == "" {
		return c.Title
	}
	return c.Title + "\n" + c.Summary
}

// RawClaim is the normalized record produced by feed collectors.
type RawClaim struct {
	Title        string     `json:"title"`
	Summary      string     `json:"summary"`
	Publisher    string     `json:"publisher"`
	PublishedAt  string     `json:"published_at"`
	SourceURL    string     `json:"source_url"`
	SourceKind   SourceKind `json:"source_kind"`
	EvidenceTier string     `json:"evidence_tier"`
}

// publishedLayouts are tried in order when parsing RawClaim.PublishedAt.
var publishedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Validate checks r and returns the claim it describes. The returned claim
// carries no id or fingerprints yet.
func (r RawClaim) Validate() (Claim, error) { //nolint:gocritic // value receiver keeps RawClaim immutable
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return Claim{}, invalid("title", "must not be empty")
	}
	publisher := strings.TrimSpace(r.Publisher)
	if publisher == "" {
		return Claim{}, invalid("publisher", "must not be empty")
	}
	published, ok := parsePublished(r.PublishedAt)
	if !ok {
		return Claim{}, invalid("published_at", "must be an RFC3339 timestamp or YYYY-MM-DD date")
	}
	tier, ok := ParseTier(r.EvidenceTier)
	if !ok {
		return Claim{}, invalid("evidence_tier", "must be one of A, B, C, D")
	}
	kind := SourceKind(strings.ToLower(strings.TrimSpace(string(r.SourceKind))))
	if kind == "" {
		kind = SourceNews
	}
	if !kind.Valid() {
		return Claim{}, invalid("source_kind", "must be one of paper, blog, news, leaderboard, social")
	}
	return Claim{
		Title:       title,
		Summary:     strings.TrimSpace(r.Summary),
		Publisher:   publisher,
		SourceURL:   strings.TrimSpace(r.SourceURL),
		SourceKind:  kind,
		Tier:        tier,
		PublishedAt: published,
	}, nil
}

func parsePublished(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Retraction describes the state after a retraction request.
type Retraction struct {
	Claim Claim `json:"claim"`
	// AlreadyRetracted is true when the request changed nothing.
	AlreadyRetracted bool `json:"already_retracted"`
	// MilestoneCodes are the milestones the claim's links touch.
	MilestoneCodes []string `json:"milestone_codes"`
}
