package model

import "time"

// Relation describes how a claim bears on a milestone.
type Relation string

const (
	RelationSupports    Relation = "supports"
	RelationContradicts Relation = "contradicts"
	RelationRelated     Relation = "related"
)

// Valid reports whether r is a known relation.
func (r Relation) Valid() bool {
	switch r {
	case RelationSupports, RelationContradicts, RelationRelated:
		return true
	}
	return false
}

// ReviewStatus is the outcome of a human review.
type ReviewStatus string

const (
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// MatchSource records which component proposed a link.
type MatchSource string

const (
	SourceRule   MatchSource = "rule"
	SourceOracle MatchSource = "oracle"
)

// Candidate is a proposed claim to milestone association before policy.
type Candidate struct {
	MilestoneCode  string      `json:"milestone_code"`
	BaseConfidence float64     `json:"base_confidence"`
	Rationale      string      `json:"rationale"`
	Relation       Relation    `json:"relation"`
	ObservedValue  *float64    `json:"observed_value,omitempty"`
	Source         MatchSource `json:"source"`
}

// Suggestion is one oracle answer for free text.
type Suggestion struct {
	MilestoneCode string  `json:"milestone_code"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
}

// Link associates a claim with a milestone. Only ReviewStatus changes after
// creation.
type Link struct {
	ID             string        `db:"id" json:"id"`
	ClaimID        string        `db:"claim_id" json:"claim_id"`
	MilestoneCode  string        `db:"milestone_code" json:"milestone_code"`
	Confidence     float64       `db:"confidence" json:"confidence"`
	BaseConfidence float64       `db:"base_confidence" json:"base_confidence"`
	Rationale      string        `db:"rationale" json:"rationale"`
	Relation       Relation      `db:"relation" json:"relation"`
	Source         MatchSource   `db:"source" json:"source"`
	Tier           Tier          `db:"evidence_tier" json:"evidence_tier"`
	NeedsReview    bool          `db:"needs_review" json:"needs_review"`
	ReviewStatus   *ReviewStatus `db:"review_status" json:"review_status,omitempty"`
	ObservedAt     time.Time     `db:"observed_at" json:"observed_at"`
	ObservedValue  *float64      `db:"observed_value" json:"observed_value,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`

	// Joined from the owning claim on reads.
	ClaimRetracted bool   `db:"claim_retracted" json:"claim_retracted"`
	Publisher      string `db:"publisher" json:"publisher,omitempty"`
	ClaimTitle     string `db:"claim_title" json:"claim_title,omitempty"`
}

// Approved reports whether a reviewer approved the link.
func (l *Link) Approved() bool {
	return l.ReviewStatus != nil && *l.ReviewStatus == ReviewApproved
}

// Rejected reports whether a reviewer rejected the link.
func (l *Link) Rejected() bool {
	return l.ReviewStatus != nil && *l.ReviewStatus == ReviewRejected
}
