package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// InsufficientData is the wire form of an overall score that could not be
// computed because an anchor category has no qualifying evidence.
const InsufficientData = "insufficient_data"

// OverallScore is either a numeric score or the insufficient-data marker.
// The zero value is the marker, never a numeric zero.
type OverallScore struct {
	Value float64
	Known bool
}

// Score returns a numeric overall score.
func Score(v float64) OverallScore { return OverallScore{Value: v, Known: true} }

// Insufficient returns the insufficient-data marker.
func Insufficient() OverallScore { return OverallScore{} }

func (s OverallScore) String() string {
	if !s.Known {
		return InsufficientData
	}
	return fmt.Sprintf("%.4f", s.Value)
}

// MarshalJSON renders the marker as a string and scores as numbers.
func (s OverallScore) MarshalJSON() ([]byte, error) {
	if !s.Known {
		return json.Marshal(InsufficientData)
	}
	return json.Marshal(s.Value)
}

// UnmarshalJSON accepts either form produced by MarshalJSON.
func (s *OverallScore) UnmarshalJSON(b []byte) error {
	var marker string
	if err := json.Unmarshal(b, &marker); err == nil {
		if marker != InsufficientData {
			return fmt.Errorf("unknown overall marker %q", marker)
		}
		*s = Insufficient()
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Score(v)
	return nil
}

// CategoryScore is the aggregated view of one category.
type CategoryScore struct {
	// Progress covers every milestone in the category and is what displays show.
	Progress float64 `json:"progress"`
	// Composite excludes monitor-only milestones and feeds the overall score.
	Composite    float64 `json:"composite"`
	BandWidth    float64 `json:"band_width"`
	Contributing int     `json:"contributing_links"`
	Milestones   int     `json:"milestones"`
	Undefined    int     `json:"undefined_milestones"`
}

// IndexSnapshot is the aggregate for one (preset, as_of_date).
type IndexSnapshot struct {
	Preset       string                     `json:"preset"`
	AsOfDate     string                     `json:"as_of_date"`
	Categories   map[Category]CategoryScore `json:"categories"`
	Overall      OverallScore               `json:"overall"`
	BandWidth    float64                    `json:"band_width"`
	SafetyMargin *float64                   `json:"safety_margin,omitempty"`
	ComputedAt   time.Time                  `json:"computed_at"`
}

// CredibilityTier is a publisher reliability letter, or LowConfidence when
// the sample is too small to assign one.
type CredibilityTier string

const LowConfidence CredibilityTier = "low_confidence"

// SourceCredibilitySnapshot is one publisher's reliability for a date.
type SourceCredibilitySnapshot struct {
	Publisher      string          `db:"publisher" json:"publisher"`
	Date           string          `db:"snapshot_date" json:"date"`
	TotalClaims    int             `db:"total_claims" json:"total_claims"`
	RetractedCount int             `db:"retracted_count" json:"retracted_count"`
	Score          float64         `db:"credibility_score" json:"credibility_score"`
	Tier           CredibilityTier `db:"credibility_tier" json:"credibility_tier"`
	LowConfidence  bool            `db:"low_confidence" json:"low_confidence"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// AuditEntry is an append-only record of an administrative change.
type AuditEntry struct {
	ID        string    `db:"id" json:"id"`
	Entity    string    `db:"entity" json:"entity"`
	EntityID  string    `db:"entity_id" json:"entity_id"`
	Action    string    `db:"action" json:"action"`
	Actor     string    `db:"actor" json:"actor"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DateLayout is the layout of snapshot dates.
const DateLayout = time.DateOnly

// DateOf formats t as a snapshot date in UTC.
func DateOf(t time.Time) string { return t.UTC().Format(DateLayout) }
