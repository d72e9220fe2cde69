// Package credibility scores publishers by how often their claims survive
// without retraction.
package credibility

import (
	"math"
	"sort"
	"time"

	"github.com/okian/signpost/internal/domain/model"
)

// Defaults for the scorer.
const (
	DefaultZ         = 1.96
	DefaultMinSample = 5
	DefaultWindow    = 90 * 24 * time.Hour
)

// Threshold maps a minimum score to a credibility tier.
type Threshold struct {
	Min  float64
	Tier model.CredibilityTier
}

// DefaultThresholds are checked in order; the first satisfied wins.
var DefaultThresholds = []Threshold{
	{Min: 0.90, Tier: "A"},
	{Min: 0.75, Tier: "B"},
	{Min: 0.50, Tier: "C"},
	{Min: 0, Tier: "D"},
}

// PublisherStats is the input for one publisher over a window.
type PublisherStats struct {
	Publisher string `db:"publisher"`
	Total     int    `db:"total_claims"`
	Retracted int    `db:"retracted_count"`
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithZ sets the normal quantile for the Wilson bound.
func WithZ(z float64) Option {
	return func(s *Scorer) {
		if z > 0 {
			s.z = z
		}
	}
}

// WithMinSample sets the sample size below which a publisher is low
// confidence.
func WithMinSample(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.minSample = n
		}
	}
}

// WithWindow sets how far back claims count.
func WithWindow(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithThresholds replaces the tier thresholds.
func WithThresholds(t []Threshold) Option {
	return func(s *Scorer) {
		if len(t) > 0 {
			s.thresholds = append([]Threshold(nil), t...)
			sort.SliceStable(s.thresholds, func(i, j int) bool { return s.thresholds[i].Min > s.thresholds[j].Min })
		}
	}
}

// Scorer turns publisher stats into snapshots.
type Scorer struct {
	z          float64
	minSample  int
	window     time.Duration
	thresholds []Threshold
	now        func() time.Time
}

// New creates a Scorer with a 95% Wilson bound, a sample minimum of 5 and a
// 90 day window.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		z:          DefaultZ,
		minSample:  DefaultMinSample,
		window:     DefaultWindow,
		thresholds: DefaultThresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the [from, to] interval ending at the end of asOf's day.
func (s *Scorer) Window(asOf time.Time) (time.Time, time.Time) {
	y, m, d := asOf.UTC().Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24*time.Hour - time.Nanosecond)
	return to.Add(-s.window), to
}

// WilsonLowerBound is the lower end of the Wilson score interval for
// successes out of n. It is 0 when n is 0.
func WilsonLowerBound(successes, n int, z float64) float64 {
	if n <= 0 {
		return 0
	}
	nf := float64(n)
	p := float64(successes) / nf
	z2 := z * z
	centre := p + z2/(2*nf)
	margin := z * math.Sqrt(p*(1-p)/nf+z2/(4*nf*nf))
	return math.Max(0, (centre-margin)/(1+z2/nf))
}

// Score computes one publisher's snapshot for date.
func (s *Scorer) Score(st PublisherStats, date string) model.SourceCredibilitySnapshot {
	retracted := st.Retracted
	if retracted > st.Total {
		retracted = st.Total
	}
	snap := model.SourceCredibilitySnapshot{
		Publisher:      st.Publisher,
		Date:           date,
		TotalClaims:    st.Total,
		RetractedCount: retracted,
		Score:          WilsonLowerBound(st.Total-retracted, st.Total, s.z),
		CreatedAt:      s.now(),
	}
	if st.Total < s.minSample {
		snap.Tier = model.LowConfidence
		snap.LowConfidence = true
		return snap
	}
	snap.Tier = s.tier(snap.Score)
	return snap
}

func (s *Scorer) tier(score float64) model.CredibilityTier {
	for _, t := range s.thresholds {
		if score >= t.Min {
			return t.Tier
		}
	}
	return s.thresholds[len(s.thresholds)-1].Tier
}

// ScoreAll scores every publisher, ordered by publisher name.
func (s *Scorer) ScoreAll(stats []PublisherStats, date string) []model.SourceCredibilitySnapshot {
	out := make([]model.SourceCredibilitySnapshot, 0, len(stats))
	for _, st := range stats {
		if st.Publisher == "" {
			continue
		}
		out = append(out, s.Score(st, date))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Publisher < out[j].Publisher })
	return out
}
