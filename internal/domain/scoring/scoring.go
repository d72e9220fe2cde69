// Package scoring aggregates gauge-eligible links into milestone, category
// and overall progress.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/policy"
)

// DefaultPreset weights the anchor categories equally.
const DefaultPreset = "equal"

const defaultBandScale = 0.5

// Sentinel kinds for scoring errors.
var (
	ErrUnknownPreset = errors.New("unknown preset")
)

// Input is everything one computation reads. Links should carry the owning
// claim's retraction state.
type Input struct {
	Milestones []model.Milestone
	Links      []model.Link
	Preset     string
	// AsOf limits evidence to links observed on or before this day. Zero
	// means no limit.
	AsOf time.Time
}

// Scorer computes an index snapshot.
type Scorer interface {
	// Score computes a snapshot, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (model.IndexSnapshot, error)
}

// MilestoneProgress is the state of one milestone as of a date.
type MilestoneProgress struct {
	Code     string         `json:"code"`
	Category model.Category `json:"category"`
	// Defined is false when no link qualifies; Progress is then 0 but the
	// milestone is unconfirmed rather than at zero.
	Defined      bool        `json:"defined"`
	Progress     float64     `json:"progress"`
	Observed     *float64    `json:"observed,omitempty"`
	Evidence     *model.Link `json:"evidence,omitempty"`
	Contributing []string    `json:"contributing_link_ids"`
	EffectiveN   float64     `json:"effective_n"`
	BandWidth    float64     `json:"band_width"`
}

// Engine implements Scorer. It holds configuration only and is safe for
// concurrent use.
type Engine struct {
	anchors     []model.Category
	safety      model.Category
	presets     map[string]map[model.Category]float64
	tierWeights map[model.Tier]float64
	bandScale   float64
	now         func() time.Time
}

// New creates an Engine with capability and input as anchors and a single
// equal-weight preset.
func New(opts ...Option) *Engine {
	e := &Engine{
		anchors: []model.Category{model.CategoryCapability, model.CategoryInput},
		safety:  model.CategorySecurity,
		presets: map[string]map[model.Category]float64{
			DefaultPreset: {model.CategoryCapability: 1, model.CategoryInput: 1},
		},
		tierWeights: map[model.Tier]float64{model.TierA: 1.0, model.TierB: 0.5},
		bandScale:   defaultBandScale,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Anchors returns the anchor categories.
func (e *Engine) Anchors() []model.Category { return append([]model.Category(nil), e.anchors...) }

// Presets returns the preset names sorted.
func (e *Engine) Presets() []string {
	out := make([]string, 0, len(e.presets))
	for name := range e.presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasPreset reports whether name is configured.
func (e *Engine) HasPreset(name string) bool {
	_, ok := e.presets[name]
	return ok
}

// Progress maps an observed value onto [0,1] for m.
func Progress(m *model.Milestone, observed float64) float64 {
	var p float64
	switch m.Direction {
	case model.Decreasing:
		p = (m.Baseline - observed) / (m.Baseline - m.Target)
	default:
		p = (observed - m.Baseline) / (m.Target - m.Baseline)
	}
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}

// BandWidth is the confidence band for an effective evidence size. It never
// grows as n grows.
func (e *Engine) BandWidth(n float64) float64 {
	if n < 0 {
		n = 0
	}
	return e.bandScale / math.Sqrt(1+n)
}

// contributes reports whether l moves milestone progress as of cutoff.
func contributes(l *model.Link, cutoff time.Time) bool {
	if !policy.GaugeEligible(l) {
		return false
	}
	if !cutoff.IsZero() && l.ObservedAt.After(cutoff) {
		return false
	}
	if l.ObservedValue != nil {
		return l.Relation != model.RelationRelated
	}
	return l.Relation == model.RelationSupports
}

// endOfDay returns the last instant of t's UTC day.
func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
}

// Milestones computes per-milestone progress. The observed value comes from
// the most recent, then highest confidence, contributing link.
func (e *Engine) Milestones(milestones []model.Milestone, links []model.Link, asOf time.Time) map[string]MilestoneProgress {
	cutoff := endOfDay(asOf)
	byCode := make(map[string][]*model.Link, len(milestones))
	for i := range links {
		l := &links[i]
		if contributes(l, cutoff) {
			byCode[l.MilestoneCode] = append(byCode[l.MilestoneCode], l)
		}
	}

	out := make(map[string]MilestoneProgress, len(milestones))
	for i := range milestones {
		m := &milestones[i]
		mp := MilestoneProgress{Code: m.Code, Category: m.Category, Contributing: []string{}}
		ls := byCode[m.Code]
		if len(ls) > 0 {
			sort.SliceStable(ls, func(a, b int) bool {
				if !ls[a].ObservedAt.Equal(ls[b].ObservedAt) {
					return ls[a].ObservedAt.After(ls[b].ObservedAt)
				}
				if ls[a].Confidence != ls[b].Confidence {
					return ls[a].Confidence > ls[b].Confidence
				}
				return ls[a].ID < ls[b].ID
			})
			best := *ls[0]
			observed := m.Target
			if best.ObservedValue != nil {
				observed = *best.ObservedValue
			}
			mp.Defined = true
			mp.Observed = &observed
			mp.Progress = Progress(m, observed)
			mp.Evidence = &best
			for _, l := range ls {
				mp.Contributing = append(mp.Contributing, l.ID)
				mp.EffectiveN += e.tierWeights[l.Tier]
			}
		}
		mp.BandWidth = e.BandWidth(mp.EffectiveN)
		out[m.Code] = mp
	}
	return out
}

// categoryState carries the composite evidence count used by the gate.
type categoryState struct {
	score          model.CategoryScore
	compositeLinks int
	effectiveN     float64
}

// Categories computes weighted category progress. Primary milestones weigh
// 2, others 1; milestones without evidence count as 0.
func (e *Engine) Categories(milestones []model.Milestone, progress map[string]MilestoneProgress) map[model.Category]model.CategoryScore {
	states := e.categories(milestones, progress)
	out := make(map[model.Category]model.CategoryScore, len(states))
	for c, st := range states {
		out[c] = st.score
	}
	return out
}

func (e *Engine) categories(milestones []model.Milestone, progress map[string]MilestoneProgress) map[model.Category]*categoryState {
	type acc struct{ sum, weight float64 }
	display := map[model.Category]*acc{}
	composite := map[model.Category]*acc{}
	states := make(map[model.Category]*categoryState, len(model.Categories))
	for _, c := range model.Categories {
		display[c], composite[c] = &acc{}, &acc{}
		states[c] = &categoryState{}
	}

	for i := range milestones {
		m := &milestones[i]
		st, ok := states[m.Category]
		if !ok {
			continue
		}
		mp := progress[m.Code]
		w := m.Weight()
		display[m.Category].sum += w * mp.Progress
		display[m.Category].weight += w
		st.score.Milestones++
		st.score.Contributing += len(mp.Contributing)
		st.effectiveN += mp.EffectiveN
		if !mp.Defined {
			st.score.Undefined++
		}
		if m.MonitorOnly {
			continue
		}
		composite[m.Category].sum += w * mp.Progress
		composite[m.Category].weight += w
		st.compositeLinks += len(mp.Contributing)
	}

	for c, st := range states {
		if a := display[c]; a.weight > 0 {
			st.score.Progress = a.sum / a.weight
		}
		if a := composite[c]; a.weight > 0 {
			st.score.Composite = a.sum / a.weight
		}
		st.score.BandWidth = e.BandWidth(st.effectiveN)
	}
	return states
}

// combine applies preset weights to the anchor composites. Any anchor with
// no qualifying evidence yields the insufficient-data marker.
func (e *Engine) combine(states map[model.Category]*categoryState, preset string) (model.OverallScore, float64, error) {
	weights, ok := e.presets[preset]
	if !ok {
		return model.Insufficient(), 0, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}
	band := 0.0
	insufficient := false
	var wsum, inv float64
	zero := false
	for _, a := range e.anchors {
		st := states[a]
		if st == nil || st.compositeLinks == 0 {
			insufficient = true
			band = math.Max(band, e.bandScale)
			continue
		}
		band = math.Max(band, st.score.BandWidth)
		w, ok := weights[a]
		if !ok {
			w = 1
		}
		if w <= 0 {
			continue
		}
		wsum += w
		if st.score.Composite == 0 {
			zero = true
			continue
		}
		inv += w / st.score.Composite
	}
	switch {
	case insufficient:
		return model.Insufficient(), band, nil
	case wsum == 0:
		return model.Insufficient(), band, nil
	case zero:
		return model.Score(0), band, nil
	}
	return model.Score(wsum / inv), band, nil
}

// Score implements Scorer.
func (e *Engine) Score(ctx context.Context, in Input) (model.IndexSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.IndexSnapshot{}, err
	}
	preset := in.Preset
	if preset == "" {
		preset = DefaultPreset
	}
	progress := e.Milestones(in.Milestones, in.Links, in.AsOf)
	states := e.categories(in.Milestones, progress)
	overall, band, err := e.combine(states, preset)
	if err != nil {
		return model.IndexSnapshot{}, err
	}

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}
	snap := model.IndexSnapshot{
		Preset:     preset,
		AsOfDate:   model.DateOf(asOf),
		Categories: make(map[model.Category]model.CategoryScore, len(states)),
		Overall:    overall,
		BandWidth:  band,
		ComputedAt: e.now(),
	}
	for c, st := range states {
		snap.Categories[c] = st.score
	}
	if sec, ok := states[e.safety]; ok && sec.score.Milestones > 0 {
		margin := sec.score.Progress - states[model.CategoryCapability].score.Progress
		snap.SafetyMargin = &margin
	}
	return snap, nil
}
