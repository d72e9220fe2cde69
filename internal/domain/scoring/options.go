package scoring

import (
	"time"

	"github.com/okian/signpost/internal/domain/model"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithAnchors sets the categories whose harmonic mean is the overall score.
func WithAnchors(anchors ...model.Category) Option {
	return func(e *Engine) {
		if len(anchors) > 0 {
			e.anchors = append([]model.Category(nil), anchors...)
		}
	}
}

// WithSafetyCategory sets the category compared against capability for the
// safety margin.
func WithSafetyCategory(c model.Category) Option {
	return func(e *Engine) {
		if c != "" {
			e.safety = c
		}
	}
}

// WithPresets replaces the named category weightings. Weights apply when
// anchor categories are combined; milestone progress is unaffected.
func WithPresets(presets map[string]map[model.Category]float64) Option {
	return func(e *Engine) {
		if len(presets) == 0 {
			return
		}
		e.presets = make(map[string]map[model.Category]float64, len(presets))
		for name, weights := range presets {
			cp := make(map[model.Category]float64, len(weights))
			for c, w := range weights {
				cp[c] = w
			}
			e.presets[name] = cp
		}
	}
}

// WithTierWeights sets how much one link of each tier counts toward the
// effective evidence size behind confidence bands.
func WithTierWeights(w map[model.Tier]float64) Option {
	return func(e *Engine) {
		if len(w) > 0 {
			e.tierWeights = w
		}
	}
}

// WithBandScale sets the band width when there is no evidence at all.
func WithBandScale(scale float64) Option {
	return func(e *Engine) {
		if scale > 0 {
			e.bandScale = scale
		}
	}
}

// WithClock overrides the snapshot computation timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
