// Package oracle wraps an external text classifier that suggests milestones
// for claims the alias rules could not place. Suggestions are advisory: the
// adapter never lets a backend failure escape as an error.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/pkg/logger"
	"github.com/okian/signpost/pkg/metrics"
)

const (
	defaultTimeout = 5 * time.Second
	defaultBurst   = 1
)

// Suggester is the capability behind the adapter: given free text, return
// zero or more milestone suggestions.
type Suggester interface {
	Suggest(ctx context.Context, text string) ([]model.Suggestion, error)
}

// SuggesterFunc adapts a function to Suggester.
type SuggesterFunc func(ctx context.Context, text string) ([]model.Suggestion, error)

// Suggest calls f.
func (f SuggesterFunc) Suggest(ctx context.Context, text string) ([]model.Suggestion, error) {
	return f(ctx, text)
}

// Adapter applies a timeout and rate limit to a Suggester and turns its
// answers into candidates for known milestones.
type Adapter struct {
	backend Suggester
	timeout time.Duration
	limiter *rate.Limiter
	known   func(code string) bool
	logger  logger.Logger
}

// Option applies a configuration option to the Adapter.
type Option func(*Adapter)

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithRateLimit caps backend calls per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(a *Adapter) {
		if perSecond > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(perSecond), defaultBurst)
		}
	}
}

// WithKnownMilestones drops suggestions for codes the predicate rejects.
func WithKnownMilestones(known func(code string) bool) Option {
	return func(a *Adapter) {
		if known != nil {
			a.known = known
		}
	}
}

// WithLogger sets a custom logger for the adapter.
func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter wraps backend. A nil backend yields an adapter that never
// suggests anything.
func NewAdapter(backend Suggester, opts ...Option) *Adapter {
	a := &Adapter{
		backend: backend,
		timeout: defaultTimeout,
		known:   func(string) bool { return true },
		logger:  logger.Get().Named("oracle"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether a backend is configured.
func (a *Adapter) Enabled() bool { return a != nil && a.backend != nil }

// Candidates asks the backend about text. Timeouts, errors and panics are
// logged and yield no candidates.
func (a *Adapter) Candidates(ctx context.Context, text string) (out []model.Candidate) {
	if !a.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.RecordOracleLatency(float64(time.Since(start).Milliseconds()))
		if r := recover(); r != nil {
			metrics.RecordOracleCall("panic")
			a.logger.Error(ctx, "oracle backend panicked", logger.Any("panic", r))
			out = nil
		}
	}()

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			metrics.RecordOracleCall("throttled")
			a.logger.Warn(ctx, "oracle call not admitted by rate limiter", logger.Error(err))
			return nil
		}
	}

	suggestions, err := a.backend.Suggest(ctx, text)
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.RecordOracleCall(outcome)
		a.logger.Warn(ctx, "oracle call failed; claim stays unmapped",
			logger.String("outcome", outcome),
			logger.Error(err),
		)
		return nil
	}

	out = a.convert(ctx, suggestions)
	if len(out) == 0 {
		metrics.RecordOracleCall("empty")
	} else {
		metrics.RecordOracleCall("ok")
	}
	return out
}

func (a *Adapter) convert(ctx context.Context, suggestions []model.Suggestion) []model.Candidate {
	best := make(map[string]model.Candidate, len(suggestions))
	for _, s := range suggestions {
		if math.IsNaN(s.Confidence) || !a.known(s.MilestoneCode) {
			a.logger.Debug(ctx, "dropping oracle suggestion", logger.String("milestone", s.MilestoneCode))
			continue
		}
		c := model.Candidate{
			MilestoneCode:  s.MilestoneCode,
			BaseConfidence: clamp01(s.Confidence),
			Rationale:      s.Rationale,
			Relation:       model.RelationSupports,
			Source:         model.SourceOracle,
		}
		if c.Rationale == "" {
			c.Rationale = fmt.Sprintf("suggested by oracle (%.2f)", c.BaseConfidence)
		}
		if prev, ok := best[c.MilestoneCode]; ok && prev.BaseConfidence >= c.BaseConfidence {
			continue
		}
		best[c.MilestoneCode] = c
	}
	out := make([]model.Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
