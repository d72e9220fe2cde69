package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/signpost/internal/adapters/cache"
	"github.com/okian/signpost/internal/adapters/repository"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/scoring"
	"github.com/okian/signpost/pkg/logger"
	"github.com/okian/signpost/pkg/metrics"
)

// MilestoneDetail is a milestone with its progress and every link to it.
type MilestoneDetail struct {
	Milestone model.Milestone           `json:"milestone"`
	Progress  scoring.MilestoneProgress `json:"progress"`
	Links     []model.Link              `json:"links"`
}

// CategoryView is one category's score with its milestones' progress.
type CategoryView struct {
	Category   model.Category              `json:"category"`
	Score      model.CategoryScore         `json:"score"`
	Milestones []scoring.MilestoneProgress `json:"milestones"`
}

func linksOfClaim(id string) repository.LinkFilter {
	return repository.LinkFilter{ClaimID: id, Limit: repository.MaxLimit}
}

// parseDate accepts YYYY-MM-DD; empty means today.
func (s *Service) parseDate(date string) (time.Time, error) {
	if date == "" {
		return s.now(), nil
	}
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, date)
	}
	return t.UTC(), nil
}

func (s *Service) presetOrDefault(preset string) (string, error) {
	if preset == "" {
		preset = scoring.DefaultPreset
	}
	if !s.scorer.HasPreset(preset) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}
	return preset, nil
}

// compute scores current evidence as of a date.
func (s *Service) compute(ctx context.Context, preset string, asOf time.Time) (model.IndexSnapshot, error) {
	links, err := s.store.ScoringLinks(ctx)
	if err != nil {
		return model.IndexSnapshot{}, fmt.Errorf("load links: %w", err)
	}
	return s.scorer.Score(ctx, scoring.Input{
		Milestones: s.catalog.Milestones,
		Links:      links,
		Preset:     preset,
		AsOf:       asOf,
	})
}

// Index returns the snapshot for preset and date. Today's snapshot is
// computed from current evidence and cached. A past date returns the stored
// snapshot when one exists, else a fresh computation as of that date.
func (s *Service) Index(ctx context.Context, preset, date string) (model.IndexSnapshot, error) {
	preset, err := s.presetOrDefault(preset)
	if err != nil {
		return model.IndexSnapshot{}, err
	}
	asOf, err := s.parseDate(date)
	if err != nil {
		return model.IndexSnapshot{}, err
	}
	day := model.DateOf(asOf)
	key := cache.IndexKey(preset, day)
	if v, ok := s.cache.Get(key); ok {
		if snap, ok := v.(model.IndexSnapshot); ok {
			return snap, nil
		}
	}

	gen := s.cache.Generation()
	if day < model.DateOf(s.now()) {
		snap, err := s.store.IndexSnapshot(ctx, preset, day)
		switch {
		case err == nil:
			s.cache.SetIfCurrent(key, snap, gen)
			return snap, nil
		case !errors.Is(err, repository.ErrNotFound):
			return model.IndexSnapshot{}, fmt.Errorf("load snapshot: %w", err)
		}
	}

	snap, err := s.compute(ctx, preset, asOf)
	if err != nil {
		return model.IndexSnapshot{}, err
	}
	s.cache.SetIfCurrent(key, snap, gen)
	return snap, nil
}

// Recompute scores preset as of date and upserts the snapshot, replacing
// only that (preset, date) row.
func (s *Service) Recompute(ctx context.Context, preset, date string) (model.IndexSnapshot, error) {
	preset, err := s.presetOrDefault(preset)
	if err != nil {
		return model.IndexSnapshot{}, err
	}
	asOf, err := s.parseDate(date)
	if err != nil {
		return model.IndexSnapshot{}, err
	}

	gen := s.cache.Generation()
	start := time.Now()
	snap, err := s.compute(ctx, preset, asOf)
	if err == nil {
		err = s.store.SaveIndexSnapshot(ctx, &snap)
	}
	metrics.RecordRecomputeLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordRecomputeError()
		return model.IndexSnapshot{}, fmt.Errorf("recompute %s@%s: %w", preset, model.DateOf(asOf), err)
	}

	s.cache.SetIfCurrent(cache.IndexKey(preset, snap.AsOfDate), snap, gen)
	metrics.UpdateIndexOverall(preset, snap.Overall.Value, snap.Overall.Known)
	s.logger.Info(ctx, "index recomputed",
		logger.String("preset", preset),
		logger.String("as_of", snap.AsOfDate),
		logger.String("overall", snap.Overall.String()),
	)
	return snap, nil
}

// RecomputeAll recomputes today's snapshot for every preset concurrently.
func (s *Service) RecomputeAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	date := model.DateOf(s.now())
	for _, preset := range s.scorer.Presets() {
		g.Go(func() error {
			_, err := s.Recompute(gctx, preset, date)
			return err
		})
	}
	return g.Wait()
}

// IndexHistory lists stored snapshots for preset in [from, to].
func (s *Service) IndexHistory(ctx context.Context, preset, from, to string) ([]model.IndexSnapshot, error) {
	preset, err := s.presetOrDefault(preset)
	if err != nil {
		return nil, err
	}
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(model.DateLayout, d); err != nil {
			return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, d)
		}
	}
	return s.store.IndexHistory(ctx, preset, from, to)
}

// progress computes current milestone progress for the whole catalog.
func (s *Service) progress(ctx context.Context) (map[string]scoring.MilestoneProgress, error) {
	links, err := s.store.ScoringLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}
	return s.scorer.Milestones(s.catalog.Milestones, links, s.now()), nil
}

// Milestones lists current progress for every milestone ordered by code.
func (s *Service) Milestones(ctx context.Context) ([]scoring.MilestoneProgress, error) {
	progress, err := s.progress(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]scoring.MilestoneProgress, 0, len(progress))
	for _, code := range s.catalog.Codes() {
		out = append(out, progress[code])
	}
	return out, nil
}

// Milestone returns one milestone's progress and links.
func (s *Service) Milestone(ctx context.Context, code string) (MilestoneDetail, error) {
	m, ok := s.catalog.Milestone(code)
	if !ok {
		return MilestoneDetail{}, fmt.Errorf("milestone %q: %w", code, model.ErrNotFound)
	}
	key := cache.MilestoneKey(code)
	if v, ok := s.cache.Get(key); ok {
		if d, ok := v.(MilestoneDetail); ok {
			return d, nil
		}
	}

	gen := s.cache.Generation()
	progress, err := s.progress(ctx)
	if err != nil {
		return MilestoneDetail{}, err
	}
	links, err := s.store.Links(ctx, repository.LinkFilter{MilestoneCode: code, Limit: repository.MaxLimit})
	if err != nil {
		return MilestoneDetail{}, fmt.Errorf("load milestone links: %w", err)
	}
	d := MilestoneDetail{Milestone: m, Progress: progress[code], Links: links}
	s.cache.SetIfCurrent(key, d, gen)
	return d, nil
}

// Category returns one category's current score.
func (s *Service) Category(ctx context.Context, cat model.Category) (CategoryView, error) {
	if !cat.Valid() {
		return CategoryView{}, fmt.Errorf("category %q: %w", cat, model.ErrNotFound)
	}
	key := cache.CategoryKey(cat)
	if v, ok := s.cache.Get(key); ok {
		if view, ok := v.(CategoryView); ok {
			return view, nil
		}
	}

	gen := s.cache.Generation()
	progress, err := s.progress(ctx)
	if err != nil {
		return CategoryView{}, err
	}
	scores := s.scorer.Categories(s.catalog.Milestones, progress)
	view := CategoryView{Category: cat, Score: scores[cat], Milestones: []scoring.MilestoneProgress{}}
	for _, m := range s.catalog.InCategory(cat) {
		view.Milestones = append(view.Milestones, progress[m.Code])
	}
	sort.Slice(view.Milestones, func(i, j int) bool { return view.Milestones[i].Code < view.Milestones[j].Code })
	s.cache.SetIfCurrent(key, view, gen)
	return view, nil
}
