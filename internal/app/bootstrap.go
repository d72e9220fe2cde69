package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/signpost/internal/adapters/repository"
	"github.com/okian/signpost/internal/catalog"
	"github.com/okian/signpost/internal/config"
	"github.com/okian/signpost/internal/domain/credibility"
	"github.com/okian/signpost/internal/domain/mapping"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/oracle"
	"github.com/okian/signpost/internal/domain/scoring"
	"github.com/okian/signpost/pkg/logger"
)

// OpenStore opens the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg *config.Config) (*repository.Store, error) {
	// each ingestion worker holds at most one connection; leave room for API reads
	store, err := repository.Open(ctx, cfg.DBDriver, cfg.DBDSN,
		repository.WithMaxOpenConns(cfg.WorkerCount+4))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("migrate: %w", err), store.Close())
	}
	return store, nil
}

// Open builds a Service from configuration: it opens and migrates the
// store, loads the catalog and syncs its milestones. The returned close
// function releases the store.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, func() error, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*Service, func() error, error) {
		return nil, nil, errors.Join(err, store.Close())
	}
	if err := store.UpsertMilestones(ctx, cat.Milestones); err != nil {
		return fail(fmt.Errorf("sync milestones: %w", err))
	}

	o, err := newOracle(cfg, cat)
	if err != nil {
		return fail(err)
	}

	base := []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithLinkCap(cfg.LinkCap),
		WithReviewThreshold(cfg.ReviewThreshold),
		WithSourceKindAdjustments(kindAdjustments(cfg.SourceKindAdjustments)),
		WithScorer(newScorer(cfg)),
		WithCredibilityScorer(credibility.New(
			credibility.WithWindow(cfg.CredibilityWindow()),
			credibility.WithMinSample(cfg.CredibilityMinSample),
		)),
		WithCacheTTL(cfg.CacheTTL()),
		WithRecomputeInterval(cfg.RecomputeInterval()),
	}
	if o != nil {
		base = append(base, WithOracle(o))
	}
	svc, err := New(store, cat, append(base, opts...)...)
	if err != nil {
		return fail(err)
	}
	logger.Get().Named("bootstrap").Info(ctx, "service assembled",
		logger.String("driver", cfg.DBDriver),
		logger.Int("milestones", len(cat.Milestones)),
		logger.Int("rules", len(cat.Rules)),
		logger.String("oracle", cfg.OracleProvider),
	)
	return svc, store.Close, nil
}

func newOracle(cfg *config.Config, cat *catalog.Catalog) (mapping.Oracle, error) {
	var backend oracle.Suggester
	switch cfg.OracleProvider {
	case "":
		return nil, nil
	case "openai":
		b, err := oracle.NewOpenAI(oracle.OpenAIConfig{
			APIKey:  cfg.OracleAPIKey,
			BaseURL: cfg.OracleBaseURL,
			Model:   cfg.OracleModel,
		}, cat.Milestones)
		if err != nil {
			return nil, fmt.Errorf("oracle: %w", err)
		}
		backend = b
	case "keyword":
		backend = oracle.NewKeyword(cat.Milestones)
	default:
		return nil, fmt.Errorf("oracle: unknown provider %q", cfg.OracleProvider)
	}
	return oracle.NewAdapter(backend,
		oracle.WithTimeout(cfg.OracleTimeout()),
		oracle.WithRateLimit(cfg.OracleRPS),
		oracle.WithKnownMilestones(cat.Known),
	), nil
}

func newScorer(cfg *config.Config) *scoring.Engine {
	anchors := make([]model.Category, 0, len(cfg.AnchorCategories))
	for _, a := range cfg.AnchorCategories {
		anchors = append(anchors, model.Category(a))
	}
	presets := make(map[string]map[model.Category]float64, len(cfg.Presets))
	for name, weights := range cfg.Presets {
		w := make(map[model.Category]float64, len(weights))
		for cat, v := range weights {
			w[model.Category(cat)] = v
		}
		presets[name] = w
	}
	return scoring.New(
		scoring.WithAnchors(anchors...),
		scoring.WithPresets(presets),
		scoring.WithSafetyCategory(model.Category(cfg.SafetyCategory)),
	)
}

func kindAdjustments(in map[string]float64) map[model.SourceKind]float64 {
	out := make(map[model.SourceKind]float64, len(in))
	for k, v := range in {
		out[model.SourceKind(k)] = v
	}
	return out
}
