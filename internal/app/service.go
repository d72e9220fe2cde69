// Package service wires the ingestion, mapping, scoring, retraction and
// credibility components and implements the dependencies of the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/signpost/internal/adapters/cache"
	"github.com/okian/signpost/internal/adapters/mq/queue"
	"github.com/okian/signpost/internal/adapters/mq/worker"
	"github.com/okian/signpost/internal/adapters/repository"
	"github.com/okian/signpost/internal/catalog"
	"github.com/okian/signpost/internal/domain/credibility"
	"github.com/okian/signpost/internal/domain/dedupe"
	"github.com/okian/signpost/internal/domain/mapping"
	"github.com/okian/signpost/internal/domain/matcher"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/policy"
	"github.com/okian/signpost/internal/domain/retraction"
	"github.com/okian/signpost/internal/domain/scoring"
	"github.com/okian/signpost/pkg/logger"
	"github.com/okian/signpost/pkg/metrics"
)

// Service implements the API dependencies for the evidence pipeline.
type Service struct {
	mu sync.RWMutex

	store       *repository.Store
	catalog     *catalog.Catalog
	cache       *cache.Cache
	dedupe      *dedupe.Engine
	mapper      *mapping.Mapper
	scorer      *scoring.Engine
	credibility *credibility.Scorer
	retraction  *retraction.Coordinator
	queue       *queue.InMemoryQueue
	pool        *worker.Pool

	// Configuration
	workerCount       int
	queueSize         int
	linkCap           int
	reviewThreshold   float64
	kindAdjustments   map[model.SourceKind]float64
	oracle            mapping.Oracle
	cacheTTL          time.Duration
	recomputeInterval time.Duration
	now               func() time.Time

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingestion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the ingestion queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLinkCap sets the maximum number of links kept per claim.
func WithLinkCap(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.linkCap = k
		}
	}
}

// WithReviewThreshold sets the confidence below which links need review.
func WithReviewThreshold(t float64) Option {
	return func(s *Service) { s.reviewThreshold = t }
}

// WithSourceKindAdjustments shifts confidence per source kind.
func WithSourceKindAdjustments(adj map[model.SourceKind]float64) Option {
	return func(s *Service) { s.kindAdjustments = adj }
}

// WithOracle sets the fallback consulted when no alias rule fires.
func WithOracle(o mapping.Oracle) Option {
	return func(s *Service) { s.oracle = o }
}

// WithScorer sets the aggregation engine.
func WithScorer(e *scoring.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.scorer = e
		}
	}
}

// WithCredibilityScorer sets the publisher credibility scorer.
func WithCredibilityScorer(c *credibility.Scorer) Option {
	return func(s *Service) {
		if c != nil {
			s.credibility = c
		}
	}
}

// WithCacheTTL sets how long computed aggregates stay cached.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithRecomputeInterval schedules snapshot recomputation. Zero disables it.
func WithRecomputeInterval(d time.Duration) Option {
	return func(s *Service) { s.recomputeInterval = d }
}

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Service over an opened, migrated store and a validated
// catalog.
func New(store *repository.Store, cat *catalog.Catalog, opts ...Option) (*Service, error) {
	s := &Service{
		store:           store,
		catalog:         cat,
		workerCount:     4,
		queueSize:       10_000,
		linkCap:         matcher.DefaultLimit,
		reviewThreshold: policy.DefaultReviewThreshold,
		cacheTTL:        cache.DefaultTTL,
		now:             func() time.Time { return time.Now().UTC() },
		stopCh:          make(chan struct{}),
		logger:          logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = scoring.New(scoring.WithClock(s.now))
	}
	if s.credibility == nil {
		s.credibility = credibility.New()
	}

	mt, err := matcher.New(cat.Rules, matcher.WithLimit(s.linkCap))
	if err != nil {
		return nil, fmt.Errorf("build matcher: %w", err)
	}
	pol := policy.New(
		policy.WithReviewThreshold(s.reviewThreshold),
		policy.WithSourceKindAdjustments(s.kindAdjustments),
	)
	mapOpts := []mapping.Option{mapping.WithLimit(s.linkCap), mapping.WithClock(s.now)}
	if s.oracle != nil {
		mapOpts = append(mapOpts, mapping.WithOracle(s.oracle))
	}

	s.cache = cache.New(s.cacheTTL)
	s.dedupe = dedupe.New(store, dedupe.WithClock(s.now))
	s.mapper = mapping.New(mt, pol, mapOpts...)
	s.retraction = retraction.New(store, s.cache,
		retraction.WithRecomputer(s),
		retraction.WithCategoryLookup(cat.Category))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	return s, nil
}

// Start launches the ingestion workers and the recompute schedule.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.pool = worker.NewPool(s.workerCount, s.queue, worker.HandlerFunc(s.Handle))
	s.pool.Start(ctx)

	if s.recomputeInterval > 0 {
		s.wg.Add(1)
		go s.recomputeLoop(ctx)
	}

	s.started = true
	s.logger.Info(ctx, "signpost service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("linkCap", s.linkCap),
		logger.Duration("recomputeInterval", s.recomputeInterval),
	)
	return nil
}

// Stop drains the ingestion queue and stops background work.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping signpost service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
	}
	close(s.stopCh)
	s.wg.Wait()

	s.started = false
	s.logger.Info(ctx, "signpost service stopped")
}

func (s *Service) recomputeLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.recomputeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.RecomputeAll(ctx); err != nil {
				s.logger.Error(ctx, "scheduled recompute failed", logger.Error(err))
			}
		}
	}
}

// Catalog returns the milestone catalog.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// Presets lists the configured weighting presets.
func (s *Service) Presets() []string { return s.scorer.Presets() }

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"queueCapacity": s.queueSize,
		"queueLength":   s.queue.Len(),
		"linkCap":       s.linkCap,
		"milestones":    len(s.catalog.Milestones),
		"rules":         len(s.catalog.Rules),
		"cacheEntries":  s.cache.Len(),
		"presets":       s.scorer.Presets(),
		"oracleEnabled": s.oracle != nil,
		"driver":        s.store.Driver(),
	}
	if n, err := s.store.CountClaims(ctx); err == nil {
		stats["totalClaims"] = n
		metrics.UpdateTotalClaims(n)
	} else {
		s.logger.Warn(ctx, "count claims for stats", logger.Error(err))
	}
	metrics.UpdateQueueSize(s.queue.Len())
	metrics.UpdateWorkerCount(s.workerCount)
	return stats
}
