// Package dedupe fingerprints incoming claims and guarantees that at most
// one claim is stored per primary fingerprint, even under concurrent
// ingestion.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/pkg/logger"
	"github.com/okian/signpost/pkg/metrics"
)

// ClaimStore is the persistence the engine relies on. Lookups return
// model.ErrNotFound on a miss. InsertClaimWithLinks stores the claim and its
// links atomically and returns model.ErrDuplicate when the unique
// constraint on the primary fingerprint rejects the claim.
type ClaimStore interface {
	ClaimByFingerprint(ctx context.Context, fingerprint string) (model.Claim, error)
	ClaimBySecondaryFingerprint(ctx context.Context, fingerprint string) (model.Claim, error)
	ClaimBySourceURL(ctx context.Context, url string) (model.Claim, error)
	InsertClaimWithLinks(ctx context.Context, c *model.Claim, links []model.Link) error
}

// Linker proposes links for a claim that is about to be stored. The claim
// already carries its id.
type Linker func(ctx context.Context, c *model.Claim) []model.Link

// Status is the outcome of admitting a claim.
type Status string

const (
	// Inserted means the claim is new and was stored.
	Inserted Status = "inserted"
	// ProbableDuplicate means the claim was stored but its title and
	// summary match an existing claim; it is flagged for review.
	ProbableDuplicate Status = "probable_duplicate"
	// Duplicate means a claim with the same fingerprint already exists.
	Duplicate Status = "duplicate"
	// DuplicateURL means an existing claim shares the source URL.
	DuplicateURL Status = "duplicate_url"
)

// Stored reports whether the status created a new claim.
func (s Status) Stored() bool { return s == Inserted || s == ProbableDuplicate }

// Result carries the claim that now represents the input and how it got there.
type Result struct {
	Claim  model.Claim
	Status Status
	// Links are the links stored with a new claim. Empty for duplicates.
	Links []model.Link
}

// Engine admits claims into the store.
type Engine struct {
	store  ClaimStore
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an Engine over store.
func New(store ClaimStore, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logger.Get().Named("dedupe"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fingerprint fills in both fingerprints of c.
func Fingerprint(c *model.Claim) {
	c.Fingerprint = Primary(c.Title, c.Publisher, c.PublishedAt)
	c.SecondaryFingerprint = Secondary(c.Title, c.Summary)
}

// Admit stores c unless it duplicates an existing claim. Duplicates are a
// normal outcome, not an error; the existing claim is returned. A lost
// insert race is resolved by returning the winner.
func (e *Engine) Admit(ctx context.Context, c model.Claim) (Result, error) { //nolint:gocritic // claim is copied before mutation
	return e.AdmitWithLinks(ctx, c, nil)
}

// AdmitWithLinks is Admit for claims that are mapped on arrival: link runs
// only for a claim that will be inserted, and its links are committed with
// the claim or not at all.
func (e *Engine) AdmitWithLinks(ctx context.Context, c model.Claim, link Linker) (Result, error) { //nolint:gocritic // claim is copied before mutation
	Fingerprint(&c)

	existing, err := e.store.ClaimByFingerprint(ctx, c.Fingerprint)
	switch {
	case err == nil:
		metrics.RecordClaimDuplicate(string(Duplicate))
		return Result{Claim: existing, Status: Duplicate}, nil
	case !errors.Is(err, model.ErrNotFound):
		return Result{}, fmt.Errorf("lookup fingerprint: %w", err)
	}

	status := Inserted
	similar, err := e.store.ClaimBySecondaryFingerprint(ctx, c.SecondaryFingerprint)
	switch {
	case err == nil:
		id := similar.ID
		c.ProbableDuplicateOf = &id
		status = ProbableDuplicate
		e.logger.Warn(ctx, "probable duplicate claim flagged for review",
			logger.String("title", c.Title),
			logger.String("publisher", c.Publisher),
			logger.String("similar_to", similar.ID),
		)
	case !errors.Is(err, model.ErrNotFound):
		return Result{}, fmt.Errorf("lookup secondary fingerprint: %w", err)
	case c.SourceURL != "":
		byURL, err := e.store.ClaimBySourceURL(ctx, c.SourceURL)
		if err == nil {
			metrics.RecordClaimDuplicate(string(DuplicateURL))
			return Result{Claim: byURL, Status: DuplicateURL}, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return Result{}, fmt.Errorf("lookup source url: %w", err)
		}
	}

	c.ID = e.newID()
	c.IngestedAt = e.now()
	c.Retracted = false
	var links []model.Link
	if link != nil {
		links = link(ctx, &c)
	}
	if err := e.store.InsertClaimWithLinks(ctx, &c, links); err != nil {
		if !errors.Is(err, model.ErrDuplicate) {
			return Result{}, fmt.Errorf("insert claim: %w", err)
		}
		winner, err := e.store.ClaimByFingerprint(ctx, c.Fingerprint)
		if err != nil {
			return Result{}, fmt.Errorf("re-query after insert race: %w", err)
		}
		e.logger.Debug(ctx, "lost insert race, returning winner",
			logger.String("claim_id", winner.ID),
		)
		metrics.RecordClaimDuplicate("race")
		return Result{Claim: winner, Status: Duplicate}, nil
	}
	if status == ProbableDuplicate {
		metrics.RecordClaimDuplicate(string(ProbableDuplicate))
	}
	return Result{Claim: c, Status: status, Links: links}, nil
}
