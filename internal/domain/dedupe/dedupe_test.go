package dedupe_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/signpost/internal/domain/dedupe"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// memStore enforces a unique primary fingerprint like the SQL schema does
// and keeps links only when their claim is stored.
// staleReads makes the first N fingerprint lookups miss so tests can force
// the insert race path deterministically.
type memStore struct {
	mu         sync.Mutex
	claims     map[string]model.Claim
	links      map[string][]model.Link
	failLinks  bool
	staleReads atomic.Int32
	inserts    atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{claims: make(map[string]model.Claim), links: make(map[string][]model.Link)}
}

func (s *memStore) ClaimByFingerprint(_ context.Context, fp string) (model.Claim, error) {
	if s.staleReads.Add(-1) >= 0 {
		return model.Claim{}, model.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[fp]; ok {
		return c, nil
	}
	return model.Claim{}, model.ErrNotFound
}

func (s *memStore) ClaimBySecondaryFingerprint(_ context.Context, fp string) (model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.SecondaryFingerprint == fp {
			return c, nil
		}
	}
	return model.Claim{}, model.ErrNotFound
}

func (s *memStore) ClaimBySourceURL(_ context.Context, url string) (model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.SourceURL == url {
			return c, nil
		}
	}
	return model.Claim{}, model.ErrNotFound
}

func (s *memStore) InsertClaimWithLinks(_ context.Context, c *model.Claim, links []model.Link) error {
	s.inserts.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[c.Fingerprint]; ok {
		return model.ErrDuplicate
	}
	if s.failLinks && len(links) > 0 {
		return errors.New("links table unavailable")
	}
	s.claims[c.Fingerprint] = *c
	s.links[c.ID] = links
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

func sampleClaim() model.Claim {
	return model.Claim{
		Title:       "Model X scores 85% on Benchmark Y",
		Summary:     "LabCo announced the result today.",
		Publisher:   "LabCo",
		SourceURL:   "https://labco.example/x",
		SourceKind:  model.SourcePaper,
		Tier:        model.TierA,
		PublishedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestFingerprints(t *testing.T) {
	Convey("Given the fingerprint functions", t, func() {
		day := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

		Convey("Then the primary fingerprint ignores case and padding", func() {
			a := dedupe.Primary("Model X Scores 85%", "LabCo", day)
			b := dedupe.Primary("  model x scores 85% ", "labco", day.Add(3*time.Hour))
			So(a, ShouldEqual, b)
			So(len(a), ShouldEqual, 64)
		})

		Convey("And the primary fingerprint changes with the date", func() {
			a := dedupe.Primary("Model X", "LabCo", day)
			b := dedupe.Primary("Model X", "LabCo", day.AddDate(0, 0, 1))
			So(a, ShouldNotEqual, b)
		})

		Convey("And the secondary fingerprint folds whitespace", func() {
			a := dedupe.Secondary("Model X  scores", "line one\nline two")
			b := dedupe.Secondary("model x scores", "line one line two")
			So(a, ShouldEqual, b)
		})
	})
}

func TestEngineAdmit(t *testing.T) {
	Convey("Given a dedup engine over an empty store", t, func() {
		ctx := context.Background()
		store := newMemStore()
		engine := dedupe.New(store)

		Convey("When the same claim is admitted twice", func() {
			first, err := engine.Admit(ctx, sampleClaim())
			So(err, ShouldBeNil)
			second, err := engine.Admit(ctx, sampleClaim())
			So(err, ShouldBeNil)

			Convey("Then only one claim is stored and the second is a duplicate", func() {
				So(first.Status, ShouldEqual, dedupe.Inserted)
				So(second.Status, ShouldEqual, dedupe.Duplicate)
				So(second.Claim.ID, ShouldEqual, first.Claim.ID)
				So(store.count(), ShouldEqual, 1)
			})
		})

		Convey("When the date is off by one but the content is identical", func() {
			first, _ := engine.Admit(ctx, sampleClaim())
			shifted := sampleClaim()
			shifted.PublishedAt = shifted.PublishedAt.AddDate(0, 0, 1)
			shifted.SourceURL = ""
			res, err := engine.Admit(ctx, shifted)

			Convey("Then it is stored and flagged as a probable duplicate", func() {
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, dedupe.ProbableDuplicate)
				So(res.Claim.ProbableDuplicateOf, ShouldNotBeNil)
				So(*res.Claim.ProbableDuplicateOf, ShouldEqual, first.Claim.ID)
				So(store.count(), ShouldEqual, 2)
			})
		})

		Convey("When only the source URL matches", func() {
			first, _ := engine.Admit(ctx, sampleClaim())
			other := sampleClaim()
			other.Title = "Completely different headline"
			other.Summary = "Different body"
			res, err := engine.Admit(ctx, other)

			Convey("Then it is treated as a URL-level duplicate", func() {
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, dedupe.DuplicateURL)
				So(res.Claim.ID, ShouldEqual, first.Claim.ID)
				So(store.count(), ShouldEqual, 1)
			})
		})

		Convey("When a concurrent insert wins the race", func() {
			first, _ := engine.Admit(ctx, sampleClaim())
			store.staleReads.Store(1)
			res, err := engine.Admit(ctx, sampleClaim())

			Convey("Then the winner is returned instead of an error", func() {
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, dedupe.Duplicate)
				So(res.Claim.ID, ShouldEqual, first.Claim.ID)
				So(store.count(), ShouldEqual, 1)
			})
		})

		Convey("When many workers admit the same claim concurrently", func() {
			const workers = 32
			var wg sync.WaitGroup
			ids := make(chan string, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := engine.Admit(ctx, sampleClaim())
					if err == nil {
						ids <- res.Claim.ID
					}
				}()
			}
			wg.Wait()
			close(ids)

			Convey("Then exactly one claim exists and every worker sees it", func() {
				So(store.count(), ShouldEqual, 1)
				seen := map[string]bool{}
				n := 0
				for id := range ids {
					seen[id] = true
					n++
				}
				So(n, ShouldEqual, workers)
				So(len(seen), ShouldEqual, 1)
			})
		})
	})
}

func TestEngineOptions(t *testing.T) {
	Convey("Given an engine with a fixed clock and id generator", t, func() {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		engine := dedupe.New(newMemStore(),
			dedupe.WithClock(func() time.Time { return at }),
			dedupe.WithIDGenerator(func() string { return "claim-1" }),
		)

		Convey("Then stored claims carry both", func() {
			res, err := engine.Admit(context.Background(), sampleClaim())
			So(err, ShouldBeNil)
			So(res.Claim.ID, ShouldEqual, "claim-1")
			So(res.Claim.IngestedAt, ShouldEqual, at)
			So(res.Claim.Fingerprint, ShouldEqual, dedupe.Primary("Model X scores 85% on Benchmark Y", "LabCo", at))
		})
	})
}

func TestAdmitWithLinks(t *testing.T) {
	Convey("Given an engine that maps claims on arrival", t, func() {
		ctx := context.Background()
		store := newMemStore()
		engine := dedupe.New(store)
		calls := 0
		link := func(_ context.Context, c *model.Claim) []model.Link {
			calls++
			return []model.Link{{ID: "l-" + c.ID, ClaimID: c.ID, MilestoneCode: "benchmark_y_85"}}
		}

		Convey("When the claim is new", func() {
			res, err := engine.AdmitWithLinks(ctx, sampleClaim(), link)
			So(err, ShouldBeNil)

			Convey("Then the links carry the new claim id and are stored with it", func() {
				So(res.Status, ShouldEqual, dedupe.Inserted)
				So(res.Links, ShouldHaveLength, 1)
				So(res.Links[0].ClaimID, ShouldEqual, res.Claim.ID)
				So(store.links[res.Claim.ID], ShouldResemble, res.Links)
			})

			Convey("And a duplicate is not mapped again", func() {
				dup, err := engine.AdmitWithLinks(ctx, sampleClaim(), link)
				So(err, ShouldBeNil)
				So(dup.Status, ShouldEqual, dedupe.Duplicate)
				So(dup.Links, ShouldBeEmpty)
				So(calls, ShouldEqual, 1)
			})
		})

		Convey("When the links cannot be stored", func() {
			store.failLinks = true
			_, err := engine.AdmitWithLinks(ctx, sampleClaim(), link)
			So(err, ShouldNotBeNil)

			Convey("Then the claim is not stored and a retry maps it again", func() {
				So(store.count(), ShouldEqual, 0)
				store.failLinks = false
				res, err := engine.AdmitWithLinks(ctx, sampleClaim(), link)
				So(err, ShouldBeNil)
				So(res.Status, ShouldEqual, dedupe.Inserted)
				So(res.Links, ShouldHaveLength, 1)
				So(calls, ShouldEqual, 2)
			})
		})
	})
}
