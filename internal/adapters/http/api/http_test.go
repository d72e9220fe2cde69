package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/signpost/internal/adapters/http/api"
	"github.com/okian/signpost/internal/adapters/repository"
	app "github.com/okian/signpost/internal/app"
	"github.com/okian/signpost/internal/domain/dedupe"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/retraction"
	"github.com/okian/signpost/internal/domain/scoring"
	"github.com/okian/signpost/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// fakeDeps is a hand-written stand-in for the service.
type fakeDeps struct {
	ingest       app.IngestResult
	ingestErr    error
	enqueueErr   error
	enqueued     int
	claimFilter  repository.ClaimFilter
	linkFilter   repository.LinkFilter
	retractReq   retraction.Request
	reviewed     []string
	snapshot     model.IndexSnapshot
	indexErr     error
	recomputed   []string
	pingErr      error
	credibility  []model.SourceCredibilitySnapshot
	credDate     string
	milestoneErr error
}

func (f *fakeDeps) Ingest(_ context.Context, raw model.RawClaim) (app.IngestResult, error) {
	if f.ingestErr != nil {
		return app.IngestResult{}, f.ingestErr
	}
	if _, err := raw.Validate(); err != nil {
		return app.IngestResult{}, err
	}
	return f.ingest, nil
}

func (f *fakeDeps) Enqueue(_ context.Context, raws []model.RawClaim) (int, error) {
	if f.enqueueErr != nil {
		return 0, f.enqueueErr
	}
	f.enqueued += len(raws)
	return len(raws), nil
}

func (f *fakeDeps) ListClaims(_ context.Context, cf repository.ClaimFilter) ([]model.Claim, error) {
	f.claimFilter = cf
	return nil, nil
}

func (f *fakeDeps) ClaimDetail(_ context.Context, id string) (app.ClaimDetail, error) {
	if id != "c1" {
		return app.ClaimDetail{}, fmt.Errorf("claim %s: %w", id, model.ErrNotFound)
	}
	return app.ClaimDetail{Claim: model.Claim{ID: "c1", Title: "t"}, Links: []model.Link{}}, nil
}

func (f *fakeDeps) Retract(_ context.Context, req retraction.Request) (retraction.Outcome, error) {
	f.retractReq = req
	if req.Reason == "" {
		return retraction.Outcome{}, retraction.ErrInvalidRequest
	}
	return retraction.Outcome{Retraction: model.Retraction{Claim: model.Claim{ID: req.ClaimID, Retracted: true}}}, nil
}

func (f *fakeDeps) ListLinks(_ context.Context, lf repository.LinkFilter) ([]model.Link, error) {
	f.linkFilter = lf
	return []model.Link{{ID: "l1"}}, nil
}

func (f *fakeDeps) ApproveLink(_ context.Context, id, actor string) (model.Link, error) {
	f.reviewed = append(f.reviewed, "approve:"+id+":"+actor)
	s := model.ReviewApproved
	return model.Link{ID: id, ReviewStatus: &s}, nil
}

func (f *fakeDeps) RejectLink(_ context.Context, id, _ string) (model.Link, error) {
	if id == "missing" {
		return model.Link{}, repository.ErrNotFound
	}
	f.reviewed = append(f.reviewed, "reject:"+id)
	s := model.ReviewRejected
	return model.Link{ID: id, ReviewStatus: &s}, nil
}

func (f *fakeDeps) Milestones(context.Context) ([]scoring.MilestoneProgress, error) {
	return []scoring.MilestoneProgress{{Code: "m1"}}, nil
}

func (f *fakeDeps) Milestone(_ context.Context, code string) (app.MilestoneDetail, error) {
	if f.milestoneErr != nil {
		return app.MilestoneDetail{}, f.milestoneErr
	}
	return app.MilestoneDetail{Milestone: model.Milestone{Code: code}}, nil
}

func (f *fakeDeps) Category(_ context.Context, cat model.Category) (app.CategoryView, error) {
	if !cat.Valid() {
		return app.CategoryView{}, model.ErrNotFound
	}
	return app.CategoryView{Category: cat}, nil
}

func (f *fakeDeps) Index(_ context.Context, preset, date string) (model.IndexSnapshot, error) {
	if f.indexErr != nil {
		return model.IndexSnapshot{}, f.indexErr
	}
	snap := f.snapshot
	snap.Preset, snap.AsOfDate = preset, date
	return snap, nil
}

func (f *fakeDeps) IndexHistory(context.Context, string, string, string) ([]model.IndexSnapshot, error) {
	return nil, nil
}

func (f *fakeDeps) Recompute(_ context.Context, preset, date string) (model.IndexSnapshot, error) {
	f.recomputed = append(f.recomputed, preset)
	return model.IndexSnapshot{Preset: preset, AsOfDate: date}, nil
}

func (f *fakeDeps) Presets() []string { return []string{"equal", "scenario"} }

func (f *fakeDeps) Credibility(_ context.Context, date string) ([]model.SourceCredibilitySnapshot, error) {
	f.credDate = date
	return f.credibility, nil
}

func (f *fakeDeps) RunCredibility(context.Context, string) ([]model.SourceCredibilitySnapshot, int, error) {
	return f.credibility, len(f.credibility), nil
}

func (f *fakeDeps) Ping(context.Context) error { return f.pingErr }

func (f *fakeDeps) GetStats(context.Context) map[string]any {
	return map[string]any{"started": true}
}

func newMux(deps *fakeDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

const validClaim = `{"title":"Lab hits 85% on Benchmark Y","publisher":"Lab",
"published_at":"2026-02-20","source_kind":"paper","evidence_tier":"A"}`

func TestClaimsRoutes(t *testing.T) {
	Convey("Given the API over a fake service", t, func() {
		deps := &fakeDeps{ingest: app.IngestResult{Claim: model.Claim{ID: "c1"}, Status: dedupe.Inserted}}
		mux := newMux(deps)

		Convey("When a new claim is posted", func() {
			w := do(mux, http.MethodPost, "/claims", validClaim)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
		})

		Convey("When a duplicate claim is posted", func() {
			deps.ingest.Status = dedupe.Duplicate
			w := do(mux, http.MethodPost, "/claims", validClaim)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When the claim fails validation", func() {
			w := do(mux, http.MethodPost, "/claims", `{"title":"","publisher":"Lab"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, api.CodeInvalidInput)
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/claims", `{`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the store fails the detail is hidden", func() {
			deps.ingestErr = errors.New("disk on fire")
			w := do(mux, http.MethodPost, "/claims", validClaim)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(errorCode(w), ShouldEqual, api.CodeInternalError)
			So(w.Body.String(), ShouldNotContainSubstring, "disk on fire")
		})

		Convey("When a batch is queued", func() {
			w := do(mux, http.MethodPost, "/claims/batch", "["+validClaim+","+validClaim+"]")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.enqueued, ShouldEqual, 2)
		})

		Convey("When the queue is full", func() {
			deps.enqueueErr = fmt.Errorf("%w: accepted 0 of 1", app.ErrBackpressure)
			w := do(mux, http.MethodPost, "/claims/batch", "["+validClaim+"]")
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(errorCode(w), ShouldEqual, api.CodeBackpressure)
		})

		Convey("When an empty batch is posted", func() {
			w := do(mux, http.MethodPost, "/claims/batch", "[]")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When claims are listed with filters", func() {
			w := do(mux, http.MethodGet,
				"/claims?tier=A&category=capability&min_confidence=0.7&needs_review=true&from=2026-01-01&to=2026-01-31&limit=5", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			f := deps.claimFilter
			So(f.Tier, ShouldEqual, model.TierA)
			So(f.Category, ShouldEqual, model.CategoryCapability)
			So(*f.MinConfidence, ShouldEqual, 0.7)
			So(*f.NeedsReview, ShouldBeTrue)
			So(f.From.Format("2006-01-02"), ShouldEqual, "2026-01-01")
			So(f.To.Hour(), ShouldEqual, 23)
			So(f.Limit, ShouldEqual, 5)
			So(f.Unmapped, ShouldBeNil)
		})

		Convey("When unmapped claims are listed", func() {
			w := do(mux, http.MethodGet, "/claims?unmapped=true", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(*deps.claimFilter.Unmapped, ShouldBeTrue)
		})

		Convey("When a filter is malformed", func() {
			for _, q := range []string{"tier=Z", "min_confidence=high", "needs_review=maybe", "from=yesterday", "limit=-1", "category=fun"} {
				w := do(mux, http.MethodGet, "/claims?"+q, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When a claim is fetched", func() {
			So(do(mux, http.MethodGet, "/claims/c1", "").Code, ShouldEqual, http.StatusOK)
			w := do(mux, http.MethodGet, "/claims/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, api.CodeNotFound)
		})

		Convey("When a claim is retracted", func() {
			w := do(mux, http.MethodPost, "/claims/c1/retract", `{"reason":"fabricated","actor":"editor"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.retractReq.ClaimID, ShouldEqual, "c1")
			So(deps.retractReq.Actor, ShouldEqual, "editor")
		})

		Convey("When a retraction has no reason", func() {
			w := do(mux, http.MethodPost, "/claims/c1/retract", `{}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestLinksRoutes(t *testing.T) {
	Convey("Given the API over a fake service", t, func() {
		deps := &fakeDeps{}
		mux := newMux(deps)

		Convey("When pending links are listed", func() {
			w := do(mux, http.MethodGet, "/links?pending=true&milestone=m1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.linkFilter.Pending, ShouldBeTrue)
			So(deps.linkFilter.MilestoneCode, ShouldEqual, "m1")
		})

		Convey("When links are listed with the claim filters", func() {
			w := do(mux, http.MethodGet, "/links?tier=C&min_confidence=0.99&from=2030-01-01&to=2030-01-31", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			f := deps.linkFilter
			So(f.Tier, ShouldEqual, model.TierC)
			So(*f.MinConfidence, ShouldEqual, 0.99)
			So(f.From.Format("2006-01-02"), ShouldEqual, "2030-01-01")
			So(f.To.Format("2006-01-02"), ShouldEqual, "2030-01-31")
			So(f.To.Hour(), ShouldEqual, 23)
		})

		Convey("When a link filter is malformed", func() {
			for _, q := range []string{"tier=Z", "min_confidence=high", "from=yesterday", "to=soon"} {
				w := do(mux, http.MethodGet, "/links?"+q, "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When a link is approved without a body", func() {
			w := do(mux, http.MethodPost, "/links/l1/approve", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.reviewed, ShouldResemble, []string{"approve:l1:"})
		})

		Convey("When a link is rejected with an actor", func() {
			w := do(mux, http.MethodPost, "/links/l1/reject", `{"actor":"editor"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.reviewed, ShouldResemble, []string{"reject:l1"})
		})

		Convey("When the link does not exist", func() {
			w := do(mux, http.MethodPost, "/links/missing/reject", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the wrong method is used", func() {
			w := do(mux, http.MethodGet, "/links/l1/approve", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestIndexRoutes(t *testing.T) {
	Convey("Given the API over a fake service", t, func() {
		deps := &fakeDeps{}
		mux := newMux(deps)

		Convey("When the index has insufficient data", func() {
			deps.snapshot = model.IndexSnapshot{Overall: model.Insufficient()}
			w := do(mux, http.MethodGet, "/index?preset=equal&date=2026-03-01", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"overall":"insufficient_data"`)
			So(w.Body.String(), ShouldContainSubstring, `"as_of_date":"2026-03-01"`)
		})

		Convey("When the preset is unknown", func() {
			deps.indexErr = fmt.Errorf("%w: %q", app.ErrUnknownPreset, "nope")
			w := do(mux, http.MethodGet, "/index?preset=nope", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a recompute names no preset every preset is rebuilt", func() {
			w := do(mux, http.MethodPost, "/recompute", `{"date":"2026-03-01"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.recomputed, ShouldResemble, []string{"equal", "scenario"})
		})

		Convey("When history is empty", func() {
			w := do(mux, http.MethodGet, "/index/history?preset=equal", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})
	})
}

func TestReadRoutes(t *testing.T) {
	Convey("Given the API over a fake service", t, func() {
		deps := &fakeDeps{credibility: []model.SourceCredibilitySnapshot{{Publisher: "Lab", Tier: model.LowConfidence}}}
		mux := newMux(deps)

		Convey("Milestones and categories are served", func() {
			So(do(mux, http.MethodGet, "/milestones", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/milestones/m1", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/categories/security", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/categories/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("An unknown milestone is 404", func() {
			deps.milestoneErr = fmt.Errorf("milestone %q: %w", "x", model.ErrNotFound)
			So(do(mux, http.MethodGet, "/milestones/x", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Credibility is listed and snapshotted", func() {
			w := do(mux, http.MethodGet, "/credibility?date=2026-03-01", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.credDate, ShouldEqual, "2026-03-01")
			So(w.Body.String(), ShouldContainSubstring, `"credibility_tier":"low_confidence"`)

			w = do(mux, http.MethodPost, "/credibility/snapshot", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"inserted":1`)
		})

		Convey("Health reflects the database", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			deps.pingErr = errors.New("closed")
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Stats and metrics are served", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			So(do(mux, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("boom")

		Convey("WrapKind matches both kind and cause", func() {
			err := api.WrapKind("op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "op: bad request: boom")
		})

		Convey("NewKind and Wrap format their parts", func() {
			So(api.NewKind("op", api.ErrBackpressure).Error(), ShouldEqual, "op: backpressure")
			So(api.Wrap("op", cause).Error(), ShouldEqual, "op: boom")
			So(api.Wrap("op", nil), ShouldBeNil)
		})
	})
}

func TestRecover(t *testing.T) {
	Convey("Given a handler that panics", t, func() {
		h := api.Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("bad") }))
		w := do(h, http.MethodGet, "/", "")
		So(w.Code, ShouldEqual, http.StatusInternalServerError)
		So(errorCode(w), ShouldEqual, api.CodeInternalError)
	})
}
