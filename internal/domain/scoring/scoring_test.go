package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr(v float64) *float64 { return &v }

var (
	day   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixed = func() time.Time { return day }
)

func milestones() []model.Milestone {
	return []model.Milestone{
		{Code: "benchmark_y_85", Category: model.CategoryCapability, Baseline: 50, Target: 85, Direction: model.Increasing, Primary: true},
		{Code: "reasoning_80", Category: model.CategoryCapability, Baseline: 40, Target: 80, Direction: model.Increasing},
		{Code: "compute_cost", Category: model.CategoryInput, Baseline: 100, Target: 10, Direction: model.Decreasing},
		{Code: "compute_watch", Category: model.CategoryInput, Baseline: 0, Target: 1, Direction: model.Increasing, MonitorOnly: true},
		{Code: "jailbreak_rate", Category: model.CategorySecurity, Baseline: 50, Target: 5, Direction: model.Decreasing},
	}
}

func link(id, code string, tier model.Tier, value *float64) model.Link {
	return model.Link{
		ID: id, ClaimID: "claim-" + id, MilestoneCode: code,
		Confidence: 0.8, Relation: model.RelationSupports, Tier: tier,
		ObservedAt: day.Add(-24 * time.Hour), ObservedValue: value,
	}
}

func TestProgress(t *testing.T) {
	Convey("Given milestone directions", t, func() {
		inc := &model.Milestone{Baseline: 50, Target: 85, Direction: model.Increasing}
		dec := &model.Milestone{Baseline: 100, Target: 10, Direction: model.Decreasing}

		Convey("Increasing progress is linear and clamped", func() {
			So(scoring.Progress(inc, 50), ShouldEqual, 0)
			So(scoring.Progress(inc, 85), ShouldEqual, 1)
			So(scoring.Progress(inc, 67.5), ShouldAlmostEqual, 0.5, 1e-9)
			So(scoring.Progress(inc, 120), ShouldEqual, 1)
			So(scoring.Progress(inc, 10), ShouldEqual, 0)
		})

		Convey("Decreasing progress mirrors it", func() {
			So(scoring.Progress(dec, 100), ShouldEqual, 0)
			So(scoring.Progress(dec, 10), ShouldEqual, 1)
			So(scoring.Progress(dec, 55), ShouldAlmostEqual, 0.5, 1e-9)
			So(scoring.Progress(dec, 0), ShouldEqual, 1)
		})
	})
}

func TestScore(t *testing.T) {
	Convey("Given an engine with the default preset", t, func() {
		e := scoring.New(scoring.WithClock(fixed))
		ctx := context.Background()

		Convey("A verified claim at target completes its milestone", func() {
			links := []model.Link{
				link("1", "benchmark_y_85", model.TierA, ptr(85)),
				link("2", "compute_cost", model.TierB, ptr(55)),
			}
			snap, err := e.Score(ctx, scoring.Input{Milestones: milestones(), Links: links, AsOf: day})
			So(err, ShouldBeNil)

			progress := e.Milestones(milestones(), links, day)
			So(progress["benchmark_y_85"].Progress, ShouldEqual, 1)
			So(progress["benchmark_y_85"].Defined, ShouldBeTrue)
			So(progress["reasoning_80"].Defined, ShouldBeFalse)

			// capability: (2*1 + 1*0) / 3
			So(snap.Categories[model.CategoryCapability].Progress, ShouldAlmostEqual, 2.0/3, 1e-9)
			So(snap.Categories[model.CategoryCapability].Undefined, ShouldEqual, 1)
			// input composite excludes the monitor-only milestone
			So(snap.Categories[model.CategoryInput].Composite, ShouldAlmostEqual, 0.5, 1e-9)
			So(snap.Categories[model.CategoryInput].Progress, ShouldAlmostEqual, 0.25, 1e-9)

			So(snap.Overall.Known, ShouldBeTrue)
			want := 2 / (1/(2.0/3) + 1/0.5)
			So(snap.Overall.Value, ShouldAlmostEqual, want, 1e-9)
			So(snap.AsOfDate, ShouldEqual, "2026-03-01")
			So(snap.Preset, ShouldEqual, scoring.DefaultPreset)
		})

		Convey("Retracting the only capability evidence makes the overall insufficient", func() {
			links := []model.Link{
				link("1", "benchmark_y_85", model.TierA, ptr(85)),
				link("2", "compute_cost", model.TierB, ptr(55)),
			}
			links[0].ClaimRetracted = true
			snap, err := e.Score(ctx, scoring.Input{Milestones: milestones(), Links: links, AsOf: day})
			So(err, ShouldBeNil)
			So(snap.Overall.Known, ShouldBeFalse)
			So(snap.Overall.String(), ShouldEqual, model.InsufficientData)
			So(snap.Categories[model.CategoryCapability].Progress, ShouldEqual, 0)
		})

		Convey("Unverified and pending links do not move the gauge", func() {
			pending := link("3", "benchmark_y_85", model.TierA, ptr(85))
			pending.NeedsReview = true
			links := []model.Link{
				link("1", "benchmark_y_85", model.TierC, ptr(85)),
				pending,
				link("2", "compute_cost", model.TierB, ptr(55)),
			}
			progress := e.Milestones(milestones(), links, day)
			So(progress["benchmark_y_85"].Defined, ShouldBeFalse)

			approved := model.ReviewApproved
			links[1].ReviewStatus = &approved
			progress = e.Milestones(milestones(), links, day)
			So(progress["benchmark_y_85"].Defined, ShouldBeTrue)
		})

		Convey("Evidence observed after the as-of date is ignored", func() {
			late := link("1", "benchmark_y_85", model.TierA, ptr(85))
			late.ObservedAt = day.Add(48 * time.Hour)
			progress := e.Milestones(milestones(), []model.Link{late}, day)
			So(progress["benchmark_y_85"].Defined, ShouldBeFalse)

			progress = e.Milestones(milestones(), []model.Link{late}, day.Add(72*time.Hour))
			So(progress["benchmark_y_85"].Defined, ShouldBeTrue)
		})

		Convey("The most recent contributing link sets the observed value", func() {
			older := link("1", "reasoning_80", model.TierA, ptr(80))
			older.ObservedAt = day.Add(-72 * time.Hour)
			newer := link("2", "reasoning_80", model.TierB, ptr(60))
			progress := e.Milestones(milestones(), []model.Link{older, newer}, day)
			So(*progress["reasoning_80"].Observed, ShouldEqual, 60)
			So(progress["reasoning_80"].Progress, ShouldAlmostEqual, 0.5, 1e-9)
			So(progress["reasoning_80"].Contributing, ShouldHaveLength, 2)
		})

		Convey("A supporting link without a value counts as reaching the target", func() {
			progress := e.Milestones(milestones(), []model.Link{link("1", "reasoning_80", model.TierA, nil)}, day)
			So(progress["reasoning_80"].Progress, ShouldEqual, 1)
		})

		Convey("A zero anchor composite gives an overall of zero", func() {
			links := []model.Link{
				link("1", "benchmark_y_85", model.TierA, ptr(50)),
				link("2", "compute_cost", model.TierA, ptr(55)),
			}
			snap, err := e.Score(ctx, scoring.Input{Milestones: milestones(), Links: links, AsOf: day})
			So(err, ShouldBeNil)
			So(snap.Overall.Known, ShouldBeTrue)
			So(snap.Overall.Value, ShouldEqual, 0)
		})

		Convey("Safety margin compares security against capability", func() {
			links := []model.Link{
				link("1", "benchmark_y_85", model.TierA, ptr(85)),
				link("2", "compute_cost", model.TierB, ptr(55)),
				link("3", "jailbreak_rate", model.TierA, ptr(27.5)),
			}
			snap, err := e.Score(ctx, scoring.Input{Milestones: milestones(), Links: links, AsOf: day})
			So(err, ShouldBeNil)
			So(snap.SafetyMargin, ShouldNotBeNil)
			So(*snap.SafetyMargin, ShouldAlmostEqual, 0.5-2.0/3, 1e-9)
		})

		Convey("An unknown preset is rejected", func() {
			_, err := e.Score(ctx, scoring.Input{Milestones: milestones(), Preset: "nope"})
			So(errors.Is(err, scoring.ErrUnknownPreset), ShouldBeTrue)
		})

		Convey("A cancelled context stops the computation", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := e.Score(cctx, scoring.Input{Milestones: milestones()})
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestPresets(t *testing.T) {
	Convey("Given two presets weighting anchors differently", t, func() {
		e := scoring.New(scoring.WithClock(fixed), scoring.WithPresets(map[string]map[model.Category]float64{
			"equal":      {model.CategoryCapability: 1, model.CategoryInput: 1},
			"capability": {model.CategoryCapability: 3, model.CategoryInput: 1},
		}))
		links := []model.Link{
			link("1", "benchmark_y_85", model.TierA, ptr(85)),
			link("2", "compute_cost", model.TierB, ptr(55)),
		}
		in := scoring.Input{Milestones: milestones(), Links: links, AsOf: day}

		equal, err := e.Score(context.Background(), in)
		So(err, ShouldBeNil)
		in.Preset = "capability"
		heavy, err := e.Score(context.Background(), in)
		So(err, ShouldBeNil)

		Convey("Category progress is preset independent", func() {
			So(heavy.Categories, ShouldResemble, equal.Categories)
		})

		Convey("The overall follows the preset weights", func() {
			So(heavy.Overall.Value, ShouldBeGreaterThan, equal.Overall.Value)
			So(e.Presets(), ShouldResemble, []string{"capability", "equal"})
			So(e.HasPreset("capability"), ShouldBeTrue)
		})
	})
}

func TestBands(t *testing.T) {
	Convey("Given growing evidence", t, func() {
		e := scoring.New()
		prev := e.BandWidth(0)
		So(prev, ShouldEqual, 0.5)

		Convey("Band width never widens", func() {
			var links []model.Link
			for i := 0; i < 10; i++ {
				links = append(links, link(string(rune('a'+i)), "benchmark_y_85", model.TierB, ptr(70)))
				progress := e.Milestones(milestones(), links, day)
				w := progress["benchmark_y_85"].BandWidth
				So(w, ShouldBeLessThanOrEqualTo, prev)
				prev = w
			}
		})

		Convey("A tier A link narrows more than a tier B link", func() {
			a := e.Milestones(milestones(), []model.Link{link("a", "reasoning_80", model.TierA, ptr(60))}, day)
			b := e.Milestones(milestones(), []model.Link{link("b", "reasoning_80", model.TierB, ptr(60))}, day)
			So(a["reasoning_80"].BandWidth, ShouldBeLessThan, b["reasoning_80"].BandWidth)
		})

		Convey("Scale and tier weights are configurable", func() {
			custom := scoring.New(
				scoring.WithBandScale(1),
				scoring.WithTierWeights(map[model.Tier]float64{model.TierA: 1, model.TierB: 1}),
				scoring.WithAnchors(model.CategoryCapability, model.CategoryAgentic),
			)
			So(custom.BandWidth(0), ShouldEqual, 1)
			So(custom.BandWidth(3), ShouldEqual, 0.5)
			So(custom.Anchors(), ShouldResemble, []model.Category{model.CategoryCapability, model.CategoryAgentic})
			a := custom.Milestones(milestones(), []model.Link{link("a", "reasoning_80", model.TierA, ptr(60))}, day)
			b := custom.Milestones(milestones(), []model.Link{link("b", "reasoning_80", model.TierB, ptr(60))}, day)
			So(a["reasoning_80"].BandWidth, ShouldEqual, b["reasoning_80"].BandWidth)
		})
	})
}
