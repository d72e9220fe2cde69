package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/signpost/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestRawClaimValidate(t *testing.T) {
	convey.Convey("Given a raw claim from a collector", t, func() {
		raw := model.RawClaim{
			Title:        "  Model X scores 85% on Benchmark Y ",
			Summary:      "LabCo reports a new result.",
			Publisher:    "LabCo",
			PublishedAt:  "2024-06-01",
			SourceKind:   "Paper",
			EvidenceTier: "a",
		}

		convey.Convey("When every field is well formed", func() {
			claim, err := raw.Validate()

			convey.Convey("Then the claim is normalized", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(claim.Title, convey.ShouldEqual, "Model X scores 85% on Benchmark Y")
				convey.So(claim.Tier, convey.ShouldEqual, model.TierA)
				convey.So(claim.SourceKind, convey.ShouldEqual, model.SourcePaper)
				convey.So(claim.PublishedAt.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the title is blank", func() {
			raw.Title = "   "
			_, err := raw.Validate()

			convey.Convey("Then a validation error naming the field is returned", func() {
				convey.So(errors.Is(err, model.ErrInvalidClaim), convey.ShouldBeTrue)
				var verr *model.ValidationError
				convey.So(errors.As(err, &verr), convey.ShouldBeTrue)
				convey.So(verr.Field, convey.ShouldEqual, "title")
			})
		})

		convey.Convey("When the date cannot be parsed", func() {
			raw.PublishedAt = "June 1st"
			_, err := raw.Validate()
			convey.So(errors.Is(err, model.ErrInvalidClaim), convey.ShouldBeTrue)
		})

		convey.Convey("When the tier is outside the enumeration", func() {
			raw.EvidenceTier = "E"
			_, err := raw.Validate()
			convey.So(errors.Is(err, model.ErrInvalidClaim), convey.ShouldBeTrue)
		})

		convey.Convey("When the source kind is missing", func() {
			raw.SourceKind = ""
			claim, err := raw.Validate()
			convey.So(err, convey.ShouldBeNil)
			convey.So(claim.SourceKind, convey.ShouldEqual, model.SourceNews)
		})

		convey.Convey("When the timestamp carries a zone", func() {
			raw.PublishedAt = "2024-06-01T23:30:00-02:00"
			claim, err := raw.Validate()
			convey.So(err, convey.ShouldBeNil)
			convey.So(claim.PublishedAt.Location(), convey.ShouldEqual, time.UTC)
			convey.So(model.DateOf(claim.PublishedAt), convey.ShouldEqual, "2024-06-02")
		})
	})
}

func TestOverallScoreJSON(t *testing.T) {
	convey.Convey("Given overall scores", t, func() {
		convey.Convey("When the score is insufficient", func() {
			b, err := json.Marshal(model.Insufficient())
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, `"insufficient_data"`)

			var back model.OverallScore
			convey.So(json.Unmarshal(b, &back), convey.ShouldBeNil)
			convey.So(back.Known, convey.ShouldBeFalse)
		})

		convey.Convey("When the score is a numeric zero", func() {
			b, err := json.Marshal(model.Score(0))
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, "0")

			var back model.OverallScore
			convey.So(json.Unmarshal(b, &back), convey.ShouldBeNil)
			convey.So(back.Known, convey.ShouldBeTrue)
		})

		convey.Convey("When an unknown marker is decoded", func() {
			var back model.OverallScore
			convey.So(json.Unmarshal([]byte(`"n/a"`), &back), convey.ShouldNotBeNil)
		})
	})
}

func TestTiers(t *testing.T) {
	convey.Convey("Only A and B tiers are verified", t, func() {
		convey.So(model.TierA.Verified(), convey.ShouldBeTrue)
		convey.So(model.TierB.Verified(), convey.ShouldBeTrue)
		convey.So(model.TierC.Verified(), convey.ShouldBeFalse)
		convey.So(model.TierD.Verified(), convey.ShouldBeFalse)
	})
}
