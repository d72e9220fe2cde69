package oracle_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/oracle"
	"github.com/okian/signpost/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var milestones = []model.Milestone{
	{Code: "benchmark_y_85", Name: "Benchmark Y accuracy", Category: model.CategoryCapability},
	{Code: "compute_cost", Name: "Training compute cost", Description: "dollars per petaflop", Category: model.CategoryInput},
}

func known(code string) bool {
	for _, m := range milestones {
		if m.Code == code {
			return true
		}
	}
	return false
}

func TestAdapter(t *testing.T) {
	Convey("Given an oracle adapter", t, func() {
		ctx := context.Background()

		Convey("When the backend answers", func() {
			a := oracle.NewAdapter(oracle.SuggesterFunc(func(context.Context, string) ([]model.Suggestion, error) {
				return []model.Suggestion{
					{MilestoneCode: "benchmark_y_85", Confidence: 1.7, Rationale: "mentions benchmark"},
					{MilestoneCode: "benchmark_y_85", Confidence: 0.4},
					{MilestoneCode: "invented_code", Confidence: 0.9},
				}, nil
			}), oracle.WithKnownMilestones(known))
			got := a.Candidates(ctx, "text")

			Convey("Then unknown codes are dropped and confidence is clamped", func() {
				So(len(got), ShouldEqual, 1)
				So(got[0].MilestoneCode, ShouldEqual, "benchmark_y_85")
				So(got[0].BaseConfidence, ShouldEqual, 1.0)
				So(got[0].Source, ShouldEqual, model.SourceOracle)
			})
		})

		Convey("When the backend fails", func() {
			a := oracle.NewAdapter(oracle.SuggesterFunc(func(context.Context, string) ([]model.Suggestion, error) {
				return nil, errors.New("upstream 500")
			}))
			So(a.Candidates(ctx, "text"), ShouldBeEmpty)
		})

		Convey("When the backend hangs past the timeout", func() {
			a := oracle.NewAdapter(oracle.SuggesterFunc(func(ctx context.Context, _ string) ([]model.Suggestion, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}), oracle.WithTimeout(20*time.Millisecond))
			start := time.Now()
			got := a.Candidates(ctx, "text")

			Convey("Then the call returns promptly with nothing", func() {
				So(got, ShouldBeEmpty)
				So(time.Since(start), ShouldBeLessThan, 2*time.Second)
			})
		})

		Convey("When the backend panics", func() {
			a := oracle.NewAdapter(oracle.SuggesterFunc(func(context.Context, string) ([]model.Suggestion, error) {
				panic("boom")
			}))
			So(func() { a.Candidates(ctx, "text") }, ShouldNotPanic)
		})

		Convey("When no backend is configured", func() {
			a := oracle.NewAdapter(nil)
			So(a.Enabled(), ShouldBeFalse)
			So(a.Candidates(ctx, "text"), ShouldBeNil)
		})
	})
}

func TestOpenAI(t *testing.T) {
	Convey("Given an OpenAI-compatible endpoint", t, func() {
		var gotModel string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var req openai.ChatCompletionRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			gotModel = req.Model
			resp := openai.ChatCompletionResponse{
				ID:    "chatcmpl-1",
				Model: req.Model,
				Choices: []openai.ChatCompletionChoice{{
					Message: openai.ChatCompletionMessage{
						Role:    openai.ChatMessageRoleAssistant,
						Content: "```json\n{\"suggestions\":[{\"milestone_code\":\"compute_cost\",\"confidence\":0.55,\"rationale\":\"cost per flop\"}]}\n```",
					},
					FinishReason: openai.FinishReasonStop,
				}},
			}
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		backend, err := oracle.NewOpenAI(oracle.OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini"}, milestones)
		So(err, ShouldBeNil)

		Convey("When suggestions are requested", func() {
			got, err := backend.Suggest(context.Background(), "Training cost per petaflop halves")

			Convey("Then the JSON answer is decoded", func() {
				So(err, ShouldBeNil)
				So(gotModel, ShouldEqual, "gpt-4o-mini")
				So(len(got), ShouldEqual, 1)
				So(got[0].MilestoneCode, ShouldEqual, "compute_cost")
				So(got[0].Confidence, ShouldEqual, 0.55)
			})
		})

		Convey("When the key is missing", func() {
			_, err := oracle.NewOpenAI(oracle.OpenAIConfig{}, milestones)
			So(errors.Is(err, oracle.ErrNoAPIKey), ShouldBeTrue)
		})
	})

	Convey("Given an endpoint that errors", t, func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()
		backend, _ := oracle.NewOpenAI(oracle.OpenAIConfig{APIKey: "k", BaseURL: server.URL}, milestones)
		a := oracle.NewAdapter(backend)

		Convey("Then the adapter degrades to no candidates", func() {
			So(a.Candidates(context.Background(), "anything"), ShouldBeEmpty)
		})
	})
}

func TestKeyword(t *testing.T) {
	Convey("Given the keyword classifier", t, func() {
		k := oracle.NewKeyword(milestones)

		Convey("When text shares most distinctive terms", func() {
			got, err := k.Suggest(context.Background(), "New training compute cost figures released")
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].MilestoneCode, ShouldEqual, "compute_cost")
			So(got[0].Confidence, ShouldBeBetween, 0.3, 0.71)
		})

		Convey("When text is unrelated", func() {
			got, err := k.Suggest(context.Background(), "Stock markets rallied")
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})
	})
}
