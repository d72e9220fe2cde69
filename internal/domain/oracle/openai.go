package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/okian/signpost/internal/domain/model"
)

const (
	defaultOpenAIModel = openai.GPT4oMini
	openAIMaxTokens    = 400
	openAITemperature  = 0.1
)

// ErrNoAPIKey is returned when the OpenAI backend is configured without a key.
var ErrNoAPIKey = errors.New("openai api key is required")

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAI suggests milestones with a chat completion in JSON mode. Any
// OpenAI-compatible endpoint works through BaseURL.
type OpenAI struct {
	client     *openai.Client
	model      string
	milestones []model.Milestone
}

// NewOpenAI creates the backend. milestones are listed in the prompt so the
// model can only answer with configured codes.
func NewOpenAI(cfg OpenAIConfig, milestones []model.Milestone) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	m := cfg.Model
	if m == "" {
		m = defaultOpenAIModel
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      m,
		milestones: milestones,
	}, nil
}

type openAIAnswer struct {
	Suggestions []model.Suggestion `json:"suggestions"`
}

// Suggest implements Suggester.
func (o *OpenAI) Suggest(ctx context.Context, text string) ([]model.Suggestion, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:      openAIMaxTokens,
		Temperature:    openAITemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}
	return parseAnswer(resp.Choices[0].Message.Content)
}

func (o *OpenAI) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify news about AI progress against a fixed list of milestones.\n")
	b.WriteString("Answer with JSON only: {\"suggestions\":[{\"milestone_code\":\"...\",\"confidence\":0.0,\"rationale\":\"...\"}]}.\n")
	b.WriteString("Use only codes from the list. Return an empty list when nothing applies.\n\nMilestones:\n")
	for i := range o.milestones {
		m := &o.milestones[i]
		fmt.Fprintf(&b, "- %s (%s): %s\n", m.Code, m.Category, m.Name)
	}
	return b.String()
}

func parseAnswer(content string) ([]model.Suggestion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	var ans openAIAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &ans); err != nil {
		return nil, fmt.Errorf("decode oracle answer: %w", err)
	}
	return ans.Suggestions, nil
}
