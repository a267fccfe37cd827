package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/pulseroad/pulse/backend/internal/metrics"
)

// OpenAIVLM talks to a hosted OpenAI-compatible API through the
// official SDK.
type OpenAIVLM struct {
	client openai.Client
	model  string
}

// NewOpenAIVLM creates a hosted vision-model client. baseURL may be
// empty for the default API endpoint.
func NewOpenAIVLM(apiKey, baseURL, model string) *OpenAIVLM {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIVLM{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *OpenAIVLM) Assess(ctx context.Context, frames [][]byte, prompt, systemPrompt string) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	for _, frame := range frames {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame),
		}))
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(parts),
		},
	})
	if err != nil {
		metrics.Errors.WithLabelValues("vlm", "api").Inc()
		return "", fmt.Errorf("vlm request: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.Errors.WithLabelValues("vlm", "shape").Inc()
		return "", fmt.Errorf("vlm response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
