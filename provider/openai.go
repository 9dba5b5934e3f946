// Package provider holds the external service clients the pipeline runs
// against: OpenAI chat completions and the LlamaParse document parser.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jcsk/pdf2qa/logger"
	"github.com/jcsk/pdf2qa/pipeline"
)

// OpenAIClient implements pipeline.CompletionClient over the OpenAI chat
// completions API with bounded retries for rate limits and server errors.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client for the given API key. A missing key is a
// construction error since every call would fail anyway.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("NewOpenAIClient: API key is empty")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client}, nil
}

// Complete runs one chat completion and maps the response text and token
// usage back into the pipeline's neutral result shape.
func (c *OpenAIClient) Complete(ctx context.Context, req pipeline.CompletionRequest) (pipeline.CompletionResult, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return pipeline.CompletionResult{}, fmt.Errorf("Complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return pipeline.CompletionResult{}, errors.New("Complete: response has no choices")
	}

	result := pipeline.CompletionResult{Text: resp.Choices[0].Message.Content}
	if resp.Usage.TotalTokens > 0 {
		result.Usage = &pipeline.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		}
	}
	return result, nil
}

func (c *OpenAIClient) callWithRetry(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	const maxRetries = 3
	rateLimitWaitTimes := []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second}
	serverErrorWaitTimes := []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				if attempt < maxRetries-1 {
					logger.Warn("rate limit hit, waiting %s before retry", rateLimitWaitTimes[attempt])
					time.Sleep(rateLimitWaitTimes[attempt])
					continue
				}
			} else if isServerError(err) {
				if attempt < maxRetries-1 {
					logger.Warn("server error, waiting %s before retry", serverErrorWaitTimes[attempt])
					time.Sleep(serverErrorWaitTimes[attempt])
					continue
				}
			}
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", maxRetries)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
