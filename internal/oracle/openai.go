package oracle

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// #region openai-backend

// OpenAIBackend talks to any OpenAI-compatible chat endpoint, including a
// local vLLM server.
type OpenAIBackend struct {
	client      *openai.Client
	temperature float32
}

// NewOpenAIBackend builds a backend. An empty baseURL keeps the hosted API;
// an empty apiKey is sent as "EMPTY" for local servers.
func NewOpenAIBackend(baseURL, apiKey string, temperature float32) *OpenAIBackend {
	if apiKey == "" {
		apiKey = "EMPTY"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), temperature: temperature}
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return "openai" }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, model string, messages []Message) (Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: b.temperature,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, nil
	}
	choice := resp.Choices[0]
	return Completion{Text: choice.Message.Content, FinishReason: string(choice.FinishReason)}, nil
}

// #endregion openai-backend
