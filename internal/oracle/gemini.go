package oracle

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// #region gemini-backend

// GeminiBackend calls the Gemini API through the genai SDK.
type GeminiBackend struct {
	client *genai.Client
}

// NewGeminiBackend creates a Gemini client for apiKey.
func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

// Name implements Backend.
func (b *GeminiBackend) Name() string { return "gemini" }

// Complete implements Backend. System messages become the system instruction;
// assistant turns are sent with the model role.
func (b *GeminiBackend) Complete(ctx context.Context, model string, messages []Message) (Completion, error) {
	var cfg *genai.GenerateContentConfig
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(m.Content, genai.RoleUser)}
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	resp, err := b.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Completion{}, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Completion{}, nil
	}
	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return Completion{Text: sb.String(), FinishReason: geminiFinish(cand.FinishReason)}, nil
}

func geminiFinish(r genai.FinishReason) string {
	if r == genai.FinishReasonStop {
		return FinishStop
	}
	return strings.ToLower(string(r))
}

// #endregion gemini-backend
