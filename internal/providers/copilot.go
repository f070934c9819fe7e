package providers

import (
	"context"
	"fmt"

	copilot "github.com/github/copilot-sdk/go"
)

const (
	copilotFastModel    = "gpt-4o-mini"
	copilotComplexModel = "claude-sonnet-4.5"
)

// CopilotProvider calls the GitHub Copilot chat completion API via a
// user's Copilot subscription token (COPILOT_API_KEY), offered as an
// enrichment variant alongside the directly-HTTP providers.
type CopilotProvider struct {
	client *copilot.Client
}

func NewCopilotProvider(apiKey string) *CopilotProvider {
	return &CopilotProvider{client: copilot.NewClient(apiKey)}
}

func (p *CopilotProvider) Name() string        { return "copilot" }
func (p *CopilotProvider) RequiresAPIKey() bool { return true }
func (p *CopilotProvider) FastModel() string    { return copilotFastModel }
func (p *CopilotProvider) ComplexModel() string { return copilotComplexModel }

func (p *CopilotProvider) IsAvailable(ctx context.Context) bool {
	return p.client != nil
}

func (p *CopilotProvider) Complete(ctx context.Context, req CompletionRequest) (*LLMResponse, error) {
	messages := make([]copilot.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, copilot.ChatMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, copilot.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("copilot chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &LLMResponse{FinishReason: "stop"}, nil
	}

	return &LLMResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		Usage: &UsageInfo{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
