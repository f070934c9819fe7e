package providers

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIFastModel    = "gpt-4o-mini"
	openAIComplexModel = "gpt-4o"
)

// OpenAIProvider calls the Chat Completions API. Its base URL is
// swappable, which is what NewOllamaProvider and NewOpenRouterProvider
// build on top of instead of duplicating the request-building logic.
type OpenAIProvider struct {
	client       sdk.Client
	name         string
	requiresKey  bool
	fastModel    string
	complexModel string
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client:       sdk.NewClient(option.WithAPIKey(apiKey)),
		name:         "openai",
		requiresKey:  true,
		fastModel:    openAIFastModel,
		complexModel: openAIComplexModel,
	}
}

// NewOpenRouterProvider reuses the OpenAI-compatible client shape against
// OpenRouter's endpoint.
func NewOpenRouterProvider(apiKey, fastModel, complexModel string) *OpenAIProvider {
	return &OpenAIProvider{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL("https://openrouter.ai/api/v1"),
		),
		name:         "openrouter",
		requiresKey:  true,
		fastModel:    fastModel,
		complexModel: complexModel,
	}
}

// NewOllamaProvider reuses the OpenAI-compatible client shape against a
// local Ollama server, which serves an OpenAI-compatible /v1 surface and
// accepts any non-empty API key.
func NewOllamaProvider(baseURL, fastModel, complexModel string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return &OpenAIProvider{
		client: sdk.NewClient(
			option.WithAPIKey("ollama"),
			option.WithBaseURL(baseURL),
		),
		name:         "ollama",
		requiresKey:  false,
		fastModel:    fastModel,
		complexModel: complexModel,
	}
}

func (p *OpenAIProvider) Name() string        { return p.name }
func (p *OpenAIProvider) RequiresAPIKey() bool { return p.requiresKey }
func (p *OpenAIProvider) FastModel() string    { return p.fastModel }
func (p *OpenAIProvider) ComplexModel() string { return p.complexModel }

func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	return true
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*LLMResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(req.Model),
		Messages: adaptMessagesForOpenAI(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = adaptToolsForOpenAI(req.Tools)
	}

	comp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(comp.Choices) == 0 {
		return &LLMResponse{FinishReason: "stop"}, nil
	}

	msg := comp.Choices[0].Message
	resp := &LLMResponse{
		Content:      msg.Content,
		FinishReason: string(comp.Choices[0].FinishReason),
		Usage: &UsageInfo{
			PromptTokens:     int(comp.Usage.PromptTokens),
			CompletionTokens: int(comp.Usage.CompletionTokens),
			TotalTokens:      int(comp.Usage.TotalTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]interface{}{"raw": tc.Function.Arguments}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return resp, nil
}

func adaptMessagesForOpenAI(messages []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "user":
			out = append(out, sdk.UserMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		case "tool":
			out = append(out, sdk.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func adaptToolsForOpenAI(tools []ToolDefinition) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: sdk.String(t.Function.Description),
			Parameters:  t.Function.Parameters,
		}))
	}
	return out
}
