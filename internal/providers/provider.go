// Package providers implements the pluggable LLM backend contract: one
// CLI subprocess provider and a set of direct HTTP providers, all
// satisfying the same four-operation capability set so the gateway can
// pick one at startup and never branch on provider identity again.
package providers

import "context"

// Message is one turn in a provider-bound conversation.
type Message struct {
	Role       string // "system" | "user" | "assistant" | "tool"
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
	Function  *ToolCallFunction
}

// ToolCallFunction carries the raw, unparsed function-call form some
// APIs return instead of a pre-decoded arguments map.
type ToolCallFunction struct {
	Name      string
	Arguments string
}

// ToolDefinition describes one callable tool offered to the model.
type ToolDefinition struct {
	Function ToolFunction
}

type ToolFunction struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// UsageInfo reports token accounting for one completion.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is a completed provider call's result.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	SessionID    string // provider-assigned resumable session id, if any
	Usage        *UsageInfo
	Options      map[string]interface{} // provider-specific extra metadata (e.g. processing_ms)
}

// CompletionRequest bundles everything a Provider needs to produce one
// reply: the composed system+history+current-message context, the model
// tier to use, and (for the CLI provider) a resumable session id.
type CompletionRequest struct {
	Messages  []Message
	Tools     []ToolDefinition
	Model     string
	SessionID string
	MaxTurns  int
	Options   map[string]interface{}
}

// Provider is the polymorphic capability every variant satisfies:
// claude-code (subprocess CLI), anthropic, openai, ollama, openrouter,
// gemini, copilot.
type Provider interface {
	Name() string
	RequiresAPIKey() bool
	Complete(ctx context.Context, req CompletionRequest) (*LLMResponse, error)
	IsAvailable(ctx context.Context) bool
	FastModel() string
	ComplexModel() string
}
