package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeminiProvider calls Google's Generative Language API directly over
// HTTP. No SDK in the example pack covers Gemini, so this is the one
// provider built on stdlib net/http; every other provider reuses an
// ecosystem client.
type GeminiProvider struct {
	apiKey     string
	httpClient *http.Client
}

const (
	geminiFastModel    = "gemini-2.0-flash"
	geminiComplexModel = "gemini-2.5-pro"
	geminiBaseURL       = "https://generativelanguage.googleapis.com/v1beta/models"
)

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, httpClient: &http.Client{Timeout: 120 * time.Second}}
}

func (p *GeminiProvider) Name() string           { return "gemini" }
func (p *GeminiProvider) RequiresAPIKey() bool    { return true }
func (p *GeminiProvider) FastModel() string       { return geminiFastModel }
func (p *GeminiProvider) ComplexModel() string    { return geminiComplexModel }
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	return p.apiKey != ""
}

type geminiContent struct {
	Role  string             `json:"role,omitempty"`
	Parts []geminiContentPart `json:"parts"`
}

type geminiContentPart struct {
	Text string `json:"text"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*LLMResponse, error) {
	body := geminiRequest{}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			body.SystemInstruction = &geminiContent{Parts: []geminiContentPart{{Text: m.Content}}}
		case "user", "tool":
			body.Contents = append(body.Contents, geminiContent{Role: "user", Parts: []geminiContentPart{{Text: m.Content}}})
		case "assistant":
			body.Contents = append(body.Contents, geminiContent{Role: "model", Parts: []geminiContentPart{{Text: m.Content}}})
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiBaseURL, req.Model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini request failed: status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return &LLMResponse{FinishReason: "stop"}, nil
	}

	var content string
	for _, part := range parsed.Candidates[0].Content.Parts {
		content += part.Text
	}

	return &LLMResponse{
		Content:      content,
		FinishReason: parsed.Candidates[0].FinishReason,
		Usage: &UsageInfo{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
	}, nil
}
