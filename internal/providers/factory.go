package providers

import (
	"fmt"
	"os"

	"github.com/omegacorp/omega/internal/config"
	"github.com/omegacorp/omega/internal/gwerrors"
	"github.com/omegacorp/omega/internal/mcp"
)

// FromConfig selects and constructs the Provider named by cfg.Provider.Default.
// A variant's API key is cfg.Provider.<variant>.APIKey from the config
// file when set, otherwise the environment variable named by
// config.ProviderAPIKeyEnv. The key is read once, when the provider is
// constructed; a later change to the variable takes effect only on restart.
func FromConfig(cfg *config.Config) (Provider, error) {
	switch cfg.Provider.Default {
	case "", "claude-code":
		return claudeCodeFromConfig(cfg.Provider.ClaudeCode)
	case "anthropic":
		return anthropicFromConfig(cfg.Provider.Anthropic)
	case "openai":
		return openAIFromConfig(cfg.Provider.OpenAI)
	case "ollama":
		return ollamaFromConfig(cfg.Provider.Ollama)
	case "openrouter":
		return openRouterFromConfig(cfg.Provider.OpenRouter)
	case "gemini":
		return geminiFromConfig(cfg.Provider.Gemini)
	case "copilot":
		return copilotFromConfig(cfg.Provider.Copilot)
	default:
		return nil, gwerrors.New(gwerrors.Config, "unknown provider: "+cfg.Provider.Default, nil)
	}
}

func apiKeyFor(variant string, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	envName := config.ProviderAPIKeyEnv(variant)
	if envName == "" {
		return "", nil
	}
	key := os.Getenv(envName)
	if key == "" {
		return "", gwerrors.New(gwerrors.Config, fmt.Sprintf("%s: no api key configured and %s is unset", variant, envName), nil)
	}
	return key, nil
}

func claudeCodeFromConfig(v config.ProviderVariant) (Provider, error) {
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, gwerrors.New(gwerrors.Config, "claude-code: resolve working directory", err)
	}
	fast := v.Model
	complex := v.ModelComplex
	return NewCLIProvider(workingDir, fast, complex, mcp.NewSettingsGuard()), nil
}

func anthropicFromConfig(v config.ProviderVariant) (Provider, error) {
	key, err := apiKeyFor("anthropic", v.APIKey)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return NewAnthropicProviderOAuth(), nil
	}
	return NewAnthropicProvider(key), nil
}

func openAIFromConfig(v config.ProviderVariant) (Provider, error) {
	key, err := apiKeyFor("openai", v.APIKey)
	if err != nil {
		return nil, err
	}
	return NewOpenAIProvider(key), nil
}

func openRouterFromConfig(v config.ProviderVariant) (Provider, error) {
	key, err := apiKeyFor("openrouter", v.APIKey)
	if err != nil {
		return nil, err
	}
	return NewOpenRouterProvider(key, v.Model, v.ModelComplex), nil
}

func ollamaFromConfig(v config.ProviderVariant) (Provider, error) {
	return NewOllamaProvider(v.BaseURL, v.Model, v.ModelComplex), nil
}

func geminiFromConfig(v config.ProviderVariant) (Provider, error) {
	key, err := apiKeyFor("gemini", v.APIKey)
	if err != nil {
		return nil, err
	}
	return NewGeminiProvider(key), nil
}

func copilotFromConfig(v config.ProviderVariant) (Provider, error) {
	key, err := apiKeyFor("copilot", v.APIKey)
	if err != nil {
		return nil, err
	}
	return NewCopilotProvider(key), nil
}
