// Package config loads the gateway's TOML configuration file and overlays
// environment variable overrides on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type OmegaSection struct {
	Name     string `toml:"name" env:"OMEGA_NAME"`
	DataDir  string `toml:"data_dir" env:"OMEGA_DATA_DIR"`
	LogLevel string `toml:"log_level" env:"OMEGA_LOG_LEVEL"`
}

type AuthSection struct {
	Enabled     bool   `toml:"enabled"`
	DenyMessage string `toml:"deny_message"`
}

type ProviderVariant struct {
	Enabled            bool     `toml:"enabled"`
	APIKey             string   `toml:"api_key" env:"-"`
	Model              string   `toml:"model"`
	ModelComplex       string   `toml:"model_complex"`
	BaseURL            string   `toml:"base_url"`
	MaxTurns           int      `toml:"max_turns"`
	AllowedTools       []string `toml:"allowed_tools"`
	TimeoutSecs        int      `toml:"timeout_secs"`
	MaxResumeAttempts  int      `toml:"max_resume_attempts"`
}

type ProviderSection struct {
	Default     string          `toml:"default"`
	ClaudeCode  ProviderVariant `toml:"claude-code"`
	Anthropic   ProviderVariant `toml:"anthropic"`
	OpenAI      ProviderVariant `toml:"openai"`
	Ollama      ProviderVariant `toml:"ollama"`
	OpenRouter  ProviderVariant `toml:"openrouter"`
	Gemini      ProviderVariant `toml:"gemini"`
	Copilot     ProviderVariant `toml:"copilot"`
}

type TelegramSection struct {
	Enabled      bool    `toml:"enabled"`
	BotToken     string  `toml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers []int64 `toml:"allowed_users"`
}

type WhatsAppSection struct {
	Enabled      bool     `toml:"enabled"`
	AllowedUsers []string `toml:"allowed_users"`
	DBPath       string   `toml:"db_path"`
}

type DiscordSection struct {
	Enabled      bool     `toml:"enabled"`
	BotToken     string   `toml:"bot_token" env:"DISCORD_BOT_TOKEN"`
	AllowedUsers []string `toml:"allowed_users"`
}

type ConsoleSection struct {
	Enabled bool `toml:"enabled"`
}

type ChannelSection struct {
	Telegram TelegramSection `toml:"telegram"`
	WhatsApp WhatsAppSection `toml:"whatsapp"`
	Discord  DiscordSection  `toml:"discord"`
	Console  ConsoleSection  `toml:"console"`
}

type MemorySection struct {
	Backend           string `toml:"backend"`
	DBPath            string `toml:"db_path"`
	MaxContextMessages int   `toml:"max_context_messages"`
}

type SandboxSection struct {
	Mode string `toml:"mode"`
}

type HeartbeatSection struct {
	Enabled         bool   `toml:"enabled"`
	IntervalMinutes int    `toml:"interval_minutes"`
	ActiveStart     string `toml:"active_start"`
	ActiveEnd       string `toml:"active_end"`
	Channel         string `toml:"channel"`
	ReplyTarget     string `toml:"reply_target"`
	OwnerSenderID   string `toml:"owner_sender_id"`
}

type SchedulerSection struct {
	Enabled          bool `toml:"enabled"`
	PollIntervalSecs int  `toml:"poll_interval_secs"`
}

type Config struct {
	Omega     OmegaSection     `toml:"omega"`
	Auth      AuthSection      `toml:"auth"`
	Provider  ProviderSection  `toml:"provider"`
	Channel   ChannelSection   `toml:"channel"`
	Memory    MemorySection    `toml:"memory"`
	Sandbox   SandboxSection   `toml:"sandbox"`
	Heartbeat HeartbeatSection `toml:"heartbeat"`
	Scheduler SchedulerSection `toml:"scheduler"`
}

// Default returns a Config with every zero-config fallback from SPEC_FULL
// §6 already applied.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".omega")
	return &Config{
		Omega: OmegaSection{
			Name:     "omega",
			DataDir:  dataDir,
			LogLevel: "info",
		},
		Auth: AuthSection{
			Enabled:     true,
			DenyMessage: "I'm not able to respond to you here.",
		},
		Provider: ProviderSection{
			Default: "claude-code",
			ClaudeCode: ProviderVariant{
				Enabled:           true,
				MaxTurns:          25,
				TimeoutSecs:       3600,
				MaxResumeAttempts: 5,
			},
		},
		Memory: MemorySection{
			Backend:            "sqlite",
			DBPath:             filepath.Join(dataDir, "data", "memory.db"),
			MaxContextMessages: 50,
		},
		Sandbox: SandboxSection{Mode: "sandbox"},
		Heartbeat: HeartbeatSection{
			Enabled:         false,
			IntervalMinutes: 30,
			ActiveStart:     "08:00",
			ActiveEnd:       "22:00",
		},
		Scheduler: SchedulerSection{
			Enabled:          true,
			PollIntervalSecs: 60,
		},
	}
}

// Load reads path (expanding a leading ~) into a Config seeded with
// defaults, then applies environment-variable overrides. A missing file is
// not an error — the defaults (optionally env-overridden) are used as-is,
// matching the spec's "all sections optional except top-level identity"
// rule, with `[omega] name` always present via Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	expanded, err := expandHome(path)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	if _, statErr := os.Stat(expanded); statErr == nil {
		if _, err := toml.DecodeFile(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", expanded, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying env overrides: %w", err)
	}

	return cfg, nil
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// ProviderAPIKeyEnv returns the environment variable a provider's API key
// is read from when the config sets no api_key for it. The config layer
// does not load it; providers.FromConfig reads it when it builds the provider.
func ProviderAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	case "copilot":
		return "COPILOT_API_KEY"
	default:
		return ""
	}
}
