package channels

import (
	"context"

	"github.com/omegacorp/omega/internal/config"
	"github.com/omegacorp/omega/internal/logging"
)

// FromConfig constructs every channel whose config section is enabled,
// returning them keyed by Name() for the gateway and background loops to
// address by string. A channel that fails to construct is skipped with a
// warning rather than aborting startup for the others.
func FromConfig(ctx context.Context, cfg *config.Config) (map[string]Channel, error) {
	out := make(map[string]Channel)

	if cfg.Channel.Console.Enabled {
		ch, err := NewConsoleChannel("console")
		if err != nil {
			logging.WarnCF("channels", "console: construct failed, skipping", map[string]interface{}{"error": err.Error()})
		} else {
			out[ch.Name()] = ch
		}
	}

	if cfg.Channel.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Channel.Telegram.BotToken, cfg.Channel.Telegram.AllowedUsers)
		if err != nil {
			logging.WarnCF("channels", "telegram: construct failed, skipping", map[string]interface{}{"error": err.Error()})
		} else {
			out[ch.Name()] = ch
		}
	}

	if cfg.Channel.Discord.Enabled {
		ch, err := NewDiscordChannel(cfg.Channel.Discord.BotToken, cfg.Channel.Discord.AllowedUsers)
		if err != nil {
			logging.WarnCF("channels", "discord: construct failed, skipping", map[string]interface{}{"error": err.Error()})
		} else {
			out[ch.Name()] = ch
		}
	}

	if cfg.Channel.WhatsApp.Enabled {
		ch, err := NewWhatsAppChannel(ctx, cfg.Channel.WhatsApp.DBPath, cfg.Channel.WhatsApp.AllowedUsers)
		if err != nil {
			logging.WarnCF("channels", "whatsapp: construct failed, skipping", map[string]interface{}{"error": err.Error()})
		} else {
			out[ch.Name()] = ch
		}
	}

	return out, nil
}
