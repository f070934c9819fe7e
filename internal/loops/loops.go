// Package loops implements the three background loops (§4.7) that run
// independently of the dispatcher's request/response pipeline: a
// conversation summarizer, a task scheduler, and a heartbeat. The scheduler
// and heartbeat apply marker side effects through markerfx rather than
// internal/gateway, so this package does not import the gateway.
package loops

import (
	"context"
	"time"

	"github.com/omegacorp/omega/internal/channels"
	"github.com/omegacorp/omega/internal/config"
	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/projects"
	"github.com/omegacorp/omega/internal/providers"
	"github.com/omegacorp/omega/internal/store"
)

// Deps bundles every collaborator a loop needs: the store, the provider,
// the live channel set (for delivery), and the projects loader (for
// per-project heartbeat checklists).
type Deps struct {
	Store    *store.Store
	Provider providers.Provider
	Channels map[string]channels.Channel
	Projects *projects.Loader
	Config   *config.Config
}

func (d Deps) deliver(ctx context.Context, channel, target, text string) {
	ch, ok := d.Channels[channel]
	if !ok {
		logging.WarnCF("loops", "delivery target channel not running", map[string]interface{}{"channel": channel})
		return
	}
	if err := ch.Send(ctx, channels.Outgoing{Text: text, ReplyTarget: target}); err != nil {
		logging.WarnCF("loops", "delivery failed", map[string]interface{}{"channel": channel, "error": err.Error()})
	}
}

// runTicker is the shared tick-forever-until-cancelled skeleton every loop
// uses: an immediate first tick, then one every interval, each tick's
// work isolated behind a recover so one bad tick never kills the loop.
func runTicker(ctx context.Context, interval time.Duration, name string, tick func(context.Context)) {
	safeTick := func() {
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorCF(name, "tick panicked, continuing", map[string]interface{}{"panic": r})
			}
		}()
		tick(ctx)
	}

	safeTick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			safeTick()
		}
	}
}
