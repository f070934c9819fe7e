// Package gateway implements the dispatcher and pipeline at the center of
// the system: one mutex-guarded per-sender buffer enforcing strict
// in-order processing for a given sender while distinct senders run
// concurrently, and the fifteen-step message pipeline each buffered
// message is drained through.
package gateway

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/omegacorp/omega/internal/channels"
	"github.com/omegacorp/omega/internal/commands"
	"github.com/omegacorp/omega/internal/config"
	"github.com/omegacorp/omega/internal/factindex"
	"github.com/omegacorp/omega/internal/gwerrors"
	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/markerfx"
	"github.com/omegacorp/omega/internal/onboarding"
	"github.com/omegacorp/omega/internal/projects"
	"github.com/omegacorp/omega/internal/providers"
	"github.com/omegacorp/omega/internal/skills"
	"github.com/omegacorp/omega/internal/store"
)

const logComponent = "gateway"

// inboundCapacity is the per-channel forwarding buffer the run loop reads
// from; a slow dispatcher backs up here first, never blocking a channel's
// own read loop.
const inboundCapacity = 256

// Gateway owns the dispatcher state and every collaborator the pipeline
// needs: the store, the configured provider, every running channel, and
// the narrow on-disk collaborators (projects, skills).
type Gateway struct {
	cfg       *config.Config
	store     *store.Store
	provider  providers.Provider
	channels  map[string]channels.Channel
	projects  *projects.Loader
	skills    *skills.Loader
	facts     *factindex.Index
	onboard   *onboarding.Manager
	commands  *commands.Dispatcher

	mu     sync.Mutex
	busy   map[string]bool
	buffer map[string][]channels.Message

	inbox chan channels.Message
}

// New wires a Gateway from its collaborators. Channels must already be
// constructed (but not yet started); New does not call Start.
func New(cfg *config.Config, s *store.Store, provider providers.Provider, chans map[string]channels.Channel, facts *factindex.Index) *Gateway {
	workspace := cfg.Omega.DataDir
	projLoader := projects.NewLoader(workspace)
	skillLoader := skills.NewLoader(workspace)
	g := &Gateway{
		cfg:      cfg,
		store:    s,
		provider: provider,
		channels: chans,
		projects: projLoader,
		skills:   skillLoader,
		facts:    facts,
		busy:     make(map[string]bool),
		buffer:   make(map[string][]channels.Message),
		inbox:    make(chan channels.Message, inboundCapacity),
	}
	g.onboard = onboarding.NewManager(s)
	g.commands = commands.NewDispatcher(s, projLoader, g.onboard, workspace)
	return g
}

// Run starts every channel, spawns the background loops, and selects on
// incoming messages until ctx is cancelled. It purges orphaned inbox
// files left by a prior, uncleanly-terminated run before accepting any
// message.
func (g *Gateway) Run(ctx context.Context, loops []BackgroundLoop) error {
	g.purgeOrphanedInbox()

	var wg sync.WaitGroup
	for name, ch := range g.channels {
		msgs, err := ch.Start(ctx)
		if err != nil {
			return gwerrors.Fatal(gwerrors.Channel, "start channel "+name, err)
		}
		wg.Add(1)
		go g.forward(ctx, &wg, msgs)
	}

	loopCtx, cancelLoops := context.WithCancel(ctx)
	for _, l := range loops {
		wg.Add(1)
		go func(l BackgroundLoop) {
			defer wg.Done()
			l.Run(loopCtx)
		}(l)
	}

	logging.InfoCF(logComponent, "gateway running", map[string]interface{}{"channels": len(g.channels), "loops": len(loops)})

	for {
		select {
		case <-ctx.Done():
			cancelLoops()
			g.drainActive(context.Background())
			for name, ch := range g.channels {
				if err := ch.Stop(); err != nil {
					logging.WarnCF(logComponent, "channel stop failed", map[string]interface{}{"channel": name, "error": err.Error()})
				}
			}
			wg.Wait()
			return nil
		case msg := <-g.inbox:
			g.dispatch(ctx, msg)
		}
	}
}

// BackgroundLoop is the capability the scheduler, summarizer, and
// heartbeat loops all satisfy; Run blocks until ctx is cancelled.
type BackgroundLoop interface {
	Run(ctx context.Context)
}

func (g *Gateway) forward(ctx context.Context, wg *sync.WaitGroup, msgs <-chan channels.Message) {
	defer wg.Done()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case g.inbox <- msg:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// dispatch implements the busy-flag-and-buffer rule: a sender with a
// pipeline already running has its message appended to its buffer and
// receives a brief acknowledgement; otherwise the sender is marked busy
// and a pipeline task is spawned, which on completion drains any
// messages that arrived in the meantime, in order, before releasing the
// busy flag.
func (g *Gateway) dispatch(ctx context.Context, msg channels.Message) {
	key := msg.Channel + ":" + msg.SenderID

	g.mu.Lock()
	if g.busy[key] {
		g.buffer[key] = append(g.buffer[key], msg)
		g.mu.Unlock()
		g.ackBuffered(ctx, msg)
		return
	}
	g.busy[key] = true
	g.mu.Unlock()

	go g.runPipelineChain(ctx, key, msg)
}

func (g *Gateway) ackBuffered(ctx context.Context, msg channels.Message) {
	ch, ok := g.channels[msg.Channel]
	if !ok {
		return
	}
	_ = ch.SendTyping(ctx, msg.ReplyTarget)
}

func (g *Gateway) runPipelineChain(ctx context.Context, key string, first channels.Message) {
	msg := first
	for {
		g.runPipeline(ctx, msg)

		g.mu.Lock()
		next, ok := g.popBuffered(key)
		if !ok {
			g.busy[key] = false
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
		msg = next
	}
}

// popBuffered must be called with g.mu held.
func (g *Gateway) popBuffered(key string) (channels.Message, bool) {
	q := g.buffer[key]
	if len(q) == 0 {
		delete(g.buffer, key)
		return channels.Message{}, false
	}
	next := q[0]
	if len(q) == 1 {
		delete(g.buffer, key)
	} else {
		g.buffer[key] = q[1:]
	}
	return next, true
}

// drainActive waits, best-effort, for any sender currently marked busy to
// finish its in-flight pipeline run before shutdown proceeds, per the
// "in-flight pipelines complete on a best-effort basis" shutdown rule.
func (g *Gateway) drainActive(ctx context.Context) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		anyBusy := len(g.busy) > 0
		for k, v := range g.busy {
			if !v {
				delete(g.busy, k)
			}
		}
		anyBusy = len(g.busy) > 0
		g.mu.Unlock()
		if !anyBusy {
			return
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) inboxDir() string {
	return filepath.Join(g.cfg.Omega.DataDir, "workspace", "inbox")
}

// purgeOrphanedInbox removes any file left in the inbox directory from a
// run that crashed mid-pipeline, before a new message can reuse the
// directory.
func (g *Gateway) purgeOrphanedInbox() {
	dir := g.inboxDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			logging.WarnCF(logComponent, "failed to purge orphaned inbox file", map[string]interface{}{"path": path, "error": err.Error()})
		}
	}
}

// markerContext builds a markerfx.Context for the given sender/channel,
// resolving the active project fact so handlers that consult it (the
// heartbeat checklist attach, lesson storage) see the right scope.
func (g *Gateway) markerContext(senderID, channel string) markerfx.Context {
	project := ""
	if f, err := g.store.GetFact(senderID, store.FactActiveProject); err == nil && f != nil {
		project = f.Value
	}
	return markerfx.Context{
		Store:     g.store,
		Workspace: g.cfg.Omega.DataDir,
		SenderID:  senderID,
		Channel:   channel,
		Project:   project,
	}
}
