package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/omegacorp/omega/internal/channels"
	"github.com/omegacorp/omega/internal/commands"
	"github.com/omegacorp/omega/internal/gwerrors"
	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/markerfx"
	"github.com/omegacorp/omega/internal/markers"
	"github.com/omegacorp/omega/internal/providers"
	"github.com/omegacorp/omega/internal/sanitize"
	"github.com/omegacorp/omega/internal/store"
)

// statusUpdateDelay and statusUpdateEvery are the provider-call
// status-nudge cadence: a first nudge after 15s, then every 120s while the
// call is still outstanding.
const (
	statusUpdateDelay = 15 * time.Second
	statusUpdateEvery = 120 * time.Second
	typingInterval    = 5 * time.Second
	classifyMaxTurns  = 25
)

// runPipeline drives one message through the fifteen pipeline steps. Every
// exit point — including early returns from auth/commands — goes through
// the inbox cleanup guard via the defer.
func (g *Gateway) runPipeline(ctx context.Context, msg channels.Message) {
	start := time.Now()
	ch, ok := g.channels[msg.Channel]
	if !ok {
		logging.WarnCF(logComponent, "message from unknown channel", map[string]interface{}{"channel": msg.Channel})
		return
	}

	var savedInboxPaths []string
	defer func() { g.cleanupInbox(savedInboxPaths) }()

	// Step 1: auth.
	if !g.isAllowed(msg.Channel, msg.SenderID) {
		g.audit(msg, "", "", "", 0, store.AuditDenied, "not on allow-list")
		_ = ch.Send(ctx, channels.Outgoing{Text: g.cfg.Auth.DenyMessage, ReplyTarget: msg.ReplyTarget})
		return
	}

	// Step 2: sanitize.
	clean := sanitize.Clean(msg.Text)
	if clean.Modified {
		logging.DebugCF(logComponent, "sanitized inbound message", map[string]interface{}{"sender_id": msg.SenderID, "warnings": clean.Warnings})
	}
	text := clean.Cleaned

	// Step 3: inbox save.
	prefix, saved := g.saveAttachments(msg)
	savedInboxPaths = saved
	if prefix != "" {
		text = prefix + "\n" + text
	}

	// Step 4: welcome.
	welcome := g.onboard.MaybeWelcome(g.cfg.Omega.DataDir, msg.SenderID, msg.Channel, text)
	if welcome.ShouldSend {
		_ = ch.Send(ctx, channels.Outgoing{Text: welcome.Message, ReplyTarget: msg.ReplyTarget})
	}

	// Step 5: command dispatch.
	if commands.IsCommand(text) {
		project := g.activeProject(msg.SenderID)
		reply, _ := g.commands.Handle(msg.SenderID, msg.Channel, project, text)
		_ = ch.Send(ctx, channels.Outgoing{Text: reply, ReplyTarget: msg.ReplyTarget})
		g.audit(msg, text, reply, "", time.Since(start).Milliseconds(), store.AuditOK, "")
		return
	}

	// Step 6: keyword gating.
	needs := DeriveNeeds(text)

	// Step 7: compose system prompt.
	project := g.activeProject(msg.SenderID)
	ps := loadPromptSections(g.cfg.Omega.DataDir)
	lessons, _ := g.store.LessonsFor(msg.SenderID, projectOrGeneral(project), project)
	systemPrompt := composeSystemPrompt(ps, promptInputs{
		Needs:          needs,
		Provider:       g.provider.Name(),
		Model:          g.provider.FastModel(),
		Platform:       msg.Channel,
		ActiveProject:  project,
		Lessons:        lessons,
		HeartbeatNow:   mentionsHeartbeat(text),
		ProjectsLoader: g.projects,
	})

	// Step 8: build context.
	conv, err := g.store.GetOrCreateConversation(msg.Channel, msg.SenderID, project)
	if err != nil {
		g.replyFriendly(ctx, ch, msg, "generic", start)
		return
	}
	built, err := g.store.BuildContext(conv, text, store.ContextNeeds{
		History:  true,
		Recall:   needs.Recall,
		Tasks:    needs.Tasks,
		Outcomes: needs.Outcomes,
		Lessons:  needs.Profile,
	}, g.cfg.Memory.MaxContextMessages)
	if err != nil {
		g.replyFriendly(ctx, ch, msg, "generic", start)
		return
	}

	// Step 9: classify & route.
	steps := g.classifyAndRoute(ctx, text, built, project)

	// Steps 10-12: typing indicator + provider call(s) + marker processing.
	var finalText string
	var usedModel string
	if steps == nil {
		reply, model, err := g.callWithTyping(ctx, ch, msg, systemPrompt, text, built, g.provider.FastModel(), nil)
		if err != nil {
			g.replyFriendly(ctx, ch, msg, classifyErrKind(err), start)
			return
		}
		finalText, usedModel = g.processTurn(msg, project, reply), model
	} else {
		finalText, usedModel = g.runSteps(ctx, ch, msg, systemPrompt, built, project, steps)
	}

	// Step 13: persist.
	if err := g.store.StoreExchange(conv.ID, text, finalText, ""); err != nil {
		logging.WarnCF(logComponent, "failed to persist exchange", map[string]interface{}{"error": err.Error()})
	}
	g.onboard.Advance(msg.SenderID)
	g.audit(msg, text, finalText, usedModel, time.Since(start).Milliseconds(), store.AuditOK, "")

	// Step 14: deliver.
	_ = ch.Send(ctx, channels.Outgoing{Text: finalText, ReplyTarget: msg.ReplyTarget})
	g.deliverWorkspaceImages(ctx, ch, msg.ReplyTarget)

	// Step 15: cleanup happens via the deferred inbox guard.
}

func projectOrGeneral(project string) string {
	if project == "" {
		return "general"
	}
	return project
}

func (g *Gateway) activeProject(senderID string) string {
	if f, err := g.store.GetFact(senderID, store.FactActiveProject); err == nil && f != nil {
		return f.Value
	}
	return ""
}

func (g *Gateway) isAllowed(channel, senderID string) bool {
	if !g.cfg.Auth.Enabled {
		return true
	}
	switch channel {
	case "telegram":
		if len(g.cfg.Channel.Telegram.AllowedUsers) == 0 {
			return true
		}
		id, err := strconv.ParseInt(senderID, 10, 64)
		if err != nil {
			return false
		}
		for _, u := range g.cfg.Channel.Telegram.AllowedUsers {
			if u == id {
				return true
			}
		}
		return false
	case "whatsapp":
		return len(g.cfg.Channel.WhatsApp.AllowedUsers) == 0 || contains(g.cfg.Channel.WhatsApp.AllowedUsers, senderID)
	case "discord":
		return len(g.cfg.Channel.Discord.AllowedUsers) == 0 || contains(g.cfg.Channel.Discord.AllowedUsers, senderID)
	case "console":
		return true
	default:
		return false
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (g *Gateway) audit(msg channels.Message, in, out, model string, ms int64, status store.AuditStatus, denial string) {
	if err := g.store.AppendAudit(store.AuditEntry{
		Channel: msg.Channel, SenderID: msg.SenderID, SenderName: msg.SenderName,
		InputText: in, OutputText: out, ProviderUsed: g.provider.Name(), Model: model,
		ProcessingMs: ms, Status: status, DenialReason: denial,
	}); err != nil {
		logging.WarnCF(logComponent, "failed to write audit entry", map[string]interface{}{"error": err.Error()})
	}
}

func (g *Gateway) replyFriendly(ctx context.Context, ch channels.Channel, msg channels.Message, kind string, start time.Time) {
	text := gwerrors.FriendlyMessages[kind]
	if text == "" {
		text = gwerrors.FriendlyMessages["generic"]
	}
	_ = ch.Send(ctx, channels.Outgoing{Text: text, ReplyTarget: msg.ReplyTarget})
	g.audit(msg, msg.Text, "", "", time.Since(start).Milliseconds(), store.AuditError, "")
}

func classifyErrKind(err error) string {
	if err == context.DeadlineExceeded {
		return "timeout"
	}
	return "generic"
}

// saveAttachments persists every image attachment under
// <data>/workspace/inbox/, rejecting zero-byte files, and returns the
// "[Attached image: <path>]" prefix lines to splice onto the message text
// plus the list of paths written (for the cleanup guard).
func (g *Gateway) saveAttachments(msg channels.Message) (string, []string) {
	if len(msg.Attachments) == 0 {
		return "", nil
	}
	dir := g.inboxDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.WarnCF(logComponent, "failed to create inbox dir", map[string]interface{}{"error": err.Error()})
		return "", nil
	}

	var lines []string
	var paths []string
	for _, a := range msg.Attachments {
		if len(a.Data) == 0 {
			continue
		}
		name := fmt.Sprintf("%d-%s", time.Now().UnixNano(), sanitizeFilename(a.Filename))
		path := filepath.Join(dir, name)
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, a.Data, 0o644); err != nil {
			logging.WarnCF(logComponent, "failed to write inbox attachment", map[string]interface{}{"error": err.Error()})
			continue
		}
		if err := os.Rename(tmp, path); err != nil {
			logging.WarnCF(logComponent, "failed to finalize inbox attachment", map[string]interface{}{"error": err.Error()})
			_ = os.Remove(tmp)
			continue
		}
		paths = append(paths, path)
		lines = append(lines, fmt.Sprintf("[Attached image: %s]", path))
	}
	return strings.Join(lines, "\n"), paths
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "attachment"
	}
	return name
}

// cleanupInbox removes every inbox file this pipeline run wrote, on every
// exit path, matching the scoped-cleanup-guard rule.
func (g *Gateway) cleanupInbox(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.WarnCF(logComponent, "failed to clean up inbox file", map[string]interface{}{"path": p, "error": err.Error()})
		}
	}
}

// deliverWorkspaceImages sends any image file newly present at the
// workspace root as a photo (filename as caption), then deletes it —
// the mirror image of saveAttachments for outgoing media.
func (g *Gateway) deliverWorkspaceImages(ctx context.Context, ch channels.Channel, target string) {
	dir := g.cfg.Omega.DataDir + "/workspace"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isImageName(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := ch.SendPhoto(ctx, target, data, e.Name()); err != nil {
			logging.WarnCF(logComponent, "failed to deliver workspace image", map[string]interface{}{"path": path, "error": err.Error()})
			continue
		}
		_ = os.Remove(path)
	}
}

func isImageName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// classifyAndRoute always calls the provider with a lightweight
// classification prompt (no system prompt, no tools, forced fast model).
// A DIRECT or unparseable reply routes to nil (single-step); a numbered
// list routes to the list of steps, pinning the complex model for
// execution.
func (g *Gateway) classifyAndRoute(ctx context.Context, text string, built *store.BuiltContext, project string) []string {
	var sb strings.Builder
	sb.WriteString("Classify this request as DIRECT (answerable in one step) or break it into a numbered list of steps.\n\n")
	if project != "" {
		sb.WriteString("Active project: " + project + "\n")
	}
	if len(built.History) > 0 {
		sb.WriteString("Recent turns:\n")
		n := len(built.History)
		if n > 3 {
			n = 3
		}
		for _, m := range built.History[len(built.History)-n:] {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", m.Role, truncate(m.Content, 80)))
		}
	}
	if names := g.skills.Names(); len(names) > 0 {
		sb.WriteString("Available skills: " + strings.Join(names, ", ") + "\n")
	}
	sb.WriteString("\nRequest: " + text)

	resp, err := g.provider.Complete(ctx, providers.CompletionRequest{
		Messages: []providers.Message{{Role: "user", Content: sb.String()}},
		Model:    g.provider.FastModel(),
		MaxTurns: classifyMaxTurns,
	})
	if err != nil || resp == nil {
		return nil
	}
	return parseSteps(resp.Content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// parseSteps recognizes a numbered list ("1. ...", "2. ...") as multi-step;
// anything else (including a literal "DIRECT") is single-step.
func parseSteps(reply string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" || strings.EqualFold(reply, "DIRECT") || strings.HasPrefix(strings.ToUpper(reply), "DIRECT") {
		return nil
	}
	var steps []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.IndexByte(line, '.'); idx > 0 && idx <= 3 {
			if _, err := strconv.Atoi(strings.TrimSpace(line[:idx])); err == nil {
				steps = append(steps, strings.TrimSpace(line[idx+1:]))
				continue
			}
		}
	}
	if len(steps) == 0 {
		return nil
	}
	return steps
}

// callWithTyping runs one provider call while keeping a typing indicator
// alive on the originating channel and nudging the user with a status
// message if the call runs long.
func (g *Gateway) callWithTyping(ctx context.Context, ch channels.Channel, msg channels.Message, systemPrompt, userText string, built *store.BuiltContext, model string, priorSteps []string) (*providers.LLMResponse, string, error) {
	typingCtx, cancelTyping := context.WithCancel(ctx)
	go g.runTyping(typingCtx, ch, msg.ReplyTarget)
	defer cancelTyping()

	statusCtx, cancelStatus := context.WithCancel(ctx)
	go g.runStatusNudge(statusCtx, ch, msg.ReplyTarget)
	defer cancelStatus()

	messages := []providers.Message{{Role: "system", Content: systemPrompt}}
	for _, m := range built.History {
		messages = append(messages, providers.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, providers.Message{Role: "user", Content: userText})

	resp, err := g.provider.Complete(ctx, providers.CompletionRequest{
		Messages: messages,
		Model:    model,
	})
	if err != nil {
		return nil, model, err
	}
	return resp, model, nil
}

func (g *Gateway) runTyping(ctx context.Context, ch channels.Channel, target string) {
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()
	_ = ch.SendTyping(ctx, target)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = ch.SendTyping(ctx, target)
		}
	}
}

func (g *Gateway) runStatusNudge(ctx context.Context, ch channels.Channel, target string) {
	timer := time.NewTimer(statusUpdateDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	_ = ch.Send(ctx, channels.Outgoing{Text: "Still working on it…", ReplyTarget: target})
	ticker := time.NewTicker(statusUpdateEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = ch.Send(ctx, channels.Outgoing{Text: "Still working on it…", ReplyTarget: target})
		}
	}
}

// processTurn strips and applies every marker in reply, returning the
// user-facing text with markers removed.
func (g *Gateway) processTurn(msg channels.Message, project, reply string) string {
	marks := markers.ExtractAll(reply)
	mctx := g.markerContext(msg.SenderID, msg.Channel)
	mctx.Project = project
	outcome := markerfx.Apply(mctx, marks)
	if outcome.WhatsAppQR {
		if wa, ok := g.channels["whatsapp"].(interface {
			BeginPairing(context.Context, func([]byte)) error
		}); ok {
			go func() {
				_ = wa.BeginPairing(context.Background(), func(png []byte) {
					_ = g.channels[msg.Channel].SendPhoto(context.Background(), msg.ReplyTarget, png, "whatsapp-pairing.png")
				})
			}()
		}
	}
	stripped := markers.Strip(reply)
	return markers.StripAllRemaining(stripped)
}

// runSteps executes a multi-step plan: announce the plan, then run each
// step with the complex model, making up to three attempts per step,
// processing markers after each success and sending a progress message,
// and finally producing a summary of the whole plan.
func (g *Gateway) runSteps(ctx context.Context, ch channels.Channel, msg channels.Message, systemPrompt string, built *store.BuiltContext, project string, steps []string) (string, string) {
	model := g.provider.ComplexModel()

	var plan strings.Builder
	plan.WriteString("Here's my plan:\n")
	for i, s := range steps {
		plan.WriteString(fmt.Sprintf("%d. %s\n", i+1, s))
	}
	_ = ch.Send(ctx, channels.Outgoing{Text: strings.TrimRight(plan.String(), "\n"), ReplyTarget: msg.ReplyTarget})

	var results []string
	for i, step := range steps {
		var resp *providers.LLMResponse
		var err error
		for attempt := 0; attempt < 3; attempt++ {
			resp, _, err = g.callWithTyping(ctx, ch, msg, systemPrompt, step, built, model, steps)
			if err == nil {
				break
			}
			logging.WarnCF(logComponent, "step attempt failed", map[string]interface{}{"step": i + 1, "attempt": attempt + 1, "error": err.Error()})
		}
		if err != nil {
			results = append(results, fmt.Sprintf("Step %d failed: %s", i+1, step))
			g.audit(msg, step, "", model, 0, store.AuditError, "")
			continue
		}
		processed := g.processTurn(msg, project, resp.Content)
		results = append(results, processed)
		g.audit(msg, step, processed, model, 0, store.AuditOK, "")
		_ = ch.Send(ctx, channels.Outgoing{Text: fmt.Sprintf("Step %d/%d done.", i+1, len(steps)), ReplyTarget: msg.ReplyTarget})
	}

	var summary strings.Builder
	summary.WriteString("Summary:\n")
	for i, r := range results {
		summary.WriteString(fmt.Sprintf("%d. %s\n", i+1, r))
	}
	return strings.TrimRight(summary.String(), "\n"), model
}
