package loops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/markerfx"
	"github.com/omegacorp/omega/internal/markers"
	"github.com/omegacorp/omega/internal/providers"
	"github.com/omegacorp/omega/internal/store"
)

const defaultHeartbeatInterval = 30 * time.Minute

// Heartbeat periodically reviews the owner's outstanding checklist items
// (global and per active project), classifying whether anything needs
// attention and, if so, acting on each semantically-related group.
type Heartbeat struct {
	deps Deps
}

func NewHeartbeat(deps Deps) *Heartbeat {
	return &Heartbeat{deps: deps}
}

// Run clock-aligns its ticks to the current interval (read from the
// markerfx atomic each cycle, so a HEARTBEAT_INTERVAL marker takes effect
// on the next alignment without restarting the loop).
func (h *Heartbeat) Run(ctx context.Context) {
	if h.deps.Config == nil || !h.deps.Config.Heartbeat.Enabled {
		return
	}
	markerfx.InitHeartbeatInterval(h.deps.Config.Heartbeat.IntervalMinutes)

	for {
		interval := time.Duration(markerfx.HeartbeatIntervalMinutes()) * time.Minute
		if interval <= 0 {
			interval = defaultHeartbeatInterval
		}
		wait := nextAlignedTick(time.Now(), interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			h.tick(ctx)
		}
	}
}

// nextAlignedTick returns the duration until the next clock boundary that
// is a multiple of interval past midnight, so heartbeats land on e.g. the
// hour or half-hour rather than drifting with process start time.
func nextAlignedTick(now time.Time, interval time.Duration) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	elapsed := now.Sub(midnight)
	next := ((elapsed / interval) + 1) * interval
	return midnight.Add(next).Sub(now)
}

func (h *Heartbeat) tick(ctx context.Context) {
	cfg := h.deps.Config.Heartbeat
	if !withinActiveHours(time.Now(), cfg.ActiveStart, cfg.ActiveEnd) {
		return
	}
	owner := cfg.OwnerSenderID
	if owner == "" {
		return
	}

	workspace := h.deps.Config.Omega.DataDir
	project := h.activeProject(owner)
	checklist := h.buildChecklist(workspace, project)
	if strings.TrimSpace(checklist) == "" {
		return
	}

	enrichment := h.buildEnrichment(owner, project)
	groups := h.classify(ctx, checklist, enrichment)

	var results []string
	if len(groups) == 0 {
		result := h.runGroup(ctx, owner, project, cfg.Channel, checklist, enrichment)
		if result != "" {
			results = append(results, result)
		}
	} else {
		for _, g := range groups {
			result := h.runGroup(ctx, owner, project, cfg.Channel, g, enrichment)
			if result != "" {
				results = append(results, result)
			}
		}
	}

	if len(results) == 0 {
		return
	}
	h.deps.deliver(ctx, cfg.Channel, cfg.ReplyTarget, strings.Join(results, "\n---\n"))
}

func (h *Heartbeat) activeProject(owner string) string {
	if f, err := h.deps.Store.GetFact(owner, store.FactActiveProject); err == nil && f != nil {
		return f.Value
	}
	return ""
}

// buildChecklist reads the global HEARTBEAT.md and, if an active project
// is set and has its own HEARTBEAT.md, appends it — each filtered through
// the persisted section-suppression list before being combined.
func (h *Heartbeat) buildChecklist(workspace, project string) string {
	suppressed := markerfx.SuppressedSections(workspace)

	global, _ := os.ReadFile(filepath.Join(workspace, "prompts", "HEARTBEAT.md"))
	combined := filterSuppressedSections(string(global), suppressed)

	if project != "" && h.deps.Projects != nil {
		if text, ok := h.deps.Projects.Heartbeat(project); ok {
			projText := filterSuppressedSections(text, suppressed)
			if projText != "" {
				combined = strings.TrimRight(combined, "\n") + "\n\n" + projText
			}
		}
	}
	return strings.TrimSpace(combined)
}

// filterSuppressedSections drops every `## <name>` block whose name
// appears in suppressed.
func filterSuppressedSections(text string, suppressed map[string]bool) string {
	if text == "" || len(suppressed) == 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	var out []string
	skipping := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "## ") {
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "##"))
			skipping = suppressed[name]
		}
		if !skipping {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// enrichment is built once per tick and reused across every group's call.
type enrichment struct {
	facts     []store.Fact
	summaries []string
	lessons   []store.Lesson
	outcomes  []store.Outcome
}

func (h *Heartbeat) buildEnrichment(owner, project string) enrichment {
	var e enrichment
	e.facts, _ = h.deps.Store.AllFacts(owner)
	e.summaries, _ = h.deps.Store.RecentSummariesForSender(owner, 5)
	e.lessons, _ = h.deps.Store.LessonsFor(owner, projectOrGeneralLocal(project), project)

	all, _ := h.deps.Store.RecentOutcomes(owner, 50)
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, o := range all {
		if o.Timestamp.After(cutoff) {
			e.outcomes = append(e.outcomes, o)
		}
	}
	return e
}

func projectOrGeneralLocal(project string) string {
	if project == "" {
		return "general"
	}
	return project
}

func (e enrichment) render() string {
	var sb strings.Builder
	if len(e.facts) > 0 {
		sb.WriteString("Known facts:\n")
		for _, f := range e.facts {
			if !store.IsSystemKey(f.Key) {
				sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Key, f.Value))
			}
		}
	}
	if len(e.summaries) > 0 {
		sb.WriteString("Recent conversation summaries:\n")
		for _, s := range e.summaries {
			sb.WriteString("- " + s + "\n")
		}
	}
	if len(e.lessons) > 0 {
		sb.WriteString("Lessons learned:\n")
		for _, l := range e.lessons {
			sb.WriteString(fmt.Sprintf("- (%s) %s\n", l.Domain, l.Rule))
		}
	}
	if len(e.outcomes) > 0 {
		sb.WriteString("Outcomes in the last 24 hours:\n")
		for _, o := range e.outcomes {
			sb.WriteString(fmt.Sprintf("- (%s, score %d) %s\n", o.Domain, o.Score, o.Lesson))
		}
	}
	return sb.String()
}

// classify runs a fast, tool-free classification call that returns either
// a single DIRECT verdict (nil groups, one combined pass) or a list of
// semantically-related checklist sub-groups to execute independently.
// Any classification failure falls back to the safe single-call path.
func (h *Heartbeat) classify(ctx context.Context, checklist string, enr enrichment) []string {
	prompt := "Group the following heartbeat checklist items into semantically related sub-checklists, one group per line, " +
		"or reply with exactly DIRECT if it should be handled as a single pass.\n\n" + checklist
	resp, err := h.deps.Provider.Complete(ctx, providers.CompletionRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt}},
		Model:    h.deps.Provider.FastModel(),
	})
	if err != nil || resp == nil {
		return nil
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" || strings.EqualFold(content, "DIRECT") {
		return nil
	}
	var groups []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			groups = append(groups, line)
		}
	}
	return groups
}

// runGroup executes one checklist group (or the whole checklist, in
// single-pass mode) as one complex-model call, processes every marker the
// reply contains, and returns the visible result unless the model
// reported HEARTBEAT_OK (nothing needed attention).
func (h *Heartbeat) runGroup(ctx context.Context, owner, project, channel, group string, enr enrichment) string {
	prompt := "Review this part of your heartbeat checklist and act on anything that needs attention. " +
		"If nothing needs attention, reply with exactly HEARTBEAT_OK.\n\n" +
		enr.render() + "\nChecklist:\n" + group

	resp, err := h.deps.Provider.Complete(ctx, providers.CompletionRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt}},
		Model:    h.deps.Provider.ComplexModel(),
	})
	if err != nil {
		logging.WarnCF("heartbeat", "group call failed", map[string]interface{}{"error": err.Error()})
		return ""
	}

	marks := markers.ExtractAll(resp.Content)
	mctx := markerfx.Context{Store: h.deps.Store, Workspace: h.workspace(), SenderID: owner, Channel: channel, Project: project}
	markerfx.Apply(mctx, marks)

	visible := strings.TrimSpace(markers.StripAllRemaining(markers.Strip(resp.Content)))
	if visible == "" || strings.EqualFold(visible, "HEARTBEAT_OK") {
		return ""
	}
	return visible
}

func (h *Heartbeat) workspace() string {
	if h.deps.Config == nil {
		return ""
	}
	return h.deps.Config.Omega.DataDir
}

// withinActiveHours reports whether now's local clock time falls within
// [start, end), both "HH:MM"; a malformed bound defaults to "always on".
func withinActiveHours(now time.Time, start, end string) bool {
	s, errS := time.Parse("15:04", start)
	e, errE := time.Parse("15:04", end)
	if errS != nil || errE != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	startMin := s.Hour()*60 + s.Minute()
	endMin := e.Hour()*60 + e.Minute()
	if startMin <= endMin {
		return cur >= startMin && cur < endMin
	}
	return cur >= startMin || cur < endMin
}
