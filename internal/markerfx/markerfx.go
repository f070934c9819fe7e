// Package markerfx applies the side effects named by §4.3's marker
// catalogue against the store, the heartbeat checklist files, and the
// skill/bug-report files. It is shared by the gateway pipeline, the
// scheduler's action-task path, and the heartbeat loop so all three speak
// the same marker semantics without a dependency cycle between them.
package markerfx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/markers"
	"github.com/omegacorp/omega/internal/store"
)

const logComponent = "markerfx"

// Context carries everything a marker handler might need to touch.
type Context struct {
	Store      *store.Store
	Workspace  string // ~/.omega, for HEARTBEAT.md / BUG.md / skills paths
	SenderID   string
	Channel    string
	Project    string // active project at the time the reply was generated
}

// Outcome summarizes what Apply did, for the caller's audit entry and,
// in the pipeline, for deciding whether to re-resolve the active project.
type Outcome struct {
	ClosedConversation bool
	PurgedFacts        bool
	ActiveProject      string // new value, if PROJECT_ACTIVATE/DEACTIVATE fired
	ProjectChanged     bool
	WhatsAppQR         bool
	ActionOutcome      *markers.ActionOutcomeDecode
}

// Apply processes every marker in marks, in catalogue order, against ctx.
// Handler errors are logged and skipped — a malformed marker must never
// abort the rest of the reply's side effects or the strip pass.
func Apply(ctx Context, marks []markers.Marker) Outcome {
	var out Outcome
	for _, m := range marks {
		switch m.Kind {
		case markers.Schedule, markers.ScheduleAction:
			applySchedule(ctx, m)
		case markers.CancelTask:
			applyCancel(ctx, m)
		case markers.UpdateTask:
			applyUpdate(ctx, m)
		case markers.LangSwitch:
			if m.Payload != "" {
				if err := ctx.Store.StoreFact(ctx.SenderID, store.FactPreferredLanguage, m.Payload, ""); err != nil {
					logWarn("LANG_SWITCH", err)
				}
			}
		case markers.Personality:
			applyPersonality(ctx, m)
		case markers.ForgetConversation:
			if conv, err := ctx.Store.GetOrCreateConversation(ctx.Channel, ctx.SenderID, ctx.Project); err == nil {
				if err := ctx.Store.CloseAndSummarize(conv.ID, conv.Summary); err != nil {
					logWarn("FORGET_CONVERSATION", err)
				} else {
					out.ClosedConversation = true
				}
				_ = ctx.Store.ClearSession(ctx.Channel, ctx.SenderID, ctx.Project)
			}
		case markers.PurgeFacts:
			if err := ctx.Store.DeleteFacts(ctx.SenderID); err != nil {
				logWarn("PURGE_FACTS", err)
			} else {
				out.PurgedFacts = true
			}
		case markers.ProjectActivate:
			if m.Payload != "" {
				if err := ctx.Store.StoreFact(ctx.SenderID, store.FactActiveProject, m.Payload, ""); err == nil {
					out.ActiveProject, out.ProjectChanged = m.Payload, true
				} else {
					logWarn("PROJECT_ACTIVATE", err)
				}
			}
		case markers.ProjectDeactivate:
			if err := ctx.Store.DeleteFact(ctx.SenderID, store.FactActiveProject); err == nil {
				out.ActiveProject, out.ProjectChanged = "", true
			}
		case markers.HeartbeatAdd:
			editHeartbeatFile(ctx, func(lines []string) []string {
				return append(lines, "- "+m.Payload)
			})
		case markers.HeartbeatRemove:
			editHeartbeatFile(ctx, func(lines []string) []string {
				out := lines[:0:0]
				for _, l := range lines {
					if strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-")) != strings.TrimSpace(m.Payload) {
						out = append(out, l)
					}
				}
				return out
			})
		case markers.HeartbeatInterval:
			applyHeartbeatInterval(ctx, m)
		case markers.HeartbeatSuppressSection:
			editSuppressFile(ctx, m.Payload, true)
		case markers.HeartbeatUnsuppress:
			editSuppressFile(ctx, m.Payload, false)
		case markers.Reward:
			applyReward(ctx, m)
		case markers.Lesson:
			applyLesson(ctx, m)
		case markers.SkillImprove:
			applySkillImprove(ctx, m)
		case markers.BugReport:
			appendBugReport(ctx, m.Payload)
		case markers.ActionOutcome:
			if d, err := markers.DecodeActionOutcome(m); err == nil {
				out.ActionOutcome = &d
			} else {
				logWarn("ACTION_OUTCOME", err)
			}
		case markers.WhatsAppQR:
			out.WhatsAppQR = true
		}
	}
	return out
}

func logWarn(marker string, err error) {
	logging.WarnCF(logComponent, "marker handler failed", map[string]interface{}{"marker": marker, "error": err.Error()})
}

func applySchedule(ctx Context, m markers.Marker) {
	d, err := markers.DecodeSchedule(m)
	if err != nil {
		logWarn(string(m.Kind), err)
		return
	}
	dueAt, err := parseMarkerTime(d.DueAt)
	if err != nil {
		logWarn(string(m.Kind), err)
		return
	}
	taskType := store.TaskReminder
	if m.Kind == markers.ScheduleAction {
		taskType = store.TaskAction
	}
	_, _, err = ctx.Store.CreateTask(store.ScheduledTask{
		Channel: ctx.Channel, SenderID: ctx.SenderID, ReplyTarget: ctx.SenderID,
		Description: d.Description, DueAt: dueAt, Repeat: d.Repeat, RepeatExpr: d.CronExpr,
		TaskType: taskType, Project: ctx.Project,
	})
	if err != nil {
		logWarn(string(m.Kind), err)
	}
}

func applyCancel(ctx Context, m markers.Marker) {
	if m.Payload == "" {
		return
	}
	if _, err := ctx.Store.CancelTask(ctx.SenderID, m.Payload); err != nil {
		logWarn("CANCEL_TASK", err)
	}
}

func applyUpdate(ctx Context, m markers.Marker) {
	d, err := markers.DecodeUpdateTask(m)
	if err != nil {
		logWarn("UPDATE_TASK", err)
		return
	}
	if _, err := ctx.Store.UpdateTask(ctx.SenderID, d.IDPrefix, d.Desc, d.DueAt, d.Repeat); err != nil {
		logWarn("UPDATE_TASK", err)
	}
}

func applyPersonality(ctx Context, m markers.Marker) {
	if strings.EqualFold(m.Payload, "reset") {
		_ = ctx.Store.DeleteFact(ctx.SenderID, store.FactPersonality)
		return
	}
	if m.Payload != "" {
		if err := ctx.Store.StoreFact(ctx.SenderID, store.FactPersonality, m.Payload, ""); err != nil {
			logWarn("PERSONALITY", err)
		}
	}
}

func applyReward(ctx Context, m markers.Marker) {
	d, err := markers.DecodeReward(m)
	if err != nil {
		logWarn("REWARD", err)
		return
	}
	if _, err := ctx.Store.StoreOutcome(store.Outcome{
		SenderID: ctx.SenderID, Domain: d.Domain, Score: d.Score, Lesson: d.Lesson,
		Source: "reward_marker", Project: ctx.Project,
	}); err != nil {
		logWarn("REWARD", err)
	}
}

func applyLesson(ctx Context, m markers.Marker) {
	d, err := markers.DecodeLesson(m)
	if err != nil {
		logWarn("LESSON", err)
		return
	}
	if _, err := ctx.Store.StoreLesson(ctx.SenderID, d.Domain, ctx.Project, d.Rule); err != nil {
		logWarn("LESSON", err)
	}
}

func applyHeartbeatInterval(ctx Context, m markers.Marker) {
	minutes, err := markers.DecodeHeartbeatInterval(m)
	if err != nil {
		logWarn("HEARTBEAT_INTERVAL", err)
		return
	}
	SetHeartbeatIntervalMinutes(minutes)
}

func parseMarkerTime(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	s = strings.Replace(s, "T", " ", 1)
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized due_at format %q", s)
}

func heartbeatPath(ctx Context) string {
	return filepath.Join(ctx.Workspace, "prompts", "HEARTBEAT.md")
}

func suppressPath(ctx Context) string {
	return filepath.Join(ctx.Workspace, "prompts", "HEARTBEAT.suppress")
}

func editHeartbeatFile(ctx Context, edit func([]string) []string) {
	path := heartbeatPath(ctx)
	data, _ := os.ReadFile(path)
	lines := strings.Split(string(data), "\n")
	lines = edit(lines)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		logWarn("HEARTBEAT_ADD/REMOVE", err)
	}
}

func editSuppressFile(ctx Context, section string, suppress bool) {
	section = strings.TrimSpace(section)
	if section == "" {
		return
	}
	path := suppressPath(ctx)
	data, _ := os.ReadFile(path)
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" && strings.TrimSpace(l) != section {
			lines = append(lines, l)
		}
	}
	if suppress {
		lines = append(lines, section)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		logWarn("HEARTBEAT_SUPPRESS_SECTION", err)
	}
}

// SuppressedSections reads the companion suppress file, one `##` section
// name per line, for the heartbeat loop's checklist filter.
func SuppressedSections(workspace string) map[string]bool {
	data, err := os.ReadFile(filepath.Join(workspace, "prompts", "HEARTBEAT.suppress"))
	if err != nil {
		return nil
	}
	out := make(map[string]bool)
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out[l] = true
		}
	}
	return out
}

func applySkillImprove(ctx Context, m markers.Marker) {
	d, err := markers.DecodeSkillImprove(m)
	if err != nil {
		logWarn("SKILL_IMPROVE", err)
		return
	}
	path := filepath.Join(ctx.Workspace, "skills", d.Skill, "SKILL.md")
	data, err := os.ReadFile(path)
	if err != nil {
		logWarn("SKILL_IMPROVE", fmt.Errorf("skill %q: %w", d.Skill, err))
		return
	}
	content := string(data)
	const heading = "## Lessons Learned"
	entry := "- " + d.Description
	if idx := strings.Index(content, heading); idx >= 0 {
		insertAt := idx + len(heading)
		content = content[:insertAt] + "\n" + entry + content[insertAt:]
	} else {
		content = strings.TrimRight(content, "\n") + "\n\n" + heading + "\n" + entry + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		logWarn("SKILL_IMPROVE", err)
	}
}

func appendBugReport(ctx Context, text string) {
	if text == "" {
		return
	}
	path := filepath.Join(ctx.Workspace, "BUG.md")
	today := time.Now().UTC().Format("2006-01-02")
	data, _ := os.ReadFile(path)
	content := string(data)
	heading := "## " + today
	entry := "- " + text
	if !strings.Contains(content, heading) {
		content = strings.TrimRight(content, "\n") + "\n\n" + heading + "\n" + entry + "\n"
	} else {
		idx := strings.Index(content, heading)
		insertAt := idx + len(heading)
		content = content[:insertAt] + "\n" + entry + content[insertAt:]
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		logWarn("BUG_REPORT", err)
	}
}

// heartbeatIntervalMinutes is the process-wide atomic interval §5 names:
// lock-free reads each heartbeat tick, writes only from marker processing.
var heartbeatIntervalMinutes atomic.Int64

func SetHeartbeatIntervalMinutes(n int) { heartbeatIntervalMinutes.Store(int64(n)) }
func HeartbeatIntervalMinutes() int     { return int(heartbeatIntervalMinutes.Load()) }

// InitHeartbeatInterval seeds the atomic from configuration at startup,
// before any marker has had a chance to override it.
func InitHeartbeatInterval(n int) { heartbeatIntervalMinutes.Store(int64(n)) }
