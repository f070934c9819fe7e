// Package commands implements the slash-command surface the pipeline
// intercepts before any provider call (§4.6 step 5): a small set of
// deterministic, locally-answered operations that never touch the model.
package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/omegacorp/omega/internal/onboarding"
	"github.com/omegacorp/omega/internal/projects"
	"github.com/omegacorp/omega/internal/store"
)

// Dispatcher answers recognized slash commands directly against the
// store, with no model involvement.
type Dispatcher struct {
	store     *store.Store
	projects  *projects.Loader
	onboard   *onboarding.Manager
	workspace string
}

func NewDispatcher(s *store.Store, projLoader *projects.Loader, onboard *onboarding.Manager, workspace string) *Dispatcher {
	return &Dispatcher{store: s, projects: projLoader, onboard: onboard, workspace: workspace}
}

// IsCommand reports whether text should be routed to Handle instead of
// the provider pipeline.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Handle answers one slash command for senderID and returns the reply
// text. An unrecognized command gets an "Unknown command" reply and true;
// the second return is false only when text is empty.
func (d *Dispatcher) Handle(senderID, channel, project, text string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", false
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/help":
		return d.help(), true
	case "/status":
		return d.status(senderID, project), true
	case "/tasks":
		return d.tasks(senderID), true
	case "/forget":
		return d.forget(senderID, channel, project), true
	case "/projects":
		return d.projects_(args), true
	case "/personality":
		return d.personality(senderID, args), true
	case "/link":
		return d.link(senderID, args), true
	default:
		return fmt.Sprintf("Unknown command %q. Send /help to see what's available.", cmd), true
	}
}

func (d *Dispatcher) help() string {
	return strings.Join([]string{
		"Available commands:",
		"/status — show your active project and onboarding stage",
		"/tasks — list your pending reminders and actions",
		"/forget — close the current conversation and start fresh",
		"/projects — list known projects",
		"/personality <hint>|reset — adjust or reset how I talk to you",
		"/link — get a short code to connect another channel to this account",
		"/link <code> — use a code from another channel to connect accounts",
	}, "\n")
}

func (d *Dispatcher) status(senderID, project string) string {
	stage := d.onboard.Stage(senderID)
	active := project
	if active == "" {
		active = "(none)"
	}
	return fmt.Sprintf("Active project: %s\nOnboarding stage: %d/5", active, int(stage))
}

func (d *Dispatcher) tasks(senderID string) string {
	tasks, err := d.store.PendingTasksForSender(senderID)
	if err != nil {
		return "I couldn't load your tasks right now."
	}
	if len(tasks) == 0 {
		return "You have no pending tasks."
	}
	var sb strings.Builder
	sb.WriteString("Pending tasks:\n")
	for _, t := range tasks {
		sb.WriteString(fmt.Sprintf("- [%s] %s — due %s\n", t.ID[:8], t.Description, t.DueAt.Format("2006-01-02 15:04")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (d *Dispatcher) forget(senderID, channel, project string) string {
	conv, err := d.store.GetOrCreateConversation(channel, senderID, project)
	if err != nil {
		return "I couldn't close the conversation right now."
	}
	if err := d.store.CloseAndSummarize(conv.ID, conv.Summary); err != nil {
		return "I couldn't close the conversation right now."
	}
	_ = d.store.ClearSession(channel, senderID, project)
	return "Got it — I'll start fresh. (Send any message to begin a new conversation.)"
}

func (d *Dispatcher) projects_(args []string) string {
	if len(args) == 0 {
		list := d.projects.List()
		if len(list) == 0 {
			return "No projects are configured."
		}
		var names []string
		for _, p := range list {
			names = append(names, p.Name)
		}
		return "Known projects: " + strings.Join(names, ", ")
	}
	return "Use PROJECT_ACTIVATE in a normal message to switch the active project, or /projects with no arguments to list them."
}

func (d *Dispatcher) personality(senderID string, args []string) string {
	if len(args) == 0 {
		return "Usage: /personality <description> or /personality reset"
	}
	if strings.EqualFold(args[0], "reset") {
		_ = d.store.DeleteFact(senderID, store.FactPersonality)
		return "Personality reset to default."
	}
	hint := strings.Join(args, " ")
	if err := d.store.StoreFact(senderID, store.FactPersonality, hint, ""); err != nil {
		return "I couldn't save that right now."
	}
	return "Got it — I'll keep that in mind."
}

func (d *Dispatcher) link(senderID string, args []string) string {
	if len(args) == 0 {
		code := uuid.NewString()[:8]
		if err := d.onboard.GenerateLinkCode(senderID, code); err != nil {
			return "I couldn't generate a link code right now."
		}
		return fmt.Sprintf("Send /link %s from your other channel within the next few minutes to connect your accounts.", code)
	}
	linked, err := d.onboard.LinkByCode(senderID, args[0])
	if err != nil {
		return "I couldn't check that code right now."
	}
	if !linked {
		return "That code wasn't found or has expired."
	}
	return "Accounts connected — this channel is now recorded as an alias of your other one."
}
