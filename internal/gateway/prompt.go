package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/omegacorp/omega/internal/projects"
	"github.com/omegacorp/omega/internal/store"
)

// promptSections holds the parsed `## <Name>` blocks of SYSTEM_PROMPT.md.
// Any subset may be missing; composeSystemPrompt only emits a section it found.
type promptSections struct {
	identity   string
	soul       string
	system     string
	scheduling string
	projects   string
	meta       string
}

var sectionHeadingRe = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

// loadPromptSections reads and splits `<workspace>/prompts/SYSTEM_PROMPT.md`
// into its named sections. A missing file yields an all-empty set — the
// gateway still runs, just without the operator-authored persona text.
func loadPromptSections(workspace string) promptSections {
	data, err := os.ReadFile(filepath.Join(workspace, "prompts", "SYSTEM_PROMPT.md"))
	if err != nil {
		return promptSections{}
	}
	content := string(data)

	locs := sectionHeadingRe.FindAllStringSubmatchIndex(content, -1)
	var ps promptSections
	for i, loc := range locs {
		name := strings.ToLower(strings.TrimSpace(content[loc[2]:loc[3]]))
		bodyStart := loc[1]
		bodyEnd := len(content)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		body := strings.TrimSpace(content[bodyStart:bodyEnd])
		switch name {
		case "identity":
			ps.identity = body
		case "soul":
			ps.soul = body
		case "system":
			ps.system = body
		case "scheduling":
			ps.scheduling = body
		case "projects":
			ps.projects = body
		case "meta":
			ps.meta = body
		}
	}
	return ps
}

// promptInputs bundles everything composeSystemPrompt needs beyond the
// parsed SYSTEM_PROMPT.md sections.
type promptInputs struct {
	Needs           Needs
	Provider        string
	Model           string
	Platform        string
	ActiveProject   string
	Lessons         []store.Lesson
	HeartbeatNow    bool
	ProjectsLoader  *projects.Loader
}

// composeSystemPrompt assembles the provider-bound system prompt per the
// pipeline's step 7: the identity/soul/system/provider-time-platform hint
// and lessons are always present; scheduling, projects, and meta sections
// are conditional on the keyword-derived needs; an active project's
// ROLE.md is appended when one is set; a heartbeat checklist hint is
// appended only when the triggering message carried heartbeat keywords.
func composeSystemPrompt(ps promptSections, in promptInputs) string {
	var parts []string

	if ps.identity != "" {
		parts = append(parts, "## Identity\n\n"+ps.identity)
	}
	if ps.soul != "" {
		parts = append(parts, "## Soul\n\n"+ps.soul)
	}
	if ps.system != "" {
		parts = append(parts, "## System\n\n"+ps.system)
	}

	hint := fmt.Sprintf("## Runtime\n\nProvider: %s\nModel: %s\nPlatform: %s\nCurrent time: %s",
		in.Provider, in.Model, in.Platform, time.Now().Format(time.RFC3339))
	parts = append(parts, hint)

	if in.Needs.Scheduling && ps.scheduling != "" {
		parts = append(parts, "## Scheduling\n\n"+ps.scheduling)
	}
	if in.Needs.Projects && ps.projects != "" {
		parts = append(parts, "## Projects\n\n"+ps.projects)
	}
	if in.Needs.Meta && ps.meta != "" {
		parts = append(parts, "## Meta\n\n"+ps.meta)
	}

	if in.ActiveProject != "" && in.ProjectsLoader != nil {
		if role, ok := in.ProjectsLoader.Role(in.ActiveProject); ok {
			parts = append(parts, fmt.Sprintf("## Active Project: %s\n\n%s", in.ActiveProject, role))
		}
	}

	if len(in.Lessons) > 0 {
		var sb strings.Builder
		sb.WriteString("## Lessons\n\n")
		for _, l := range in.Lessons {
			sb.WriteString(fmt.Sprintf("- (%s) %s\n", l.Domain, l.Rule))
		}
		parts = append(parts, sb.String())
	}

	if in.HeartbeatNow && in.ActiveProject != "" && in.ProjectsLoader != nil {
		if checklist, ok := in.ProjectsLoader.Heartbeat(in.ActiveProject); ok {
			parts = append(parts, "## Heartbeat Checklist\n\n"+checklist)
		}
	}

	return strings.Join(parts, "\n\n---\n\n")
}

// heartbeatTriggerRe matches the small set of phrases that cause the
// pipeline to attach the active project's heartbeat checklist to an
// ordinary message, not just to the heartbeat loop's own runs.
var heartbeatTriggerRe = regexp.MustCompile(`(?i)\b(check in|status update|anything pending|heartbeat)\b`)

func mentionsHeartbeat(text string) bool {
	return heartbeatTriggerRe.MatchString(text)
}
