// Package markers implements the marker protocol: a small line-oriented
// language the assistant speaks to the gateway to drive side effects
// (scheduling, project activation, learning, pairing). Every marker line
// is extracted, parsed, and stripped before a reply reaches the user; a
// final safety-net strip guarantees no marker prefix ever leaks through.
package markers

import (
	"regexp"
	"strings"
)

// Kind enumerates the closed marker catalogue from the spec.
type Kind string

const (
	Schedule               Kind = "SCHEDULE"
	ScheduleAction          Kind = "SCHEDULE_ACTION"
	CancelTask              Kind = "CANCEL_TASK"
	UpdateTask              Kind = "UPDATE_TASK"
	LangSwitch              Kind = "LANG_SWITCH"
	Personality             Kind = "PERSONALITY"
	ForgetConversation       Kind = "FORGET_CONVERSATION"
	PurgeFacts               Kind = "PURGE_FACTS"
	ProjectActivate          Kind = "PROJECT_ACTIVATE"
	ProjectDeactivate        Kind = "PROJECT_DEACTIVATE"
	HeartbeatAdd             Kind = "HEARTBEAT_ADD"
	HeartbeatRemove          Kind = "HEARTBEAT_REMOVE"
	HeartbeatInterval        Kind = "HEARTBEAT_INTERVAL"
	HeartbeatSuppressSection Kind = "HEARTBEAT_SUPPRESS_SECTION"
	HeartbeatUnsuppress      Kind = "HEARTBEAT_UNSUPPRESS_SECTION"
	Reward                   Kind = "REWARD"
	Lesson                   Kind = "LESSON"
	SkillImprove             Kind = "SKILL_IMPROVE"
	BugReport                Kind = "BUG_REPORT"
	ActionOutcome            Kind = "ACTION_OUTCOME"
	WhatsAppQR               Kind = "WHATSAPP_QR"
)

// prefixOrder is the catalogue order in which ExtractAll reports marker
// kinds. No prefix in prefixText is a literal prefix of another, so the
// order does not change which kind a line matches.
var prefixOrder = []Kind{
	ScheduleAction,
	Schedule,
	CancelTask,
	UpdateTask,
	LangSwitch,
	Personality,
	ForgetConversation,
	PurgeFacts,
	ProjectActivate,
	ProjectDeactivate,
	HeartbeatUnsuppress,
	HeartbeatSuppressSection,
	HeartbeatAdd,
	HeartbeatRemove,
	HeartbeatInterval,
	Reward,
	Lesson,
	SkillImprove,
	BugReport,
	ActionOutcome,
	WhatsAppQR,
}

var prefixText = map[Kind]string{
	ScheduleAction:           "SCHEDULE_ACTION:",
	Schedule:                 "SCHEDULE:",
	CancelTask:               "CANCEL_TASK:",
	UpdateTask:               "UPDATE_TASK:",
	LangSwitch:               "LANG_SWITCH:",
	Personality:              "PERSONALITY:",
	ForgetConversation:       "FORGET_CONVERSATION",
	PurgeFacts:               "PURGE_FACTS",
	ProjectActivate:          "PROJECT_ACTIVATE:",
	ProjectDeactivate:        "PROJECT_DEACTIVATE",
	HeartbeatUnsuppress:      "HEARTBEAT_UNSUPPRESS_SECTION:",
	HeartbeatSuppressSection: "HEARTBEAT_SUPPRESS_SECTION:",
	HeartbeatAdd:             "HEARTBEAT_ADD:",
	HeartbeatRemove:          "HEARTBEAT_REMOVE:",
	HeartbeatInterval:        "HEARTBEAT_INTERVAL:",
	Reward:                   "REWARD:",
	Lesson:                   "LESSON:",
	SkillImprove:             "SKILL_IMPROVE:",
	BugReport:                "BUG_REPORT:",
	ActionOutcome:            "ACTION_OUTCOME:",
	WhatsAppQR:               "WHATSAPP_QR",
}

// hasPayload reports whether a marker of this kind carries a pipe-delimited
// or free-text payload after its prefix (vs. being a bare sentinel line).
func hasPayload(k Kind) bool {
	switch k {
	case ForgetConversation, PurgeFacts, ProjectDeactivate, WhatsAppQR:
		return false
	default:
		return true
	}
}

// Marker is one extracted, parsed marker occurrence.
type Marker struct {
	Kind    Kind
	Payload string   // raw text after the prefix, trimmed
	Fields  []string // pipe-split payload fields, trimmed
	Line    string   // the full original line, for Strip bookkeeping
}

// lineRe matches a marker line anywhere at line-start (after optional
// leading whitespace) through end-of-line, and also an inline form where
// the marker begins mid-line (preceded by whitespace) and runs to EOL —
// matching the spec's "line-start and end-of-line inline forms".
func lineRe(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)(?:^|\s)` + regexp.QuoteMeta(prefix) + `[^\n]*$`)
}

// ExtractAll returns every marker found in text, grouped by kind in
// prefixOrder and in order of appearance within each kind. A kind with no payload still
// produces one Marker per occurrence of its bare sentinel line.
func ExtractAll(text string) []Marker {
	var out []Marker
	for _, k := range prefixOrder {
		prefix := prefixText[k]
		re := lineRe(prefix)
		for _, loc := range re.FindAllString(text, -1) {
			line := strings.TrimSpace(loc)
			payload := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			m := Marker{Kind: k, Payload: payload, Line: line}
			if hasPayload(k) && payload != "" {
				for _, f := range strings.Split(payload, "|") {
					m.Fields = append(m.Fields, strings.TrimSpace(f))
				}
			}
			out = append(out, m)
		}
	}
	return out
}

// Extract returns the first marker of the given kind, if any.
func Extract(text string, kind Kind) (Marker, bool) {
	for _, m := range ExtractAll(text) {
		if m.Kind == kind {
			return m, true
		}
	}
	return Marker{}, false
}

// Strip removes every recognized marker line from text, collapsing
// resulting blank lines at the tail.
func Strip(text string) string {
	result := text
	for _, k := range prefixOrder {
		re := lineRe(prefixText[k])
		result = re.ReplaceAllString(result, "")
	}
	return strings.TrimRight(result, "\n \t")
}

// anyPrefixLineRe is the safety-net pattern: any line that begins with any
// known literal prefix, regardless of whether ExtractAll/Strip's more
// precise patterns matched it. This guarantees §7's "no marker leaks to
// the user even if a codec branch is missed."
var anyPrefixLineRe = func() *regexp.Regexp {
	var alts []string
	for _, k := range prefixOrder {
		alts = append(alts, regexp.QuoteMeta(prefixText[k]))
	}
	return regexp.MustCompile(`(?m)^\s*(?:` + strings.Join(alts, "|") + `).*$`)
}()

// StripAllRemaining is the final safety-net pass applied once at the end
// of marker processing, after every per-kind handler has already stripped
// what it recognized.
func StripAllRemaining(text string) string {
	result := anyPrefixLineRe.ReplaceAllString(text, "")
	return strings.TrimRight(result, "\n \t")
}
