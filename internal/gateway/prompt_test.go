package gateway

import (
	"strings"
	"testing"
)

func TestMentionsHeartbeat(t *testing.T) {
	if !mentionsHeartbeat("just checking in, anything pending?") {
		t.Fatal("expected heartbeat trigger phrase to match")
	}
	if mentionsHeartbeat("what's the weather like today?") {
		t.Fatal("expected ordinary message not to match")
	}
}

func TestComposeSystemPromptAlwaysIncludesCore(t *testing.T) {
	ps := promptSections{identity: "I am Omega.", soul: "Be kind.", system: "Follow the rules."}
	out := composeSystemPrompt(ps, promptInputs{Provider: "anthropic", Model: "claude"})
	for _, want := range []string{"I am Omega.", "Be kind.", "Follow the rules."} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected composed prompt to contain %q, got %q", want, out)
		}
	}
}

func TestComposeSystemPromptOmitsUngatedSections(t *testing.T) {
	ps := promptSections{scheduling: "SCHEDULING RULES HERE"}
	out := composeSystemPrompt(ps, promptInputs{Needs: Needs{Scheduling: false}})
	if strings.Contains(out, "SCHEDULING RULES HERE") {
		t.Fatal("expected scheduling section to be omitted when not needed")
	}
}

func TestComposeSystemPromptIncludesGatedSections(t *testing.T) {
	ps := promptSections{scheduling: "SCHEDULING RULES HERE"}
	out := composeSystemPrompt(ps, promptInputs{Needs: Needs{Scheduling: true}})
	if !strings.Contains(out, "SCHEDULING RULES HERE") {
		t.Fatal("expected scheduling section to be included when needed")
	}
}
