package markers

import "testing"

func TestExtractAllOrderAndStripRoundTrip(t *testing.T) {
	text := "Sure, I'll do that.\nSCHEDULE: Call mom | 2026-03-15T15:00:00 | once\nREWARD: 1|chores|said thanks\n"
	ms := ExtractAll(text)
	if len(ms) != 2 {
		t.Fatalf("expected 2 markers, got %d: %+v", len(ms), ms)
	}
	if ms[0].Kind != Schedule {
		t.Fatalf("expected first marker Schedule, got %v", ms[0].Kind)
	}
	stripped := Strip(text)
	again := StripAllRemaining(stripped)
	if stripped != again {
		t.Fatalf("strip(extract(x)+strip(x)) != strip(x): %q vs %q", stripped, again)
	}
}

func TestDecodeSchedule(t *testing.T) {
	m, ok := Extract("SCHEDULE: Call mom | 2026-03-15T15:00:00 | once", Schedule)
	if !ok {
		t.Fatal("expected to extract SCHEDULE marker")
	}
	d, err := DecodeSchedule(m)
	if err != nil {
		t.Fatalf("DecodeSchedule error: %v", err)
	}
	if d.Description != "Call mom" || d.Repeat != "once" {
		t.Fatalf("unexpected decode: %+v", d)
	}
}

func TestDecodeScheduleCron(t *testing.T) {
	m, ok := Extract("SCHEDULE: Water plants | 2026-03-15T15:00:00 | once | cron:0 9 * * 1", Schedule)
	if !ok {
		t.Fatal("expected to extract SCHEDULE marker")
	}
	d, err := DecodeSchedule(m)
	if err != nil {
		t.Fatalf("DecodeSchedule error: %v", err)
	}
	if d.Repeat != "cron" || d.CronExpr != "0 9 * * 1" {
		t.Fatalf("unexpected cron decode: %+v", d)
	}
}

func TestDecodeRewardRejectsBadScore(t *testing.T) {
	m, _ := Extract("REWARD: 5|chores|bad score", Reward)
	if _, err := DecodeReward(m); err == nil {
		t.Fatal("expected error for out-of-range score")
	}
}

func TestDecodeActionOutcomeFailed(t *testing.T) {
	m, ok := Extract("ACTION_OUTCOME: Failed(timeout)", ActionOutcome)
	if !ok {
		t.Fatal("expected to extract ACTION_OUTCOME marker")
	}
	d, err := DecodeActionOutcome(m)
	if err != nil {
		t.Fatalf("DecodeActionOutcome error: %v", err)
	}
	if d.Success || d.Reason != "timeout" {
		t.Fatalf("unexpected decode: %+v", d)
	}
}

func TestBareMarkersNoPayload(t *testing.T) {
	text := "Done.\nFORGET_CONVERSATION\nPURGE_FACTS\nWHATSAPP_QR\n"
	ms := ExtractAll(text)
	if len(ms) != 3 {
		t.Fatalf("expected 3 bare markers, got %d: %+v", len(ms), ms)
	}
}

func TestStripAllRemainingSafetyNet(t *testing.T) {
	// A LESSON line with extra pipes in its payload: Strip's per-kind regex
	// already removes it, so the safety-net pass finds nothing left to strip
	// and must leave the text unchanged.
	text := "Reply text\nLESSON: domain|rule with | extra pipes\n"
	stripped := Strip(text)
	final := StripAllRemaining(stripped)
	if final != stripped {
		t.Fatalf("safety net altered already-clean text: %q vs %q", stripped, final)
	}
}
