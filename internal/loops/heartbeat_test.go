package loops

import (
	"strings"
	"testing"
	"time"
)

func TestWithinActiveHoursDaytimeWindow(t *testing.T) {
	at := func(hh, mm int) time.Time {
		return time.Date(2026, 7, 31, hh, mm, 0, 0, time.UTC)
	}
	if !withinActiveHours(at(9, 0), "08:00", "22:00") {
		t.Fatal("expected 09:00 to be within 08:00-22:00")
	}
	if withinActiveHours(at(23, 0), "08:00", "22:00") {
		t.Fatal("expected 23:00 to be outside 08:00-22:00")
	}
}

func TestWithinActiveHoursOvernightWindow(t *testing.T) {
	at := func(hh, mm int) time.Time {
		return time.Date(2026, 7, 31, hh, mm, 0, 0, time.UTC)
	}
	if !withinActiveHours(at(23, 30), "22:00", "06:00") {
		t.Fatal("expected 23:30 to be within overnight window 22:00-06:00")
	}
	if !withinActiveHours(at(1, 0), "22:00", "06:00") {
		t.Fatal("expected 01:00 to be within overnight window 22:00-06:00")
	}
	if withinActiveHours(at(12, 0), "22:00", "06:00") {
		t.Fatal("expected noon to be outside overnight window 22:00-06:00")
	}
}

func TestWithinActiveHoursDefaultsOnBadInput(t *testing.T) {
	if !withinActiveHours(time.Now(), "not-a-time", "22:00") {
		t.Fatal("expected malformed bounds to default to always-on")
	}
}

func TestFilterSuppressedSections(t *testing.T) {
	text := "## Keep\nthis stays\n## Drop\nthis goes\n## Keep2\nthis stays too\n"
	out := filterSuppressedSections(text, map[string]bool{"Drop": true})
	if !strings.Contains(out, "this stays") || strings.Contains(out, "this goes") {
		t.Fatalf("unexpected filtered output: %q", out)
	}
}

func TestNextAlignedTick(t *testing.T) {
	now := time.Date(2026, 7, 31, 9, 10, 0, 0, time.UTC)
	wait := nextAlignedTick(now, 30*time.Minute)
	next := now.Add(wait)
	if next.Minute() != 30 && next.Minute() != 0 {
		t.Fatalf("expected alignment to a 30-minute boundary, got %v", next)
	}
}
