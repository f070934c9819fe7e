package gateway

import "testing"

func TestDeriveNeedsScheduling(t *testing.T) {
	n := DeriveNeeds("remind me to call mom tomorrow at 5pm")
	if !n.Scheduling {
		t.Fatal("expected scheduling need for a reminder request")
	}
	if !n.Tasks {
		t.Fatal("expected tasks need to follow from scheduling")
	}
	if !n.Profile {
		t.Fatal("expected profile need to follow from scheduling")
	}
}

func TestDeriveNeedsRecallImpliesSummaries(t *testing.T) {
	n := DeriveNeeds("do you remember when I told you about my trip?")
	if !n.Recall {
		t.Fatal("expected recall need for a memory-referencing message")
	}
	if !n.Summaries {
		t.Fatal("expected summaries need to follow from recall")
	}
}

func TestDeriveNeedsOrdinaryMessage(t *testing.T) {
	n := DeriveNeeds("thanks, that looks great")
	if n.Scheduling || n.Recall || n.Projects {
		t.Fatalf("expected no special needs for an ordinary message, got %+v", n)
	}
}

func TestDeriveNeedsMultilingual(t *testing.T) {
	n := DeriveNeeds("recuérdame llamar al médico mañana")
	if !n.Scheduling {
		t.Fatal("expected Spanish reminder phrasing to trigger scheduling")
	}
}
