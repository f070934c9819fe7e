package commands

import "testing"

func TestIsCommand(t *testing.T) {
	cases := map[string]bool{
		"/help":          true,
		"  /status":      true,
		"hello":          false,
		"":                false,
		"/":              true,
		"not a / command": false,
	}
	for text, want := range cases {
		if got := IsCommand(text); got != want {
			t.Errorf("IsCommand(%q) = %v, want %v", text, got, want)
		}
	}
}
