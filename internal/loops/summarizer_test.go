package loops

import "testing"

func TestValidFactLineRejectsSystemKeys(t *testing.T) {
	if validFactLine("preferred_language", "en") {
		t.Fatal("expected system key to be rejected")
	}
}

func TestValidFactLineRejectsOverlong(t *testing.T) {
	longKey := make([]byte, factKeyMaxLen+1)
	for i := range longKey {
		longKey[i] = 'a'
	}
	if validFactLine(string(longKey), "v") {
		t.Fatal("expected overlong key to be rejected")
	}

	longValue := make([]byte, factValueMaxLen+1)
	for i := range longValue {
		longValue[i] = 'a'
	}
	if validFactLine("k", string(longValue)) {
		t.Fatal("expected overlong value to be rejected")
	}
}

func TestValidFactLineRejectsPipesAndCodeFences(t *testing.T) {
	if validFactLine("favorite_color", "blue | green") {
		t.Fatal("expected pipe-containing value to be rejected")
	}
	if validFactLine("snippet", "```go\nfunc main() {}\n```") {
		t.Fatal("expected code-fence-prefixed value to be rejected")
	}
}

func TestValidFactLineRejectsNumericOnly(t *testing.T) {
	if validFactLine("42", "something") {
		t.Fatal("expected purely-numeric key to be rejected")
	}
	if validFactLine("something", "42") {
		t.Fatal("expected purely-numeric value to be rejected")
	}
}

func TestValidFactLineAcceptsOrdinary(t *testing.T) {
	if !validFactLine("favorite_color", "blue") {
		t.Fatal("expected ordinary key/value to be accepted")
	}
}

func TestValidFactLineRejectsEmpty(t *testing.T) {
	if validFactLine("", "v") {
		t.Fatal("expected empty key to be rejected")
	}
	if validFactLine("k", "") {
		t.Fatal("expected empty value to be rejected")
	}
}
