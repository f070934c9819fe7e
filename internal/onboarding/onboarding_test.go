package onboarding

import "testing"

func TestDetectLanguageDefaultsToEnglish(t *testing.T) {
	if lang := DetectLanguage("hello, how are you today?"); lang != "en" {
		t.Fatalf("expected en, got %q", lang)
	}
}

func TestDetectLanguageSpanish(t *testing.T) {
	if lang := DetectLanguage("hola, ¿cómo estás? necesito ayuda con un proyecto"); lang != "es" {
		t.Fatalf("expected es, got %q", lang)
	}
}

func TestDetectLanguagePortuguese(t *testing.T) {
	if lang := DetectLanguage("olá, você pode me ajudar com uma coisa?"); lang != "pt" {
		t.Fatalf("expected pt, got %q", lang)
	}
}
