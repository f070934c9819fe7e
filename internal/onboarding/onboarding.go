// Package onboarding implements the six-stage first-run sequence (§4.8):
// a strictly sequential, persisted stage counter that contributes one
// transient localized hint per stage, plus cross-channel linking: /link
// records the second channel's sender id as an alias of the canonical one
// (store.CreateAlias). Fact and task lookups use the sender id as
// received; they are not resolved through the alias.
package onboarding

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/store"
)

const logComponent = "onboarding"

// Stage is one of the six sequential onboarding stages.
type Stage int

const (
	StageIntro Stage = iota
	StageHelp
	StagePersonality
	StageTasks
	StageProjects
	StageDone
)

// Manager owns stage transitions and welcome delivery against the store.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Stage returns the sender's current onboarding stage, defaulting to
// StageIntro when no `onboarding_stage` fact has been written yet.
func (m *Manager) Stage(senderID string) Stage {
	f, err := m.store.GetFact(senderID, store.FactOnboardingStage)
	if err != nil || f == nil {
		return StageIntro
	}
	n, err := strconv.Atoi(f.Value)
	if err != nil || n < int(StageIntro) || n > int(StageDone) {
		return StageIntro
	}
	return Stage(n)
}

func (m *Manager) setStage(senderID string, s Stage) {
	if err := m.store.StoreFact(senderID, store.FactOnboardingStage, strconv.Itoa(int(s)), ""); err != nil {
		logging.WarnCF(logComponent, "failed to persist onboarding stage", map[string]interface{}{"sender_id": senderID, "error": err.Error()})
	}
}

// Advance re-evaluates the sender's stage transition rule against their
// current facts/tasks and persists the next stage if its condition now
// holds. Transitions are checked in order and only ever move forward by
// one stage per call — callers invoke Advance once per pipeline run, so a
// user who satisfies two thresholds in one turn still advances one stage
// at a time across subsequent turns, matching the strictly sequential
// design.
func (m *Manager) Advance(senderID string) {
	stage := m.Stage(senderID)
	if stage == StageDone {
		return
	}

	facts, err := m.store.AllFacts(senderID)
	if err != nil {
		return
	}
	realFacts := 0
	for _, f := range facts {
		if !store.IsSystemKey(f.Key) {
			realFacts++
		}
	}

	switch stage {
	case StageIntro:
		if realFacts >= 1 {
			m.setStage(senderID, StageHelp)
		}
	case StageHelp:
		if realFacts >= 3 {
			m.setStage(senderID, StagePersonality)
		}
	case StagePersonality:
		tasks, err := m.store.PendingTasksForSender(senderID)
		if err == nil && len(tasks) > 0 {
			m.setStage(senderID, StageTasks)
		}
	case StageTasks:
		if realFacts >= 5 {
			m.setStage(senderID, StageProjects)
		}
	case StageProjects:
		m.setStage(senderID, StageDone)
	}
}

// hintText is the one transient localized prompt hint each stage
// contributes, keyed by stage then language; English is the fallback for
// any language without its own entry.
var hintText = map[Stage]map[string]string{
	StageIntro: {
		"en": "Tip: tell me a bit about yourself and I'll remember it.",
		"es": "Consejo: cuéntame algo sobre ti y lo recordaré.",
		"pt": "Dica: me conte algo sobre você e eu vou lembrar.",
	},
	StageHelp: {
		"en": "Tip: send /help any time to see what I can do.",
		"es": "Consejo: envía /help cuando quieras ver qué puedo hacer.",
		"pt": "Dica: envie /help quando quiser ver o que eu posso fazer.",
	},
	StagePersonality: {
		"en": "Tip: try /personality to adjust how I talk to you.",
		"es": "Consejo: prueba /personality para ajustar cómo te hablo.",
		"pt": "Dica: experimente /personality para ajustar como eu falo com você.",
	},
	StageTasks: {
		"en": "Tip: /tasks shows everything I have scheduled for you.",
		"es": "Consejo: /tasks muestra todo lo que tengo programado para ti.",
		"pt": "Dica: /tasks mostra tudo que tenho agendado para você.",
	},
	StageProjects: {
		"en": "Tip: /projects lists the projects I can focus on.",
		"es": "Consejo: /projects muestra los proyectos en los que puedo enfocarme.",
		"pt": "Dica: /projects mostra os projetos em que posso me concentrar.",
	},
}

// Hint returns the current stage's localized tip, or "" once the sender
// has reached StageDone.
func (m *Manager) Hint(senderID, lang string) string {
	stage := m.Stage(senderID)
	byLang, ok := hintText[stage]
	if !ok {
		return ""
	}
	if text, ok := byLang[lang]; ok {
		return text
	}
	return byLang["en"]
}

// WelcomeResult is what MaybeWelcome decided for one message.
type WelcomeResult struct {
	ShouldSend bool
	Message    string
	Language   string
}

// welcomeTable is `prompts/WELCOME.toml`'s shape: a flat map from the
// language code DetectLanguage returns (e.g. "es") to the localized welcome
// message. Entries keyed by a language name (e.g. "Spanish") are never
// looked up.
type welcomeTable map[string]string

func loadWelcomeTable(workspace string) welcomeTable {
	var t welcomeTable
	path := filepath.Join(workspace, "prompts", "WELCOME.toml")
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return welcomeTable{"en": "Welcome! I'm ready whenever you are."}
	}
	return t
}

// MaybeWelcome implements pipeline step 4: a sender with no `welcomed`
// fact gets language detection, a localized welcome message, and the
// `welcomed`/`preferred_language` facts stored — after which the pipeline
// continues (not returns) into the rest of the steps for this same
// message. Cross-channel linking itself is a deliberate user action (the
// `/link` command, see internal/commands) rather than automatic
// detection: none of the channels this gateway supports expose a
// reliable cross-channel identity signal to match on automatically.
func (m *Manager) MaybeWelcome(workspace, senderID, channel, text string) WelcomeResult {
	if f, err := m.store.GetFact(senderID, store.FactWelcomed); err == nil && f != nil {
		return WelcomeResult{}
	}

	lang := DetectLanguage(text)
	_ = channel

	table := loadWelcomeTable(workspace)
	msg, ok := table[lang]
	if !ok {
		msg = table["en"]
	}

	if err := m.store.StoreFact(senderID, store.FactWelcomed, "true", ""); err != nil {
		logging.WarnCF(logComponent, "failed to store welcomed fact", map[string]interface{}{"sender_id": senderID, "error": err.Error()})
	}
	if err := m.store.StoreFact(senderID, store.FactPreferredLanguage, lang, ""); err != nil {
		logging.WarnCF(logComponent, "failed to store preferred_language fact", map[string]interface{}{"sender_id": senderID, "error": err.Error()})
	}

	return WelcomeResult{ShouldSend: true, Message: msg, Language: lang}
}

// LinkByCode implements the `/link <code>` command's alias step: the code
// was generated on the user's first channel by GenerateLinkCode and
// typed into the second channel, giving the store a fact pair
// (link_code -> code) it can match on via FindCanonicalUser.
func (m *Manager) LinkByCode(senderID, code string) (bool, error) {
	canonical, found, err := m.store.FindCanonicalUser(store.FactLinkCode, code)
	if err != nil {
		return false, err
	}
	if !found || canonical == senderID {
		return false, nil
	}
	if err := m.store.CreateAlias(senderID, canonical); err != nil {
		return false, err
	}
	_ = m.store.DeleteFact(canonical, store.FactLinkCode)
	return true, nil
}

// GenerateLinkCode stores a short-lived link code fact against senderID
// for the `/link` command to hand to the user.
func (m *Manager) GenerateLinkCode(senderID, code string) error {
	return m.store.StoreFact(senderID, store.FactLinkCode, code, "")
}

// languageKeywords is a tiny closed stopword set per language, reused from
// the same eight-language surface the keyword gating covers; no pack
// example ships a language-identification library, so this heuristic
// stays intentionally simple rather than reaching for an unproven dep.
var languageKeywords = map[string][]string{
	"es": {"hola", "gracias", "por favor", "qué", "cómo", "mañana"},
	"pt": {"olá", "obrigado", "por favor", "que", "como", "amanhã"},
	"fr": {"bonjour", "merci", "s'il vous plaît", "comment", "demain"},
	"de": {"hallo", "danke", "bitte", "wie", "morgen"},
	"it": {"ciao", "grazie", "per favore", "come", "domani"},
	"nl": {"hallo", "dank je", "alsjeblieft", "hoe", "morgen"},
	"ru": {"привет", "спасибо", "пожалуйста", "как", "завтра"},
}

// DetectLanguage returns a best-guess ISO-ish language code for text,
// defaulting to "en" when no other language's keywords are recognized.
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	for lang, words := range languageKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return lang
			}
		}
	}
	return "en"
}
