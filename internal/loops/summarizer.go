package loops

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/omegacorp/omega/internal/logging"
	"github.com/omegacorp/omega/internal/providers"
	"github.com/omegacorp/omega/internal/store"
)

const summarizerTick = 60 * time.Second

const (
	factKeyMaxLen   = 50
	factValueMaxLen = 200
)

// Summarizer closes idle conversations, producing a short summary and
// extracting durable facts from them each tick.
type Summarizer struct {
	deps Deps
}

func NewSummarizer(deps Deps) *Summarizer {
	return &Summarizer{deps: deps}
}

func (s *Summarizer) Run(ctx context.Context) {
	runTicker(ctx, summarizerTick, "summarizer", s.tick)
}

func (s *Summarizer) tick(ctx context.Context) {
	idle, err := s.deps.Store.FindIdleConversations()
	if err != nil {
		logging.WarnCF("summarizer", "failed to list idle conversations", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, conv := range idle {
		s.summarizeOne(ctx, conv)
	}
}

func (s *Summarizer) summarizeOne(ctx context.Context, conv store.Conversation) {
	msgs, err := s.deps.Store.RecentMessages(conv.ID, 50)
	if err != nil {
		logging.WarnCF("summarizer", "failed to fetch messages", map[string]interface{}{"conversation_id": conv.ID, "error": err.Error()})
		return
	}
	if len(msgs) == 0 {
		if err := s.deps.Store.CloseAndSummarize(conv.ID, ""); err != nil {
			logging.WarnCF("summarizer", "failed to close empty conversation", map[string]interface{}{"conversation_id": conv.ID, "error": err.Error()})
		}
		return
	}

	var transcript strings.Builder
	for _, m := range msgs {
		transcript.WriteString(string(m.Role) + ": " + m.Content + "\n")
	}

	summary, err := s.callProvider(ctx, "Summarize this conversation in two or three sentences, for later recall:\n\n"+transcript.String())
	if err != nil {
		logging.WarnCF("summarizer", "summary call failed, conversation stays active", map[string]interface{}{"conversation_id": conv.ID, "error": err.Error()})
		return
	}

	extracted, err := s.callProvider(ctx, "Extract durable facts worth remembering about this user from the conversation below. "+
		"Reply with one fact per line, each formatted exactly as `key: value`. If nothing is worth remembering, reply with nothing.\n\n"+transcript.String())
	if err != nil {
		logging.WarnCF("summarizer", "fact extraction call failed", map[string]interface{}{"conversation_id": conv.ID, "error": err.Error()})
	} else {
		s.storeValidFacts(conv.SenderID, extracted)
	}

	if err := s.deps.Store.CloseAndSummarize(conv.ID, strings.TrimSpace(summary)); err != nil {
		logging.WarnCF("summarizer", "failed to close conversation", map[string]interface{}{"conversation_id": conv.ID, "error": err.Error()})
	}
}

func (s *Summarizer) callProvider(ctx context.Context, prompt string) (string, error) {
	resp, err := s.deps.Provider.Complete(ctx, providers.CompletionRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt}},
		Model:    s.deps.Provider.FastModel(),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// storeValidFacts parses `key: value` lines and stores only the ones that
// pass every validation rule: no system-reserved keys, bounded key/value
// length, no pipe-delimited table rows, and no purely numeric key or
// value (those are almost always misread totals, not facts).
func (s *Summarizer) storeValidFacts(senderID, text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if !validFactLine(key, value) {
			continue
		}
		if err := s.deps.Store.StoreFact(senderID, key, value, ""); err != nil {
			logging.WarnCF("summarizer", "failed to store extracted fact", map[string]interface{}{"sender_id": senderID, "key": key, "error": err.Error()})
		}
	}
}

func validFactLine(key, value string) bool {
	if key == "" || value == "" {
		return false
	}
	if store.IsSystemKey(key) {
		return false
	}
	if len(key) > factKeyMaxLen || len(value) > factValueMaxLen {
		return false
	}
	if strings.Contains(value, "|") {
		return false
	}
	if strings.HasPrefix(value, "```") {
		return false
	}
	if isNumeric(key) || isNumeric(value) {
		return false
	}
	return true
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
