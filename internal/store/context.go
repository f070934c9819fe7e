package store

import "github.com/omegacorp/omega/internal/logging"

// ContextNeeds gates which queries BuildContext issues, set by the
// gateway's keyword-gating stage so an ordinary message doesn't pay for
// recall/outcome/lesson lookups it will never use.
type ContextNeeds struct {
	History  bool
	Recall   bool
	Tasks    bool
	Outcomes bool
	Lessons  bool
}

// BuiltContext is everything BuildContext assembled, ready for prompt
// templating by the gateway.
type BuiltContext struct {
	Conversation     *Conversation
	History          []Message
	Facts            []Fact
	RecentSummaries  []string
	Recall           []Message
	PendingTasks     []ScheduledTask
	RecentOutcomes   []Outcome
	Lessons          []Lesson
	PreferredLang    string
}

const (
	historyLimit  = 50
	summaryLimit  = 3
	recallLimit   = 5
	outcomeLimit  = 10
)

// BuildContext assembles the provider-bound context for a sender's
// current conversation, gated by needs. Facts are always loaded (needed
// for language/onboarding regardless of keyword gating); every other
// query degrades to an empty slice on failure so a DB hiccup in a
// peripheral recall source never blocks the conversation.
func (s *Store) BuildContext(conv *Conversation, query string, needs ContextNeeds, maxContextMessages int) (*BuiltContext, error) {
	bc := &BuiltContext{Conversation: conv}

	facts, err := s.AllFacts(conv.SenderID)
	if err != nil {
		return nil, err // facts are load-bearing for language/onboarding; propagate
	}
	bc.Facts = facts
	for _, f := range facts {
		if f.Key == FactPreferredLanguage {
			bc.PreferredLang = f.Value
		}
	}

	if needs.History {
		limit := maxContextMessages
		if limit <= 0 {
			limit = historyLimit
		}
		if hist, err := s.RecentMessages(conv.ID, limit); err != nil {
			logging.WarnCF(logComponent, "history query failed, degrading to empty", map[string]interface{}{"err": err.Error()})
		} else {
			bc.History = hist
		}
	}

	if summaries, err := s.recentSummariesForSender(conv.SenderID, summaryLimit); err != nil {
		logging.WarnCF(logComponent, "summary query failed, degrading to empty", map[string]interface{}{"err": err.Error()})
	} else {
		bc.RecentSummaries = summaries
	}

	if needs.Recall && query != "" {
		if msgs, err := s.SearchMessages(conv.SenderID, query, recallLimit); err != nil {
			logging.WarnCF(logComponent, "fts recall failed, degrading to empty", map[string]interface{}{"err": err.Error()})
		} else {
			bc.Recall = excludeConversation(msgs, conv.ID)
		}
	}

	if needs.Tasks {
		if tasks, err := s.PendingTasksForSender(conv.SenderID); err != nil {
			logging.WarnCF(logComponent, "pending task query failed, degrading to empty", map[string]interface{}{"err": err.Error()})
		} else {
			bc.PendingTasks = tasks
		}
	}

	if needs.Outcomes {
		if outcomes, err := s.RecentOutcomes(conv.SenderID, outcomeLimit); err != nil {
			logging.WarnCF(logComponent, "outcome query failed, degrading to empty", map[string]interface{}{"err": err.Error()})
		} else {
			bc.RecentOutcomes = outcomes
		}
	}

	if needs.Lessons {
		domain := conv.Project
		if domain == "" {
			domain = "general"
		}
		if lessons, err := s.LessonsFor(conv.SenderID, domain, conv.Project); err != nil {
			logging.WarnCF(logComponent, "lesson query failed, degrading to empty", map[string]interface{}{"err": err.Error()})
		} else {
			bc.Lessons = lessons
		}
	}

	return bc, nil
}

func excludeConversation(msgs []Message, conversationID string) []Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.ConversationID != conversationID {
			out = append(out, m)
		}
	}
	return out
}

// RecentSummariesForSender is the public form of recentSummariesForSender,
// used by the heartbeat loop to build its enrichment context outside of a
// full BuildContext call.
func (s *Store) RecentSummariesForSender(senderID string, limit int) ([]string, error) {
	return s.recentSummariesForSender(senderID, limit)
}

// recentSummariesForSender returns up to limit non-empty closed-conversation
// summaries for a sender, newest first.
func (s *Store) recentSummariesForSender(senderID string, limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT summary FROM conversations
		WHERE sender_id = ? AND status = 'closed' AND summary IS NOT NULL AND summary != ''
		ORDER BY updated_at DESC LIMIT ?`, senderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}
