package store

import (
	"fmt"

	"github.com/google/uuid"
)

// StoreExchange persists a user message and its assistant reply as one
// logical unit, touching the parent conversation's activity timestamp.
func (s *Store) StoreExchange(conversationID, userText, assistantText, metadata string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	now := fmtTime(nowUTC())
	if _, err := tx.Exec(`INSERT INTO messages(id, conversation_id, role, content, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`, uuid.NewString(), conversationID, RoleUser, userText, now, metadata); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert user message: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO messages(id, conversation_id, role, content, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`, uuid.NewString(), conversationID, RoleAssistant, assistantText, now, ""); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert assistant message: %w", err)
	}
	if _, err := tx.Exec(`UPDATE conversations SET last_activity = ?, updated_at = ? WHERE id = ?`, now, now, conversationID); err != nil {
		tx.Rollback()
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// RecentMessages returns the most recent n messages for a conversation, in
// chronological order, for context assembly.
func (s *Store) RecentMessages(conversationID string, n int) ([]Message, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, role, content, timestamp, metadata
		FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC LIMIT ?`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &ts, &m.Metadata); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, _ = parseTime(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SearchMessages runs an FTS5 match against past user messages for a
// sender's conversations, newest first, for the recall keyword path. A
// query failure degrades to an empty result rather than failing the
// whole context build.
func (s *Store) SearchMessages(senderID, query string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.conversation_id, m.role, m.content, m.timestamp, m.metadata
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ? AND c.sender_id = ?
		ORDER BY m.timestamp DESC LIMIT ?`, ftsQuery(query), senderID, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &ts, &m.Metadata); err != nil {
			return nil, fmt.Errorf("scan fts result: %w", err)
		}
		m.Timestamp, _ = parseTime(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ftsQuery quotes each token so punctuation in free-form recall phrases
// doesn't break FTS5's query syntax.
func ftsQuery(q string) string {
	out := ""
	word := ""
	flush := func() {
		if word != "" {
			if out != "" {
				out += " "
			}
			out += `"` + word + `"`
			word = ""
		}
	}
	for _, r := range q {
		if r == ' ' || r == '\t' || r == '\n' {
			flush()
			continue
		}
		if r == '"' {
			continue
		}
		word += string(r)
	}
	flush()
	if out == "" {
		return `""`
	}
	return out
}
