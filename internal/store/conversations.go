package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// GetOrCreateConversation returns the active conversation for
// (channel, senderID, project), creating one if none is active or the
// active one has gone idle past IdleWindow (in which case it is closed
// first and a fresh one started).
func (s *Store) GetOrCreateConversation(channel, senderID, project string) (*Conversation, error) {
	row := s.db.QueryRow(`SELECT id, started_at, updated_at, last_activity, status, summary
		FROM conversations WHERE channel = ? AND sender_id = ? AND project = ? AND status = 'active'
		ORDER BY last_activity DESC LIMIT 1`, channel, senderID, project)

	var (
		id, startedAt, updatedAt, lastActivity, status string
		summary                                        sql.NullString
	)
	err := row.Scan(&id, &startedAt, &updatedAt, &lastActivity, &status, &summary)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.createConversation(channel, senderID, project)
	case err != nil:
		return nil, fmt.Errorf("query active conversation: %w", err)
	}

	last, err := parseTime(lastActivity)
	if err != nil {
		return nil, fmt.Errorf("parse last_activity: %w", err)
	}
	if nowUTC().Sub(last) > IdleWindow {
		if err := s.closeConversation(id); err != nil {
			return nil, fmt.Errorf("close idle conversation: %w", err)
		}
		return s.createConversation(channel, senderID, project)
	}

	started, _ := parseTime(startedAt)
	updated, _ := parseTime(updatedAt)
	return &Conversation{
		ID: id, Channel: channel, SenderID: senderID, Project: project,
		StartedAt: started, UpdatedAt: updated, LastActivity: last,
		Status: ConversationStatus(status), Summary: summary.String,
	}, nil
}

func (s *Store) createConversation(channel, senderID, project string) (*Conversation, error) {
	now := nowUTC()
	c := &Conversation{
		ID: uuid.NewString(), Channel: channel, SenderID: senderID, Project: project,
		StartedAt: now, UpdatedAt: now, LastActivity: now, Status: ConversationActive,
	}
	_, err := s.db.Exec(`INSERT INTO conversations(id, channel, sender_id, project, started_at, updated_at, last_activity, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Channel, c.SenderID, c.Project, fmtTime(c.StartedAt), fmtTime(c.UpdatedAt), fmtTime(c.LastActivity), c.Status)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// TouchConversation bumps last_activity/updated_at to now.
func (s *Store) TouchConversation(id string) error {
	now := fmtTime(nowUTC())
	_, err := s.db.Exec(`UPDATE conversations SET last_activity = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

func (s *Store) closeConversation(id string) error {
	_, err := s.db.Exec(`UPDATE conversations SET status = 'closed', updated_at = ? WHERE id = ?`, fmtTime(nowUTC()), id)
	return err
}

// SetSummary records the rolling summary produced by the summarizer loop.
func (s *Store) SetSummary(id, summary string) error {
	_, err := s.db.Exec(`UPDATE conversations SET summary = ?, updated_at = ? WHERE id = ?`, summary, fmtTime(nowUTC()), id)
	return err
}

// FindIdleConversations returns active conversations whose last_activity
// predates IdleWindow, for the summarizer loop to close and summarize.
func (s *Store) FindIdleConversations() ([]Conversation, error) {
	cutoff := fmtTime(nowUTC().Add(-IdleWindow))
	rows, err := s.db.Query(`SELECT id, channel, sender_id, project, started_at, updated_at, last_activity, status, summary
		FROM conversations WHERE status = 'active' AND last_activity < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query idle conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var status string
		var summary sql.NullString
		var startedAt, updatedAt, lastActivity string
		if err := rows.Scan(&c.ID, &c.Channel, &c.SenderID, &c.Project, &startedAt, &updatedAt, &lastActivity, &status, &summary); err != nil {
			return nil, fmt.Errorf("scan idle conversation: %w", err)
		}
		c.StartedAt, _ = parseTime(startedAt)
		c.UpdatedAt, _ = parseTime(updatedAt)
		c.LastActivity, _ = parseTime(lastActivity)
		c.Status = ConversationStatus(status)
		c.Summary = summary.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// CloseAndSummarize closes a conversation and records its summary in one
// step, used by the summarizer loop after it has generated the text.
func (s *Store) CloseAndSummarize(id, summary string) error {
	_, err := s.db.Exec(`UPDATE conversations SET status = 'closed', summary = ?, updated_at = ? WHERE id = ?`,
		summary, fmtTime(nowUTC()), id)
	return err
}
