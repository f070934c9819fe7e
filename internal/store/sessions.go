package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// GetSession returns the provider session bound to (channel, senderID,
// project), if any. A nil return with no error means no session exists
// yet and the next provider call should start fresh.
func (s *Store) GetSession(channel, senderID, project string) (*Session, error) {
	row := s.db.QueryRow(`SELECT id, channel, sender_id, project, session_id, parent_project, created_at, updated_at
		FROM sessions WHERE channel = ? AND sender_id = ? AND project = ?`, channel, senderID, project)
	var sess Session
	var parentProject sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.Channel, &sess.SenderID, &sess.Project, &sess.ProviderSessionID, &parentProject, &createdAt, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.ParentProject = parentProject.String
	sess.CreatedAt, _ = parseTime(createdAt)
	sess.UpdatedAt, _ = parseTime(updatedAt)
	return &sess, nil
}

// SetSession upserts the provider session id bound to (channel, senderID,
// project).
func (s *Store) SetSession(channel, senderID, project, providerSessionID, parentProject string) error {
	now := fmtTime(nowUTC())
	_, err := s.db.Exec(`INSERT INTO sessions(id, channel, sender_id, project, session_id, parent_project, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, sender_id, project) DO UPDATE SET session_id = excluded.session_id, parent_project = excluded.parent_project, updated_at = excluded.updated_at`,
		uuid.NewString(), channel, senderID, project, providerSessionID, parentProject, now, now)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// ClearSession drops a bound session, forcing the next call to start a
// fresh provider conversation (used by FORGET_CONVERSATION and /forget).
func (s *Store) ClearSession(channel, senderID, project string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE channel = ? AND sender_id = ? AND project = ?`, channel, senderID, project)
	return err
}
