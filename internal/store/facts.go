package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// StoreFact upserts a fact by (sender_id, key). sourceMessageID may be
// empty for facts set by commands or markers rather than extraction.
func (s *Store) StoreFact(senderID, key, value, sourceMessageID string) error {
	now := fmtTime(nowUTC())
	_, err := s.db.Exec(`INSERT INTO facts(id, sender_id, key, value, source_message_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sender_id, key) DO UPDATE SET value = excluded.value, source_message_id = excluded.source_message_id, updated_at = excluded.updated_at`,
		uuid.NewString(), senderID, key, value, sourceMessageID, now, now)
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

func (s *Store) GetFact(senderID, key string) (*Fact, error) {
	row := s.db.QueryRow(`SELECT id, sender_id, key, value, source_message_id, created_at, updated_at
		FROM facts WHERE sender_id = ? AND key = ?`, senderID, key)
	var f Fact
	var src sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&f.ID, &f.SenderID, &f.Key, &f.Value, &src, &createdAt, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get fact: %w", err)
	}
	f.SourceMessageID = src.String
	f.CreatedAt, _ = parseTime(createdAt)
	f.UpdatedAt, _ = parseTime(updatedAt)
	return &f, nil
}

// AllFacts returns every fact for a sender, for context assembly.
func (s *Store) AllFacts(senderID string) ([]Fact, error) {
	rows, err := s.db.Query(`SELECT id, sender_id, key, value, source_message_id, created_at, updated_at
		FROM facts WHERE sender_id = ? ORDER BY updated_at DESC`, senderID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var f Fact
		var src sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&f.ID, &f.SenderID, &f.Key, &f.Value, &src, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.SourceMessageID = src.String
		f.CreatedAt, _ = parseTime(createdAt)
		f.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFact removes one non-system fact. System keys (see IsSystemKey)
// are refused; callers that need to clear one must go through the
// dedicated onboarding/command path instead of free-form deletion.
func (s *Store) DeleteFact(senderID, key string) error {
	if IsSystemKey(key) {
		return fmt.Errorf("refusing to delete protected fact key %q", key)
	}
	_, err := s.db.Exec(`DELETE FROM facts WHERE sender_id = ? AND key = ?`, senderID, key)
	return err
}

// DeleteFacts purges every non-system fact for a sender (PURGE_FACTS
// marker), preserving onboarding and preference state.
func (s *Store) DeleteFacts(senderID string) error {
	rows, err := s.db.Query(`SELECT key FROM facts WHERE sender_id = ?`, senderID)
	if err != nil {
		return fmt.Errorf("list fact keys: %w", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return err
		}
		keys = append(keys, k)
	}
	rows.Close()

	for _, k := range keys {
		if IsSystemKey(k) {
			continue
		}
		if _, err := s.db.Exec(`DELETE FROM facts WHERE sender_id = ? AND key = ?`, senderID, k); err != nil {
			return fmt.Errorf("delete fact %q: %w", k, err)
		}
	}
	return nil
}
