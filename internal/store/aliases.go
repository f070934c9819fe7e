package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateAlias records that aliasSenderID's memory should resolve to
// canonicalSenderID's, used when onboarding links a second channel
// identity (e.g. WhatsApp number) to an already-known sender.
func (s *Store) CreateAlias(aliasSenderID, canonicalSenderID string) error {
	_, err := s.db.Exec(`INSERT INTO user_aliases(alias_sender_id, canonical_sender_id) VALUES (?, ?)
		ON CONFLICT(alias_sender_id) DO UPDATE SET canonical_sender_id = excluded.canonical_sender_id`,
		aliasSenderID, canonicalSenderID)
	if err != nil {
		return fmt.Errorf("create alias: %w", err)
	}
	return nil
}

// ResolveSenderID follows a single alias hop to the canonical sender id,
// or returns the input unchanged if it has no alias recorded.
func (s *Store) ResolveSenderID(senderID string) (string, error) {
	row := s.db.QueryRow(`SELECT canonical_sender_id FROM user_aliases WHERE alias_sender_id = ?`, senderID)
	var canonical string
	err := row.Scan(&canonical)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return senderID, nil
	case err != nil:
		return "", fmt.Errorf("resolve alias: %w", err)
	}
	return canonical, nil
}

// FindCanonicalUser looks for an existing sender who already has the
// given fact key/value pair, used during onboarding's cross-channel
// linking step (e.g. matching on a shared phone number fact).
func (s *Store) FindCanonicalUser(key, value string) (string, bool, error) {
	row := s.db.QueryRow(`SELECT sender_id FROM facts WHERE key = ? AND value = ? ORDER BY created_at ASC LIMIT 1`, key, value)
	var senderID string
	err := row.Scan(&senderID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("find canonical user: %w", err)
	}
	return senderID, true, nil
}
