package store

import (
	"fmt"

	"github.com/google/uuid"
)

// StoreOutcome records a REWARD marker's verdict. Outcomes are
// append-only: unlike lessons they are never deduplicated or capped.
func (s *Store) StoreOutcome(o Outcome) (*Outcome, error) {
	o.ID = uuid.NewString()
	o.Timestamp = nowUTC()
	_, err := s.db.Exec(`INSERT INTO outcomes(id, sender_id, domain, score, lesson, source, timestamp, project)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SenderID, o.Domain, o.Score, o.Lesson, o.Source, fmtTime(o.Timestamp), o.Project)
	if err != nil {
		return nil, fmt.Errorf("insert outcome: %w", err)
	}
	return &o, nil
}

// RecentOutcomes returns a sender's most recent outcomes across all
// domains, for context assembly.
func (s *Store) RecentOutcomes(senderID string, limit int) ([]Outcome, error) {
	rows, err := s.db.Query(`SELECT id, sender_id, domain, score, lesson, source, timestamp, project
		FROM outcomes WHERE sender_id = ? ORDER BY timestamp DESC LIMIT ?`, senderID, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var ts string
		if err := rows.Scan(&o.ID, &o.SenderID, &o.Domain, &o.Score, &o.Lesson, &o.Source, &ts, &o.Project); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Timestamp, _ = parseTime(ts)
		out = append(out, o)
	}
	return out, rows.Err()
}
