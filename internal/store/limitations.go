package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StoreLimitation records a BUG_REPORT marker as an open limitation,
// deduplicating case-insensitively on title (enforced by the schema's
// COLLATE NOCASE unique index) by bumping the existing row's description
// instead of erroring.
func (s *Store) StoreLimitation(title, description, proposedPlan string) (*Limitation, error) {
	existing, err := s.findLimitationByTitle(title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		merged := existing.Description
		if !strings.Contains(merged, description) {
			merged = strings.TrimSpace(merged + "\n" + description)
		}
		_, err := s.db.Exec(`UPDATE limitations SET description = ?, proposed_plan = ? WHERE id = ?`, merged, proposedPlan, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("update limitation: %w", err)
		}
		existing.Description = merged
		existing.ProposedPlan = proposedPlan
		return existing, nil
	}

	l := &Limitation{ID: uuid.NewString(), Title: title, Description: description, ProposedPlan: proposedPlan, Status: "open"}
	l.CreatedAt = nowUTC()
	_, err = s.db.Exec(`INSERT INTO limitations(id, title, description, proposed_plan, status, created_at)
		VALUES (?, ?, ?, ?, 'open', ?)`, l.ID, l.Title, l.Description, l.ProposedPlan, fmtTime(l.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert limitation: %w", err)
	}
	return l, nil
}

func (s *Store) findLimitationByTitle(title string) (*Limitation, error) {
	row := s.db.QueryRow(`SELECT id, title, description, proposed_plan, status, created_at, resolved_at
		FROM limitations WHERE title = ? COLLATE NOCASE`, title)
	var l Limitation
	var description, proposedPlan sql.NullString
	var createdAt string
	var resolvedAt sql.NullString
	err := row.Scan(&l.ID, &l.Title, &description, &proposedPlan, &l.Status, &createdAt, &resolvedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("find limitation: %w", err)
	}
	l.Description = description.String
	l.ProposedPlan = proposedPlan.String
	l.CreatedAt, _ = parseTime(createdAt)
	l.ResolvedAt = nullableTimePtr(resolvedAt)
	return &l, nil
}

// OpenLimitations lists all unresolved limitations, oldest first, for
// operator review.
func (s *Store) OpenLimitations() ([]Limitation, error) {
	rows, err := s.db.Query(`SELECT id, title, description, proposed_plan, status, created_at, resolved_at
		FROM limitations WHERE status = 'open' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query open limitations: %w", err)
	}
	defer rows.Close()

	var out []Limitation
	for rows.Next() {
		var l Limitation
		var description, proposedPlan sql.NullString
		var createdAt string
		var resolvedAt sql.NullString
		if err := rows.Scan(&l.ID, &l.Title, &description, &proposedPlan, &l.Status, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan limitation: %w", err)
		}
		l.Description = description.String
		l.ProposedPlan = proposedPlan.String
		l.CreatedAt, _ = parseTime(createdAt)
		l.ResolvedAt = nullableTimePtr(resolvedAt)
		out = append(out, l)
	}
	return out, rows.Err()
}
