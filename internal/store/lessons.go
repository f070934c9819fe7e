package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// StoreLesson upserts a lesson by (sender_id, domain, project, rule),
// bumping occurrences when the identical rule recurs, then evicts the
// oldest-by-updated_at lesson for that (sender, domain, project) group
// past LessonCap. This is the single write path for lessons, so eviction
// enforcement here is sufficient to keep the cap everywhere.
func (s *Store) StoreLesson(senderID, domain, project, rule string) (*Lesson, error) {
	existing, err := s.findLesson(senderID, domain, project, rule)
	if err != nil {
		return nil, err
	}
	now := fmtTime(nowUTC())
	if existing != nil {
		_, err := s.db.Exec(`UPDATE lessons SET occurrences = occurrences + 1, updated_at = ? WHERE id = ?`, now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("bump lesson occurrences: %w", err)
		}
		existing.Occurrences++
		return existing, nil
	}

	l := &Lesson{ID: uuid.NewString(), SenderID: senderID, Domain: domain, Project: project, Rule: rule, Occurrences: 1}
	l.CreatedAt = nowUTC()
	l.UpdatedAt = l.CreatedAt
	_, err = s.db.Exec(`INSERT INTO lessons(id, sender_id, domain, rule, project, occurrences, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`, l.ID, l.SenderID, l.Domain, l.Rule, l.Project, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert lesson: %w", err)
	}
	if err := s.evictExcessLessons(senderID, domain, project); err != nil {
		return nil, fmt.Errorf("evict excess lessons: %w", err)
	}
	return l, nil
}

func (s *Store) findLesson(senderID, domain, project, rule string) (*Lesson, error) {
	row := s.db.QueryRow(`SELECT id, sender_id, domain, rule, project, occurrences, created_at, updated_at
		FROM lessons WHERE sender_id = ? AND domain = ? AND project = ? AND rule = ?`, senderID, domain, project, rule)
	var l Lesson
	var createdAt, updatedAt string
	err := row.Scan(&l.ID, &l.SenderID, &l.Domain, &l.Rule, &l.Project, &l.Occurrences, &createdAt, &updatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("find lesson: %w", err)
	}
	l.CreatedAt, _ = parseTime(createdAt)
	l.UpdatedAt, _ = parseTime(updatedAt)
	return &l, nil
}

func (s *Store) evictExcessLessons(senderID, domain, project string) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM lessons WHERE sender_id = ? AND domain = ? AND project = ?`,
		senderID, domain, project).Scan(&count); err != nil {
		return err
	}
	excess := count - LessonCap
	if excess <= 0 {
		return nil
	}
	_, err := s.db.Exec(`DELETE FROM lessons WHERE id IN (
		SELECT id FROM lessons WHERE sender_id = ? AND domain = ? AND project = ?
		ORDER BY updated_at ASC LIMIT ?)`, senderID, domain, project, excess)
	return err
}

// LessonsFor returns every lesson for a (sender, domain, project) group,
// most recently reinforced first, for context assembly.
func (s *Store) LessonsFor(senderID, domain, project string) ([]Lesson, error) {
	rows, err := s.db.Query(`SELECT id, sender_id, domain, rule, project, occurrences, created_at, updated_at
		FROM lessons WHERE sender_id = ? AND domain = ? AND project = ? ORDER BY updated_at DESC`, senderID, domain, project)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		var l Lesson
		var createdAt, updatedAt string
		if err := rows.Scan(&l.ID, &l.SenderID, &l.Domain, &l.Rule, &l.Project, &l.Occurrences, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		l.CreatedAt, _ = parseTime(createdAt)
		l.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, l)
	}
	return out, rows.Err()
}
