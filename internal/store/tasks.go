package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
)

// dedupWindow is how close two pending tasks' due_at must be, with an
// identical description, to be treated as a duplicate create request.
const dedupWindow = 5 * time.Minute

// CreateTask inserts a new scheduled task unless a pending task with the
// same sender, description (case-insensitively, fuzzy on whitespace), and
// a due_at within dedupWindow already exists, in which case the existing
// task is returned unchanged.
func (s *Store) CreateTask(t ScheduledTask) (*ScheduledTask, bool, error) {
	existing, err := s.findDuplicateTask(t.SenderID, t.Description, t.DueAt)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	t.ID = uuid.NewString()
	t.Status = TaskPending
	t.CreatedAt = nowUTC()
	if t.TaskType == "" {
		t.TaskType = TaskReminder
	}
	_, err = s.db.Exec(`INSERT INTO scheduled_tasks
		(id, channel, sender_id, reply_target, description, due_at, repeat, repeat_expr, status, created_at, task_type, retry_count, project)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		t.ID, t.Channel, t.SenderID, t.ReplyTarget, t.Description, fmtTime(t.DueAt), t.Repeat, t.RepeatExpr, t.Status, fmtTime(t.CreatedAt), t.TaskType, t.Project)
	if err != nil {
		return nil, false, fmt.Errorf("insert task: %w", err)
	}
	return &t, true, nil
}

func (s *Store) findDuplicateTask(senderID, description string, dueAt time.Time) (*ScheduledTask, error) {
	norm := normalizeDescription(description)
	lo := fmtTime(dueAt.Add(-dedupWindow))
	hi := fmtTime(dueAt.Add(dedupWindow))

	rows, err := s.db.Query(`SELECT id, channel, sender_id, reply_target, description, due_at, repeat, repeat_expr, status, created_at, delivered_at, task_type, retry_count, last_error, project
		FROM scheduled_tasks WHERE sender_id = ? AND status = 'pending' AND due_at BETWEEN ? AND ?`, senderID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query duplicate candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if normalizeDescription(task.Description) == norm {
			return task, nil
		}
	}
	return nil, rows.Err()
}

func normalizeDescription(d string) string {
	return strings.Join(strings.Fields(strings.ToLower(d)), " ")
}

func scanTask(rows *sql.Rows) (*ScheduledTask, error) {
	var t ScheduledTask
	var repeat, repeatExpr, lastErr sql.NullString
	var deliveredAt sql.NullString
	var dueAt, createdAt string
	if err := rows.Scan(&t.ID, &t.Channel, &t.SenderID, &t.ReplyTarget, &t.Description, &dueAt, &repeat, &repeatExpr,
		&t.Status, &createdAt, &deliveredAt, &t.TaskType, &t.RetryCount, &lastErr, &t.Project); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.DueAt, _ = parseTime(dueAt)
	t.CreatedAt, _ = parseTime(createdAt)
	t.DeliveredAt = nullableTimePtr(deliveredAt)
	t.Repeat = repeat.String
	t.RepeatExpr = repeatExpr.String
	t.LastError = lastErr.String
	return &t, nil
}

// GetDueTasks returns pending tasks whose due_at has passed, for the
// scheduler loop's delivery tick.
func (s *Store) GetDueTasks() ([]ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT id, channel, sender_id, reply_target, description, due_at, repeat, repeat_expr, status, created_at, delivered_at, task_type, retry_count, last_error, project
		FROM scheduled_tasks WHERE status = 'pending' AND due_at <= ? ORDER BY due_at ASC`, fmtTime(nowUTC()))
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()

	var out []ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CompleteTask marks a reminder delivered, or — for a repeating task —
// advances due_at to the next occurrence and leaves it pending.
func (s *Store) CompleteTask(id string) error {
	t, err := s.getTask(id)
	if err != nil || t == nil {
		return err
	}
	next, ok, err := nextOccurrence(t.DueAt, t.Repeat, t.RepeatExpr)
	if err != nil {
		return fmt.Errorf("compute next occurrence: %w", err)
	}
	now := fmtTime(nowUTC())
	if ok {
		_, err := s.db.Exec(`UPDATE scheduled_tasks SET due_at = ?, retry_count = 0, last_error = NULL WHERE id = ?`, fmtTime(next), id)
		return err
	}
	_, err = s.db.Exec(`UPDATE scheduled_tasks SET status = 'delivered', delivered_at = ? WHERE id = ?`, now, id)
	return err
}

// nextOccurrence computes the next due_at for a repeating task. Non-cron
// kinds advance by fixed calendar offsets; weekdays skips weekends; cron
// uses the stored five-field expression via gronx.
func nextOccurrence(from time.Time, repeat, cronExpr string) (time.Time, bool, error) {
	switch repeat {
	case "", "once":
		return time.Time{}, false, nil
	case "daily":
		return from.AddDate(0, 0, 1), true, nil
	case "weekly":
		return from.AddDate(0, 0, 7), true, nil
	case "monthly":
		return from.AddDate(0, 1, 0), true, nil
	case "weekdays":
		next := from.AddDate(0, 0, 1)
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
		return next, true, nil
	case "cron":
		if cronExpr == "" {
			return time.Time{}, false, fmt.Errorf("cron repeat task missing repeat_expr")
		}
		next, err := gronx.NextTickAfter(cronExpr, from, false)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("evaluate cron expression %q: %w", cronExpr, err)
		}
		return next, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown repeat kind %q", repeat)
	}
}

// FailTask records a delivery/action-execution failure. Reminder tasks
// are retried with the caller-supplied backoff; one-shot action tasks
// that exhaust retries land in the terminal "delivered" state rather
// than being retried forever, since there is no user waiting on a second
// attempt once the action itself has already run and failed.
func (s *Store) FailTask(id, reason string, maxRetries int, backoff time.Duration) error {
	t, err := s.getTask(id)
	if err != nil || t == nil {
		return err
	}
	if t.RetryCount+1 >= maxRetries {
		status := "delivered"
		_, err := s.db.Exec(`UPDATE scheduled_tasks SET status = ?, last_error = ?, retry_count = retry_count + 1, delivered_at = ? WHERE id = ?`,
			status, reason, fmtTime(nowUTC()), id)
		return err
	}
	nextDue := nowUTC().Add(backoff)
	_, err = s.db.Exec(`UPDATE scheduled_tasks SET due_at = ?, last_error = ?, retry_count = retry_count + 1 WHERE id = ?`,
		fmtTime(nextDue), reason, id)
	return err
}

// CancelTask marks the first pending task whose id starts with prefix as
// cancelled; cancellation is idempotent (cancelling an already-cancelled
// or missing task is not an error).
func (s *Store) CancelTask(senderID, idPrefix string) (bool, error) {
	row := s.db.QueryRow(`SELECT id FROM scheduled_tasks WHERE sender_id = ? AND status = 'pending' AND id LIKE ? || '%' LIMIT 1`, senderID, idPrefix)
	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find task to cancel: %w", err)
	}
	_, err = s.db.Exec(`UPDATE scheduled_tasks SET status = 'cancelled' WHERE id = ?`, id)
	return true, err
}

// UpdateTask applies partial updates from an UPDATE_TASK marker; empty
// fields leave the existing value untouched.
func (s *Store) UpdateTask(senderID, idPrefix, desc, dueAt, repeat string) (bool, error) {
	t, err := s.findByPrefix(senderID, idPrefix)
	if err != nil || t == nil {
		return false, err
	}
	if desc != "" {
		t.Description = desc
	}
	if dueAt != "" {
		parsed, err := time.Parse(time.RFC3339, dueAt)
		if err != nil {
			return false, fmt.Errorf("parse due_at %q: %w", dueAt, err)
		}
		t.DueAt = parsed
	}
	if repeat != "" {
		t.Repeat = repeat
	}
	_, err = s.db.Exec(`UPDATE scheduled_tasks SET description = ?, due_at = ?, repeat = ? WHERE id = ?`,
		t.Description, fmtTime(t.DueAt), t.Repeat, t.ID)
	return err == nil, err
}

func (s *Store) findByPrefix(senderID, idPrefix string) (*ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT id, channel, sender_id, reply_target, description, due_at, repeat, repeat_expr, status, created_at, delivered_at, task_type, retry_count, last_error, project
		FROM scheduled_tasks WHERE sender_id = ? AND id LIKE ? || '%' LIMIT 1`, senderID, idPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanTask(rows)
}

func (s *Store) getTask(id string) (*ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT id, channel, sender_id, reply_target, description, due_at, repeat, repeat_expr, status, created_at, delivered_at, task_type, retry_count, last_error, project
		FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanTask(rows)
}

// PendingTasksForSender lists a sender's pending tasks for the "/tasks"
// command and status reporting, soonest first.
func (s *Store) PendingTasksForSender(senderID string) ([]ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT id, channel, sender_id, reply_target, description, due_at, repeat, repeat_expr, status, created_at, delivered_at, task_type, retry_count, last_error, project
		FROM scheduled_tasks WHERE sender_id = ? AND status = 'pending' ORDER BY due_at ASC`, senderID)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var out []ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
