package store

import (
	"fmt"

	"github.com/google/uuid"
)

// AppendAudit writes one audit log row. Audit writes are best-effort from
// the caller's perspective: a failure here is logged, never escalated
// into a user-facing error, since the audit trail is a diagnostic aid,
// not part of the reply path's correctness.
func (s *Store) AppendAudit(e AuditEntry) error {
	e.ID = uuid.NewString()
	e.Timestamp = nowUTC()
	_, err := s.db.Exec(`INSERT INTO audit_log
		(id, timestamp, channel, sender_id, sender_name, input_text, output_text, provider_used, model, processing_ms, status, denial_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, fmtTime(e.Timestamp), e.Channel, e.SenderID, e.SenderName, e.InputText, e.OutputText,
		e.ProviderUsed, e.Model, e.ProcessingMs, e.Status, e.DenialReason)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// RecentAudit returns the most recent n audit entries for a sender,
// newest first.
func (s *Store) RecentAudit(senderID string, n int) ([]AuditEntry, error) {
	rows, err := s.db.Query(`SELECT id, timestamp, channel, sender_id, sender_name, input_text, output_text, provider_used, model, processing_ms, status, denial_reason
		FROM audit_log WHERE sender_id = ? ORDER BY timestamp DESC LIMIT ?`, senderID, n)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var ts string
		if err := rows.Scan(&e.ID, &ts, &e.Channel, &e.SenderID, &e.SenderName, &e.InputText, &e.OutputText,
			&e.ProviderUsed, &e.Model, &e.ProcessingMs, &e.Status, &e.DenialReason); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp, _ = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
