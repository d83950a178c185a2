package store

import "github.com/matheus3301/roombook/internal/domain"

// AddAuditEntry records an administrative decision locally.
func (db *DB) AddAuditEntry(e *domain.AuditEntry) error {
	return addAuditEntry(db.DB, e)
}

func addAuditEntry(x execer, e *domain.AuditEntry) error {
	_, err := x.Exec(`
		INSERT INTO audit_log (id, action, actor_id, booking_id, overridden_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.ActorID, e.BookingID, e.OverriddenID, e.Reason, toMillis(e.CreatedAt))
	return err
}

// ListAuditEntries returns the audit trail touching bookingID, oldest first.
// Entries are matched on either the acting or the displaced booking.
func (db *DB) ListAuditEntries(bookingID string) ([]domain.AuditEntry, error) {
	rows, err := db.Query(`
		SELECT id, action, actor_id, booking_id, overridden_id, reason, created_at
		FROM audit_log
		WHERE booking_id = ? OR overridden_id = ?
		ORDER BY created_at ASC`, bookingID, bookingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e         domain.AuditEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.BookingID, &e.OverriddenID, &e.Reason, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
