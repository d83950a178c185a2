package store

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/roombook/internal/domain"
)

const pendingColumns = `id, created_at, kind, table_name, entity_id, payload, status, attempts, last_error`

// AddPendingOperation appends a mutation to the queue with the current
// timestamp and pending status. IDs are monotonically increasing.
func (db *DB) AddPendingOperation(kind domain.OperationKind, table, entityID string, payload any) (int64, error) {
	return addPendingOperation(db.DB, db.nowMillis(), kind, table, entityID, payload)
}

func addPendingOperation(x execer, now int64, kind domain.OperationKind, table, entityID string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEncodePayload, err)
	}
	res, err := x.Exec(`
		INSERT INTO pending_operations (created_at, kind, table_name, entity_id, payload, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		now, kind, table, entityID, string(data), domain.OpPending, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPendingOperations returns all operations still awaiting replay.
// Order is not guaranteed; the replay engine sorts them.
func (db *DB) GetPendingOperations() ([]domain.PendingOperation, error) {
	return db.queryOperations(`SELECT `+pendingColumns+` FROM pending_operations WHERE status = ?`, domain.OpPending)
}

// GetQuarantinedOperations returns operations that exhausted their retries.
func (db *DB) GetQuarantinedOperations() ([]domain.PendingOperation, error) {
	return db.queryOperations(`SELECT `+pendingColumns+` FROM pending_operations WHERE status = ? ORDER BY created_at ASC, id ASC`, domain.OpQuarantined)
}

// MarkOperationProcessed flags an operation as applied remotely.
// Marking a missing or already processed operation is a no-op.
func (db *DB) MarkOperationProcessed(id int64) error {
	_, err := db.Exec(`
		UPDATE pending_operations SET status = ?, last_error = '', updated_at = ?
		WHERE id = ? AND status != ?`,
		domain.OpProcessed, db.nowMillis(), id, domain.OpProcessed)
	return err
}

// RecordOperationFailure increments the attempt counter of a pending operation.
// When maxAttempts > 0 and the limit is reached the operation is quarantined.
func (db *DB) RecordOperationFailure(id int64, cause string, maxAttempts int) (quarantined bool, err error) {
	if _, err := db.Exec(`
		UPDATE pending_operations SET
			attempts = attempts + 1,
			last_error = ?,
			updated_at = ?,
			status = CASE WHEN ? > 0 AND attempts + 1 >= ? THEN ? ELSE status END
		WHERE id = ? AND status = ?`,
		cause, db.nowMillis(), maxAttempts, maxAttempts, domain.OpQuarantined, id, domain.OpPending); err != nil {
		return false, err
	}
	var status string
	if err := db.QueryRow(`SELECT status FROM pending_operations WHERE id = ?`, id).Scan(&status); err != nil {
		return false, err
	}
	return domain.OperationStatus(status) == domain.OpQuarantined, nil
}

// QuarantineOperation moves a pending operation out of the replay queue.
func (db *DB) QuarantineOperation(id int64, cause string) error {
	_, err := db.Exec(`
		UPDATE pending_operations SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.OpQuarantined, cause, db.nowMillis(), id, domain.OpPending)
	return err
}

// RequeueOperation returns a quarantined operation to the queue with a fresh attempt budget.
// Its original creation timestamp is kept so replay order is unchanged.
func (db *DB) RequeueOperation(id int64) error {
	res, err := db.Exec(`
		UPDATE pending_operations SET status = ?, attempts = 0, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.OpPending, db.nowMillis(), id, domain.OpQuarantined)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrOperationNotQuarantined, id)
	}
	return nil
}

// ClearProcessedOperations deletes processed operations and leaves everything else queued.
func (db *DB) ClearProcessedOperations() (int64, error) {
	res, err := db.Exec(`DELETE FROM pending_operations WHERE status = ?`, domain.OpProcessed)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingEntityIDs returns the IDs in table that still have operations awaiting replay.
func (db *DB) PendingEntityIDs(table string) (map[string]struct{}, error) {
	rows, err := db.Query(`
		SELECT DISTINCT entity_id FROM pending_operations
		WHERE status = ? AND table_name = ?`, domain.OpPending, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// EntityKey identifies one replicated row.
type EntityKey struct {
	Table    string
	EntityID string
}

// QuarantinedEntities returns the rows that have at least one quarantined operation.
func (db *DB) QuarantinedEntities() (map[EntityKey]struct{}, error) {
	rows, err := db.Query(`
		SELECT DISTINCT table_name, entity_id FROM pending_operations
		WHERE status = ?`, domain.OpQuarantined)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	keys := make(map[EntityKey]struct{})
	for rows.Next() {
		var k EntityKey
		if err := rows.Scan(&k.Table, &k.EntityID); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

// PendingCount returns the number of operations per status.
func (db *DB) PendingCount() (map[domain.OperationStatus]int64, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM pending_operations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.OperationStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.OperationStatus(status)] = n
	}
	return counts, rows.Err()
}

func (db *DB) queryOperations(query string, args ...any) ([]domain.PendingOperation, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ops []domain.PendingOperation
	for rows.Next() {
		var (
			op        domain.PendingOperation
			createdAt int64
			kind      string
			payload   string
			status    string
		)
		if err := rows.Scan(&op.ID, &createdAt, &kind, &op.Table, &op.EntityID, &payload, &status, &op.Attempts, &op.LastError); err != nil {
			return nil, err
		}
		op.CreatedAt = fromMillis(createdAt)
		op.Kind = domain.OperationKind(kind)
		op.Payload = json.RawMessage(payload)
		op.Status = domain.OperationStatus(status)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
