package store

import (
	"database/sql"
	"fmt"

	"github.com/matheus3301/roombook/internal/domain"
)

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Tx groups local cache writes with the queue entries that replay them.
// Nothing it writes is visible unless the whole group commits.
type Tx struct {
	tx  *sql.Tx
	now int64
}

// InTx runs fn in a transaction and commits when it returns nil.
func (db *DB) InTx(fn func(tx *Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Tx{tx: tx, now: db.nowMillis()}); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveBooking upserts b locally and queues the matching operation atomically.
func (db *DB) SaveBooking(kind domain.OperationKind, b *domain.Booking) (int64, error) {
	var id int64
	err := db.InTx(func(tx *Tx) error {
		var err error
		id, err = tx.SaveBooking(kind, b)
		return err
	})
	return id, err
}

// SaveBooking is the transactional form of DB.SaveBooking.
func (t *Tx) SaveBooking(kind domain.OperationKind, b *domain.Booking) (int64, error) {
	if err := upsertBooking(t.tx, b); err != nil {
		return 0, fmt.Errorf("store booking: %w", err)
	}
	id, err := addPendingOperation(t.tx, t.now, kind, domain.TableBookings, b.ID, b)
	if err != nil {
		return 0, fmt.Errorf("queue booking %s: %w", kind, err)
	}
	return id, nil
}

// RemoveBooking deletes a cached booking and queues the remote delete.
func (t *Tx) RemoveBooking(id string) error {
	if err := deleteBooking(t.tx, id); err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if _, err := addPendingOperation(t.tx, t.now, domain.OpDelete, domain.TableBookings, id, map[string]string{"id": id}); err != nil {
		return fmt.Errorf("queue booking delete: %w", err)
	}
	return nil
}

// RecordAudit writes an audit entry locally and queues its remote insert.
func (t *Tx) RecordAudit(e *domain.AuditEntry) error {
	if err := addAuditEntry(t.tx, e); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if _, err := addPendingOperation(t.tx, t.now, domain.OpInsert, domain.TableAuditLogs, e.ID, e); err != nil {
		return fmt.Errorf("queue audit entry: %w", err)
	}
	return nil
}
