package domain

import (
	"encoding/json"
	"time"
)

// OperationKind is the mutation a pending operation replays remotely.
type OperationKind string

const (
	OpInsert OperationKind = "insert"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// OperationStatus replaces a boolean processed flag so the column can be indexed.
type OperationStatus string

const (
	OpPending     OperationStatus = "pending"
	OpProcessed   OperationStatus = "processed"
	OpQuarantined OperationStatus = "quarantined"
)

// Remote tables the queue may target.
const (
	TableRooms     = "rooms"
	TableBookings  = "bookings"
	TableAuditLogs = "audit_logs"
)

// PendingOperation is a local mutation awaiting confirmation by the remote system of record.
type PendingOperation struct {
	ID        int64           `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Kind      OperationKind   `json:"kind"`
	Table     string          `json:"table"`
	EntityID  string          `json:"entity_id"`
	Payload   json.RawMessage `json:"payload"`
	Status    OperationStatus `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

// Record decodes the payload into a column map for upserts.
func (op *PendingOperation) Record() (map[string]any, error) {
	var rec map[string]any
	if err := json.Unmarshal(op.Payload, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
