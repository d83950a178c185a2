// Package remote talks to the hosted backend that is the system of record
// for rooms and bookings.
package remote

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/roombook/internal/domain"
)

// API is the pair of idempotent primitives the replay engine depends on.
type API interface {
	Upsert(ctx context.Context, table string, record map[string]any) error
	Delete(ctx context.Context, table, id string) error
}

// Source lists remote records for pull reconciliation.
type Source interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	ListBookingsSince(ctx context.Context, since time.Time) ([]domain.Booking, error)
}

// Backend is implemented by every remote client.
type Backend interface {
	API
	Source
	Ping(ctx context.Context) error
}

// columns lists the writable columns of each remote table.
var columns = map[string][]string{
	domain.TableRooms: {
		"id", "name", "capacity", "building", "floor", "features", "status", "updated_at",
	},
	domain.TableBookings: {
		"id", "room_id", "user_id", "title", "start_time", "end_time",
		"status", "priority", "recurrence_id", "department", "updated_at",
	},
	domain.TableAuditLogs: {
		"id", "action", "actor_id", "booking_id", "overridden_id", "reason", "created_at",
	},
}

// ValidateTable returns ErrPermanent for tables the backend does not expose.
func ValidateTable(table string) error {
	if _, ok := columns[table]; !ok {
		return fmt.Errorf("%w: unknown table %q", ErrPermanent, table)
	}
	return nil
}

// ValidateRecord checks the table and every column of record, and requires an id.
func ValidateRecord(table string, record map[string]any) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	id, ok := record["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("%w: %s record without id", ErrPermanent, table)
	}
	for col := range record {
		if !slices.Contains(columns[table], col) {
			return fmt.Errorf("%w: unknown column %q in %s", ErrPermanent, col, table)
		}
	}
	return nil
}
