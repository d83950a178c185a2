package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/roombook/internal/domain"
	"go.uber.org/multierr"
)

const upsertRoomSQL = `
	INSERT INTO rooms (id, name, capacity, building, floor, features, status, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		capacity = excluded.capacity,
		building = excluded.building,
		floor = excluded.floor,
		features = excluded.features,
		status = excluded.status,
		updated_at = excluded.updated_at`

// UpsertRoom inserts or updates a single room.
func (db *DB) UpsertRoom(r *domain.Room) error {
	features, err := json.Marshal(r.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	if r.Features == nil {
		features = []byte("[]")
	}
	status := r.Status
	if status == "" {
		status = domain.RoomActive
	}
	_, err = db.Exec(upsertRoomSQL,
		r.ID, r.Name, r.Capacity, r.Building, r.Floor, string(features), status, toMillis(r.UpdatedAt))
	return err
}

// StoreRooms upserts each room independently. A failing record does not roll
// back the ones already written; all failures are returned together.
func (db *DB) StoreRooms(rooms []domain.Room) error {
	var errs error
	for i := range rooms {
		if err := db.UpsertRoom(&rooms[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("store room %q: %w", rooms[i].ID, err))
		}
	}
	return errs
}

// DeleteRoom removes a cached room. Deleting a missing room is a no-op.
func (db *DB) DeleteRoom(id string) error {
	_, err := db.Exec(`DELETE FROM rooms WHERE id = ?`, id)
	return err
}

// GetRoom returns a room by ID, or nil if it is not cached.
func (db *DB) GetRoom(id string) (*domain.Room, error) {
	row := db.QueryRow(`
		SELECT id, name, capacity, building, floor, features, status, updated_at
		FROM rooms WHERE id = ?`, id)
	r, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRooms returns all cached rooms ordered by name.
func (db *DB) GetRooms() ([]domain.Room, error) {
	rows, err := db.Query(`
		SELECT id, name, capacity, building, floor, features, status, updated_at
		FROM rooms ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rooms []domain.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (*domain.Room, error) {
	var (
		r         domain.Room
		features  string
		status    string
		updatedAt int64
	)
	if err := s.Scan(&r.ID, &r.Name, &r.Capacity, &r.Building, &r.Floor, &features, &status, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
		return nil, fmt.Errorf("decode features of room %q: %w", r.ID, err)
	}
	if len(r.Features) == 0 {
		r.Features = nil
	}
	r.Status = domain.RoomStatus(status)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}
