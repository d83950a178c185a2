package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/matheus3301/roombook/internal/domain"
	"go.uber.org/multierr"
)

var bookingColumns = []string{
	"id", "room_id", "user_id", "title", "start_time", "end_time",
	"status", "priority", "recurrence_id", "department", "updated_at",
}

// BookingFilter narrows ListBookings. Zero fields are ignored.
// From/To select bookings overlapping the half-open window [From, To).
type BookingFilter struct {
	RoomID   string
	UserID   string
	Statuses []domain.BookingStatus
	From     time.Time
	To       time.Time
}

// UpsertBooking inserts or updates a single booking.
func (db *DB) UpsertBooking(b *domain.Booking) error {
	return upsertBooking(db.DB, b)
}

func upsertBooking(x execer, b *domain.Booking) error {
	status := b.Status
	if status == "" {
		status = domain.BookingConfirmed
	}
	_, err := x.Exec(`
		INSERT INTO bookings (id, room_id, user_id, title, start_time, end_time, status, priority, recurrence_id, department, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			room_id = excluded.room_id,
			user_id = excluded.user_id,
			title = excluded.title,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			status = excluded.status,
			priority = excluded.priority,
			recurrence_id = excluded.recurrence_id,
			department = excluded.department,
			updated_at = excluded.updated_at`,
		b.ID, b.RoomID, b.UserID, b.Title, toMillis(b.Start), toMillis(b.End),
		status, b.Priority.String(), b.RecurrenceID, b.Department, toMillis(b.UpdatedAt))
	return err
}

// StoreBookings upserts each booking independently and returns every failure.
func (db *DB) StoreBookings(bookings []domain.Booking) error {
	var errs error
	for i := range bookings {
		if err := db.UpsertBooking(&bookings[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("store booking %q: %w", bookings[i].ID, err))
		}
	}
	return errs
}

// DeleteBooking removes a booking from the local cache. Missing IDs are not an error.
func (db *DB) DeleteBooking(id string) error {
	return deleteBooking(db.DB, id)
}

func deleteBooking(x execer, id string) error {
	_, err := x.Exec(`DELETE FROM bookings WHERE id = ?`, id)
	return err
}

// GetBooking returns a booking by ID, or nil if it is not cached.
func (db *DB) GetBooking(id string) (*domain.Booking, error) {
	query, args, err := squirrel.Select(bookingColumns...).
		From("bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build booking query: %w", err)
	}
	b, err := scanBooking(db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBookings returns every cached booking ordered by start time.
func (db *DB) GetBookings() ([]domain.Booking, error) {
	return db.ListBookings(BookingFilter{})
}

// GetUserBookings returns the bookings owned by userID.
func (db *DB) GetUserBookings(userID string) ([]domain.Booking, error) {
	return db.ListBookings(BookingFilter{UserID: userID})
}

// GetRoomBookings returns the bookings made for roomID.
func (db *DB) GetRoomBookings(roomID string) ([]domain.Booking, error) {
	return db.ListBookings(BookingFilter{RoomID: roomID})
}

// ListBookings returns bookings matching the filter ordered by start time.
func (db *DB) ListBookings(f BookingFilter) ([]domain.Booking, error) {
	q := squirrel.Select(bookingColumns...).
		From("bookings").
		OrderBy("start_time ASC", "id ASC")

	if f.RoomID != "" {
		q = q.Where(squirrel.Eq{"room_id": f.RoomID})
	}
	if f.UserID != "" {
		q = q.Where(squirrel.Eq{"user_id": f.UserID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(squirrel.Eq{"status": statuses})
	}
	if !f.From.IsZero() {
		q = q.Where(squirrel.Gt{"end_time": toMillis(f.From)})
	}
	if !f.To.IsZero() {
		q = q.Where(squirrel.Lt{"start_time": toMillis(f.To)})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bookings query: %w", err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func scanBooking(s scanner) (*domain.Booking, error) {
	var (
		b                     domain.Booking
		start, end, updatedAt int64
		status, priority      string
	)
	if err := s.Scan(&b.ID, &b.RoomID, &b.UserID, &b.Title, &start, &end,
		&status, &priority, &b.RecurrenceID, &b.Department, &updatedAt); err != nil {
		return nil, err
	}
	p, err := domain.ParsePriority(priority)
	if err != nil {
		return nil, fmt.Errorf("booking %q: %w", b.ID, err)
	}
	b.Priority = p
	b.Status = domain.BookingStatus(status)
	b.Start = fromMillis(start)
	b.End = fromMillis(end)
	b.UpdatedAt = fromMillis(updatedAt)
	return &b, nil
}
