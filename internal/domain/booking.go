package domain

import (
	"fmt"
	"time"
)

// BookingStatus represents the lifecycle state of a booking.
type BookingStatus string

const (
	BookingConfirmed  BookingStatus = "confirmed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingWaitlisted BookingStatus = "waitlisted"
)

// Booking is a time-bounded reservation of a room.
// The interval is half-open: [Start, End).
type Booking struct {
	ID           string        `json:"id"`
	RoomID       string        `json:"room_id"`
	UserID       string        `json:"user_id"`
	Title        string        `json:"title"`
	Start        time.Time     `json:"start_time"`
	End          time.Time     `json:"end_time"`
	Status       BookingStatus `json:"status"`
	Priority     Priority      `json:"priority"`
	RecurrenceID string        `json:"recurrence_id,omitempty"`
	Department   string        `json:"department,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Duration returns End - Start.
func (b *Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// IsActive returns true if the booking still occupies its room.
func (b *Booking) IsActive() bool {
	return b.Status != BookingCancelled && b.Status != BookingWaitlisted
}

// Validate checks the booking invariants.
func (b *Booking) Validate() error {
	if b.RoomID == "" {
		return fmt.Errorf("%w: room is required", ErrInvalidBooking)
	}
	if !b.Start.Before(b.End) {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidBooking,
			b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339))
	}
	switch b.Status {
	case BookingConfirmed, BookingCancelled, BookingWaitlisted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidBooking, b.Status)
	}
	if _, ok := priorityNames[b.Priority]; !ok {
		return fmt.Errorf("%w: unknown priority %d", ErrInvalidBooking, int(b.Priority))
	}
	return nil
}

// AuditEntry records an administrative decision such as a priority override.
type AuditEntry struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	ActorID      string    `json:"actor_id"`
	BookingID    string    `json:"booking_id"`
	OverriddenID string    `json:"overridden_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditActionOverride is the audit action written when a booking displaces another.
const AuditActionOverride = "override"
