package domain

import "time"

// RoomStatus represents whether a room can be booked.
type RoomStatus string

const (
	RoomActive   RoomStatus = "active"
	RoomInactive RoomStatus = "inactive"
)

// Room is a bookable meeting room mirrored from the remote backend.
type Room struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Capacity  int        `json:"capacity"`
	Building  string     `json:"building,omitempty"`
	Floor     string     `json:"floor,omitempty"`
	Features  []string   `json:"features,omitempty"`
	Status    RoomStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsActive returns true if the room accepts new bookings.
func (r *Room) IsActive() bool {
	return r.Status != RoomInactive
}
