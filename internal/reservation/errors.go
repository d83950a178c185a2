package reservation

import (
	"errors"
	"fmt"

	"github.com/matheus3301/roombook/internal/conflict"
	"github.com/matheus3301/roombook/internal/domain"
)

var (
	ErrRoomNotFound    = errors.New("reservation: room not found")
	ErrRoomInactive    = errors.New("reservation: room is not active")
	ErrBookingNotFound = errors.New("reservation: booking not found")
	ErrCannotOverride  = errors.New("reservation: priority does not exceed every conflicting booking")
)

// ConflictError is returned when a booking overlaps existing ones.
// It carries the alternatives the caller can offer instead.
type ConflictError struct {
	Conflicts   []domain.Booking
	Suggestions []conflict.Suggestion
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reservation: conflicts with %d existing booking(s)", len(e.Conflicts))
}
