package domain

import "errors"

// ErrInvalidBooking is returned when a booking violates its invariants.
var ErrInvalidBooking = errors.New("domain: invalid booking")
