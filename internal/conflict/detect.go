package conflict

import "github.com/matheus3301/roombook/internal/domain"

// DoBookingsConflict reports whether a and b reserve the same room for overlapping time.
func DoBookingsConflict(a, b domain.Booking) bool {
	if a.RoomID != b.RoomID {
		return false
	}
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// CheckBookingConflicts returns the bookings in existing that conflict with
// candidate, preserving input order.
func CheckBookingConflicts(candidate domain.Booking, existing []domain.Booking) []domain.Booking {
	var conflicts []domain.Booking
	for _, b := range existing {
		if DoBookingsConflict(candidate, b) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}

// CanOverrideBooking reports whether newB outranks existingB. Equal priorities never override.
func CanOverrideBooking(newB, existingB domain.Booking) bool {
	return newB.Priority > existingB.Priority
}

// CanOverrideAll reports whether candidate outranks every booking in conflicts.
func CanOverrideAll(candidate domain.Booking, conflicts []domain.Booking) bool {
	for _, c := range conflicts {
		if !CanOverrideBooking(candidate, c) {
			return false
		}
	}
	return len(conflicts) > 0
}
