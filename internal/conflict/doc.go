// Package conflict contains the side-effect free booking overlap checks and
// the generator of alternative placements for a conflicted booking.
//
// Intervals are half-open: a booking ending at T never conflicts with one
// starting at T in the same room.
package conflict
