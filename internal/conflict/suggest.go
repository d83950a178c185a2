package conflict

import (
	"time"

	"github.com/matheus3301/roombook/internal/domain"
)

// SuggestionKind discriminates the alternatives offered for a conflicted booking.
type SuggestionKind string

const (
	SuggestShiftedTime   SuggestionKind = "time"
	SuggestAlternateRoom SuggestionKind = "room"
)

// DateFormat is the calendar date layout carried by suggestions.
const DateFormat = "2006-01-02"

// Suggestion is an alternative placement the caller may turn into a new booking request.
type Suggestion struct {
	Kind     SuggestionKind `json:"kind"`
	RoomID   string         `json:"room_id"`
	RoomName string         `json:"room_name,omitempty"`
	Start    time.Time      `json:"start_time"`
	End      time.Time      `json:"end_time"`
	Date     string         `json:"date"`
}

// Hours bounds the time-shift suggestions. A shifted block may start no
// earlier than Open o'clock and end no later than Close o'clock, evaluated in Location.
type Hours struct {
	Open     int
	Close    int
	Location *time.Location
}

// DefaultHours are 08:00 to 19:00 local time.
func DefaultHours() Hours {
	return Hours{Open: 8, Close: 19, Location: time.Local}
}

func (h Hours) loc() *time.Location {
	if h.Location == nil {
		return time.Local
	}
	return h.Location
}

// SuggestTimes proposes the block immediately before and the block immediately
// after the conflicted booking, in the same room and with the same duration.
// Each candidate is checked against the full existing set and must stay
// within the calendar day of the original booking.
func SuggestTimes(conflicted domain.Booking, existing []domain.Booking, hours Hours) []Suggestion {
	d := conflicted.Duration()
	if d <= 0 {
		return nil
	}
	loc := hours.loc()
	var out []Suggestion

	earlier := conflicted
	earlier.Start = conflicted.Start.Add(-d)
	earlier.End = conflicted.Start
	es := earlier.Start.In(loc)
	if sameDay(es, conflicted.Start.In(loc)) && es.Hour() >= hours.Open && isFree(earlier, existing) {
		out = append(out, timeSuggestion(earlier, loc))
	}

	later := conflicted
	later.Start = conflicted.End
	later.End = conflicted.End.Add(d)
	le := later.End.In(loc)
	if sameDay(le.Add(-time.Nanosecond), later.Start.In(loc)) && le.Hour() <= hours.Close && isFree(later, existing) {
		out = append(out, timeSuggestion(later, loc))
	}
	return out
}

// SuggestRooms proposes every other room free for the conflicted interval,
// in the order rooms are given.
func SuggestRooms(conflicted domain.Booking, rooms []domain.Room, existing []domain.Booking) []Suggestion {
	var out []Suggestion
	for _, r := range rooms {
		if r.ID == conflicted.RoomID {
			continue
		}
		candidate := conflicted
		candidate.RoomID = r.ID
		if !isFree(candidate, existing) {
			continue
		}
		out = append(out, Suggestion{
			Kind:     SuggestAlternateRoom,
			RoomID:   r.ID,
			RoomName: r.Name,
			Start:    conflicted.Start,
			End:      conflicted.End,
			Date:     conflicted.Start.Format(DateFormat),
		})
	}
	return out
}

// Suggest returns the time-shift suggestions followed by the room suggestions.
func Suggest(conflicted domain.Booking, rooms []domain.Room, existing []domain.Booking, hours Hours) []Suggestion {
	out := SuggestTimes(conflicted, existing, hours)
	return append(out, SuggestRooms(conflicted, rooms, existing)...)
}

func isFree(candidate domain.Booking, existing []domain.Booking) bool {
	return len(CheckBookingConflicts(candidate, existing)) == 0
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func timeSuggestion(b domain.Booking, loc *time.Location) Suggestion {
	return Suggestion{
		Kind:   SuggestShiftedTime,
		RoomID: b.RoomID,
		Start:  b.Start,
		End:    b.End,
		Date:   b.Start.In(loc).Format(DateFormat),
	}
}
