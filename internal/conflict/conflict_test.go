package conflict

import (
	"math/rand"
	"testing"
	"time"

	"github.com/matheus3301/roombook/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func booking(id, room string, start, end time.Time) domain.Booking {
	return domain.Booking{ID: id, RoomID: room, Start: start, End: end, Status: domain.BookingConfirmed}
}

func utcHours() Hours {
	return Hours{Open: 8, Close: 19, Location: time.UTC}
}

func TestDoBookingsConflictSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rooms := []string{"R", "S"}
	for i := 0; i < 500; i++ {
		a := randomBooking(rng, rooms)
		b := randomBooking(rng, rooms)
		assert.Equal(t, DoBookingsConflict(a, b), DoBookingsConflict(b, a), "a=%+v b=%+v", a, b)
	}
}

func TestDoBookingsConflictSelfOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		a := randomBooking(rng, []string{"R"})
		assert.True(t, DoBookingsConflict(a, a))
	}
}

func TestDoBookingsConflict(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.Booking
		want bool
	}{
		{"partial overlap", booking("a", "R", at(10, 0), at(11, 0)), booking("b", "R", at(10, 30), at(11, 30)), true},
		{"containment", booking("a", "R", at(9, 0), at(12, 0)), booking("b", "R", at(10, 0), at(11, 0)), true},
		{"touching end to start", booking("a", "R", at(10, 0), at(11, 0)), booking("b", "R", at(11, 0), at(12, 0)), false},
		{"touching start to end", booking("a", "R", at(11, 0), at(12, 0)), booking("b", "R", at(10, 0), at(11, 0)), false},
		{"disjoint", booking("a", "R", at(8, 0), at(9, 0)), booking("b", "R", at(10, 0), at(11, 0)), false},
		{"different rooms identical time", booking("a", "R", at(10, 0), at(11, 0)), booking("b", "S", at(10, 0), at(11, 0)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DoBookingsConflict(tt.a, tt.b))
		})
	}
}

func TestCheckBookingConflictsScenario(t *testing.T) {
	existing := []domain.Booking{booking("e1", "R", at(10, 0), at(11, 0))}

	got := CheckBookingConflicts(booking("c1", "R", at(10, 30), at(11, 30)), existing)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)

	assert.Empty(t, CheckBookingConflicts(booking("c2", "R", at(11, 0), at(12, 0)), existing))
}

func TestCheckBookingConflictsPreservesOrder(t *testing.T) {
	existing := []domain.Booking{
		booking("late", "R", at(11, 0), at(12, 0)),
		booking("other", "S", at(10, 0), at(12, 0)),
		booking("early", "R", at(9, 0), at(10, 30)),
	}
	got := CheckBookingConflicts(booking("c", "R", at(10, 0), at(11, 30)), existing)
	require.Len(t, got, 2)
	assert.Equal(t, "late", got[0].ID)
	assert.Equal(t, "early", got[1].ID)
}

func TestCanOverrideBooking(t *testing.T) {
	order := []domain.Priority{domain.PriorityLow, domain.PriorityNormal, domain.PriorityHigh, domain.PriorityCritical}
	for i, pi := range order {
		for j, pj := range order {
			a := domain.Booking{Priority: pi}
			b := domain.Booking{Priority: pj}
			assert.Equal(t, i > j, CanOverrideBooking(a, b), "%s over %s", pi, pj)
		}
		assert.False(t, CanOverrideBooking(domain.Booking{Priority: pi}, domain.Booking{Priority: pi}))
	}
}

func TestCanOverrideAll(t *testing.T) {
	c := domain.Booking{Priority: domain.PriorityHigh}
	assert.True(t, CanOverrideAll(c, []domain.Booking{{Priority: domain.PriorityLow}, {Priority: domain.PriorityNormal}}))
	assert.False(t, CanOverrideAll(c, []domain.Booking{{Priority: domain.PriorityLow}, {Priority: domain.PriorityHigh}}))
	assert.False(t, CanOverrideAll(c, nil))
}

func TestSuggestTimesScenario(t *testing.T) {
	existing := []domain.Booking{booking("e1", "R", at(9, 0), at(10, 0))}
	conflicted := booking("c", "R", at(9, 0), at(10, 0))

	got := SuggestTimes(conflicted, existing, utcHours())
	require.Len(t, got, 2)

	assert.Equal(t, SuggestShiftedTime, got[0].Kind)
	assert.Equal(t, "R", got[0].RoomID)
	assert.True(t, got[0].Start.Equal(at(8, 0)))
	assert.True(t, got[0].End.Equal(at(9, 0)))
	assert.Equal(t, "2026-10-19", got[0].Date)

	assert.True(t, got[1].Start.Equal(at(10, 0)))
	assert.True(t, got[1].End.Equal(at(11, 0)))
}

func TestSuggestTimesRespectsHours(t *testing.T) {
	// Earlier block would start at 07:00, later block would end at 20:00.
	conflicted := booking("c", "R", at(8, 0), at(9, 0))
	got := SuggestTimes(conflicted, nil, utcHours())
	require.Len(t, got, 1)
	assert.True(t, got[0].Start.Equal(at(9, 0)))

	conflicted = booking("c", "R", at(18, 0), at(19, 0))
	got = SuggestTimes(conflicted, nil, Hours{Open: 8, Close: 19, Location: time.UTC})
	require.Len(t, got, 1)
	assert.True(t, got[0].Start.Equal(at(17, 0)))
}

func TestSuggestTimesChecksFullExistingSet(t *testing.T) {
	conflicted := booking("c", "R", at(10, 0), at(11, 0))
	existing := []domain.Booking{
		booking("e1", "R", at(10, 0), at(11, 0)),
		booking("e2", "R", at(9, 30), at(9, 45)),
		booking("e3", "R", at(11, 30), at(12, 30)),
	}
	assert.Empty(t, SuggestTimes(conflicted, existing, utcHours()))
}

func TestSuggestTimesStaysWithinDay(t *testing.T) {
	// Both shifted blocks of a ten hour booking leave the calendar day.
	conflicted := booking("c", "R", at(9, 0), at(19, 0))
	assert.Empty(t, SuggestTimes(conflicted, nil, Hours{Open: 0, Close: 23, Location: time.UTC}))
}

func TestSuggestRoomsScenario(t *testing.T) {
	conflicted := booking("c", "R", at(10, 0), at(11, 0))
	rooms := []domain.Room{
		{ID: "R", Name: "Red"},
		{ID: "S", Name: "Sun"},
		{ID: "P", Name: "Pine"},
		{ID: "Q", Name: "Quartz"},
	}
	existing := []domain.Booking{
		booking("e1", "R", at(10, 0), at(11, 0)),
		booking("e2", "P", at(10, 30), at(11, 30)),
		booking("e3", "Q", at(11, 0), at(12, 0)),
	}

	got := SuggestRooms(conflicted, rooms, existing)
	require.Len(t, got, 2)
	assert.Equal(t, "S", got[0].RoomID)
	assert.Equal(t, "Sun", got[0].RoomName)
	assert.Equal(t, "Q", got[1].RoomID)
	for _, s := range got {
		assert.Equal(t, SuggestAlternateRoom, s.Kind)
		assert.True(t, s.Start.Equal(conflicted.Start))
		assert.True(t, s.End.Equal(conflicted.End))
	}
}

func TestSuggestCombinesTimeThenRoom(t *testing.T) {
	conflicted := booking("c", "R", at(9, 0), at(10, 0))
	existing := []domain.Booking{booking("e1", "R", at(9, 0), at(10, 0))}
	rooms := []domain.Room{{ID: "S", Name: "Sun"}}

	got := Suggest(conflicted, rooms, existing, utcHours())
	require.Len(t, got, 3)
	assert.Equal(t, SuggestShiftedTime, got[0].Kind)
	assert.Equal(t, SuggestShiftedTime, got[1].Kind)
	assert.Equal(t, SuggestAlternateRoom, got[2].Kind)
}

func randomBooking(rng *rand.Rand, rooms []string) domain.Booking {
	start := at(6, 0).Add(time.Duration(rng.Intn(48)) * 15 * time.Minute)
	end := start.Add(time.Duration(1+rng.Intn(8)) * 15 * time.Minute)
	return booking("x", rooms[rng.Intn(len(rooms))], start, end)
}
