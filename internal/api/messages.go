package api

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/roombook/internal/conflict"
	"github.com/matheus3301/roombook/internal/domain"
	intsync "github.com/matheus3301/roombook/internal/sync"
)

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Profile     string `json:"profile"`
	State       string `json:"state"`
	Online      bool   `json:"online"`
	UptimeMs    int64  `json:"uptime_ms"`
	Pending     int64  `json:"pending"`
	Quarantined int64  `json:"quarantined"`
	Processed   int64  `json:"processed"`
}

type SyncRequest struct {
	// SkipPull replays the queue without pulling remote changes afterwards.
	SkipPull bool `json:"skip_pull,omitempty"`
}

type SyncResponse struct {
	Result intsync.Result     `json:"result"`
	Pull   intsync.PullResult `json:"pull"`
}

type ListPendingRequest struct{}

type ListQuarantinedRequest struct{}

type ListOperationsResponse struct {
	Operations []domain.PendingOperation `json:"operations"`
}

type RequeueRequest struct {
	IDs []int64 `json:"ids,omitempty"`
	// All requeues every quarantined operation and ignores IDs.
	All bool `json:"all,omitempty"`
}

type RequeueResponse struct {
	Requeued []int64 `json:"requeued"`
}

type WatchEventsRequest struct {
	// Prefixes filters events by kind prefix, e.g. "sync.". Empty watches everything.
	Prefixes []string `json:"prefixes,omitempty"`
}

// EventEnvelope wraps a bus event for streaming clients.
type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	Profile          string          `json:"profile"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Kind             string          `json:"kind"`
	PayloadVersion   int             `json:"payload_version"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type ListRoomsRequest struct {
	ActiveOnly bool `json:"active_only,omitempty"`
}

type ListRoomsResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

type ListBookingsRequest struct {
	RoomID   string                 `json:"room_id,omitempty"`
	UserID   string                 `json:"user_id,omitempty"`
	Statuses []domain.BookingStatus `json:"statuses,omitempty"`
	From     time.Time              `json:"from,omitempty"`
	To       time.Time              `json:"to,omitempty"`
}

type ListBookingsResponse struct {
	Bookings []domain.Booking `json:"bookings"`
}

// BookingRequest describes a booking to create or to check.
type BookingRequest struct {
	RoomID       string          `json:"room_id"`
	UserID       string          `json:"user_id"`
	Title        string          `json:"title"`
	Start        time.Time       `json:"start_time"`
	End          time.Time       `json:"end_time"`
	Priority     domain.Priority `json:"priority"`
	RecurrenceID string          `json:"recurrence_id,omitempty"`
	Department   string          `json:"department,omitempty"`
}

// BookResponse carries either the created booking or, when the room is
// taken, the conflicting bookings and the alternatives on offer.
type BookResponse struct {
	Booking     *domain.Booking       `json:"booking,omitempty"`
	Conflicts   []domain.Booking      `json:"conflicts,omitempty"`
	Suggestions []conflict.Suggestion `json:"suggestions,omitempty"`
}

type CancelRequest struct {
	ID string `json:"id"`
}

type CancelResponse struct {
	Booking *domain.Booking `json:"booking"`
}

type CheckConflictsResponse struct {
	Conflicts []domain.Booking `json:"conflicts"`
}

type SuggestResponse struct {
	Suggestions []conflict.Suggestion `json:"suggestions"`
}

type OverrideRequest struct {
	Booking BookingRequest `json:"booking"`
	ActorID string         `json:"actor_id"`
	Reason  string         `json:"reason,omitempty"`
}

type OverrideResponse struct {
	Booking   *domain.Booking     `json:"booking"`
	Displaced []domain.Booking    `json:"displaced,omitempty"`
	Audit     []domain.AuditEntry `json:"audit,omitempty"`
}
