package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, so "network." receives both
// connectivity transitions.
const (
	KindNetworkOnline  = "network.online"
	KindNetworkOffline = "network.offline"

	KindSyncStarted     = "sync.started"
	KindSyncCompleted   = "sync.completed"
	KindSyncFailed      = "sync.failed"
	KindSyncQuarantined = "sync.quarantined"
	KindSyncPulled      = "sync.pulled"

	KindRemoteChange = "remote.change"

	KindBookingUpserted = "booking.upserted"
	KindBookingDeleted  = "booking.deleted"
	KindRoomUpserted    = "room.upserted"

	KindStatusChanged = "status.changed"
)
