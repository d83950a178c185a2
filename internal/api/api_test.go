package api

import (
	"context"
	"net"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/conflict"
	"github.com/matheus3301/roombook/internal/domain"
	"github.com/matheus3301/roombook/internal/reservation"
	"github.com/matheus3301/roombook/internal/status"
	"github.com/matheus3301/roombook/internal/store"
	intsync "github.com/matheus3301/roombook/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var day = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

// memoryRemote accepts every write.
type memoryRemote struct {
	mu      stdsync.Mutex
	upserts []string
}

func (m *memoryRemote) Upsert(_ context.Context, table string, record map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, _ := record["id"].(string)
	m.upserts = append(m.upserts, table+"/"+id)
	return nil
}

func (m *memoryRemote) Delete(context.Context, string, string) error {
	return nil
}

type harness struct {
	sync    *SyncClient
	booking *BookingClient
	db      *store.DB
	machine *status.Machine
	bus     *bus.Bus
	remote  *memoryRemote
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.StoreRooms([]domain.Room{
		{ID: "R", Name: "Red", Capacity: 6, Status: domain.RoomActive},
		{ID: "S", Name: "Sun", Capacity: 4, Status: domain.RoomActive},
	}))

	b := bus.New()
	machine := status.NewMachine(b)
	rem := &memoryRemote{}
	engine := intsync.NewEngine(db, rem, nil, b, machine, nil, intsync.Options{MaxAttempts: 3}, nil)
	reservations := reservation.NewService(db, b, conflict.Hours{Open: 8, Close: 19, Location: time.UTC}, nil, nil)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterSyncServer(srv, NewSyncService("test", db, engine, b, machine, nil))
	RegisterBookingServer(srv, NewBookingService(reservations))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		sync:    NewSyncClient(conn),
		booking: NewBookingClient(conn),
		db:      db,
		machine: machine,
		bus:     b,
		remote:  rem,
	}
}

func bookingReq(room string, start, end time.Time) *BookingRequest {
	return &BookingRequest{RoomID: room, UserID: "u1", Title: "Planning", Start: start, End: end}
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, err := h.sync.GetStatus(ctx, &GetStatusRequest{})
	require.NoError(t, err)
	assert.Equal(t, "test", resp.Profile)
	assert.Equal(t, string(status.Booting), resp.State)
	assert.False(t, resp.Online)
	assert.Zero(t, resp.Pending)

	_, err = h.booking.Book(ctx, bookingReq("R", at(10, 0), at(11, 0)))
	require.NoError(t, err)

	resp, err = h.sync.GetStatus(ctx, &GetStatusRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.Pending)
}

func TestBookReportsConflictsInResponse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.booking.Book(ctx, bookingReq("R", at(10, 0), at(11, 0)))
	require.NoError(t, err)
	require.NotNil(t, first.Booking)
	assert.Equal(t, domain.BookingConfirmed, first.Booking.Status)

	second, err := h.booking.Book(ctx, bookingReq("R", at(10, 30), at(11, 30)))
	require.NoError(t, err)
	assert.Nil(t, second.Booking)
	require.Len(t, second.Conflicts, 1)
	assert.Equal(t, first.Booking.ID, second.Conflicts[0].ID)
	assert.NotEmpty(t, second.Suggestions)

	touching, err := h.booking.Book(ctx, bookingReq("R", at(11, 0), at(12, 0)))
	require.NoError(t, err)
	assert.NotNil(t, touching.Booking)
}

func TestBookErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.booking.Book(ctx, bookingReq("R", at(11, 0), at(10, 0)))
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))

	_, err = h.booking.Book(ctx, bookingReq("missing", at(10, 0), at(11, 0)))
	assert.Equal(t, codes.NotFound, grpcstatus.Code(err))

	_, err = h.booking.Cancel(ctx, &CancelRequest{})
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))

	_, err = h.booking.Cancel(ctx, &CancelRequest{ID: "nope"})
	assert.Equal(t, codes.NotFound, grpcstatus.Code(err))
}

func TestCancelAndListBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	booked, err := h.booking.Book(ctx, bookingReq("R", at(10, 0), at(11, 0)))
	require.NoError(t, err)

	cancelled, err := h.booking.Cancel(ctx, &CancelRequest{ID: booked.Booking.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, cancelled.Booking.Status)

	list, err := h.booking.ListBookings(ctx, &ListBookingsRequest{
		RoomID:   "R",
		Statuses: []domain.BookingStatus{domain.BookingConfirmed},
	})
	require.NoError(t, err)
	assert.Empty(t, list.Bookings)

	conflicts, err := h.booking.CheckConflicts(ctx, bookingReq("R", at(10, 0), at(11, 0)))
	require.NoError(t, err)
	assert.Empty(t, conflicts.Conflicts)
}

func TestListRoomsActiveOnly(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.UpsertRoom(&domain.Room{ID: "P", Name: "Pine", Status: domain.RoomInactive}))

	all, err := h.booking.ListRooms(context.Background(), &ListRoomsRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Rooms, 3)

	active, err := h.booking.ListRooms(context.Background(), &ListRoomsRequest{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active.Rooms, 2)
}

func TestSuggestAndOverride(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	low := bookingReq("R", at(10, 0), at(11, 0))
	low.Priority = domain.PriorityLow
	booked, err := h.booking.Book(ctx, low)
	require.NoError(t, err)

	suggest, err := h.booking.Suggest(ctx, bookingReq("R", at(10, 0), at(11, 0)))
	require.NoError(t, err)
	require.NotEmpty(t, suggest.Suggestions)
	assert.Equal(t, conflict.SuggestShiftedTime, suggest.Suggestions[0].Kind)

	_, err = h.booking.Override(ctx, &OverrideRequest{Booking: *bookingReq("R", at(10, 0), at(11, 0))})
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))

	high := bookingReq("R", at(10, 0), at(11, 0))
	high.Priority = domain.PriorityHigh
	res, err := h.booking.Override(ctx, &OverrideRequest{Booking: *high, ActorID: "admin", Reason: "board meeting"})
	require.NoError(t, err)
	require.Len(t, res.Displaced, 1)
	assert.Equal(t, booked.Booking.ID, res.Displaced[0].ID)
	assert.Equal(t, domain.BookingWaitlisted, res.Displaced[0].Status)
	require.Len(t, res.Audit, 1)
	assert.Equal(t, "admin", res.Audit[0].ActorID)

	_, err = h.booking.Override(ctx, &OverrideRequest{Booking: *high, ActorID: "admin"})
	assert.Equal(t, codes.FailedPrecondition, grpcstatus.Code(err))
}

func TestWaitlist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.booking.Book(ctx, bookingReq("R", at(10, 0), at(11, 0)))
	require.NoError(t, err)
	resp, err := h.booking.Waitlist(ctx, bookingReq("R", at(10, 0), at(11, 0)))
	require.NoError(t, err)
	require.NotNil(t, resp.Booking)
	assert.Equal(t, domain.BookingWaitlisted, resp.Booking.Status)
}

func TestSyncRequiresConnectivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.booking.Book(ctx, bookingReq("R", at(10, 0), at(11, 0)))
	require.NoError(t, err)

	_, err = h.sync.Sync(ctx, &SyncRequest{})
	assert.Equal(t, codes.Unavailable, grpcstatus.Code(err))

	require.NoError(t, h.machine.Transition(status.Online))
	resp, err := h.sync.Sync(ctx, &SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Result.Processed)
	assert.Len(t, h.remote.upserts, 1)

	pending, err := h.sync.ListPending(ctx, &ListPendingRequest{})
	require.NoError(t, err)
	assert.Empty(t, pending.Operations)
}

func TestRequeue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.db.AddPendingOperation(domain.OpInsert, domain.TableBookings, "b1", map[string]any{"id": "b1"})
	require.NoError(t, err)

	_, err = h.sync.Requeue(ctx, &RequeueRequest{IDs: []int64{id}})
	assert.Equal(t, codes.FailedPrecondition, grpcstatus.Code(err))

	_, err = h.sync.Requeue(ctx, &RequeueRequest{})
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))

	require.NoError(t, h.db.QuarantineOperation(id, "rejected"))
	quarantined, err := h.sync.ListQuarantined(ctx, &ListQuarantinedRequest{})
	require.NoError(t, err)
	require.Len(t, quarantined.Operations, 1)
	assert.Equal(t, "rejected", quarantined.Operations[0].LastError)

	resp, err := h.sync.Requeue(ctx, &RequeueRequest{All: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, resp.Requeued)

	pending, err := h.sync.ListPending(ctx, &ListPendingRequest{})
	require.NoError(t, err)
	require.Len(t, pending.Operations, 1)
	assert.Zero(t, pending.Operations[0].Attempts)
}

func TestWatchEventsFiltersByPrefix(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := h.sync.WatchEvents(ctx, &WatchEventsRequest{Prefixes: []string{"booking."}})
	require.NoError(t, err)

	// The server subscribes asynchronously; keep emitting until the stream sees one.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.bus.Emit(bus.KindSyncStarted, nil)
				h.bus.Emit(bus.KindBookingUpserted, "b1")
			case <-done:
				return
			}
		}
	}()

	env, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, bus.KindBookingUpserted, env.Kind)
	assert.Equal(t, "test", env.Profile)
	assert.NotEmpty(t, env.EventID)
	assert.JSONEq(t, `"b1"`, string(env.Payload))
}
