package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/matheus3301/roombook/internal/api"
	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/client"
	"github.com/matheus3301/roombook/internal/config"
	"github.com/matheus3301/roombook/internal/conflict"
	"github.com/matheus3301/roombook/internal/domain"
	"github.com/matheus3301/roombook/internal/lock"
	"github.com/matheus3301/roombook/internal/metrics"
	"github.com/matheus3301/roombook/internal/profile"
	"github.com/matheus3301/roombook/internal/reservation"
	"github.com/matheus3301/roombook/internal/status"
	"github.com/matheus3301/roombook/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

// shortTempDir keeps socket paths under the 104-byte macOS limit.
func shortTempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestDaemonLifecycle(t *testing.T) {
	tmpDir := shortTempDir(t, "rb-test-*")
	profileDir := filepath.Join(tmpDir, "test")
	socketPath := filepath.Join(profileDir, "d.sock")
	if err := os.MkdirAll(profileDir, 0700); err != nil {
		t.Fatal(err)
	}

	lk, err := lock.Acquire(profileDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(profileDir, "roombook.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if err := db.UpsertRoom(&domain.Room{ID: "R", Name: "Red", Status: domain.RoomActive}); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	machine := status.NewMachine(b)
	reservations := reservation.NewService(db, b, conflict.Hours{Open: 8, Close: 19, Location: time.UTC}, nil, nil)

	srv, err := NewServer(
		Params{Profile: "test", SocketPath: socketPath},
		zap.NewNop(),
		api.NewSyncService("test", db, nil, b, machine, nil),
		api.NewBookingService(reservations),
	)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	c, err := client.New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	statusResp, err := c.Sync.GetStatus(ctx, &api.GetStatusRequest{})
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	if statusResp.Profile != "test" {
		t.Errorf("profile = %q, want test", statusResp.Profile)
	}
	if statusResp.State != string(status.Booting) {
		t.Errorf("state = %s, want BOOTING", statusResp.State)
	}

	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	bookResp, err := c.Booking.Book(ctx, &api.BookingRequest{
		RoomID: "R", UserID: "u1", Title: "Standup", Start: start, End: start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Book error = %v", err)
	}
	if bookResp.Booking == nil {
		t.Fatalf("Book returned conflicts %v", bookResp.Conflicts)
	}

	list, err := c.Booking.ListBookings(ctx, &api.ListBookingsRequest{RoomID: "R"})
	if err != nil {
		t.Fatalf("ListBookings error = %v", err)
	}
	if len(list.Bookings) != 1 || list.Bookings[0].ID != bookResp.Booking.ID {
		t.Errorf("bookings = %+v, want the created booking", list.Bookings)
	}

	pending, err := c.Sync.ListPending(ctx, &api.ListPendingRequest{})
	if err != nil {
		t.Fatalf("ListPending error = %v", err)
	}
	if len(pending.Operations) != 1 {
		t.Errorf("pending = %d, want 1", len(pending.Operations))
	}

	// Offline daemons refuse manual sync rather than failing every operation.
	if _, err := c.Sync.Sync(ctx, &api.SyncRequest{}); err == nil {
		t.Error("Sync without engine should fail")
	}
}

func TestHTTPRoutes(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	machine := status.NewMachine(nil)
	m := metrics.New(MetricsNamespace)
	if err := m.RegisterQueue(MetricsNamespace, db.PendingCount); err != nil {
		t.Fatal(err)
	}
	router := NewRouter(machine, api.NewSyncService("http", db, nil, nil, machine, nil), m)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}

	rec := get("/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("/status = %d, want 200", rec.Code)
	}
	var st api.GetStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Profile != "http" || st.State != string(status.Booting) {
		t.Errorf("status = %+v", st)
	}

	rec = get("/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "roombook_remote_online") {
		t.Error("/metrics missing roombook_remote_online")
	}

	if err := machine.Transition(status.Error); err != nil {
		t.Fatal(err)
	}
	if rec := get("/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/healthz in ERROR = %d, want 503", rec.Code)
	}
}

// fakeBackend answers the PostgREST calls the daemon makes and records writes.
type fakeBackend struct {
	mu     stdsync.Mutex
	writes []string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/rest/v1/":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && r.URL.Path == "/rest/v1/rooms":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"R","name":"Red","capacity":6,"status":"active"}]`))
	case r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`[]`))
	default:
		f.mu.Lock()
		f.writes = append(f.writes, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// TestFxModuleWiring boots the whole daemon graph against a fake backend.
func TestFxModuleWiring(t *testing.T) {
	t.Setenv(profile.HomeEnv, shortTempDir(t, "rb-fx-*"))

	backend := &fakeBackend{}
	remoteSrv := httptest.NewServer(backend)
	defer remoteSrv.Close()

	cfg := config.Default()
	cfg.Remote.URL = remoteSrv.URL
	cfg.Sync.ProbeInterval = 50 * time.Millisecond
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.Hours.Timezone = "UTC"

	var httpSrv *HTTPServer
	app := fxtest.New(t, fx.NopLogger, Module(Params{Profile: "fx", Config: cfg}), fx.Populate(&httpSrv))
	app.RequireStart()
	defer app.RequireStop()

	if _, err := os.Stat(profile.SocketPath("fx")); err != nil {
		t.Fatalf("socket not created: %v", err)
	}

	c, err := client.New(profile.SocketPath("fx"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	ctx := context.Background()

	// The first probe brings the daemon online and pulls the room list.
	waitFor(t, func() bool {
		rooms, err := c.Booking.ListRooms(ctx, &api.ListRoomsRequest{})
		return err == nil && len(rooms.Rooms) == 1
	})

	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	bookResp, err := c.Booking.Book(ctx, &api.BookingRequest{
		RoomID: "R", UserID: "u1", Title: "Review", Start: start, End: start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Book error = %v", err)
	}
	if bookResp.Booking == nil {
		t.Fatalf("Book returned conflicts %v", bookResp.Conflicts)
	}

	waitFor(t, func() bool {
		st, err := c.Sync.GetStatus(ctx, &api.GetStatusRequest{})
		return err == nil && st.Online && st.State != string(status.Syncing)
	})
	syncResp, err := c.Sync.Sync(ctx, &api.SyncRequest{})
	if err != nil {
		t.Fatalf("Sync error = %v", err)
	}
	if syncResp.Result.Processed != 1 {
		t.Errorf("processed = %d, want 1", syncResp.Result.Processed)
	}
	if backend.count() != 1 {
		t.Errorf("remote writes = %d, want 1", backend.count())
	}

	resp, err := http.Get("http://" + httpSrv.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", resp.StatusCode)
	}

	// A second daemon for the same profile must fail to acquire the lock.
	second := fx.New(fx.NopLogger, Module(Params{Profile: "fx", Config: cfg}))
	if second.Err() == nil {
		t.Error("second daemon for the same profile should fail to start")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
