package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/domain"
	"github.com/matheus3301/roombook/internal/remote"
	"github.com/matheus3301/roombook/internal/store"
	"go.uber.org/zap"
)

// Checkpoint keys in sync_state.
const (
	CheckpointBookings = "pull.bookings"
	CheckpointRooms    = "pull.rooms"
)

// PullResult counts the records a pull wrote into the store.
type PullResult struct {
	Rooms    int `json:"rooms"`
	Bookings int `json:"bookings"`
	Skipped  int `json:"skipped"`
}

// Reconciler pulls remote state into the store. Entities with local
// operations still queued are left alone until those are replayed.
type Reconciler struct {
	db     *store.DB
	source remote.Source
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, source remote.Source, b *bus.Bus, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, source: source, bus: b, logger: logger, now: time.Now}
}

// Pull fetches every room and the bookings changed since the last pull.
func (r *Reconciler) Pull(ctx context.Context) (PullResult, error) {
	var res PullResult
	if err := r.pullRooms(ctx, &res); err != nil {
		return res, err
	}
	if err := r.pullBookings(ctx, &res); err != nil {
		return res, err
	}
	r.logger.Info("pull completed",
		zap.Int("rooms", res.Rooms), zap.Int("bookings", res.Bookings), zap.Int("skipped", res.Skipped))
	r.bus.Emit(bus.KindSyncPulled, res)
	return res, nil
}

func (r *Reconciler) pullRooms(ctx context.Context, res *PullResult) error {
	rooms, err := r.source.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list remote rooms: %w", err)
	}
	pending, err := r.db.PendingEntityIDs(domain.TableRooms)
	if err != nil {
		return fmt.Errorf("read pending rooms: %w", err)
	}

	keep := rooms[:0]
	for _, room := range rooms {
		if _, ok := pending[room.ID]; ok {
			res.Skipped++
			continue
		}
		keep = append(keep, room)
	}
	if err := r.db.StoreRooms(keep); err != nil {
		return fmt.Errorf("store rooms: %w", err)
	}
	res.Rooms = len(keep)
	return r.db.SetCheckpoint(CheckpointRooms, r.now().UTC().Format(time.RFC3339Nano))
}

func (r *Reconciler) pullBookings(ctx context.Context, res *PullResult) error {
	since, err := r.checkpointTime(CheckpointBookings)
	if err != nil {
		return err
	}
	bookings, err := r.source.ListBookingsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("list remote bookings: %w", err)
	}
	pending, err := r.db.PendingEntityIDs(domain.TableBookings)
	if err != nil {
		return fmt.Errorf("read pending bookings: %w", err)
	}

	var (
		keep       []domain.Booking
		newest     = since
		oldestSkip time.Time
	)
	for _, b := range bookings {
		if _, ok := pending[b.ID]; ok {
			res.Skipped++
			if oldestSkip.IsZero() || b.UpdatedAt.Before(oldestSkip) {
				oldestSkip = b.UpdatedAt
			}
			continue
		}
		keep = append(keep, b)
		if b.UpdatedAt.After(newest) {
			newest = b.UpdatedAt
		}
	}
	if err := r.db.StoreBookings(keep); err != nil {
		return fmt.Errorf("store bookings: %w", err)
	}
	res.Bookings = len(keep)

	// Skipped bookings are fetched again on the next pull.
	if !oldestSkip.IsZero() && !oldestSkip.After(newest) {
		newest = oldestSkip.Add(-time.Nanosecond)
	}
	if newest.Equal(since) {
		return nil
	}
	return r.db.SetCheckpoint(CheckpointBookings, newest.UTC().Format(time.RFC3339Nano))
}

func (r *Reconciler) checkpointTime(key string) (time.Time, error) {
	v, err := r.db.GetCheckpoint(key)
	if err != nil {
		return time.Time{}, fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint %s: %w", key, err)
	}
	return t, nil
}
