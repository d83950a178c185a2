package sync

import (
	"context"
	"fmt"
	"sort"
	stdsync "sync"
	"time"

	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/domain"
	"github.com/matheus3301/roombook/internal/remote"
	"github.com/matheus3301/roombook/internal/status"
	"github.com/matheus3301/roombook/internal/store"
	"go.uber.org/zap"
)

// Result summarizes one replay pass.
type Result struct {
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Quarantined int           `json:"quarantined"`
	Cleared     int64         `json:"cleared"`
	Duration    time.Duration `json:"duration"`
}

// Outcome is delivered once a triggered pass finishes.
type Outcome struct {
	Result Result
	Pull   PullResult
	Err    error
}

// Observer receives the result of every pass, typically to export metrics.
type Observer interface {
	ObserveSync(res Result, err error)
}

// Options configures an Engine.
type Options struct {
	// MaxAttempts quarantines an operation after that many transient
	// failures. Zero retries forever.
	MaxAttempts int
}

// Engine replays the pending-operation queue against the remote backend
// and applies realtime changes pushed by it.
type Engine struct {
	db         *store.DB
	api        remote.API
	reconciler *Reconciler
	bus        *bus.Bus
	state      *status.Machine
	observer   Observer
	logger     *zap.Logger
	opts       Options

	pass   stdsync.Mutex
	wg     stdsync.WaitGroup
	cancel context.CancelFunc
}

// NewEngine creates a new sync engine. reconciler, state and observer may be nil.
func NewEngine(db *store.DB, api remote.API, reconciler *Reconciler, b *bus.Bus, state *status.Machine, observer Observer, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:         db,
		api:        api,
		reconciler: reconciler,
		bus:        b,
		state:      state,
		observer:   observer,
		logger:     logger,
		opts:       opts,
	}
}

// Start subscribes to connectivity and realtime events on the bus.
// Every network.online event triggers a replay followed by a pull.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	netCh, unsubNet := e.bus.Subscribe("network.", 16)
	changeCh, unsubChange := e.bus.Subscribe("remote.", 256)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsubNet()
		defer unsubChange()
		for {
			select {
			case evt := <-netCh:
				if evt.Kind == bus.KindNetworkOnline {
					e.logger.Info("network online, replaying pending operations")
					e.Trigger(ctx)
				}
			case evt := <-changeCh:
				change, ok := evt.Payload.(remote.Change)
				if !ok {
					continue
				}
				if err := e.ApplyChange(change); err != nil {
					e.logger.Error("failed to apply remote change", zap.Error(err),
						zap.String("table", change.Table), zap.String("entity_id", change.EntityID()))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for triggered passes to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Trigger runs a replay pass followed by a pull in the background.
// The outcome is delivered on the returned channel, which is then closed.
func (e *Engine) Trigger(ctx context.Context) <-chan Outcome {
	out := make(chan Outcome, 1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(out)

		var o Outcome
		o.Result, o.Err = e.Sync(ctx)
		if o.Err == nil && e.reconciler != nil {
			o.Pull, o.Err = e.reconciler.Pull(ctx)
		}
		out <- o
	}()
	return out
}

// Sync replays every pending operation once, oldest first.
// Passes are serialized; a second caller waits and then sees what is left.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	e.pass.Lock()
	defer e.pass.Unlock()

	started := time.Now()
	e.bus.Emit(bus.KindSyncStarted, nil)
	e.moveState(status.Online, status.Syncing)
	e.moveState(status.Degraded, status.Syncing)

	res, err := e.replay(ctx)
	res.Duration = time.Since(started)

	e.moveState(status.Syncing, e.settledState())
	if e.observer != nil {
		e.observer.ObserveSync(res, err)
	}
	if err != nil {
		e.logger.Error("sync pass failed", zap.Error(err), zap.Int("processed", res.Processed))
		e.bus.Emit(bus.KindSyncFailed, err)
		return res, err
	}

	fields := []zap.Field{
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("quarantined", res.Quarantined),
		zap.Duration("duration", res.Duration),
	}
	if res.Processed+res.Failed+res.Skipped > 0 {
		e.logger.Info("sync pass completed", fields...)
	} else {
		e.logger.Debug("sync pass completed", fields...)
	}
	e.bus.Emit(bus.KindSyncCompleted, res)
	return res, nil
}

func (e *Engine) replay(ctx context.Context) (Result, error) {
	var res Result
	ops, err := e.db.GetPendingOperations()
	if err != nil {
		return res, fmt.Errorf("read pending operations: %w", err)
	}
	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].CreatedAt.Equal(ops[j].CreatedAt) {
			return ops[i].CreatedAt.Before(ops[j].CreatedAt)
		}
		return ops[i].ID < ops[j].ID
	})

	// Entities with a quarantined or failed operation. Their later operations
	// stay queued so they are never applied ahead of the earlier one.
	blocked, err := e.db.QuarantinedEntities()
	if err != nil {
		return res, fmt.Errorf("read quarantined entities: %w", err)
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		key := store.EntityKey{Table: op.Table, EntityID: op.EntityID}
		if _, ok := blocked[key]; ok {
			res.Skipped++
			continue
		}

		log := e.logger.With(
			zap.Int64("op_id", op.ID),
			zap.String("kind", string(op.Kind)),
			zap.String("table", op.Table),
			zap.String("entity_id", op.EntityID),
		)

		if err := e.apply(ctx, op); err != nil {
			blocked[key] = struct{}{}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			quarantined, qerr := e.recordFailure(op, err)
			if qerr != nil {
				log.Error("failed to record operation failure", zap.Error(qerr))
				continue
			}
			if quarantined {
				res.Quarantined++
				log.Warn("operation quarantined", zap.Error(err), zap.Int("attempts", op.Attempts+1))
				e.bus.Emit(bus.KindSyncQuarantined, op)
			} else {
				log.Warn("operation failed, will retry", zap.Error(err), zap.Int("attempts", op.Attempts+1))
			}
			continue
		}

		if err := e.db.MarkOperationProcessed(op.ID); err != nil {
			// Applied remotely but still queued: it replays next pass, so
			// nothing newer for this entity may go out before it.
			blocked[key] = struct{}{}
			res.Failed++
			log.Error("failed to mark operation processed", zap.Error(err))
			continue
		}
		res.Processed++
	}

	cleared, err := e.db.ClearProcessedOperations()
	if err != nil {
		return res, fmt.Errorf("clear processed operations: %w", err)
	}
	res.Cleared = cleared
	return res, nil
}

func (e *Engine) apply(ctx context.Context, op domain.PendingOperation) error {
	switch op.Kind {
	case domain.OpInsert, domain.OpUpdate:
		rec, err := op.Record()
		if err != nil {
			return fmt.Errorf("%w: decode payload: %v", remote.ErrPermanent, err)
		}
		return e.api.Upsert(ctx, op.Table, rec)
	case domain.OpDelete:
		return e.api.Delete(ctx, op.Table, op.EntityID)
	default:
		return fmt.Errorf("%w: unknown operation kind %q", remote.ErrPermanent, op.Kind)
	}
}

func (e *Engine) recordFailure(op domain.PendingOperation, cause error) (bool, error) {
	if remote.IsPermanent(cause) {
		return true, e.db.QuarantineOperation(op.ID, cause.Error())
	}
	return e.db.RecordOperationFailure(op.ID, cause.Error(), e.opts.MaxAttempts)
}

// ApplyChange writes a realtime change into the store unless the entity
// still has local operations waiting for replay.
func (e *Engine) ApplyChange(change remote.Change) error {
	id := change.EntityID()
	pending, err := e.db.PendingEntityIDs(change.Table)
	if err != nil {
		return fmt.Errorf("read pending entities: %w", err)
	}
	if _, ok := pending[id]; ok {
		e.logger.Debug("remote change skipped, local operations pending",
			zap.String("table", change.Table), zap.String("entity_id", id))
		return nil
	}

	switch change.Table {
	case domain.TableBookings:
		if change.Type == remote.ChangeDelete {
			if err := e.db.DeleteBooking(id); err != nil {
				return fmt.Errorf("delete booking: %w", err)
			}
			e.bus.Emit(bus.KindBookingDeleted, id)
			return nil
		}
		b, err := change.Booking()
		if err != nil {
			return err
		}
		if err := e.db.UpsertBooking(&b); err != nil {
			return fmt.Errorf("upsert booking: %w", err)
		}
		e.bus.Emit(bus.KindBookingUpserted, id)
	case domain.TableRooms:
		if change.Type == remote.ChangeDelete {
			if err := e.db.DeleteRoom(id); err != nil {
				return fmt.Errorf("delete room: %w", err)
			}
			return nil
		}
		r, err := change.Room()
		if err != nil {
			return err
		}
		if err := e.db.UpsertRoom(&r); err != nil {
			return fmt.Errorf("upsert room: %w", err)
		}
		e.bus.Emit(bus.KindRoomUpserted, id)
	}
	return nil
}

// settledState is the state to return to after a pass.
func (e *Engine) settledState() status.State {
	counts, err := e.db.PendingCount()
	if err == nil && counts[domain.OpQuarantined] > 0 {
		return status.Degraded
	}
	return status.Online
}

func (e *Engine) moveState(from, to status.State) {
	if e.state == nil {
		return
	}
	if _, err := e.state.TransitionIf(from, to); err != nil {
		e.logger.Debug("state transition skipped", zap.Error(err))
	}
}
