// Package reservation applies booking requests to the offline store after
// running the conflict checks, and queues every write for replay.
package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/conflict"
	"github.com/matheus3301/roombook/internal/domain"
	"github.com/matheus3301/roombook/internal/store"
	"go.uber.org/zap"
)

// Observer is notified of rejected bookings.
type Observer interface {
	ObserveConflict()
}

// Request describes a booking to create.
type Request struct {
	RoomID       string
	UserID       string
	Title        string
	Start        time.Time
	End          time.Time
	Priority     domain.Priority
	RecurrenceID string
	Department   string
}

// OverrideResult is the outcome of a successful override.
type OverrideResult struct {
	Booking   *domain.Booking
	Displaced []domain.Booking
	Audit     []domain.AuditEntry
}

// Service is the write path for bookings.
type Service struct {
	db       *store.DB
	bus      *bus.Bus
	hours    conflict.Hours
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	// mu makes check-then-write atomic for local callers.
	mu sync.Mutex
}

// NewService creates a reservation service. observer may be nil.
func NewService(db *store.DB, b *bus.Bus, hours conflict.Hours, observer Observer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       db,
		bus:      b,
		hours:    hours,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Book creates a confirmed booking. It fails with *ConflictError when the
// room is taken for any part of the interval.
func (s *Service) Book(ctx context.Context, req Request) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.newBooking(req, domain.BookingConfirmed)
	if err := s.checkRoom(b); err != nil {
		return nil, err
	}
	if err := s.ensureFree(b); err != nil {
		return nil, err
	}
	if err := s.write(domain.OpInsert, b); err != nil {
		return nil, err
	}
	s.logger.Info("booking created", zap.String("booking_id", b.ID), zap.String("room_id", b.RoomID),
		zap.Time("start", b.Start), zap.Time("end", b.End))
	return b, nil
}

// Waitlist records a booking that does not hold the room. Waitlisted
// bookings never conflict.
func (s *Service) Waitlist(ctx context.Context, req Request) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.newBooking(req, domain.BookingWaitlisted)
	if err := s.checkRoom(b); err != nil {
		return nil, err
	}
	if err := s.write(domain.OpInsert, b); err != nil {
		return nil, err
	}
	s.logger.Info("booking waitlisted", zap.String("booking_id", b.ID), zap.String("room_id", b.RoomID))
	return b, nil
}

// Update replaces the mutable fields of an existing booking, re-running
// the conflict check when it still holds its room.
func (s *Service) Update(ctx context.Context, b domain.Booking) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getBooking(b.ID)
	if err != nil {
		return nil, err
	}
	if b.Status == "" {
		b.Status = existing.Status
	}
	b.UpdatedAt = s.now().UTC()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if b.RoomID != existing.RoomID {
		if err := s.checkRoom(&b); err != nil {
			return nil, err
		}
	}
	if b.IsActive() {
		if err := s.ensureFree(&b); err != nil {
			return nil, err
		}
	}
	if err := s.write(domain.OpUpdate, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Cancel releases the booking's room. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.getBooking(id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingCancelled {
		return b, nil
	}
	b.Status = domain.BookingCancelled
	b.UpdatedAt = s.now().UTC()
	if err := s.write(domain.OpUpdate, b); err != nil {
		return nil, err
	}
	s.logger.Info("booking cancelled", zap.String("booking_id", id))
	return b, nil
}

// Delete removes a booking locally and queues the remote delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getBooking(id); err != nil {
		return err
	}
	if err := s.db.InTx(func(tx *store.Tx) error { return tx.RemoveBooking(id) }); err != nil {
		return err
	}
	s.bus.Emit(bus.KindBookingDeleted, id)
	return nil
}

// Override books the room by displacing every conflicting booking, which is
// allowed only when the new booking outranks each of them. Displaced
// bookings are moved to the waitlist and an audit entry is written for each.
func (s *Service) Override(ctx context.Context, req Request, actorID, reason string) (*OverrideResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.newBooking(req, domain.BookingConfirmed)
	if err := s.checkRoom(b); err != nil {
		return nil, err
	}
	conflicts, err := s.conflictsFor(b)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 && !conflict.CanOverrideAll(*b, conflicts) {
		return nil, fmt.Errorf("%w: %d conflicting booking(s)", ErrCannotOverride, len(conflicts))
	}

	res := &OverrideResult{Booking: b}
	now := s.now().UTC()
	err = s.db.InTx(func(tx *store.Tx) error {
		for _, c := range conflicts {
			c.Status = domain.BookingWaitlisted
			c.UpdatedAt = now
			if _, err := tx.SaveBooking(domain.OpUpdate, &c); err != nil {
				return err
			}
			res.Displaced = append(res.Displaced, c)
		}
		if _, err := tx.SaveBooking(domain.OpInsert, b); err != nil {
			return err
		}
		for _, c := range res.Displaced {
			entry := domain.AuditEntry{
				ID:           uuid.NewString(),
				Action:       domain.AuditActionOverride,
				ActorID:      actorID,
				BookingID:    b.ID,
				OverriddenID: c.ID,
				Reason:       reason,
				CreatedAt:    now,
			}
			if err := tx.RecordAudit(&entry); err != nil {
				return err
			}
			res.Audit = append(res.Audit, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, c := range res.Displaced {
		s.bus.Emit(bus.KindBookingUpserted, c.ID)
	}
	s.bus.Emit(bus.KindBookingUpserted, b.ID)

	s.logger.Info("booking override", zap.String("booking_id", b.ID),
		zap.String("actor_id", actorID), zap.Int("displaced", len(res.Displaced)))
	return res, nil
}

// CheckConflicts returns the active bookings overlapping candidate in its room.
func (s *Service) CheckConflicts(ctx context.Context, candidate domain.Booking) ([]domain.Booking, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	return s.conflictsFor(&candidate)
}

// Suggestions lists alternatives for candidate: shifted times in the same
// room first, then other active rooms free for the same interval.
func (s *Service) Suggestions(ctx context.Context, candidate domain.Booking) ([]conflict.Suggestion, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.dayBookings(&candidate)
	if err != nil {
		return nil, err
	}
	return s.suggest(&candidate, existing)
}

// Rooms returns the cached rooms.
func (s *Service) Rooms(ctx context.Context) ([]domain.Room, error) {
	return s.db.GetRooms()
}

// Bookings returns cached bookings matching f.
func (s *Service) Bookings(ctx context.Context, f store.BookingFilter) ([]domain.Booking, error) {
	return s.db.ListBookings(f)
}

func (s *Service) newBooking(req Request, st domain.BookingStatus) *domain.Booking {
	return &domain.Booking{
		ID:           uuid.NewString(),
		RoomID:       req.RoomID,
		UserID:       req.UserID,
		Title:        req.Title,
		Start:        req.Start.UTC(),
		End:          req.End.UTC(),
		Status:       st,
		Priority:     req.Priority,
		RecurrenceID: req.RecurrenceID,
		Department:   req.Department,
		UpdatedAt:    s.now().UTC(),
	}
}

func (s *Service) checkRoom(b *domain.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	room, err := s.db.GetRoom(b.RoomID)
	if err != nil {
		return fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, b.RoomID)
	}
	if !room.IsActive() {
		return fmt.Errorf("%w: %s", ErrRoomInactive, room.Name)
	}
	return nil
}

func (s *Service) getBooking(id string) (*domain.Booking, error) {
	b, err := s.db.GetBooking(id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}
	return b, nil
}

// ensureFree returns *ConflictError with suggestions when b overlaps.
func (s *Service) ensureFree(b *domain.Booking) error {
	existing, err := s.dayBookings(b)
	if err != nil {
		return err
	}
	conflicts := conflict.CheckBookingConflicts(*b, existing)
	if len(conflicts) == 0 {
		return nil
	}
	if s.observer != nil {
		s.observer.ObserveConflict()
	}
	suggestions, err := s.suggest(b, existing)
	if err != nil {
		return err
	}
	s.logger.Info("booking rejected", zap.String("room_id", b.RoomID),
		zap.Int("conflicts", len(conflicts)), zap.Int("suggestions", len(suggestions)))
	return &ConflictError{Conflicts: conflicts, Suggestions: suggestions}
}

func (s *Service) conflictsFor(b *domain.Booking) ([]domain.Booking, error) {
	existing, err := s.dayBookings(b)
	if err != nil {
		return nil, err
	}
	return conflict.CheckBookingConflicts(*b, existing), nil
}

// dayBookings loads the confirmed bookings of every room on the calendar
// days b touches, excluding b itself.
func (s *Service) dayBookings(b *domain.Booking) ([]domain.Booking, error) {
	loc := s.hours.Location
	if loc == nil {
		loc = time.Local
	}
	start := b.Start.In(loc)
	end := b.End.In(loc)
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	all, err := s.db.ListBookings(store.BookingFilter{
		Statuses: []domain.BookingStatus{domain.BookingConfirmed},
		From:     from,
		To:       to,
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	existing := all[:0]
	for _, e := range all {
		if e.ID != b.ID {
			existing = append(existing, e)
		}
	}
	return existing, nil
}

func (s *Service) suggest(b *domain.Booking, existing []domain.Booking) ([]conflict.Suggestion, error) {
	rooms, err := s.db.GetRooms()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	active := rooms[:0]
	for _, r := range rooms {
		if r.IsActive() {
			active = append(active, r)
		}
	}
	return conflict.Suggest(*b, active, existing, s.hours), nil
}

// write applies b locally and queues it for replay in one transaction,
// then announces it.
func (s *Service) write(kind domain.OperationKind, b *domain.Booking) error {
	if _, err := s.db.SaveBooking(kind, b); err != nil {
		return err
	}
	s.bus.Emit(bus.KindBookingUpserted, b.ID)
	return nil
}
