package api

import (
	"context"
	"errors"

	"github.com/matheus3301/roombook/internal/domain"
	"github.com/matheus3301/roombook/internal/reservation"
	"github.com/matheus3301/roombook/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// BookingService implements the BookingService gRPC service on top of the
// reservation service. Conflicts are not errors on this surface: Book and
// Waitlist report them in the response together with suggestions.
type BookingService struct {
	reservations *reservation.Service
}

// NewBookingService creates a new booking service.
func NewBookingService(reservations *reservation.Service) *BookingService {
	return &BookingService{reservations: reservations}
}

func (s *BookingService) ListRooms(ctx context.Context, req *ListRoomsRequest) (*ListRoomsResponse, error) {
	rooms, err := s.reservations.Rooms(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListRoomsResponse{Rooms: []domain.Room{}}
	for _, r := range rooms {
		if req.ActiveOnly && !r.IsActive() {
			continue
		}
		resp.Rooms = append(resp.Rooms, r)
	}
	return resp, nil
}

func (s *BookingService) ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	bookings, err := s.reservations.Bookings(ctx, store.BookingFilter{
		RoomID:   req.RoomID,
		UserID:   req.UserID,
		Statuses: req.Statuses,
		From:     req.From,
		To:       req.To,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	if bookings == nil {
		bookings = []domain.Booking{}
	}
	return &ListBookingsResponse{Bookings: bookings}, nil
}

func (s *BookingService) Book(ctx context.Context, req *BookingRequest) (*BookResponse, error) {
	return bookResponse(s.reservations.Book(ctx, toRequest(req)))
}

func (s *BookingService) Waitlist(ctx context.Context, req *BookingRequest) (*BookResponse, error) {
	return bookResponse(s.reservations.Waitlist(ctx, toRequest(req)))
}

func (s *BookingService) Cancel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	if req.ID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "booking id is required")
	}
	b, err := s.reservations.Cancel(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CancelResponse{Booking: b}, nil
}

func (s *BookingService) CheckConflicts(ctx context.Context, req *BookingRequest) (*CheckConflictsResponse, error) {
	conflicts, err := s.reservations.CheckConflicts(ctx, candidate(req))
	if err != nil {
		return nil, toStatus(err)
	}
	if conflicts == nil {
		conflicts = []domain.Booking{}
	}
	return &CheckConflictsResponse{Conflicts: conflicts}, nil
}

func (s *BookingService) Suggest(ctx context.Context, req *BookingRequest) (*SuggestResponse, error) {
	suggestions, err := s.reservations.Suggestions(ctx, candidate(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return &SuggestResponse{Suggestions: suggestions}, nil
}

func (s *BookingService) Override(ctx context.Context, req *OverrideRequest) (*OverrideResponse, error) {
	if req.ActorID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "actor id is required")
	}
	res, err := s.reservations.Override(ctx, toRequest(&req.Booking), req.ActorID, req.Reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OverrideResponse{Booking: res.Booking, Displaced: res.Displaced, Audit: res.Audit}, nil
}

func bookResponse(b *domain.Booking, err error) (*BookResponse, error) {
	var conflictErr *reservation.ConflictError
	if errors.As(err, &conflictErr) {
		return &BookResponse{Conflicts: conflictErr.Conflicts, Suggestions: conflictErr.Suggestions}, nil
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &BookResponse{Booking: b}, nil
}

func toRequest(req *BookingRequest) reservation.Request {
	return reservation.Request{
		RoomID:       req.RoomID,
		UserID:       req.UserID,
		Title:        req.Title,
		Start:        req.Start,
		End:          req.End,
		Priority:     req.Priority,
		RecurrenceID: req.RecurrenceID,
		Department:   req.Department,
	}
}

// candidate builds the unsaved booking that CheckConflicts and Suggest evaluate.
func candidate(req *BookingRequest) domain.Booking {
	return domain.Booking{
		RoomID:       req.RoomID,
		UserID:       req.UserID,
		Title:        req.Title,
		Start:        req.Start,
		End:          req.End,
		Status:       domain.BookingConfirmed,
		Priority:     req.Priority,
		RecurrenceID: req.RecurrenceID,
		Department:   req.Department,
	}
}
