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

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, domain.ErrInvalidBooking):
		code = codes.InvalidArgument
	case errors.Is(err, reservation.ErrRoomNotFound), errors.Is(err, reservation.ErrBookingNotFound):
		code = codes.NotFound
	case errors.Is(err, reservation.ErrRoomInactive),
		errors.Is(err, reservation.ErrCannotOverride),
		errors.Is(err, store.ErrOperationNotQuarantined):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return grpcstatus.Error(code, err.Error())
}
