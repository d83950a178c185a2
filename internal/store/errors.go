package store

import "errors"

var (
	// ErrOperationNotQuarantined is returned when requeueing an operation that is not quarantined.
	ErrOperationNotQuarantined = errors.New("store: operation is not quarantined")

	// ErrDirtySchema is returned when an earlier migration stopped halfway and
	// the schema needs manual repair.
	ErrDirtySchema = errors.New("store: schema is dirty")

	// ErrEncodePayload is returned when a pending operation payload cannot be serialized.
	ErrEncodePayload = errors.New("store: failed to encode payload")
)
