package remote

import "errors"

var (
	// ErrTransient marks failures worth retrying on the next sync pass
	// (network errors, timeouts, 5xx, rate limiting).
	ErrTransient = errors.New("remote: transient failure")

	// ErrPermanent marks failures that will not succeed on retry
	// (validation errors, unknown tables or columns, rejected payloads).
	ErrPermanent = errors.New("remote: permanent failure")
)

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
