package analytics

import "errors"

var (
	// ErrEventValidation is returned when an event misses required fields.
	ErrEventValidation = errors.New("analytics event validation failed")

	// ErrStoreFailed wraps database failures on append or query.
	ErrStoreFailed = errors.New("analytics event store failed")
)
