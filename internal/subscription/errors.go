package subscription

import "errors"

var (
	// ErrClinicNotFound is returned when the clinic does not exist.
	ErrClinicNotFound = errors.New("clinic not found")

	// ErrTrialAlreadyActive is returned when activating a trial for a clinic
	// that already has one running.
	ErrTrialAlreadyActive = errors.New("clinic already has an active trial")

	// ErrNoActiveTrial is returned when converting, cancelling or expiring a
	// trial that is not running.
	ErrNoActiveTrial = errors.New("clinic has no active trial")

	// ErrInvalidDuration is returned when the trial duration is outside the
	// allowed 1-30 day range.
	ErrInvalidDuration = errors.New("trial duration must be between 1 and 30 days")

	// ErrInvalidPlan is returned for unknown plan names.
	ErrInvalidPlan = errors.New("invalid subscription plan")

	// ErrMissingActor is returned when a trial activation carries no operator
	// identity for the audit trail.
	ErrMissingActor = errors.New("activated_by is required")

	// ErrMissingFeature is returned when a blocked-feature report names no
	// feature.
	ErrMissingFeature = errors.New("feature is required")

	// ErrStoreUnavailable wraps durable-store failures. Callers may retry;
	// the condition is never silently swallowed.
	ErrStoreUnavailable = errors.New("subscription store unavailable")
)
