// Package analytics records and reads the engine's immutable lifecycle
// events: plan changes, trial activations/cancellations and blocked-feature
// reports that drive upgrade-opportunity tooling.
package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventPlanChanged    EventType = "plan_changed"
	EventTrialActivated EventType = "trial_activated"
	EventTrialCancelled EventType = "trial_cancelled"
	EventFeatureBlocked EventType = "feature_blocked"
)

// Event is a single immutable fact. Events are appended by the lifecycle
// state machine in the same transaction as the state change and are never
// updated or deleted.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	ClinicID  uuid.UUID      `json:"clinic_id"`
	PlanName  string         `json:"plan_name"`
	Type      EventType      `json:"event_type"`
	Data      map[string]any `json:"event_data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate checks that the event carries the required fields.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: event type is required", ErrEventValidation)
	}
	if e.ClinicID == uuid.Nil {
		return fmt.Errorf("%w: clinic id is required", ErrEventValidation)
	}
	return nil
}

// Filter narrows event queries. A zero filter matches everything with the
// default limit.
type Filter struct {
	ClinicID *uuid.UUID
	Type     EventType
	Limit    int
}

// DefaultLimit caps event queries that specify no limit.
const DefaultLimit = 100
