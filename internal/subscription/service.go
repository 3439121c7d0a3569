package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/subscription-engine/internal/analytics"
	"github.com/clinicore/subscription-engine/pkg/logger"
)

// Store is the durable Plan Store + Trial History Ledger pair. Every mutating
// method executes as a single atomic unit: the transition precondition is
// evaluated in the same statement as the write, so concurrent transitions on
// one clinic resolve to exactly one terminal status.
type Store interface {
	GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error)
	ListClinics(ctx context.Context) ([]Clinic, error)

	// ActivateTrial sets the trial flags and inserts the active history row
	// transactionally. Fails with ErrTrialAlreadyActive when a trial is
	// already running.
	ActivateTrial(ctx context.Context, arg ActivateTrialParams) (*Clinic, error)

	// ConvertTrial moves the clinic to the pro plan, clears the trial flags
	// and marks the active history row converted.
	ConvertTrial(ctx context.Context, id uuid.UUID, now time.Time) (*Clinic, error)

	// CancelTrial clears the trial flags, marks the active history row
	// cancelled and appends the trial_cancelled event, all in one transaction.
	CancelTrial(ctx context.Context, id uuid.UUID, now time.Time) (*Clinic, error)

	// ExpireTrial clears the trial flags iff the trial has lapsed at now.
	// Returns false without error when the guard does not match, making the
	// operation idempotent for sweeper retries.
	ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// UpdatePlan changes the paid plan without touching trial fields and
	// appends the plan_changed event.
	UpdatePlan(ctx context.Context, id uuid.UUID, plan Plan, now time.Time) (*Clinic, error)

	// RecordFeatureBlocked appends a feature_blocked event carrying the
	// clinic's plan at report time.
	RecordFeatureBlocked(ctx context.Context, id uuid.UUID, feature string, details map[string]any, now time.Time) error

	// ListDueTrials returns the ids of clinics whose active trial lapsed at
	// or before now.
	ListDueTrials(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// ListExpiringTrials returns clinics whose active trial lapses at or
	// before the given instant, soonest first.
	ListExpiringTrials(ctx context.Context, until time.Time) ([]Clinic, error)

	ListTrialHistory(ctx context.Context, clinicID uuid.UUID) ([]TrialRecord, error)
	PlanStats(ctx context.Context) ([]PlanStats, error)
	ListPlanPrices(ctx context.Context) ([]PlanPrice, error)
}

// EventReader serves the analytics query surface.
type EventReader interface {
	List(ctx context.Context, f analytics.Filter) ([]analytics.Event, error)
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service is the lifecycle state machine: the only writer of clinic plan and
// trial fields and of trial history transitions. It validates preconditions,
// delegates the atomic transition to the store and returns typed failures.
type Service struct {
	store  Store
	events EventReader
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Service. Panics on nil dependencies to fail fast at startup.
func New(store Store, events EventReader, opts ...Option) *Service {
	if store == nil {
		panic("subscription: store is required")
	}
	if events == nil {
		panic("subscription: event reader is required")
	}

	s := &Service{
		store:  store,
		events: events,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActivateTrialParams carries a validated trial activation into the store.
type ActivateTrialParams struct {
	ClinicID     uuid.UUID
	ActivatedBy  string
	DurationDays int32
	ActivatedAt  time.Time
	ExpiresAt    time.Time
}

// ActivateTrial starts a pro trial for the clinic. Duration must be within
// [MinTrialDays, MaxTrialDays]; a clinic can run at most one trial at a time.
func (s *Service) ActivateTrial(ctx context.Context, clinicID uuid.UUID, activatedBy string, durationDays int) (*Clinic, error) {
	if durationDays < MinTrialDays || durationDays > MaxTrialDays {
		return nil, ErrInvalidDuration
	}
	if activatedBy == "" {
		return nil, ErrMissingActor
	}

	now := s.now().UTC()
	clinic, err := s.store.ActivateTrial(ctx, ActivateTrialParams{
		ClinicID:     clinicID,
		ActivatedBy:  activatedBy,
		DurationDays: int32(durationDays),
		ActivatedAt:  now,
		ExpiresAt:    now.AddDate(0, 0, durationDays),
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "trial activated",
		logger.ClinicID(clinicID),
		logger.OperatorID(activatedBy),
		slog.Int("duration_days", durationDays),
		slog.Time("expires_at", *clinic.TrialProExpiresAt),
	)
	return clinic, nil
}

// ConvertTrial upgrades the clinic to the paid pro plan. Conversion is
// allowed while the trial flag is set even if the expiry instant has passed:
// the customer decided to pay before the sweep caught up.
func (s *Service) ConvertTrial(ctx context.Context, clinicID uuid.UUID) (*Clinic, error) {
	clinic, err := s.store.ConvertTrial(ctx, clinicID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "trial converted to pro", logger.ClinicID(clinicID))
	return clinic, nil
}

// CancelTrial revokes a running trial. The clinic's effective plan drops back
// to its paid tier immediately.
func (s *Service) CancelTrial(ctx context.Context, clinicID uuid.UUID) (*Clinic, error) {
	clinic, err := s.store.CancelTrial(ctx, clinicID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "trial cancelled", logger.ClinicID(clinicID))
	return clinic, nil
}

// ExpireTrial drives the sweep transition for one clinic. It reports whether
// the trial was expired; a false result means the guard did not match (the
// trial is still running, was already ended, or never existed) and the call
// was a no-op.
func (s *Service) ExpireTrial(ctx context.Context, clinicID uuid.UUID) (bool, error) {
	return s.store.ExpireTrial(ctx, clinicID, s.now().UTC())
}

// UpdatePlan changes the clinic's paid plan. Trial fields are untouched: a
// clinic can sit on the scheduling plan while a pro trial runs independently.
func (s *Service) UpdatePlan(ctx context.Context, clinicID uuid.UUID, planName string) (*Clinic, error) {
	plan, err := ParsePlan(planName)
	if err != nil {
		return nil, err
	}

	clinic, err := s.store.UpdatePlan(ctx, clinicID, plan, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "plan updated", logger.ClinicID(clinicID), slog.String("plan", string(plan)))
	return clinic, nil
}

// RecordFeatureBlocked appends a feature_blocked event. The surrounding CRUD
// layer reports plan-limit hits through this operation since the engine is
// the sole writer of analytics events.
func (s *Service) RecordFeatureBlocked(ctx context.Context, clinicID uuid.UUID, feature string, details map[string]any) error {
	if feature == "" {
		return ErrMissingFeature
	}
	return s.store.RecordFeatureBlocked(ctx, clinicID, feature, details, s.now().UTC())
}

// GetSubscription returns the subscription projection for one clinic.
func (s *Service) GetSubscription(ctx context.Context, clinicID uuid.UUID) (*Summary, error) {
	clinic, err := s.store.GetClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(clinic, s.now().UTC())
	return &summary, nil
}

// ListSubscriptions returns the projection for every clinic, ordered by name.
func (s *Service) ListSubscriptions(ctx context.Context) ([]Summary, error) {
	clinics, err := s.store.ListClinics(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	summaries := make([]Summary, len(clinics))
	for i := range clinics {
		summaries[i] = Summarize(&clinics[i], now)
	}
	return summaries, nil
}

// Stats returns the per-plan aggregate including the synthetic trial row.
// A clinic mid-trial is counted under both its paid plan and the trial row;
// the non-exclusive tally is intentional reporting semantics.
func (s *Service) Stats(ctx context.Context) ([]PlanStats, error) {
	return s.store.PlanStats(ctx)
}

// TrialHistory returns all trial records for a clinic, newest first.
func (s *Service) TrialHistory(ctx context.Context, clinicID uuid.UUID) ([]TrialRecord, error) {
	return s.store.ListTrialHistory(ctx, clinicID)
}

// DueTrials lists clinics whose trial has lapsed and awaits the sweep.
func (s *Service) DueTrials(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.ListDueTrials(ctx, s.now().UTC())
}

// DefaultExpiringWindowDays is used when the requested advance-warning window
// is outside the tolerated 0-30 day range.
const DefaultExpiringWindowDays = 3

// ExpiringSoon lists clinics whose trial lapses within daysAhead days,
// soonest first. daysAhead of 0 means already due; out-of-range values fall
// back to the default window.
func (s *Service) ExpiringSoon(ctx context.Context, daysAhead int) ([]Summary, error) {
	if daysAhead < 0 || daysAhead > MaxTrialDays {
		daysAhead = DefaultExpiringWindowDays
	}

	now := s.now().UTC()
	clinics, err := s.store.ListExpiringTrials(ctx, now.AddDate(0, 0, daysAhead))
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, len(clinics))
	for i := range clinics {
		summaries[i] = Summarize(&clinics[i], now)
	}
	return summaries, nil
}

// Analytics returns lifecycle events for a clinic, newest first.
func (s *Service) Analytics(ctx context.Context, clinicID uuid.UUID, limit int) ([]analytics.Event, error) {
	if limit <= 0 {
		limit = analytics.DefaultLimit
	}
	return s.events.List(ctx, analytics.Filter{ClinicID: &clinicID, Limit: limit})
}

// DefaultBlockedFeatureLimit caps the blocked-feature feed when no limit is
// given.
const DefaultBlockedFeatureLimit = 50

// BlockedFeatureEvents returns feature_blocked events, optionally filtered by
// clinic, newest first. This is the feed upsell tooling polls to find clinics
// hitting plan limits.
func (s *Service) BlockedFeatureEvents(ctx context.Context, clinicID *uuid.UUID, limit int) ([]analytics.Event, error) {
	if limit <= 0 {
		limit = DefaultBlockedFeatureLimit
	}
	return s.events.List(ctx, analytics.Filter{
		ClinicID: clinicID,
		Type:     analytics.EventFeatureBlocked,
		Limit:    limit,
	})
}

// PlanPrices returns the active price catalogue.
func (s *Service) PlanPrices(ctx context.Context) ([]PlanPrice, error) {
	return s.store.ListPlanPrices(ctx)
}
