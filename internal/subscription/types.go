package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a clinic's paid tier, independent of any running trial.
type Plan string

const (
	PlanPro        Plan = "pro"
	PlanScheduling Plan = "scheduling"
)

// Valid reports whether the plan is a known paid tier.
func (p Plan) Valid() bool {
	return p == PlanPro || p == PlanScheduling
}

// ParsePlan converts a raw plan name into a Plan.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", ErrInvalidPlan
	}
	return p, nil
}

// Trial duration bounds in days.
const (
	MinTrialDays = 1
	MaxTrialDays = 30
)

// Clinic is the billable tenant unit.
type Clinic struct {
	ID                uuid.UUID
	Name              string
	Plan              Plan
	TrialProEnabled   bool
	TrialProExpiresAt *time.Time

	// Denormalized reporting counters, not invariant-bearing.
	MaxPatients    int32
	TotalPatients  int32
	MonthlyRevenue float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectivePlanAt returns the capability tier the clinic is entitled to at
// the given instant. Computed, never stored: a paid Pro plan or a live trial
// grants Pro, everything else falls back to the paid plan.
func (c *Clinic) EffectivePlanAt(now time.Time) Plan {
	if c.Plan == PlanPro {
		return PlanPro
	}
	if c.TrialProEnabled && c.TrialProExpiresAt != nil && c.TrialProExpiresAt.After(now) {
		return PlanPro
	}
	return c.Plan
}

// TrialStatus is the lifecycle state of a single trial instance.
type TrialStatus string

const (
	TrialActive    TrialStatus = "active"
	TrialConverted TrialStatus = "converted"
	TrialCancelled TrialStatus = "cancelled"
	TrialExpired   TrialStatus = "expired"
)

// Terminal reports whether the status is an end state for a trial instance.
func (s TrialStatus) Terminal() bool {
	switch s {
	case TrialConverted, TrialCancelled, TrialExpired:
		return true
	}
	return false
}

// TrialRecord is one row of the trial history ledger. Records are created in
// status active, transition exactly once to a terminal status and are never
// deleted.
type TrialRecord struct {
	ID           uuid.UUID
	ClinicID     uuid.UUID
	ActivatedBy  string
	ActivatedAt  time.Time
	DurationDays int32
	Status       TrialStatus
	EndedAt      *time.Time
}

// Summary is the per-clinic subscription projection served to operator
// tooling and the tenant's own subscription view.
type Summary struct {
	ClinicID          uuid.UUID  `json:"clinic_id"`
	Name              string     `json:"name"`
	Plan              Plan       `json:"plan"`
	EffectivePlan     Plan       `json:"effective_plan"`
	TrialActive       bool       `json:"trial_active"`
	TrialExpiresAt    *time.Time `json:"trial_expires_at,omitempty"`
	TrialDaysRemaining int       `json:"trial_days_remaining"`
	MaxPatients       int32      `json:"max_patients"`
	TotalPatients     int32      `json:"total_patients"`
	MonthlyRevenue    float64    `json:"monthly_revenue"`
}

// Summarize builds the projection for a clinic at the given instant.
func Summarize(c *Clinic, now time.Time) Summary {
	s := Summary{
		ClinicID:       c.ID,
		Name:           c.Name,
		Plan:           c.Plan,
		EffectivePlan:  c.EffectivePlanAt(now),
		TrialActive:    c.TrialProEnabled,
		TrialExpiresAt: c.TrialProExpiresAt,
		MaxPatients:    c.MaxPatients,
		TotalPatients:  c.TotalPatients,
		MonthlyRevenue: c.MonthlyRevenue,
	}
	if c.TrialProEnabled && c.TrialProExpiresAt != nil {
		if remaining := c.TrialProExpiresAt.Sub(now); remaining > 0 {
			// Round up partial days so "expires tomorrow morning" reads as 1 day.
			s.TrialDaysRemaining = int((remaining.Hours() + 23) / 24)
		}
	}
	return s
}

// PlanStats is one row of the per-plan aggregate. The synthetic "trial" row
// counts clinics currently mid-trial in addition to (not instead of) their
// paid-plan row.
type PlanStats struct {
	Plan           string  `json:"plan"`
	Clinics        int64   `json:"clinics"`
	TotalPatients  int64   `json:"total_patients"`
	MonthlyRevenue float64 `json:"monthly_revenue"`
}

// StatsTrialRow is the plan label of the synthetic mid-trial aggregate row.
const StatsTrialRow = "trial"

// PlanPrice is a row of the admin-maintained price catalogue, read-only from
// the engine's perspective.
type PlanPrice struct {
	PlanName        string  `json:"plan_name"`
	PricePerPatient float64 `json:"price_per_patient"`
	Active          bool    `json:"active"`
}
