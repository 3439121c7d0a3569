package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/subscription-engine/internal/subscription"
	"github.com/clinicore/subscription-engine/pkg/pg"
)

// GetClinic returns one clinic row.
func (s *Storage) GetClinic(ctx context.Context, id uuid.UUID) (*subscription.Clinic, error) {
	const q = `SELECT ` + clinicColumns + ` FROM clinics WHERE id = $1`

	clinic, err := scanClinic(s.db.QueryRow(ctx, q, id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, subscription.ErrClinicNotFound
		}
		return nil, storeErr(err)
	}
	return clinic, nil
}

// ListClinics returns every clinic ordered by name.
func (s *Storage) ListClinics(ctx context.Context) ([]subscription.Clinic, error) {
	const q = `SELECT ` + clinicColumns + ` FROM clinics ORDER BY name`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var clinics []subscription.Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		clinics = append(clinics, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return clinics, nil
}

// ListDueTrials returns ids of clinics whose active trial lapsed at or
// before now. The sweep is set-based: one scan, then per-row transitions.
func (s *Storage) ListDueTrials(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	const q = `
		SELECT id FROM clinics
		WHERE trial_pro_enabled = true AND trial_pro_expires_at <= $1
		ORDER BY trial_pro_expires_at`

	rows, err := s.db.Query(ctx, q, now)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return ids, nil
}

// ListExpiringTrials returns clinics whose active trial lapses at or before
// the given instant, soonest first. Used for advance-warning reporting only.
func (s *Storage) ListExpiringTrials(ctx context.Context, until time.Time) ([]subscription.Clinic, error) {
	const q = `
		SELECT ` + clinicColumns + ` FROM clinics
		WHERE trial_pro_enabled = true AND trial_pro_expires_at <= $1
		ORDER BY trial_pro_expires_at`

	rows, err := s.db.Query(ctx, q, until)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var clinics []subscription.Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		clinics = append(clinics, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return clinics, nil
}

// ListTrialHistory returns all ledger rows for a clinic, newest first.
func (s *Storage) ListTrialHistory(ctx context.Context, clinicID uuid.UUID) ([]subscription.TrialRecord, error) {
	const q = `
		SELECT id, clinic_id, activated_by, activated_at, duration_days, status, ended_at
		FROM trial_history
		WHERE clinic_id = $1
		ORDER BY activated_at DESC`

	rows, err := s.db.Query(ctx, q, clinicID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var records []subscription.TrialRecord
	for rows.Next() {
		var r subscription.TrialRecord
		if err := rows.Scan(&r.ID, &r.ClinicID, &r.ActivatedBy, &r.ActivatedAt, &r.DurationDays, &r.Status, &r.EndedAt); err != nil {
			return nil, storeErr(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return records, nil
}

// PlanStats aggregates clinics per paid plan plus a synthetic trial row for
// clinics currently mid-trial. The trial row is additive, not exclusive: a
// trialing clinic is counted under its paid plan too.
func (s *Storage) PlanStats(ctx context.Context) ([]subscription.PlanStats, error) {
	const q = `
		SELECT subscription_plan AS plan,
		       COUNT(*) AS clinics,
		       COALESCE(SUM(total_patients), 0) AS total_patients,
		       COALESCE(SUM(monthly_revenue), 0) AS monthly_revenue
		FROM clinics
		GROUP BY subscription_plan
		UNION ALL
		SELECT 'trial',
		       COUNT(*),
		       COALESCE(SUM(total_patients), 0),
		       COALESCE(SUM(monthly_revenue), 0)
		FROM clinics
		WHERE trial_pro_enabled = true
		ORDER BY 1`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var stats []subscription.PlanStats
	for rows.Next() {
		var row subscription.PlanStats
		if err := rows.Scan(&row.Plan, &row.Clinics, &row.TotalPatients, &row.MonthlyRevenue); err != nil {
			return nil, storeErr(err)
		}
		stats = append(stats, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return stats, nil
}

// ListPlanPrices returns the active price catalogue.
func (s *Storage) ListPlanPrices(ctx context.Context) ([]subscription.PlanPrice, error) {
	const q = `
		SELECT plan_name, price_per_patient, active
		FROM plan_prices
		WHERE active = true
		ORDER BY plan_name`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var prices []subscription.PlanPrice
	for rows.Next() {
		var p subscription.PlanPrice
		if err := rows.Scan(&p.PlanName, &p.PricePerPatient, &p.Active); err != nil {
			return nil, storeErr(err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return prices, nil
}
