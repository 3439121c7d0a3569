package storage

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicore/subscription-engine/internal/analytics"
	"github.com/clinicore/subscription-engine/internal/subscription"
	"github.com/clinicore/subscription-engine/pkg/pg"
)

// ActivateTrial flips the trial flags with a conditional update and inserts
// the active history row. The partial unique index on trial_history backs up
// the flag guard against races, so at most one activation wins.
func (s *Storage) ActivateTrial(ctx context.Context, arg subscription.ActivateTrialParams) (*subscription.Clinic, error) {
	const activate = `
		UPDATE clinics
		SET trial_pro_enabled = true, trial_pro_expires_at = $2, updated_at = $3
		WHERE id = $1 AND trial_pro_enabled = false
		RETURNING ` + clinicColumns

	const insertHistory = `
		INSERT INTO trial_history (id, clinic_id, activated_by, activated_at, duration_days, status)
		VALUES ($1, $2, $3, $4, $5, 'active')`

	var clinic *subscription.Clinic
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		c, err := scanClinic(tx.QueryRow(ctx, activate, arg.ClinicID, arg.ExpiresAt, arg.ActivatedAt))
		if err != nil {
			if pg.IsNotFoundError(err) {
				return trialGuardFailure(ctx, tx, arg.ClinicID, subscription.ErrTrialAlreadyActive)
			}
			return storeErr(err)
		}

		if _, err := tx.Exec(ctx, insertHistory,
			uuid.New(), arg.ClinicID, arg.ActivatedBy, arg.ActivatedAt, arg.DurationDays,
		); err != nil {
			if pg.IsDuplicateKeyError(err) {
				return subscription.ErrTrialAlreadyActive
			}
			return storeErr(err)
		}

		if err := s.recorder.Record(ctx, tx, &analytics.Event{
			ClinicID: c.ID,
			PlanName: string(c.Plan),
			Type:     analytics.EventTrialActivated,
			Data: map[string]any{
				"activated_by":  arg.ActivatedBy,
				"duration_days": arg.DurationDays,
				"expires_at":    arg.ExpiresAt.Format(time.RFC3339),
			},
			CreatedAt: arg.ActivatedAt,
		}); err != nil {
			return storeErr(err)
		}

		clinic = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clinic, nil
}

// ConvertTrial moves the clinic to the paid pro plan and closes the trial.
// The guard accepts a lapsed-but-unswept trial: conversion is a payment
// decision, not a race with the sweeper.
func (s *Storage) ConvertTrial(ctx context.Context, id uuid.UUID, now time.Time) (*subscription.Clinic, error) {
	const convert = `
		UPDATE clinics AS c
		SET subscription_plan = 'pro', trial_pro_enabled = false, trial_pro_expires_at = NULL, updated_at = $2
		FROM (
			SELECT id, subscription_plan AS previous_plan
			FROM clinics WHERE id = $1 AND trial_pro_enabled = true
			FOR UPDATE
		) AS prev
		WHERE c.id = prev.id
		RETURNING c.id, c.name, c.subscription_plan, c.trial_pro_enabled, c.trial_pro_expires_at,
			c.max_patients, c.total_patients, c.monthly_revenue, c.created_at, c.updated_at,
			prev.previous_plan`

	var clinic *subscription.Clinic
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var (
			c            subscription.Clinic
			previousPlan string
		)
		err := tx.QueryRow(ctx, convert, id, now).Scan(
			&c.ID, &c.Name, &c.Plan, &c.TrialProEnabled, &c.TrialProExpiresAt,
			&c.MaxPatients, &c.TotalPatients, &c.MonthlyRevenue, &c.CreatedAt, &c.UpdatedAt,
			&previousPlan,
		)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return trialGuardFailure(ctx, tx, id, subscription.ErrNoActiveTrial)
			}
			return storeErr(err)
		}

		if err := s.closeActiveTrial(ctx, tx, id, subscription.TrialConverted, now); err != nil {
			return err
		}

		if err := s.recorder.Record(ctx, tx, &analytics.Event{
			ClinicID: c.ID,
			PlanName: string(c.Plan),
			Type:     analytics.EventPlanChanged,
			Data: map[string]any{
				"plan":          string(c.Plan),
				"previous_plan": previousPlan,
				"reason":        "trial_converted",
			},
			CreatedAt: now,
		}); err != nil {
			return storeErr(err)
		}

		clinic = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clinic, nil
}

// CancelTrial clears the trial flags without touching the paid plan, marks
// the history row cancelled and appends the trial_cancelled event.
func (s *Storage) CancelTrial(ctx context.Context, id uuid.UUID, now time.Time) (*subscription.Clinic, error) {
	const cancel = `
		UPDATE clinics
		SET trial_pro_enabled = false, trial_pro_expires_at = NULL, updated_at = $2
		WHERE id = $1 AND trial_pro_enabled = true
		RETURNING ` + clinicColumns

	var clinic *subscription.Clinic
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		c, err := scanClinic(tx.QueryRow(ctx, cancel, id, now))
		if err != nil {
			if pg.IsNotFoundError(err) {
				return trialGuardFailure(ctx, tx, id, subscription.ErrNoActiveTrial)
			}
			return storeErr(err)
		}

		if err := s.closeActiveTrial(ctx, tx, id, subscription.TrialCancelled, now); err != nil {
			return err
		}

		if err := s.recorder.Record(ctx, tx, &analytics.Event{
			ClinicID:  c.ID,
			PlanName:  string(c.Plan),
			Type:      analytics.EventTrialCancelled,
			Data:      map[string]any{"plan": string(c.Plan)},
			CreatedAt: now,
		}); err != nil {
			return storeErr(err)
		}

		clinic = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clinic, nil
}

// ExpireTrial clears the flags iff the trial has lapsed at now. A guard miss
// returns (false, nil): the row was already handled or is not due, which
// makes sweeper retries harmless.
func (s *Storage) ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	const expire = `
		UPDATE clinics
		SET trial_pro_enabled = false, trial_pro_expires_at = NULL, updated_at = $2
		WHERE id = $1 AND trial_pro_enabled = true AND trial_pro_expires_at <= $2`

	expired := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, expire, id, now)
		if err != nil {
			return storeErr(err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if err := s.closeActiveTrial(ctx, tx, id, subscription.TrialExpired, now); err != nil {
			return err
		}

		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

// UpdatePlan changes the paid plan, leaving trial fields alone, and appends
// the plan_changed event with the previous plan for the audit trail.
func (s *Storage) UpdatePlan(ctx context.Context, id uuid.UUID, plan subscription.Plan, now time.Time) (*subscription.Clinic, error) {
	const update = `
		UPDATE clinics AS c
		SET subscription_plan = $2, updated_at = $3
		FROM (
			SELECT id, subscription_plan AS previous_plan
			FROM clinics WHERE id = $1
			FOR UPDATE
		) AS prev
		WHERE c.id = prev.id
		RETURNING c.id, c.name, c.subscription_plan, c.trial_pro_enabled, c.trial_pro_expires_at,
			c.max_patients, c.total_patients, c.monthly_revenue, c.created_at, c.updated_at,
			prev.previous_plan`

	var clinic *subscription.Clinic
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var (
			c            subscription.Clinic
			previousPlan string
		)
		err := tx.QueryRow(ctx, update, id, plan, now).Scan(
			&c.ID, &c.Name, &c.Plan, &c.TrialProEnabled, &c.TrialProExpiresAt,
			&c.MaxPatients, &c.TotalPatients, &c.MonthlyRevenue, &c.CreatedAt, &c.UpdatedAt,
			&previousPlan,
		)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return subscription.ErrClinicNotFound
			}
			return storeErr(err)
		}

		if err := s.recorder.Record(ctx, tx, &analytics.Event{
			ClinicID: c.ID,
			PlanName: string(c.Plan),
			Type:     analytics.EventPlanChanged,
			Data: map[string]any{
				"plan":          string(c.Plan),
				"previous_plan": previousPlan,
			},
			CreatedAt: now,
		}); err != nil {
			return storeErr(err)
		}

		clinic = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clinic, nil
}

// RecordFeatureBlocked appends a feature_blocked event carrying the clinic's
// plan at report time.
func (s *Storage) RecordFeatureBlocked(ctx context.Context, id uuid.UUID, feature string, details map[string]any, now time.Time) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var plan string
		err := tx.QueryRow(ctx, `SELECT subscription_plan FROM clinics WHERE id = $1`, id).Scan(&plan)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return subscription.ErrClinicNotFound
			}
			return storeErr(err)
		}

		data := make(map[string]any, len(details)+1)
		maps.Copy(data, details)
		data["feature"] = feature // details must not mask the feature name

		if err := s.recorder.Record(ctx, tx, &analytics.Event{
			ClinicID:  id,
			PlanName:  plan,
			Type:      analytics.EventFeatureBlocked,
			Data:      data,
			CreatedAt: now,
		}); err != nil {
			return storeErr(err)
		}
		return nil
	})
}

// closeActiveTrial transitions the clinic's single active ledger row to the
// given terminal status.
func (s *Storage) closeActiveTrial(ctx context.Context, tx pgx.Tx, clinicID uuid.UUID, status subscription.TrialStatus, now time.Time) error {
	const closeRow = `
		UPDATE trial_history
		SET status = $2, ended_at = $3
		WHERE clinic_id = $1 AND status = 'active'`

	tag, err := tx.Exec(ctx, closeRow, clinicID, status, now)
	if err != nil {
		return storeErr(err)
	}
	// The clinic guard already matched, so a missing active row means the
	// ledger drifted from the flags.
	if tag.RowsAffected() == 0 {
		return errors.Join(subscription.ErrStoreUnavailable,
			errors.New("trial ledger out of sync: no active record for clinic "+clinicID.String()))
	}
	return nil
}
