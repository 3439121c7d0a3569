// Package storage implements the durable Plan Store and Trial History Ledger
// on PostgreSQL. Every lifecycle transition is a single conditional update:
// the precondition is evaluated in the same statement as the write, and the
// history transition plus analytics event commit in the same transaction.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/subscription-engine/internal/analytics"
	"github.com/clinicore/subscription-engine/internal/subscription"
)

// Storage implements subscription.Store over a pgx connection pool.
type Storage struct {
	db       *pgxpool.Pool
	recorder *analytics.Recorder
}

// New creates a Storage. Panics on a nil pool to fail fast at startup.
func New(db *pgxpool.Pool) *Storage {
	if db == nil {
		panic("storage: db pool is required")
	}
	return &Storage{
		db:       db,
		recorder: analytics.NewRecorder(),
	}
}

var _ subscription.Store = (*Storage)(nil)

const clinicColumns = `id, name, subscription_plan, trial_pro_enabled, trial_pro_expires_at,
	max_patients, total_patients, monthly_revenue, created_at, updated_at`

func scanClinic(row pgx.Row) (*subscription.Clinic, error) {
	var c subscription.Clinic
	err := row.Scan(
		&c.ID, &c.Name, &c.Plan, &c.TrialProEnabled, &c.TrialProExpiresAt,
		&c.MaxPatients, &c.TotalPatients, &c.MonthlyRevenue, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// withTx runs fn inside a transaction. Storage-level failures are wrapped
// with ErrStoreUnavailable; domain errors pass through untouched.
func (s *Storage) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Join(subscription.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(subscription.ErrStoreUnavailable, err)
	}
	return nil
}

// trialGuardFailure disambiguates a guarded update that matched no row:
// either the clinic is missing or the trial precondition did not hold.
func trialGuardFailure(ctx context.Context, db analytics.DBTX, id uuid.UUID, guardErr error) error {
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clinics WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.Join(subscription.ErrStoreUnavailable, err)
	}
	if !exists {
		return subscription.ErrClinicNotFound
	}
	return guardErr
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(subscription.ErrStoreUnavailable, err)
}
