package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, letting the recorder append
// events inside the caller's transaction so a state change and its event
// commit or roll back together.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Recorder is the sole writer of analytics events.
type Recorder struct{}

// NewRecorder creates a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event through db. Missing ID and CreatedAt are filled in.
func (r *Recorder) Record(ctx context.Context, db DBTX, ev *Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	if err := ev.Validate(); err != nil {
		return err
	}

	const q = `
		INSERT INTO analytics_events (id, clinic_id, plan_name, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := db.Exec(ctx, q, ev.ID, ev.ClinicID, ev.PlanName, ev.Type, ev.Data, ev.CreatedAt); err != nil {
		return errors.Join(ErrStoreFailed, err)
	}
	return nil
}
