package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Reader serves side-effect-free event queries.
type Reader struct {
	db DBTX
}

// NewReader creates a Reader over the given database handle.
func NewReader(db DBTX) *Reader {
	if db == nil {
		panic("analytics: db cannot be nil")
	}
	return &Reader{db: db}
}

// List returns events matching the filter, newest first.
func (r *Reader) List(ctx context.Context, f Filter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, clinic_id, plan_name, event_type, event_data, created_at
		FROM analytics_events`)

	var (
		conds []string
		args  []any
	)
	if f.ClinicID != nil {
		args = append(args, *f.ClinicID)
		conds = append(conds, fmt.Sprintf("clinic_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Join(ErrStoreFailed, err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.ClinicID, &ev.PlanName, &ev.Type, &ev.Data, &ev.CreatedAt); err != nil {
			return nil, errors.Join(ErrStoreFailed, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailed, err)
	}

	return events, nil
}
