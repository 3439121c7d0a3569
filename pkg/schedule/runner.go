package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNoJob is returned when a Runner is created without a job.
var ErrNoJob = errors.New("schedule: runner requires a job")

// Job is the work executed on each tick. The context is cancelled when the
// runner stops; long jobs should honour it.
type Job func(ctx context.Context)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock overrides the time source, used by tests to control tick timing.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner executes a job on a schedule until its context is cancelled.
type Runner struct {
	schedule Schedule
	job      Job
	log      *slog.Logger
	now      func() time.Time
}

// NewRunner creates a runner for the given schedule and job.
func NewRunner(s Schedule, job Job, opts ...RunnerOption) (*Runner, error) {
	if s == nil {
		panic("schedule: nil schedule")
	}
	if job == nil {
		return nil, ErrNoJob
	}

	r := &Runner{
		schedule: s,
		job:      job,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start blocks, running the job at each scheduled instant, until ctx is
// cancelled. A panicking job is recovered and logged so one bad run cannot
// kill the schedule.
func (r *Runner) Start(ctx context.Context) error {
	r.log.InfoContext(ctx, "schedule runner started", slog.String("schedule", r.schedule.String()))

	for {
		next := r.schedule.Next(r.now())
		timer := time.NewTimer(next.Sub(r.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			r.log.InfoContext(ctx, "schedule runner stopped")
			return ctx.Err()
		case <-timer.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "scheduled job panicked", slog.Any("panic", rec))
		}
	}()
	r.job(ctx)
}
