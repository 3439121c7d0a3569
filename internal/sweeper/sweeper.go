// Package sweeper runs the daily expiration sweep: it scans for lapsed
// trials and drives each through the state machine's expire transition.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/subscription-engine/pkg/logger"
)

// Lifecycle is the slice of the state machine the sweeper drives.
type Lifecycle interface {
	// DueTrials lists clinics whose trial has lapsed.
	DueTrials(ctx context.Context) ([]uuid.UUID, error)
	// ExpireTrial expires one clinic's trial; false means the guard did not
	// match and nothing happened.
	ExpireTrial(ctx context.Context, clinicID uuid.UUID) (bool, error)
}

// Locker serializes sweep runs across replicas. Correctness never depends on
// the lock since per-row expiration is idempotent; it only avoids duplicate
// work.
type Locker interface {
	// Acquire takes the lease; false means another run holds it.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

// Result summarizes one sweep run. Informational only; it has no side effect.
type Result struct {
	Due     int  `json:"due"`
	Expired int  `json:"expired"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped"`
}

// Option configures the Sweeper.
type Option func(*Sweeper)

// WithLogger sets the sweeper logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLock enables the cross-replica run lock.
func WithLock(lock Locker, ttl time.Duration) Option {
	return func(s *Sweeper) {
		s.lock = lock
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// Sweeper expires lapsed trials. Safe to run concurrently with itself and
// with human-triggered transitions: each row's transition is an atomic
// conditional update, and losing a race is a harmless no-op.
type Sweeper struct {
	lifecycle Lifecycle
	lock      Locker
	lockTTL   time.Duration
	log       *slog.Logger
}

// New creates a Sweeper. Panics on a nil lifecycle to fail fast at startup.
func New(lifecycle Lifecycle, opts ...Option) *Sweeper {
	if lifecycle == nil {
		panic("sweeper: lifecycle is required")
	}

	s := &Sweeper{
		lifecycle: lifecycle,
		lockTTL:   10 * time.Minute,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one sweep. Per-clinic failures are isolated and logged so one
// bad row cannot abort the run for the others.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx, s.lockTTL)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			s.log.InfoContext(ctx, "trial sweep skipped, another run holds the lock")
			return Result{Skipped: true}, nil
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				s.log.WarnContext(ctx, "failed to release sweep lock", logger.Error(err))
			}
		}()
	}

	due, err := s.lifecycle.DueTrials(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{Due: len(due)}
	for _, clinicID := range due {
		expired, err := s.lifecycle.ExpireTrial(ctx, clinicID)
		if err != nil {
			result.Failed++
			s.log.ErrorContext(ctx, "failed to expire trial", logger.ClinicID(clinicID), logger.Error(err))
			continue
		}
		if expired {
			result.Expired++
		}
	}

	s.log.InfoContext(ctx, "trial sweep finished",
		slog.Int("due", result.Due),
		slog.Int("expired", result.Expired),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}
