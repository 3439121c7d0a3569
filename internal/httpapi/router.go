// Package httpapi exposes the engine's operator and tenant HTTP surface.
// Identity (clinic and operator headers) is supplied by the platform's
// session layer in front of this service.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/clinicore/subscription-engine/internal/analytics"
	"github.com/clinicore/subscription-engine/internal/subscription"
	"github.com/clinicore/subscription-engine/internal/sweeper"
	"github.com/clinicore/subscription-engine/pkg/httpserver"
)

// Service is the lifecycle engine surface the handlers call.
type Service interface {
	GetSubscription(ctx context.Context, clinicID uuid.UUID) (*subscription.Summary, error)
	ListSubscriptions(ctx context.Context) ([]subscription.Summary, error)
	UpdatePlan(ctx context.Context, clinicID uuid.UUID, planName string) (*subscription.Clinic, error)
	ActivateTrial(ctx context.Context, clinicID uuid.UUID, activatedBy string, durationDays int) (*subscription.Clinic, error)
	ConvertTrial(ctx context.Context, clinicID uuid.UUID) (*subscription.Clinic, error)
	CancelTrial(ctx context.Context, clinicID uuid.UUID) (*subscription.Clinic, error)
	TrialHistory(ctx context.Context, clinicID uuid.UUID) ([]subscription.TrialRecord, error)
	Analytics(ctx context.Context, clinicID uuid.UUID, limit int) ([]analytics.Event, error)
	BlockedFeatureEvents(ctx context.Context, clinicID *uuid.UUID, limit int) ([]analytics.Event, error)
	RecordFeatureBlocked(ctx context.Context, clinicID uuid.UUID, feature string, details map[string]any) error
	Stats(ctx context.Context) ([]subscription.PlanStats, error)
	ExpiringSoon(ctx context.Context, daysAhead int) ([]subscription.Summary, error)
	PlanPrices(ctx context.Context) ([]subscription.PlanPrice, error)
}

// SweepRunner triggers one expiration sweep on demand.
type SweepRunner interface {
	Run(ctx context.Context) (sweeper.Result, error)
}

// Options carries the router's dependencies.
type Options struct {
	Service Service
	Sweep   SweepRunner
	Logger  *slog.Logger
	// Probes are readiness checks exposed on /healthz.
	Probes []func(context.Context) error
}

// Router builds the HTTP routing tree.
func Router(opts Options) http.Handler {
	if opts.Service == nil {
		panic("httpapi: service is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	a := &api{svc: opts.Service, sweep: opts.Sweep, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(log, opts.Probes...))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", a.listSubscriptions)
			r.Get("/me", a.mySubscription)
			r.Get("/stats", a.stats)
			r.Get("/expiring", a.expiringTrials)

			r.Route("/{clinicID}", func(r chi.Router) {
				r.Get("/", a.getSubscription)
				r.Put("/plan", a.updatePlan)
				r.Post("/trial", a.activateTrial)
				r.Post("/trial/convert", a.convertTrial)
				r.Delete("/trial", a.cancelTrial)
				r.Get("/trial/history", a.trialHistory)
				r.Get("/events", a.clinicEvents)
				r.Post("/blocked-features", a.reportBlockedFeature)
			})
		})

		r.Get("/blocked-features", a.blockedFeatures)
		r.Get("/plans/prices", a.planPrices)

		if a.sweep != nil {
			r.Post("/sweep", a.runSweep)
		}
	})

	return r
}
