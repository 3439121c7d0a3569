package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/subscription-engine/internal/subscription"
	"github.com/clinicore/subscription-engine/pkg/logger"
)

// Identity headers injected by the platform's session layer.
const (
	headerClinicID   = "X-Clinic-ID"
	headerOperatorID = "X-Operator-ID"
)

type api struct {
	svc   Service
	sweep SweepRunner
	log   *slog.Logger
}

func clinicIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "clinicID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid clinic id", errBadRequest)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (a *api) mySubscription(w http.ResponseWriter, r *http.Request) {
	clinicID, err := uuid.Parse(r.Header.Get(headerClinicID))
	if err != nil {
		respondError(w, fmt.Errorf("%w: missing or invalid %s header", errUnauthorized, headerClinicID))
		return
	}

	summary, err := a.svc.GetSubscription(r.Context(), clinicID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, summary)
}

func (a *api) getSubscription(w http.ResponseWriter, r *http.Request) {
	clinicID, err := clinicIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	summary, err := a.svc.GetSubscription(r.Context(), clinicID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, summary)
}

func (a *api) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.svc.ListSubscriptions(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, summaries)
}

type updatePlanRequest struct {
	Plan string `json:"plan"`
}

func (a *api) updatePlan(w http.ResponseWriter, r *http.Request) {
	clinicID, err := clinicIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req updatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid json body", errBadRequest))
		return
	}

	clinic, err := a.svc.UpdatePlan(r.Context(), clinicID, req.Plan)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, subscription.Summarize(clinic, time.Now().UTC()))
}

type activateTrialRequest struct {
	ActivatedBy  string `json:"activated_by"`
	DurationDays int    `json:"duration_days"`
}

func (a *api) activateTrial(w http.ResponseWriter, r *http.Request) {
	clinicID, err := clinicIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req activateTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid json body", errBadRequest))
		return
	}
	if req.ActivatedBy == "" {
		// The session layer knows who the operator is even when the body
		// omits it.
		req.ActivatedBy = r.Header.Get(headerOperatorID)
	}

	clinic, err := a.svc.ActivateTrial(r.Context(), clinicID, req.ActivatedBy, req.DurationDays)
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusOK, jsonBody{
		Message: "trial activated",
		Data:    map[string]any{"expires_at": clinic.TrialProExpiresAt},
	})
}

func (a *api) convertTrial(w http.ResponseWriter, r *http.Request) {
	clinicID, err := clinicIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if _, err := a.svc.ConvertTrial(r.Context(), clinicID); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, jsonBody{Message: "trial converted to pro"})
}

func (a *api) cancelTrial(w http.ResponseWriter, r *http.Request) {
	clinicID, err := clinicIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	clinic, err := a.svc.CancelTrial(r.Context(), clinicID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, subscription.Summarize(clinic, time.Now().UTC()))
}

func (a *api) trialHistory(w http.ResponseWriter, r *http.Request) {
	clinicID, err := clinicIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	records, err := a.svc.TrialHistory(r.Context(), clinicID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, records)
}

func (a *api) clinicEvents(w http.ResponseWriter, r *http.Request) {
	clinicID, err := clinicIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	events, err := a.svc.Analytics(r.Context(), clinicID, queryInt(r, "limit", 0))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, events)
}

type featureBlockedRequest struct {
	Feature string         `json:"feature"`
	Details map[string]any `json:"details"`
}

func (a *api) reportBlockedFeature(w http.ResponseWriter, r *http.Request) {
	clinicID, err := clinicIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req featureBlockedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: invalid json body", errBadRequest))
		return
	}

	if err := a.svc.RecordFeatureBlocked(r.Context(), clinicID, req.Feature, req.Details); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, jsonBody{Message: "event recorded"})
}

func (a *api) blockedFeatures(w http.ResponseWriter, r *http.Request) {
	var clinicID *uuid.UUID
	if raw := r.URL.Query().Get("clinic_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, fmt.Errorf("%w: invalid clinic_id", errBadRequest))
			return
		}
		clinicID = &id
	}

	events, err := a.svc.BlockedFeatureEvents(r.Context(), clinicID, queryInt(r, "limit", 0))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, events)
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Stats(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, stats)
}

func (a *api) expiringTrials(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.svc.ExpiringSoon(r.Context(), queryInt(r, "days", subscription.DefaultExpiringWindowDays))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, summaries)
}

func (a *api) planPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := a.svc.PlanPrices(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, prices)
}

func (a *api) runSweep(w http.ResponseWriter, r *http.Request) {
	result, err := a.sweep.Run(r.Context())
	if err != nil {
		a.log.ErrorContext(r.Context(), "manual trial sweep failed", logger.Error(err))
		respondError(w, err)
		return
	}
	respondData(w, result)
}
