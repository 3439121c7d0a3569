package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicore/subscription-engine/internal/analytics"
	"github.com/clinicore/subscription-engine/internal/subscription"
)

// jsonBody is the response envelope shared by every endpoint.
type jsonBody struct {
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Error   *errorDetail   `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(w http.ResponseWriter, status int, body jsonBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, data any) {
	respond(w, http.StatusOK, jsonBody{Data: data})
}

// respondError maps the domain error taxonomy onto HTTP statuses. Client
// errors carry the typed failure message verbatim so operator tooling can
// surface it as-is.
func respondError(w http.ResponseWriter, err error) {
	status, code := classify(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}

	respond(w, status, jsonBody{Error: &errorDetail{Code: code, Message: message}})
}

func classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, subscription.ErrInvalidPlan),
		errors.Is(err, subscription.ErrInvalidDuration),
		errors.Is(err, subscription.ErrMissingActor),
		errors.Is(err, subscription.ErrMissingFeature),
		errors.Is(err, analytics.ErrEventValidation),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, subscription.ErrClinicNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, subscription.ErrTrialAlreadyActive),
		errors.Is(err, subscription.ErrNoActiveTrial):
		return http.StatusConflict, "conflict"
	case errors.Is(err, subscription.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

var (
	errBadRequest   = errors.New("bad request")
	errUnauthorized = errors.New("unauthorized")
)
