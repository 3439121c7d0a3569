package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/subscription-engine/internal/analytics"
	"github.com/clinicore/subscription-engine/internal/httpapi"
	"github.com/clinicore/subscription-engine/internal/subscription"
	"github.com/clinicore/subscription-engine/internal/sweeper"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) GetSubscription(ctx context.Context, clinicID uuid.UUID) (*subscription.Summary, error) {
	args := m.Called(ctx, clinicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Summary), args.Error(1)
}

func (m *mockService) ListSubscriptions(ctx context.Context) ([]subscription.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Summary), args.Error(1)
}

func (m *mockService) UpdatePlan(ctx context.Context, clinicID uuid.UUID, planName string) (*subscription.Clinic, error) {
	args := m.Called(ctx, clinicID, planName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Clinic), args.Error(1)
}

func (m *mockService) ActivateTrial(ctx context.Context, clinicID uuid.UUID, activatedBy string, durationDays int) (*subscription.Clinic, error) {
	args := m.Called(ctx, clinicID, activatedBy, durationDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Clinic), args.Error(1)
}

func (m *mockService) ConvertTrial(ctx context.Context, clinicID uuid.UUID) (*subscription.Clinic, error) {
	args := m.Called(ctx, clinicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Clinic), args.Error(1)
}

func (m *mockService) CancelTrial(ctx context.Context, clinicID uuid.UUID) (*subscription.Clinic, error) {
	args := m.Called(ctx, clinicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Clinic), args.Error(1)
}

func (m *mockService) TrialHistory(ctx context.Context, clinicID uuid.UUID) ([]subscription.TrialRecord, error) {
	args := m.Called(ctx, clinicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.TrialRecord), args.Error(1)
}

func (m *mockService) Analytics(ctx context.Context, clinicID uuid.UUID, limit int) ([]analytics.Event, error) {
	args := m.Called(ctx, clinicID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Event), args.Error(1)
}

func (m *mockService) BlockedFeatureEvents(ctx context.Context, clinicID *uuid.UUID, limit int) ([]analytics.Event, error) {
	args := m.Called(ctx, clinicID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.Event), args.Error(1)
}

func (m *mockService) RecordFeatureBlocked(ctx context.Context, clinicID uuid.UUID, feature string, details map[string]any) error {
	return m.Called(ctx, clinicID, feature, details).Error(0)
}

func (m *mockService) Stats(ctx context.Context) ([]subscription.PlanStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.PlanStats), args.Error(1)
}

func (m *mockService) ExpiringSoon(ctx context.Context, daysAhead int) ([]subscription.Summary, error) {
	args := m.Called(ctx, daysAhead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Summary), args.Error(1)
}

func (m *mockService) PlanPrices(ctx context.Context) ([]subscription.PlanPrice, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.PlanPrice), args.Error(1)
}

type mockSweep struct {
	mock.Mock
}

func (m *mockSweep) Run(ctx context.Context) (sweeper.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(sweeper.Result), args.Error(1)
}

func newRouter(svc httpapi.Service, sweep httpapi.SweepRunner) http.Handler {
	return httpapi.Router(httpapi.Options{Service: svc, Sweep: sweep})
}

func doRequest(t *testing.T, h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestGetSubscription(t *testing.T) {
	clinicID := uuid.New()

	t.Run("found", func(t *testing.T) {
		svc := new(mockService)
		svc.On("GetSubscription", mock.Anything, clinicID).Return(&subscription.Summary{
			ClinicID:      clinicID,
			Plan:          subscription.PlanScheduling,
			EffectivePlan: subscription.PlanPro,
			TrialActive:   true,
		}, nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodGet, "/v1/subscriptions/"+clinicID.String(), "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		data := body["data"].(map[string]any)
		assert.Equal(t, "pro", data["effective_plan"])
		assert.Equal(t, true, data["trial_active"])
	})

	t.Run("unknown clinic", func(t *testing.T) {
		svc := new(mockService)
		svc.On("GetSubscription", mock.Anything, clinicID).Return(nil, subscription.ErrClinicNotFound)

		rec := doRequest(t, newRouter(svc, nil), http.MethodGet, "/v1/subscriptions/"+clinicID.String(), "", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed clinic id", func(t *testing.T) {
		rec := doRequest(t, newRouter(new(mockService), nil), http.MethodGet, "/v1/subscriptions/not-a-uuid", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMySubscription(t *testing.T) {
	clinicID := uuid.New()

	t.Run("identified by header", func(t *testing.T) {
		svc := new(mockService)
		svc.On("GetSubscription", mock.Anything, clinicID).Return(&subscription.Summary{ClinicID: clinicID}, nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodGet, "/v1/subscriptions/me", "",
			http.Header{"X-Clinic-Id": []string{clinicID.String()}})

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := doRequest(t, newRouter(new(mockService), nil), http.MethodGet, "/v1/subscriptions/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestActivateTrialHandler(t *testing.T) {
	clinicID := uuid.New()

	t.Run("success with operator header fallback", func(t *testing.T) {
		expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
		svc := new(mockService)
		svc.On("ActivateTrial", mock.Anything, clinicID, "op-7", 7).
			Return(&subscription.Clinic{ID: clinicID, TrialProEnabled: true, TrialProExpiresAt: &expires}, nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodPost,
			"/v1/subscriptions/"+clinicID.String()+"/trial",
			`{"duration_days":7}`,
			http.Header{"X-Operator-Id": []string{"op-7"}})

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "trial activated", body["message"])
		svc.AssertExpectations(t)
	})

	t.Run("conflict maps to 409", func(t *testing.T) {
		svc := new(mockService)
		svc.On("ActivateTrial", mock.Anything, clinicID, "op", 7).
			Return(nil, subscription.ErrTrialAlreadyActive)

		rec := doRequest(t, newRouter(svc, nil), http.MethodPost,
			"/v1/subscriptions/"+clinicID.String()+"/trial",
			`{"activated_by":"op","duration_days":7}`, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "conflict", body["error"].(map[string]any)["code"])
	})

	t.Run("invalid duration maps to 400", func(t *testing.T) {
		svc := new(mockService)
		svc.On("ActivateTrial", mock.Anything, clinicID, "op", 45).
			Return(nil, subscription.ErrInvalidDuration)

		rec := doRequest(t, newRouter(svc, nil), http.MethodPost,
			"/v1/subscriptions/"+clinicID.String()+"/trial",
			`{"activated_by":"op","duration_days":45}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body maps to 400", func(t *testing.T) {
		rec := doRequest(t, newRouter(new(mockService), nil), http.MethodPost,
			"/v1/subscriptions/"+clinicID.String()+"/trial", `{not json`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCancelTrialHandler(t *testing.T) {
	clinicID := uuid.New()

	t.Run("no active trial maps to 409", func(t *testing.T) {
		svc := new(mockService)
		svc.On("CancelTrial", mock.Anything, clinicID).Return(nil, subscription.ErrNoActiveTrial)

		rec := doRequest(t, newRouter(svc, nil), http.MethodDelete,
			"/v1/subscriptions/"+clinicID.String()+"/trial", "", nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("store outage maps to 503", func(t *testing.T) {
		svc := new(mockService)
		svc.On("CancelTrial", mock.Anything, clinicID).Return(nil, subscription.ErrStoreUnavailable)

		rec := doRequest(t, newRouter(svc, nil), http.MethodDelete,
			"/v1/subscriptions/"+clinicID.String()+"/trial", "", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestUpdatePlanHandler(t *testing.T) {
	clinicID := uuid.New()

	t.Run("invalid plan maps to 400", func(t *testing.T) {
		svc := new(mockService)
		svc.On("UpdatePlan", mock.Anything, clinicID, "platinum").Return(nil, subscription.ErrInvalidPlan)

		rec := doRequest(t, newRouter(svc, nil), http.MethodPut,
			"/v1/subscriptions/"+clinicID.String()+"/plan", `{"plan":"platinum"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success returns projection", func(t *testing.T) {
		svc := new(mockService)
		svc.On("UpdatePlan", mock.Anything, clinicID, "pro").
			Return(&subscription.Clinic{ID: clinicID, Plan: subscription.PlanPro}, nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodPut,
			"/v1/subscriptions/"+clinicID.String()+"/plan", `{"plan":"pro"}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, "pro", data["plan"])
		assert.Equal(t, "pro", data["effective_plan"])
	})
}

func TestBlockedFeaturesHandler(t *testing.T) {
	clinicID := uuid.New()

	t.Run("report returns 201", func(t *testing.T) {
		svc := new(mockService)
		svc.On("RecordFeatureBlocked", mock.Anything, clinicID, "pdf_reports",
			map[string]any{"limit": float64(10)}).Return(nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodPost,
			"/v1/subscriptions/"+clinicID.String()+"/blocked-features",
			`{"feature":"pdf_reports","details":{"limit":10}}`, nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("feed passes clinic filter and limit", func(t *testing.T) {
		svc := new(mockService)
		svc.On("BlockedFeatureEvents", mock.Anything, mock.MatchedBy(func(id *uuid.UUID) bool {
			return id != nil && *id == clinicID
		}), 5).Return([]analytics.Event{}, nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodGet,
			"/v1/blocked-features?clinic_id="+clinicID.String()+"&limit=5", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("feed without filter defaults limit to zero", func(t *testing.T) {
		svc := new(mockService)
		svc.On("BlockedFeatureEvents", mock.Anything, (*uuid.UUID)(nil), 0).
			Return([]analytics.Event{}, nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodGet, "/v1/blocked-features", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
}

func TestExpiringTrialsHandler(t *testing.T) {
	t.Run("default window", func(t *testing.T) {
		svc := new(mockService)
		svc.On("ExpiringSoon", mock.Anything, 3).Return([]subscription.Summary{}, nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodGet, "/v1/subscriptions/expiring", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("explicit window", func(t *testing.T) {
		svc := new(mockService)
		svc.On("ExpiringSoon", mock.Anything, 7).Return([]subscription.Summary{}, nil)

		rec := doRequest(t, newRouter(svc, nil), http.MethodGet, "/v1/subscriptions/expiring?days=7", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
}

func TestSweepRoute(t *testing.T) {
	t.Run("runs sweep when wired", func(t *testing.T) {
		sweep := new(mockSweep)
		sweep.On("Run", mock.Anything).Return(sweeper.Result{Due: 2, Expired: 2}, nil)

		rec := doRequest(t, newRouter(new(mockService), sweep), http.MethodPost, "/v1/sweep", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeBody(t, rec)["data"].(map[string]any)
		assert.Equal(t, float64(2), data["expired"])
		sweep.AssertExpectations(t)
	})

	t.Run("absent without a runner", func(t *testing.T) {
		rec := doRequest(t, newRouter(new(mockService), nil), http.MethodPost, "/v1/sweep", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestInternalErrorMasked(t *testing.T) {
	svc := new(mockService)
	svc.On("ListSubscriptions", mock.Anything).Return(nil, assert.AnError)

	rec := doRequest(t, newRouter(svc, nil), http.MethodGet, "/v1/subscriptions/", "", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "internal server error", detail["message"])
}
