package subscription_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/subscription-engine/internal/subscription"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		input   string
		want    subscription.Plan
		wantErr bool
	}{
		{input: "pro", want: subscription.PlanPro},
		{input: "scheduling", want: subscription.PlanScheduling},
		{input: "enterprise", wantErr: true},
		{input: "PRO", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			plan, err := subscription.ParsePlan(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan)
		})
	}
}

func TestEffectivePlanAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Second)

	tests := []struct {
		name   string
		clinic subscription.Clinic
		want   subscription.Plan
	}{
		{
			name:   "paid pro without trial",
			clinic: subscription.Clinic{Plan: subscription.PlanPro},
			want:   subscription.PlanPro,
		},
		{
			name:   "scheduling without trial",
			clinic: subscription.Clinic{Plan: subscription.PlanScheduling},
			want:   subscription.PlanScheduling,
		},
		{
			name: "scheduling with live trial",
			clinic: subscription.Clinic{
				Plan:              subscription.PlanScheduling,
				TrialProEnabled:   true,
				TrialProExpiresAt: &future,
			},
			want: subscription.PlanPro,
		},
		{
			name: "scheduling with lapsed but unswept trial",
			clinic: subscription.Clinic{
				Plan:              subscription.PlanScheduling,
				TrialProEnabled:   true,
				TrialProExpiresAt: &past,
			},
			want: subscription.PlanScheduling,
		},
		{
			name: "paid pro with live trial stays pro",
			clinic: subscription.Clinic{
				Plan:              subscription.PlanPro,
				TrialProEnabled:   true,
				TrialProExpiresAt: &future,
			},
			want: subscription.PlanPro,
		},
		{
			name: "trial flag without expiry falls back to paid plan",
			clinic: subscription.Clinic{
				Plan:            subscription.PlanScheduling,
				TrialProEnabled: true,
			},
			want: subscription.PlanScheduling,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.clinic.EffectivePlanAt(now))
		})
	}
}

func TestTrialStatusTerminal(t *testing.T) {
	assert.False(t, subscription.TrialActive.Terminal())
	assert.True(t, subscription.TrialConverted.Terminal())
	assert.True(t, subscription.TrialCancelled.Terminal())
	assert.True(t, subscription.TrialExpired.Terminal())
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("trial days remaining rounds up", func(t *testing.T) {
		expires := now.Add(36 * time.Hour)
		c := subscription.Clinic{
			ID:                uuid.New(),
			Plan:              subscription.PlanScheduling,
			TrialProEnabled:   true,
			TrialProExpiresAt: &expires,
		}

		s := subscription.Summarize(&c, now)
		assert.Equal(t, subscription.PlanPro, s.EffectivePlan)
		assert.Equal(t, 2, s.TrialDaysRemaining)
	})

	t.Run("lapsed trial reports zero days", func(t *testing.T) {
		expires := now.Add(-time.Hour)
		c := subscription.Clinic{
			Plan:              subscription.PlanScheduling,
			TrialProEnabled:   true,
			TrialProExpiresAt: &expires,
		}

		s := subscription.Summarize(&c, now)
		assert.Equal(t, subscription.PlanScheduling, s.EffectivePlan)
		assert.Zero(t, s.TrialDaysRemaining)
	})
}
