package analytics_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/clinicore/subscription-engine/internal/analytics"
)

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   analytics.Event
		wantErr bool
	}{
		{
			name: "valid event",
			event: analytics.Event{
				ClinicID: uuid.New(),
				Type:     analytics.EventPlanChanged,
				PlanName: "pro",
			},
		},
		{
			name:    "missing type",
			event:   analytics.Event{ClinicID: uuid.New()},
			wantErr: true,
		},
		{
			name:    "missing clinic id",
			event:   analytics.Event{Type: analytics.EventTrialCancelled},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, analytics.ErrEventValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
