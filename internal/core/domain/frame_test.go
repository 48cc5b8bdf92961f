package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/pulse-backend/internal/core/domain"
	apperrors "github.com/openmuni/pulse-backend/internal/core/errors"
)

func validAlertFrame() domain.Frame {
	return domain.Frame{
		Type: domain.EventAlert,
		Data: domain.FrameData{
			Title:    "Budget threshold exceeded",
			Message:  "Parks department is at 95% of its annual budget",
			Severity: domain.SeverityWarning,
		},
	}
}

func TestFrame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.Frame)
		wantErr error
	}{
		{
			name:    "valid alert",
			mutate:  func(f *domain.Frame) {},
			wantErr: nil,
		},
		{
			name: "valid broadcast",
			mutate: func(f *domain.Frame) {
				f.Type = domain.EventBroadcast
				f.Data.Severity = ""
			},
			wantErr: nil,
		},
		{
			name:    "unknown type",
			mutate:  func(f *domain.Frame) { f.Type = "reminder" },
			wantErr: apperrors.ErrUnknownEventType,
		},
		{
			name:    "missing title",
			mutate:  func(f *domain.Frame) { f.Data.Title = "" },
			wantErr: apperrors.ErrTitleRequired,
		},
		{
			name:    "missing message",
			mutate:  func(f *domain.Frame) { f.Data.Message = "" },
			wantErr: apperrors.ErrMessageRequired,
		},
		{
			name:    "unknown severity on alert",
			mutate:  func(f *domain.Frame) { f.Data.Severity = "critical" },
			wantErr: apperrors.ErrInvalidSeverity,
		},
		{
			name:    "unknown audience",
			mutate:  func(f *domain.Frame) { f.Audience = "auditor" },
			wantErr: apperrors.ErrInvalidAudience,
		},
		{
			name:    "targeted audience is allowed",
			mutate:  func(f *domain.Frame) { f.Audience = domain.AudienceVendor },
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := validAlertFrame()
			tt.mutate(&frame)

			err := frame.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFrame_Validate_DefaultsAlertSeverity(t *testing.T) {
	frame := validAlertFrame()
	frame.Data.Severity = ""

	require.NoError(t, frame.Validate())
	assert.Equal(t, domain.SeverityInfo, frame.Data.Severity)
}

func TestFrame_Validate_StripsSeverityOffNonAlerts(t *testing.T) {
	frame := validAlertFrame()
	frame.Type = domain.EventSystem
	frame.Data.Severity = domain.SeverityError

	require.NoError(t, frame.Validate())
	assert.Empty(t, frame.Data.Severity)
}

func TestFrame_Notification(t *testing.T) {
	frame := validAlertFrame()
	frame.Timestamp = 42
	require.NoError(t, frame.Validate())

	n := frame.Notification()
	assert.Equal(t, int64(42), n.Timestamp)
	assert.Equal(t, domain.EventAlert, n.Type)
	assert.Equal(t, frame.Data.Title, n.Title)
	assert.Equal(t, frame.Data.Message, n.Message)
	assert.Equal(t, domain.SeverityWarning, n.Severity)
	assert.False(t, n.Read)
}
