package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/pulse-backend/internal/auth"
	mw "github.com/openmuni/pulse-backend/internal/adapters/primary/http/middleware"
	"github.com/openmuni/pulse-backend/internal/core/domain"
	"github.com/openmuni/pulse-backend/internal/core/services"
)

// recordingBroadcaster captures frames handed to Broadcast.
type recordingBroadcaster struct {
	frames []domain.Frame
}

func (b *recordingBroadcaster) Broadcast(frame domain.Frame) error {
	b.frames = append(b.frames, frame)
	return nil
}

func newNotifyServer(t *testing.T) (http.Handler, *recordingBroadcaster, *auth.TokenManager) {
	t.Helper()

	logger := slog.Default()
	broadcaster := &recordingBroadcaster{}
	stamper := services.NewStamper()
	handler := NewNotifyHandler(broadcaster, stamper, NewErrorHandler(logger), logger)
	tm := auth.NewTokenManager("test-secret-key-for-notify-tests", time.Hour)

	return mw.JWTMiddleware(tm)(http.HandlerFunc(handler.HandlePublish)), broadcaster, tm
}

func publishRequest(t *testing.T, token, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestNotifyHandler_RequiresAuth(t *testing.T) {
	srv, broadcaster, _ := newNotifyServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, publishRequest(t, "", `{"type":"alert"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, broadcaster.frames)
}

func TestNotifyHandler_RejectsGarbageToken(t *testing.T) {
	srv, broadcaster, _ := newNotifyServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, publishRequest(t, "not-a-jwt", `{"type":"alert"}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, broadcaster.frames)
}

func TestNotifyHandler_RejectsNonAdminRoles(t *testing.T) {
	srv, broadcaster, tm := newNotifyServer(t)

	for _, role := range []domain.Audience{
		domain.AudienceCitizen,
		domain.AudienceVendor,
		domain.AudienceEmployee,
	} {
		t.Run(string(role), func(t *testing.T) {
			token, err := tm.GenerateToken(uuid.New(), role)
			require.NoError(t, err)

			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, publishRequest(t, token, `{"type":"alert","data":{"title":"t","message":"m"}}`))

			assert.Equal(t, http.StatusForbidden, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "FORBIDDEN", resp.Code)
		})
	}
	assert.Empty(t, broadcaster.frames)
}

func TestNotifyHandler_RejectsInvalidFrames(t *testing.T) {
	srv, broadcaster, tm := newNotifyServer(t)
	token, err := tm.GenerateToken(uuid.New(), domain.AudienceAdmin)
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"gossip","data":{"title":"t","message":"m"}}`},
		{"missing title", `{"type":"alert","data":{"message":"m"}}`},
		{"missing message", `{"type":"alert","data":{"title":"t"}}`},
		{"bad severity", `{"type":"alert","data":{"title":"t","message":"m","severity":"catastrophic"}}`},
		{"bad audience", `{"type":"alert","audience":"tourists","data":{"title":"t","message":"m"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, publishRequest(t, token, tt.body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
		})
	}
	assert.Empty(t, broadcaster.frames)
}

func TestNotifyHandler_PublishesAndStamps(t *testing.T) {
	srv, broadcaster, tm := newNotifyServer(t)
	token, err := tm.GenerateToken(uuid.New(), domain.AudienceAdmin)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, publishRequest(t, token,
		`{"type":"alert","audience":"citizen","data":{"title":"Boil water","message":"Until further notice","severity":"error"}}`))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Positive(t, resp.Data["timestamp"])

	require.Len(t, broadcaster.frames, 1)
	frame := broadcaster.frames[0]
	assert.Equal(t, resp.Data["timestamp"], frame.Timestamp)
	assert.Equal(t, domain.EventAlert, frame.Type)
	assert.Equal(t, domain.AudienceCitizen, frame.Audience)
	assert.Equal(t, domain.SeverityError, frame.Data.Severity)
}

func TestNotifyHandler_PreservesExplicitTimestamp(t *testing.T) {
	srv, broadcaster, tm := newNotifyServer(t)
	token, err := tm.GenerateToken(uuid.New(), domain.AudienceAdmin)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, publishRequest(t, token,
		`{"type":"broadcast","timestamp":1700000000000,"data":{"title":"Meeting","message":"Council meets at 7pm"}}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, broadcaster.frames, 1)
	assert.Equal(t, int64(1700000000000), broadcaster.frames[0].Timestamp)
}
