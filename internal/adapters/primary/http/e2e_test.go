package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/openmuni/pulse-backend/internal/adapters/primary/http/middleware"
	transport "github.com/openmuni/pulse-backend/internal/adapters/secondary/websocket"
	"github.com/openmuni/pulse-backend/internal/auth"
	"github.com/openmuni/pulse-backend/internal/core/domain"
	"github.com/openmuni/pulse-backend/internal/core/services"
)

// TestPublishReachesNotificationCenter walks a frame through the whole
// pipeline: authenticated POST /notify, hub fan-out, the reconnecting
// transport, the decoder and the store, down to a subscriber snapshot.
func TestPublishReachesNotificationCenter(t *testing.T) {
	logger := slog.Default()
	cfg := testConfig("development", nil)
	tm := auth.NewTokenManager("test-secret-key-for-e2e-tests", time.Hour)

	hubHandler, realHub, _ := newWSHandler(t, cfg)
	stamper := services.NewStamper()
	notify := NewNotifyHandler(realHub, stamper, NewErrorHandler(logger), logger)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/ws", hubHandler)
	mux.Handle("/api/v1/notify", mw.JWTMiddleware(tm)(http.HandlerFunc(notify.HandlePublish)))

	srv := httptest.NewServer(mux)
	defer srv.Close()

	// The session's live channel authenticates with the same token manager
	// the gateway validates against.
	sessionToken, err := hubHandler.tm.GenerateToken(uuid.New(), domain.AudienceCitizen)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?token=" + sessionToken
	manager := transport.NewConnManager(transport.Config{
		URL:         wsURL,
		BackoffBase: 10 * time.Millisecond,
		BackoffCap:  100 * time.Millisecond,
		DialTimeout: time.Second,
	}, logger)

	store := services.NewNotificationStore(services.DefaultStoreBound)
	decoder := services.NewDecoder(services.NewStamper(), logger)
	center := services.NewNotificationCenter(manager, decoder, store, logger)

	center.Start()
	defer center.Stop()

	states, cancel := center.Subscribe()
	defer cancel()

	waitFor := func(cond func(services.CenterState) bool) services.CenterState {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case state := <-states:
				if cond(state) {
					return state
				}
			case <-deadline:
				t.Fatal("timed out waiting for center state")
			}
		}
	}

	waitFor(func(s services.CenterState) bool { return s.IsConnected })

	adminToken, err := tm.GenerateToken(uuid.New(), domain.AudienceAdmin)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/notify",
		strings.NewReader(`{"type":"alert","audience":"citizen","data":{"title":"Tax deadline","message":"Property tax due Friday","severity":"warning"}}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	state := waitFor(func(s services.CenterState) bool { return len(s.Notifications) == 1 })

	got := state.Notifications[0]
	assert.Equal(t, domain.EventAlert, got.Type)
	assert.Equal(t, "Tax deadline", got.Title)
	assert.Equal(t, "Property tax due Friday", got.Message)
	assert.Equal(t, domain.SeverityWarning, got.Severity)
	assert.False(t, got.Read)
	assert.Positive(t, got.Timestamp)
	assert.Equal(t, 1, state.UnreadCount)

	// Reading the notification propagates to the next emitted state.
	center.MarkRead(got.Timestamp)
	state = waitFor(func(s services.CenterState) bool { return s.UnreadCount == 0 })
	assert.True(t, state.Notifications[0].Read)
}
