package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	mw "github.com/openmuni/pulse-backend/internal/adapters/primary/http/middleware"
	"github.com/openmuni/pulse-backend/internal/core/domain"
	apperrors "github.com/openmuni/pulse-backend/internal/core/errors"
	"github.com/openmuni/pulse-backend/internal/core/ports"
	"github.com/openmuni/pulse-backend/internal/core/services"
)

// NotifyHandler accepts frames from internal producers (the budget, payment
// and vendor services) and pushes them to connected dashboard sessions.
type NotifyHandler struct {
	broadcaster  ports.EventBroadcaster
	stamper      *services.Stamper
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewNotifyHandler creates a new publish handler
func NewNotifyHandler(
	broadcaster ports.EventBroadcaster,
	stamper *services.Stamper,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *NotifyHandler {
	return &NotifyHandler{
		broadcaster:  broadcaster,
		stamper:      stamper,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// HandlePublish processes POST /api/v1/notify requests
func (h *NotifyHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	// Only internal services and admins may publish
	if claims.Role != domain.AudienceAdmin {
		h.errorHandler.Handle(w, r, apperrors.ErrForbidden)
		return
	}

	var frame domain.Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		h.errorHandler.Handle(w, r, fmt.Errorf("%w: %v", apperrors.ErrMalformedFrame, err))
		return
	}

	if err := frame.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	// Stamp server-side so every delivered frame carries a unique identity
	if frame.Timestamp == 0 {
		frame.Timestamp = h.stamper.Next()
	}

	if err := h.broadcaster.Broadcast(frame); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewInternalError(err))
		return
	}

	h.logger.Info("frame published",
		"request_id", GetRequestID(r.Context()),
		"event_type", frame.Type,
		"audience", frame.Audience,
		"timestamp", frame.Timestamp,
	)

	WriteAccepted(w, map[string]int64{"timestamp": frame.Timestamp})
}
