package services

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openmuni/pulse-backend/internal/core/domain"
	apperrors "github.com/openmuni/pulse-backend/internal/core/errors"
)

// Decoder converts raw inbound frames into validated notifications. Malformed
// frames are dropped with a log line; nothing is ever raised past the caller
// beyond the returned error, which the notification center swallows.
type Decoder struct {
	stamper *Stamper
	logger  *slog.Logger
}

// NewDecoder creates a decoder that stamps unstamped frames from the given
// stamper.
func NewDecoder(stamper *Stamper, logger *slog.Logger) *Decoder {
	return &Decoder{
		stamper: stamper,
		logger:  logger.With("component", "decoder"),
	}
}

// Decode parses and validates one frame. Frames the gateway stamped keep
// their timestamp so duplicate delivery stays detectable; unstamped frames
// are assigned a unique arrival timestamp.
func (d *Decoder) Decode(raw []byte) (*domain.Notification, error) {
	var frame domain.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		d.logger.Warn("dropping undecodable frame", "error", err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedFrame, err)
	}

	if err := frame.Validate(); err != nil {
		d.logger.Warn("dropping invalid frame",
			"event_type", frame.Type,
			"error", err,
		)
		return nil, err
	}

	if frame.Timestamp == 0 {
		frame.Timestamp = d.stamper.Next()
	}

	notification := frame.Notification()
	return &notification, nil
}
