package domain

import (
	apperrors "github.com/openmuni/pulse-backend/internal/core/errors"
)

// FrameData carries the human-readable payload of a wire frame.
type FrameData struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
}

// Frame is the wire shape pushed by the gateway over the live channel.
// Timestamp and Audience are optional: the receiving side stamps frames the
// server left unstamped, and an empty audience means everyone.
type Frame struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Audience  Audience  `json:"audience,omitempty"`
	Data      FrameData `json:"data"`
}

// Validate checks the frame against the wire contract. It normalizes an
// absent alert severity to info and rejects anything else malformed.
func (f *Frame) Validate() error {
	if !f.Type.IsValid() {
		return apperrors.ErrUnknownEventType
	}
	if f.Data.Title == "" {
		return apperrors.ErrTitleRequired
	}
	if f.Data.Message == "" {
		return apperrors.ErrMessageRequired
	}

	switch f.Type {
	case EventAlert:
		if f.Data.Severity == "" {
			f.Data.Severity = SeverityInfo
		}
		if !f.Data.Severity.IsValid() {
			return apperrors.ErrInvalidSeverity
		}
	default:
		// Severity is an alert-only field.
		f.Data.Severity = ""
	}

	if f.Audience != "" && !f.Audience.IsValid() {
		return apperrors.ErrInvalidAudience
	}

	return nil
}

// Notification builds the stored record for a validated frame. The caller is
// responsible for assigning a unique timestamp first.
func (f *Frame) Notification() Notification {
	return Notification{
		Timestamp: f.Timestamp,
		Type:      f.Type,
		Title:     f.Data.Title,
		Message:   f.Data.Message,
		Severity:  f.Data.Severity,
	}
}
