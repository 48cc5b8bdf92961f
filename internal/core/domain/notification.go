package domain

// EventType classifies a notification delivered over the live channel.
type EventType string

const (
	EventAlert     EventType = "alert"
	EventBroadcast EventType = "broadcast"
	EventSystem    EventType = "system"
)

// IsValid checks if the event type is one of the recognized values
func (t EventType) IsValid() bool {
	switch t {
	case EventAlert, EventBroadcast, EventSystem:
		return true
	}
	return false
}

// Severity grades an alert notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// IsValid checks if the severity is one of the recognized values
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Audience selects which dashboard roles receive a notification.
type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceCitizen  Audience = "citizen"
	AudienceVendor   Audience = "vendor"
	AudienceEmployee Audience = "employee"
	AudienceAdmin    Audience = "admin"
)

// IsValid checks if the audience is one of the recognized values
func (a Audience) IsValid() bool {
	switch a {
	case AudienceAll, AudienceCitizen, AudienceVendor, AudienceEmployee, AudienceAdmin:
		return true
	}
	return false
}

// Notification is a single delivered event held by the client-side store.
// Timestamp is the identity: unique, monotonically assigned, and used as the
// sort key. Severity is only meaningful when Type is EventAlert.
type Notification struct {
	Timestamp int64     `json:"timestamp"`
	Type      EventType `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity,omitempty"`
	Read      bool      `json:"read"`
}
