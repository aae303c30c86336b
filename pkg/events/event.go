package events

import "time"

// Event defines the contract for all portal events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_SIGNED_IN").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Session lifecycle event codes published to the bus.
const (
	TypeSessionSignedIn    = "SESSION_SIGNED_IN"
	TypeSessionSignedOut   = "SESSION_SIGNED_OUT"
	TypeSessionRefreshed   = "SESSION_REFRESHED"
	TypeSessionInitialized = "SESSION_INITIALIZED"
)

// BaseEvent is the plain implementation most publishers use.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
