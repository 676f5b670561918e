package model

import "time"

// EventType names a domain change.
type EventType string

const (
	EventIdentityRegistered EventType = "identity.registered"
	EventIdentityUpdated    EventType = "identity.updated"
	EventSlotCreated        EventType = "slot.created"
	EventSlotUpdated        EventType = "slot.updated"
	EventSessionCreated     EventType = "session.created"
	EventSessionDeleted     EventType = "session.deleted"
	EventAttendeeAdded      EventType = "session.attendee_added"
	EventAttendeeRemoved    EventType = "session.attendee_removed"
)

// Event collects a domain change. Exactly one of the entity pointers is set, according to Type.
type Event struct {
	// ID is the event id.
	ID string `json:"id"`

	// Type is the kind of change.
	Type EventType `json:"type"`

	// OccurredAt is the time at which the change was committed.
	OccurredAt time.Time `json:"occurredAt"`

	Identity *Identity `json:"identity,omitempty"`
	Slot     *Slot     `json:"slot,omitempty"`
	Session  *Session  `json:"session,omitempty"`
}
