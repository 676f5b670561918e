package model

import (
	"time"
)

// Identity represents a registered user. It is addressed externally by its UUID.
type Identity struct {
	// ID is the server generated identifier of the identity.
	ID string `json:"id"`

	// UUID is the opaque external identifier. Globally unique.
	UUID string `json:"uuid"`

	// UserName is the display name.
	UserName string `json:"userName,omitempty"`

	// Category is a free-form classification of the user.
	Category string `json:"category,omitempty"`

	// Email is the identity email. Globally unique.
	Email string `json:"email"`

	// Image is the avatar URL.
	Image string `json:"image,omitempty"`

	// FeedbackID optionally links the identity to a feedback record.
	FeedbackID *int64 `json:"feedbackId,omitempty"`

	// CreatedAt is the time at which the identity was registered.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is the time at which the identity was last updated.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Slot is a bookable time interval with a price and a category.
type Slot struct {
	ID string `json:"_id"`

	// Date is the day the slot belongs to.
	Date time.Time `json:"date"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Category string `json:"category"`

	// Charge is the price of the slot. Never negative.
	Charge float64 `json:"charge"`

	// TotalDuration is EndTime - StartTime in minutes.
	TotalDuration float64 `json:"total_duration"`

	// UserID is the id of the owning identity.
	UserID string `json:"user"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecomputeDuration refreshes TotalDuration when both endpoints are known.
func (s *Slot) RecomputeDuration() {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return
	}
	s.TotalDuration = DurationMinutes(s.StartTime, s.EndTime)
}

// DurationMinutes returns end - start expressed in minutes.
func DurationMinutes(start, end time.Time) float64 {
	return end.Sub(start).Minutes()
}

// SessionKind discriminates the two shapes a session can take.
type SessionKind string

const (
	// SessionKindSlot is a session backed by a booked slot.
	SessionKindSlot SessionKind = "slot"

	// SessionKindBroadcast is a scheduled live broadcast backed by an external stream.
	SessionKindBroadcast SessionKind = "broadcast"
)

// SessionStatus is the fill state of a slot-backed session.
type SessionStatus string

const (
	SessionStatusFilling SessionStatus = "Filling"
	SessionStatusBooked  SessionStatus = "Booked"
)

// StreamHandle is what the streaming provider returns for a provisioned stream.
type StreamHandle struct {
	// Key is the ingest key. It grants publishing rights and must not leak publicly.
	Key string `json:"streamKey"`

	// ID is the provider-side stream identifier.
	ID string `json:"streamId"`

	// Details is the opaque provider payload.
	Details map[string]any `json:"streamDetails,omitempty"`
}

// Session is either a booked slot or a scheduled broadcast, depending on Kind.
type Session struct {
	ID   string      `json:"_id"`
	Kind SessionKind `json:"kind"`

	// OwnerID is the id of the identity that created the session.
	OwnerID string `json:"user"`

	// Attendees holds identity ids. It never contains duplicates.
	Attendees []string `json:"attendees"`

	// Date is the day the session takes place.
	Date time.Time `json:"date"`

	// SlotID references the booked slot. Slot sessions only.
	SlotID string `json:"slot,omitempty"`

	// Status is the fill state. Slot sessions only.
	Status SessionStatus `json:"status,omitempty"`

	// Capacity bounds the roster of a slot session. Zero means unbounded.
	Capacity int `json:"capacity,omitempty"`

	SessionName string     `json:"sessionName,omitempty"`
	SessionDesc string     `json:"sessionDesc,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Fee         float64    `json:"fee,omitempty"`

	// Stream is the external stream bound to a broadcast session.
	Stream *StreamHandle `json:"stream,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasAttendee reports whether identityID is in the roster.
func (s *Session) HasAttendee(identityID string) bool {
	for _, a := range s.Attendees {
		if a == identityID {
			return true
		}
	}
	return false
}

// RefreshStatus derives the fill status of a slot session from its roster and capacity.
func (s *Session) RefreshStatus() {
	if s.Kind != SessionKindSlot {
		return
	}
	if s.Capacity > 0 && len(s.Attendees) >= s.Capacity {
		s.Status = SessionStatusBooked
		return
	}
	s.Status = SessionStatusFilling
}

// Claims is the identity data carried by an access token.
type Claims struct {
	ID       string `json:"id"`
	UUID     string `json:"uuid,omitempty"`
	UserName string `json:"userName,omitempty"`
	Email    string `json:"email,omitempty"`
}

// ClaimsFor builds the token claims of an identity.
func ClaimsFor(identity Identity) Claims {
	return Claims{
		ID:       identity.ID,
		UUID:     identity.UUID,
		UserName: identity.UserName,
		Email:    identity.Email,
	}
}
