package model

import "time"

// RegisterArgs contain the arguments of the Register use-case.
type RegisterArgs struct {
	// UUID is the opaque external identifier.
	UUID string

	// Email is the identity email.
	Email string

	// UserName is the optional display name.
	UserName string

	// Category is the optional category.
	Category string

	// Image is the optional avatar URL. When empty an avatar is drawn from the avatar source, if any.
	Image string
}

// UpdateProfileArgs contain the arguments of the UpdateProfile use-case.
// Empty fields are left untouched.
type UpdateProfileArgs struct {
	// ID is the id of the identity to update.
	ID string

	UserName string
	Category string
}

// LoginResponse contains the resolved identity and its freshly issued access token.
type LoginResponse struct {
	Identity    Identity
	AccessToken string
}

// CreateSlotArgs contain the arguments of the CreateSlot use-case.
type CreateSlotArgs struct {
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
	Category  string
	Charge    float64

	// OwnerID is the id of the identity creating the slot.
	OwnerID string
}

// UpdateSlotArgs contain the arguments of the UpdateSlot use-case. Nil fields are left untouched.
type UpdateSlotArgs struct {
	// ID is the id of the slot to update.
	ID string

	// ActorID is the id of the identity performing the update. Must own the slot.
	ActorID string

	Date      *time.Time
	StartTime *time.Time
	EndTime   *time.Time
	Category  *string
	Charge    *float64
}

// BookSlotArgs contain the arguments of the BookSlot use-case.
type BookSlotArgs struct {
	// SlotID is the slot being booked.
	SlotID string

	// OwnerID is the id of the identity booking the slot.
	OwnerID string

	// AttendeeUUIDs are the uuids of the initial attendees.
	AttendeeUUIDs []string

	// Capacity bounds the roster. Zero means unbounded.
	Capacity int
}

// ScheduleBroadcastArgs contain the arguments of the ScheduleBroadcast use-case.
// Exactly one of Duration and EndTime is expected; EndTime wins when both are set.
type ScheduleBroadcastArgs struct {
	OwnerID     string
	SessionName string
	SessionDesc string
	Date        time.Time
	StartTime   time.Time
	Duration    time.Duration
	EndTime     time.Time
	Fee         float64
}

// DeleteSessionArgs contain the arguments of the DeleteSession use-case.
type DeleteSessionArgs struct {
	// StreamKey identifies the broadcast session.
	StreamKey string

	// ActorID is the id of the identity performing the deletion. Must own the session.
	ActorID string
}
