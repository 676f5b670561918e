package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an entity is required to exist and does not.
	ErrNotFound = errors.New("entity was not found")

	// ErrIdentityNotFound is returned when an identity lookup finds nothing.
	ErrIdentityNotFound = fmt.Errorf("identity %w", ErrNotFound)

	// ErrSlotNotFound is returned when a slot lookup finds nothing.
	ErrSlotNotFound = fmt.Errorf("slot %w", ErrNotFound)

	// ErrSessionNotFound is returned when a session lookup finds nothing.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)

	// ErrAttendeeNotFound is returned when removing an identity that is not in the roster.
	ErrAttendeeNotFound = fmt.Errorf("attendee %w", ErrNotFound)

	// ErrDuplicate is returned when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("entity already exists")

	// ErrDuplicateUUID is returned when registering an uuid that is already taken.
	ErrDuplicateUUID = fmt.Errorf("uuid: %w", ErrDuplicate)

	// ErrDuplicateEmail is returned when registering an email that is already taken.
	ErrDuplicateEmail = fmt.Errorf("email: %w", ErrDuplicate)

	// ErrNoFieldsProvided is returned by partial updates carrying nothing to update.
	ErrNoFieldsProvided = errors.New("no fields provided for update")

	// ErrNoAvailableAvatar is returned when the avatar source holds no usable image.
	ErrNoAvailableAvatar = errors.New("no available avatar")

	// ErrSessionFull is returned when adding an attendee to a session that reached its capacity.
	ErrSessionFull = errors.New("session is full")

	// ErrNotOwner is returned when an identity mutates an entity it does not own.
	ErrNotOwner = errors.New("identity does not own the entity")

	// ErrUnauthorized is returned for missing, invalid or expired credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned when login is attempted with an unknown uuid.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)

	// ErrDependencyFailed is returned when an external collaborator call fails.
	ErrDependencyFailed = errors.New("dependency failed")

	// ErrStreamProvisionFailed is returned when the streaming provider could not create a stream.
	ErrStreamProvisionFailed = fmt.Errorf("stream provisioning: %w", ErrDependencyFailed)

	// ErrStreamTeardownFailed is returned when the streaming provider could not delete a stream.
	ErrStreamTeardownFailed = fmt.Errorf("stream teardown: %w", ErrDependencyFailed)

	// ErrDependencyTimeout is returned when an external collaborator did not answer in time.
	ErrDependencyTimeout = errors.New("dependency timed out")

	// ErrNotImplemented marks operations that are routed but have no behavior yet.
	ErrNotImplemented = errors.New("not implemented")
)

// FieldError describes a single offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError out of a single field problem.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add appends a field problem.
func (v *ValidationError) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// Empty reports whether no field problem was collected.
func (v *ValidationError) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

// OrNil returns nil when nothing was collected so it can be returned as an error directly.
func (v *ValidationError) OrNil() error {
	if v.Empty() {
		return nil
	}
	return v
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
