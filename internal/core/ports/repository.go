package ports

import (
	"context"
	"iter"
	"time"

	"github.com/rbroggi/slotcast/internal/core/model"
)

// IdentityRepository is the persistence port for identities.
type IdentityRepository interface {
	// SaveIdentity durably saves a new identity. It returns model.ErrDuplicateUUID or
	// model.ErrDuplicateEmail when a storage-level unique constraint rejects the insert.
	SaveIdentity(ctx context.Context, identity *model.Identity) error

	// FindIdentity looks an identity up by the query. It returns model.ErrIdentityNotFound
	// when nothing matches.
	FindIdentity(ctx context.Context, query FindIdentityQuery) (*model.Identity, error)

	// UpdateIdentity applies the non-zero profile fields of the input identity and reloads it.
	// It returns model.ErrIdentityNotFound if the identity does not exist.
	UpdateIdentity(ctx context.Context, identity *model.Identity) error
}

// FindIdentityQuery gathers the lookup keys for an identity. Exactly one is expected to be set.
type FindIdentityQuery struct {
	ID    string
	UUID  string
	Email string
}

// SlotRepository is the persistence port for slots.
type SlotRepository interface {
	// SaveSlot durably saves a new slot.
	SaveSlot(ctx context.Context, slot *model.Slot) error

	// FindSlot returns the slot with the given id or model.ErrSlotNotFound.
	FindSlot(ctx context.Context, id string) (*model.Slot, error)

	// UpdateSlot overwrites the mutable fields of an existing slot.
	// It returns model.ErrSlotNotFound if the slot does not exist.
	UpdateSlot(ctx context.Context, slot *model.Slot) error
}

// SessionRepository is the persistence port for sessions.
type SessionRepository interface {
	// SaveSession durably saves a new session.
	SaveSession(ctx context.Context, session *model.Session) error

	// FindSession looks a session up by the query. It returns model.ErrSessionNotFound when
	// nothing matches.
	FindSession(ctx context.Context, query FindSessionQuery) (*model.Session, error)

	// DeleteSession removes the session with the given id.
	DeleteSession(ctx context.Context, id string) error

	// ListSessionsByDate yields the sessions taking place on the given day (UTC), ordered by
	// start time, then creation time, then id. The sequence is lazy and every range over it
	// runs a fresh query.
	ListSessionsByDate(ctx context.Context, date time.Time) iter.Seq2[model.Session, error]

	// AddAttendee atomically adds identityID to the roster of the session, unless already
	// present, and refreshes the fill status. added is false when identityID was already on the
	// roster, in which case nothing is written. It returns model.ErrSessionNotFound or
	// model.ErrSessionFull.
	AddAttendee(ctx context.Context, sessionID, identityID string) (session *model.Session, added bool, err error)

	// RemoveAttendee atomically removes identityID from the roster of the session and refreshes
	// the fill status. It returns model.ErrSessionNotFound or model.ErrAttendeeNotFound, in which
	// case the roster is untouched.
	RemoveAttendee(ctx context.Context, sessionID, identityID string) (*model.Session, error)
}

// FindSessionQuery gathers the lookup keys for a session. Exactly one is expected to be set.
type FindSessionQuery struct {
	ID        string
	StreamKey string
}

// Repository aggregates every persistence port. Storage adapters implement all of them.
type Repository interface {
	IdentityRepository
	SlotRepository
	SessionRepository

	// Ping checks the storage is reachable.
	Ping(ctx context.Context) error
}
