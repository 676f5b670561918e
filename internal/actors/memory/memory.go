// Package memory is an in-process storage adapter. It backs local runs without a database and the
// tests of the layers above storage.
package memory

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
)

// Store keeps identities, slots and sessions in maps guarded by a single mutex.
type Store struct {
	mu         sync.Mutex
	identities map[string]model.Identity
	slots      map[string]model.Slot
	sessions   map[string]model.Session
	nowFunc    func() time.Time
}

// StoreOptArgs are the optional arguments for building a Store.
type StoreOptArgs = func(*Store)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) StoreOptArgs {
	return func(s *Store) {
		s.nowFunc = nowFunc
	}
}

// NewStore creates an empty Store.
func NewStore(optArgs ...StoreOptArgs) *Store {
	s := &Store{
		identities: make(map[string]model.Identity),
		slots:      make(map[string]model.Slot),
		sessions:   make(map[string]model.Session),
		nowFunc:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(s)
	}
	return s
}

var _ ports.Repository = (*Store)(nil)

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// SaveIdentity stores a new identity, enforcing uuid and email uniqueness.
func (s *Store) SaveIdentity(_ context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.identities {
		if existing.UUID == identity.UUID {
			return model.ErrDuplicateUUID
		}
		if existing.Email == identity.Email {
			return model.ErrDuplicateEmail
		}
	}
	identity.ID = uuid.NewString()
	identity.CreatedAt = s.nowFunc()
	identity.UpdatedAt = identity.CreatedAt
	s.identities[identity.ID] = *identity
	return nil
}

// FindIdentity looks an identity up by id, uuid or email.
func (s *Store) FindIdentity(_ context.Context, query ports.FindIdentityQuery) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if query.ID != "" {
		if identity, ok := s.identities[query.ID]; ok {
			return &identity, nil
		}
		return nil, model.ErrIdentityNotFound
	}
	for _, identity := range s.identities {
		if (query.UUID != "" && identity.UUID == query.UUID) || (query.Email != "" && identity.Email == query.Email) {
			return &identity, nil
		}
	}
	return nil, model.ErrIdentityNotFound
}

// UpdateIdentity applies the non-empty userName and category and reloads the identity.
func (s *Store) UpdateIdentity(_ context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.identities[identity.ID]
	if !ok {
		return model.ErrIdentityNotFound
	}
	if identity.UserName != "" {
		existing.UserName = identity.UserName
	}
	if identity.Category != "" {
		existing.Category = identity.Category
	}
	existing.UpdatedAt = s.nowFunc()
	s.identities[existing.ID] = existing
	*identity = existing
	return nil
}

// SaveSlot stores a new slot.
func (s *Store) SaveSlot(_ context.Context, slot *model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot.ID = uuid.NewString()
	slot.CreatedAt = s.nowFunc()
	slot.UpdatedAt = slot.CreatedAt
	s.slots[slot.ID] = *slot
	return nil
}

// FindSlot returns the slot with the given id.
func (s *Store) FindSlot(_ context.Context, id string) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, model.ErrSlotNotFound
	}
	return &slot, nil
}

// UpdateSlot overwrites the mutable fields of the slot.
func (s *Store) UpdateSlot(_ context.Context, slot *model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.slots[slot.ID]
	if !ok {
		return model.ErrSlotNotFound
	}
	slot.UserID = existing.UserID
	slot.CreatedAt = existing.CreatedAt
	slot.UpdatedAt = s.nowFunc()
	s.slots[slot.ID] = *slot
	return nil
}

// SaveSession stores a new session.
func (s *Store) SaveSession(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.ID = uuid.NewString()
	if session.Attendees == nil {
		session.Attendees = []string{}
	}
	session.CreatedAt = s.nowFunc()
	session.UpdatedAt = session.CreatedAt
	s.sessions[session.ID] = cloneSession(*session)
	return nil
}

// FindSession looks a session up by id or stream key.
func (s *Store) FindSession(_ context.Context, query ports.FindSessionQuery) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.findSession(query)
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	found := cloneSession(session)
	return &found, nil
}

func (s *Store) findSession(query ports.FindSessionQuery) (model.Session, bool) {
	if query.ID != "" {
		session, ok := s.sessions[query.ID]
		return session, ok
	}
	for _, session := range s.sessions {
		if query.StreamKey != "" && session.Stream != nil && session.Stream.Key == query.StreamKey {
			return session, true
		}
	}
	return model.Session{}, false
}

// DeleteSession removes the session with the given id.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return model.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// ListSessionsByDate yields the sessions of the day, snapshotting the store on every range.
func (s *Store) ListSessionsByDate(_ context.Context, date time.Time) iter.Seq2[model.Session, error] {
	from := date.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	return func(yield func(model.Session, error) bool) {
		s.mu.Lock()
		var matching []model.Session
		for _, session := range s.sessions {
			if d := session.Date.UTC(); !d.Before(from) && d.Before(to) {
				matching = append(matching, cloneSession(session))
			}
		}
		s.mu.Unlock()

		slices.SortFunc(matching, compareSessions)
		for _, session := range matching {
			if !yield(session, nil) {
				return
			}
		}
	}
}

// compareSessions orders by start time (missing first), then creation time, then id.
func compareSessions(a, b model.Session) int {
	switch {
	case a.StartTime == nil && b.StartTime != nil:
		return -1
	case a.StartTime != nil && b.StartTime == nil:
		return 1
	case a.StartTime != nil && b.StartTime != nil:
		if c := a.StartTime.Compare(*b.StartTime); c != 0 {
			return c
		}
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// AddAttendee adds identityID to the roster unless present.
func (s *Store) AddAttendee(_ context.Context, sessionID, identityID string) (*model.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, model.ErrSessionNotFound
	}
	if session.HasAttendee(identityID) {
		unchanged := cloneSession(session)
		return &unchanged, false, nil
	}
	if session.Kind == model.SessionKindSlot && session.Capacity > 0 && len(session.Attendees) >= session.Capacity {
		return nil, false, model.ErrSessionFull
	}
	session = cloneSession(session)
	session.Attendees = append(session.Attendees, identityID)
	session.RefreshStatus()
	session.UpdatedAt = s.nowFunc()
	s.sessions[sessionID] = session

	updated := cloneSession(session)
	return &updated, true, nil
}

// RemoveAttendee removes identityID from the roster.
func (s *Store) RemoveAttendee(_ context.Context, sessionID, identityID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	if !session.HasAttendee(identityID) {
		return nil, model.ErrAttendeeNotFound
	}
	session = cloneSession(session)
	session.Attendees = slices.DeleteFunc(session.Attendees, func(id string) bool { return id == identityID })
	session.RefreshStatus()
	session.UpdatedAt = s.nowFunc()
	s.sessions[sessionID] = session

	updated := cloneSession(session)
	return &updated, nil
}

func cloneSession(session model.Session) model.Session {
	session.Attendees = append([]string{}, session.Attendees...)
	if session.Stream != nil {
		stream := *session.Stream
		session.Stream = &stream
	}
	return session
}
