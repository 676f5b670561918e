package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
)

// AddAttendee resolves the identity and adds it to the roster. Adding a present attendee is a
// no-op that returns the session unchanged.
func (s *SessionService) AddAttendee(ctx context.Context, sessionID, identityUUID string) (*model.Session, error) {
	identity, err := s.identities.FindIdentity(ctx, ports.FindIdentityQuery{UUID: identityUUID})
	if err != nil {
		return nil, fmt.Errorf("error resolving attendee: %w", err)
	}

	session, added, err := s.sessions.AddAttendee(ctx, sessionID, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("error adding attendee: %w", err)
	}

	if added {
		s.events.publish(ctx, model.Event{Type: model.EventAttendeeAdded, Session: session})
	}
	return session, nil
}

// RemoveAttendee removes the identity from the roster. It returns model.ErrAttendeeNotFound,
// leaving the roster untouched, when the identity is not an attendee.
func (s *SessionService) RemoveAttendee(ctx context.Context, sessionID, identityUUID string) (*model.Session, error) {
	identity, err := s.identities.FindIdentity(ctx, ports.FindIdentityQuery{UUID: identityUUID})
	if errors.Is(err, model.ErrIdentityNotFound) {
		// an unknown identity cannot be on any roster; still report a missing session first
		if _, err := s.sessions.FindSession(ctx, ports.FindSessionQuery{ID: sessionID}); err != nil {
			return nil, fmt.Errorf("error finding session: %w", err)
		}
		return nil, model.ErrAttendeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error resolving attendee: %w", err)
	}

	session, err := s.sessions.RemoveAttendee(ctx, sessionID, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("error removing attendee: %w", err)
	}

	s.events.publish(ctx, model.Event{Type: model.EventAttendeeRemoved, Session: session})
	return session, nil
}
