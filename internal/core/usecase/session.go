package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// DefaultStreamTimeout bounds every call to the streaming provider.
const DefaultStreamTimeout = 10 * time.Second

// SessionServiceArgs contains the mandatory arguments for the SessionService.
type SessionServiceArgs struct {
	// Sessions is the repository for session persistence.
	Sessions ports.SessionRepository

	// Slots resolves the slots being booked.
	Slots ports.SlotRepository

	// Identities resolves owners and attendees.
	Identities ports.IdentityRepository

	// Streams provisions and tears down the external streams of broadcast sessions.
	Streams ports.StreamProvider
}

// SessionServiceOptArgs are the optional arguments for building a SessionService.
type SessionServiceOptArgs = func(*SessionService)

// WithStreamTimeout overrides DefaultStreamTimeout.
func WithStreamTimeout(timeout time.Duration) SessionServiceOptArgs {
	return func(s *SessionService) {
		s.streamTimeout = timeout
	}
}

// WithSessionSender publishes session events through sender.
func WithSessionSender(sender ports.Sender) SessionServiceOptArgs {
	return func(s *SessionService) {
		s.events.sender = sender
	}
}

// NewSessionService creates a new SessionService.
func NewSessionService(args SessionServiceArgs, optArgs ...SessionServiceOptArgs) *SessionService {
	s := &SessionService{
		sessions:      args.Sessions,
		slots:         args.Slots,
		identities:    args.Identities,
		streams:       args.Streams,
		streamTimeout: DefaultStreamTimeout,
		events:        newPublisher(),
	}
	for _, opt := range optArgs {
		opt(s)
	}
	return s
}

// SessionService gathers the session lifecycle and the attendance management.
type SessionService struct {
	sessions      ports.SessionRepository
	slots         ports.SlotRepository
	identities    ports.IdentityRepository
	streams       ports.StreamProvider
	streamTimeout time.Duration
	events        publisher
}

// BookSlot creates a slot-backed session in the Filling state. With a non-zero capacity the
// initial roster must leave room for at least one more attendee.
func (s *SessionService) BookSlot(ctx context.Context, args model.BookSlotArgs) (*model.Session, error) {
	verr := new(model.ValidationError)
	if args.SlotID == "" {
		verr.Add("slotId", "Slot must be specified.")
	}
	if args.OwnerID == "" {
		verr.Add("user", "User must be specified.")
	}
	if args.Capacity < 0 {
		verr.Add("capacity", "Capacity must not be negative.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	slot, err := s.slots.FindSlot(ctx, args.SlotID)
	if err != nil {
		return nil, fmt.Errorf("error finding slot to book: %w", err)
	}

	attendees := make([]string, 0, len(args.AttendeeUUIDs))
	for _, uuid := range args.AttendeeUUIDs {
		identity, err := s.identities.FindIdentity(ctx, ports.FindIdentityQuery{UUID: uuid})
		if err != nil {
			return nil, fmt.Errorf("error resolving attendee [%s]: %w", uuid, err)
		}
		attendees = appendUnique(attendees, identity.ID)
	}
	// the roster is a set, so the capacity applies to distinct attendees
	if args.Capacity > 0 && len(attendees) >= args.Capacity {
		return nil, model.NewValidationError("attendees", "Initial attendees must be fewer than the capacity.")
	}

	session := &model.Session{
		Kind:      model.SessionKindSlot,
		SlotID:    slot.ID,
		OwnerID:   args.OwnerID,
		Attendees: attendees,
		Date:      slot.Date,
		Capacity:  args.Capacity,
		Status:    model.SessionStatusFilling,
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("error saving session in repository: %w", err)
	}

	s.events.publish(ctx, model.Event{Type: model.EventSessionCreated, Session: session})
	return session, nil
}

// ScheduleBroadcast provisions an external stream and only then persists the broadcast session.
// If provisioning fails nothing is persisted. If persisting fails the stream is torn down again.
func (s *SessionService) ScheduleBroadcast(ctx context.Context, args model.ScheduleBroadcastArgs) (*model.Session, error) {
	verr := new(model.ValidationError)
	if args.OwnerID == "" {
		verr.Add("user", "User must be specified.")
	}
	if args.SessionName == "" {
		verr.Add("sessionName", "Session name must be specified.")
	}
	if args.SessionDesc == "" {
		verr.Add("sessionDesc", "Session description must be specified.")
	}
	if args.Date.IsZero() {
		verr.Add("date", "Date must be specified.")
	}
	switch {
	case args.StartTime.IsZero():
		verr.Add("startTime", "Start time must be specified.")
	case !args.Date.IsZero() && !sameDay(args.Date, args.StartTime):
		verr.Add("startTime", "Start time must fall on the session date.")
	}
	if args.Fee < 0 {
		verr.Add("fee", "Fee must not be negative.")
	}
	endTime := args.EndTime
	if endTime.IsZero() && args.Duration != 0 {
		endTime = args.StartTime.Add(args.Duration)
	}
	switch {
	case endTime.IsZero():
		verr.Add("endTime", "Either end time or duration must be specified.")
	case !args.StartTime.IsZero() && !endTime.After(args.StartTime):
		verr.Add("endTime", "End time must be after start time.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	stream, err := s.createStream(ctx, args.SessionName)
	if err != nil {
		return nil, err
	}

	startTime := args.StartTime
	session := &model.Session{
		Kind:        model.SessionKindBroadcast,
		OwnerID:     args.OwnerID,
		Attendees:   []string{},
		SessionName: args.SessionName,
		SessionDesc: args.SessionDesc,
		Date:        args.Date,
		StartTime:   &startTime,
		EndTime:     &endTime,
		Fee:         args.Fee,
		Stream:      stream,
	}
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		s.compensateStream(ctx, stream)
		return nil, fmt.Errorf("error saving session in repository: %w", err)
	}

	s.events.publish(ctx, model.Event{Type: model.EventSessionCreated, Session: session})
	return session, nil
}

func (s *SessionService) createStream(ctx context.Context, name string) (*model.StreamHandle, error) {
	streamCtx, cancel := context.WithTimeout(ctx, s.streamTimeout)
	defer cancel()

	stream, err := s.streams.CreateStream(streamCtx, name)
	if err != nil {
		return nil, dependencyError(model.ErrStreamProvisionFailed, err)
	}
	if stream == nil || stream.Key == "" || stream.ID == "" {
		if stream != nil && stream.ID != "" {
			s.compensateStream(ctx, stream)
		}
		return nil, fmt.Errorf("%w: provider returned an incomplete stream handle", model.ErrStreamProvisionFailed)
	}
	return stream, nil
}

// compensateStream tears down a stream that will not be bound to any session.
func (s *SessionService) compensateStream(ctx context.Context, stream *model.StreamHandle) {
	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.streamTimeout)
	defer cancel()

	if err := s.streams.DeleteStream(streamCtx, stream.ID); err != nil {
		log.WithError(err).
			WithField("stream-id", stream.ID).
			Error("could not tear down orphaned stream")
	}
}

// DeleteSession tears down the external stream bound to the broadcast session and then removes
// the session. A teardown failure keeps the session and is surfaced.
func (s *SessionService) DeleteSession(ctx context.Context, args model.DeleteSessionArgs) error {
	if args.StreamKey == "" {
		return model.NewValidationError("streamKey", "Stream key must be specified.")
	}

	session, err := s.sessions.FindSession(ctx, ports.FindSessionQuery{StreamKey: args.StreamKey})
	if err != nil {
		return fmt.Errorf("error finding session by stream key: %w", err)
	}
	if args.ActorID != "" && session.OwnerID != args.ActorID {
		return model.ErrNotOwner
	}

	if session.Stream != nil && session.Stream.ID != "" {
		streamCtx, cancel := context.WithTimeout(ctx, s.streamTimeout)
		defer cancel()
		if err := s.streams.DeleteStream(streamCtx, session.Stream.ID); err != nil {
			return dependencyError(model.ErrStreamTeardownFailed, err)
		}
	}

	if err := s.sessions.DeleteSession(ctx, session.ID); err != nil {
		return fmt.Errorf("error deleting session from repository: %w", err)
	}

	s.events.publish(ctx, model.Event{Type: model.EventSessionDeleted, Session: session})
	return nil
}

// ListSessionsByDate yields the sessions of the given day. Ranging over the result again
// re-queries the storage.
func (s *SessionService) ListSessionsByDate(ctx context.Context, date time.Time) iter.Seq2[model.Session, error] {
	day := date.UTC().Truncate(24 * time.Hour)
	return s.sessions.ListSessionsByDate(ctx, day)
}

// dependencyError wraps a provider failure with its kind, adding model.ErrDependencyTimeout when
// the call ran out of time.
func dependencyError(kind error, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", kind, model.ErrDependencyTimeout, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// sameDay reports whether instant falls on the UTC day of date.
func sameDay(date, instant time.Time) bool {
	y1, m1, d1 := date.UTC().Date()
	y2, m2, d2 := instant.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
