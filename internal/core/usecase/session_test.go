package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbroggi/slotcast/internal/actors/memory"
	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	store    *memory.Store
	streams  *MockStreamProvider
	sessions *SessionService
	owner    *model.Identity
	u2       *model.Identity
	slot     *model.Slot
}

func newSessionFixture(t *testing.T, optArgs ...SessionServiceOptArgs) *sessionFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	streams := &MockStreamProvider{}

	identities := NewIdentityService(IdentityServiceArgs{Repository: store})
	owner, err := identities.Register(ctx, model.RegisterArgs{UUID: "u1", Email: "a@x.com"})
	require.NoError(t, err)
	u2, err := identities.Register(ctx, model.RegisterArgs{UUID: "u2", Email: "b@x.com"})
	require.NoError(t, err)

	slot, err := NewSlotService(SlotServiceArgs{Repository: store}).CreateSlot(ctx, model.CreateSlotArgs{
		Date: day, StartTime: t0, EndTime: t0.Add(30 * time.Minute), Category: "A", Charge: 10, OwnerID: owner.ID,
	})
	require.NoError(t, err)

	return &sessionFixture{
		store:   store,
		streams: streams,
		sessions: NewSessionService(SessionServiceArgs{
			Sessions:   store,
			Slots:      store,
			Identities: store,
			Streams:    streams,
		}, optArgs...),
		owner: owner,
		u2:    u2,
		slot:  slot,
	}
}

func (f *sessionFixture) broadcastArgs() model.ScheduleBroadcastArgs {
	return model.ScheduleBroadcastArgs{
		OwnerID:     f.owner.ID,
		SessionName: "yoga",
		SessionDesc: "morning yoga",
		Date:        day,
		StartTime:   t0,
		Duration:    time.Hour,
		Fee:         5,
	}
}

func collect(t *testing.T, svc *SessionService, date time.Time) []model.Session {
	t.Helper()
	var sessions []model.Session
	for session, err := range svc.ListSessionsByDate(context.Background(), date) {
		require.NoError(t, err)
		sessions = append(sessions, session)
	}
	return sessions
}

func TestSessionService_BookSlotAttendanceScenario(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, err := f.sessions.BookSlot(ctx, model.BookSlotArgs{SlotID: f.slot.ID, OwnerID: f.owner.ID})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFilling, session.Status)
	assert.Equal(t, model.SessionKindSlot, session.Kind)
	assert.Equal(t, f.slot.Date, session.Date)
	assert.Empty(t, session.Attendees)

	session, err = f.sessions.AddAttendee(ctx, session.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{f.u2.ID}, session.Attendees)

	session, err = f.sessions.AddAttendee(ctx, session.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{f.u2.ID}, session.Attendees)

	session, err = f.sessions.RemoveAttendee(ctx, session.ID, "u2")
	require.NoError(t, err)
	assert.Empty(t, session.Attendees)
}

func TestSessionService_BookSlot(t *testing.T) {
	tests := []struct {
		name    string
		args    func(f *sessionFixture) model.BookSlotArgs
		wantErr func(t *testing.T, err error)
		want    func(t *testing.T, f *sessionFixture, session *model.Session)
	}{
		{
			name: "initial attendees are resolved and deduplicated",
			args: func(f *sessionFixture) model.BookSlotArgs {
				return model.BookSlotArgs{SlotID: f.slot.ID, OwnerID: f.owner.ID, AttendeeUUIDs: []string{"u2", "u1", "u2"}}
			},
			want: func(t *testing.T, f *sessionFixture, session *model.Session) {
				assert.Equal(t, []string{f.u2.ID, f.owner.ID}, session.Attendees)
				assert.Equal(t, model.SessionStatusFilling, session.Status)
			},
		},
		{
			name: "duplicate attendees count once against the capacity",
			args: func(f *sessionFixture) model.BookSlotArgs {
				return model.BookSlotArgs{SlotID: f.slot.ID, OwnerID: f.owner.ID, AttendeeUUIDs: []string{"u2", "u2"}, Capacity: 2}
			},
			want: func(t *testing.T, f *sessionFixture, session *model.Session) {
				assert.Equal(t, []string{f.u2.ID}, session.Attendees)
				assert.Equal(t, 2, session.Capacity)
				assert.Equal(t, model.SessionStatusFilling, session.Status)
			},
		},
		{
			name: "unknown slot",
			args: func(f *sessionFixture) model.BookSlotArgs {
				return model.BookSlotArgs{SlotID: "missing", OwnerID: f.owner.ID}
			},
			wantErr: func(t *testing.T, err error) { assert.ErrorIs(t, err, model.ErrSlotNotFound) },
		},
		{
			name: "unknown attendee",
			args: func(f *sessionFixture) model.BookSlotArgs {
				return model.BookSlotArgs{SlotID: f.slot.ID, OwnerID: f.owner.ID, AttendeeUUIDs: []string{"ghost"}}
			},
			wantErr: func(t *testing.T, err error) { assert.ErrorIs(t, err, model.ErrIdentityNotFound) },
		},
		{
			name: "initial attendees fill the capacity",
			args: func(f *sessionFixture) model.BookSlotArgs {
				return model.BookSlotArgs{SlotID: f.slot.ID, OwnerID: f.owner.ID, AttendeeUUIDs: []string{"u2"}, Capacity: 1}
			},
			wantErr: func(t *testing.T, err error) {
				var verr *model.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "attendees", verr.Fields[0].Field)
			},
		},
		{
			name: "missing slot and owner",
			args: func(*sessionFixture) model.BookSlotArgs { return model.BookSlotArgs{} },
			wantErr: func(t *testing.T, err error) {
				var verr *model.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Len(t, verr.Fields, 2)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newSessionFixture(t)
			session, err := f.sessions.BookSlot(context.Background(), test.args(f))
			if test.wantErr != nil {
				require.Error(t, err)
				test.wantErr(t, err)
				assert.Empty(t, collect(t, f.sessions, day))
				return
			}
			require.NoError(t, err)
			test.want(t, f, session)
		})
	}
}

func TestSessionService_CapacityTransitions(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	_, err := NewIdentityService(IdentityServiceArgs{Repository: f.store}).Register(ctx, model.RegisterArgs{UUID: "u3", Email: "c@x.com"})
	require.NoError(t, err)

	session, err := f.sessions.BookSlot(ctx, model.BookSlotArgs{SlotID: f.slot.ID, OwnerID: f.owner.ID, Capacity: 2})
	require.NoError(t, err)

	session, err = f.sessions.AddAttendee(ctx, session.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFilling, session.Status)

	session, err = f.sessions.AddAttendee(ctx, session.ID, "u3")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusBooked, session.Status)

	_, err = f.sessions.AddAttendee(ctx, session.ID, "u1")
	assert.ErrorIs(t, err, model.ErrSessionFull)

	session, err = f.sessions.AddAttendee(ctx, session.ID, "u2")
	require.NoError(t, err, "re-adding a present attendee to a full session is a no-op")
	assert.Len(t, session.Attendees, 2)

	session, err = f.sessions.RemoveAttendee(ctx, session.ID, "u3")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFilling, session.Status)
}

func TestSessionService_AttendanceErrors(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	session, err := f.sessions.BookSlot(ctx, model.BookSlotArgs{SlotID: f.slot.ID, OwnerID: f.owner.ID, AttendeeUUIDs: []string{"u1"}})
	require.NoError(t, err)

	_, err = f.sessions.AddAttendee(ctx, "missing", "u2")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	_, err = f.sessions.AddAttendee(ctx, session.ID, "ghost")
	assert.ErrorIs(t, err, model.ErrIdentityNotFound)

	_, err = f.sessions.RemoveAttendee(ctx, session.ID, "u2")
	assert.ErrorIs(t, err, model.ErrAttendeeNotFound)

	_, err = f.sessions.RemoveAttendee(ctx, session.ID, "ghost")
	assert.ErrorIs(t, err, model.ErrAttendeeNotFound)

	_, err = f.sessions.RemoveAttendee(ctx, "missing", "ghost")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	_, err = f.sessions.RemoveAttendee(ctx, "missing", "u2")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	stored := collect(t, f.sessions, day)
	require.Len(t, stored, 1)
	assert.Equal(t, []string{f.owner.ID}, stored[0].Attendees, "failed removals leave the roster untouched")
}

func TestSessionService_ScheduleBroadcast(t *testing.T) {
	f := newSessionFixture(t)

	session, err := f.sessions.ScheduleBroadcast(context.Background(), f.broadcastArgs())
	require.NoError(t, err)
	assert.Equal(t, model.SessionKindBroadcast, session.Kind)
	require.NotNil(t, session.Stream)
	assert.Equal(t, "key-yoga", session.Stream.Key)
	assert.Equal(t, "id-yoga", session.Stream.ID)
	require.NotNil(t, session.EndTime)
	assert.Equal(t, t0.Add(time.Hour), *session.EndTime)
	assert.Equal(t, []string{"yoga"}, f.streams.created)

	found, err := f.store.FindSession(context.Background(), ports.FindSessionQuery{StreamKey: "key-yoga"})
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
}

func TestSessionService_ScheduleBroadcastValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(args *model.ScheduleBroadcastArgs)
		field  string
	}{
		{name: "end equal to start", mutate: func(a *model.ScheduleBroadcastArgs) { a.Duration = 0; a.EndTime = t0 }, field: "endTime"},
		{name: "end before start", mutate: func(a *model.ScheduleBroadcastArgs) { a.EndTime = t0.Add(-time.Minute) }, field: "endTime"},
		{name: "no end and no duration", mutate: func(a *model.ScheduleBroadcastArgs) { a.Duration = 0 }, field: "endTime"},
		{name: "negative fee", mutate: func(a *model.ScheduleBroadcastArgs) { a.Fee = -1 }, field: "fee"},
		{name: "missing name", mutate: func(a *model.ScheduleBroadcastArgs) { a.SessionName = "" }, field: "sessionName"},
		{name: "start on another day", mutate: func(a *model.ScheduleBroadcastArgs) { a.StartTime = t0.AddDate(0, 3, 0) }, field: "startTime"},
		{name: "start the day before", mutate: func(a *model.ScheduleBroadcastArgs) { a.StartTime = day.Add(-time.Minute) }, field: "startTime"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newSessionFixture(t)
			args := f.broadcastArgs()
			test.mutate(&args)

			_, err := f.sessions.ScheduleBroadcast(context.Background(), args)
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, test.field, verr.Fields[0].Field)
			assert.Empty(t, f.streams.created, "no stream is provisioned for invalid input")
		})
	}
}

func TestSessionService_ScheduleBroadcastProvisioningFailure(t *testing.T) {
	tests := []struct {
		name       string
		createFunc func(ctx context.Context, name string) (*model.StreamHandle, error)
		wantErr    []error
		deleted    []string
	}{
		{
			name: "provider error",
			createFunc: func(context.Context, string) (*model.StreamHandle, error) {
				return nil, errors.New("provider unavailable")
			},
			wantErr: []error{model.ErrStreamProvisionFailed, model.ErrDependencyFailed},
		},
		{
			name: "provider timeout",
			createFunc: func(ctx context.Context, _ string) (*model.StreamHandle, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantErr: []error{model.ErrStreamProvisionFailed, model.ErrDependencyTimeout},
		},
		{
			name: "handle without key is torn down",
			createFunc: func(context.Context, string) (*model.StreamHandle, error) {
				return &model.StreamHandle{ID: "half"}, nil
			},
			wantErr: []error{model.ErrStreamProvisionFailed},
			deleted: []string{"half"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newSessionFixture(t, WithStreamTimeout(20*time.Millisecond))
			f.streams.CreateFunc = test.createFunc

			_, err := f.sessions.ScheduleBroadcast(context.Background(), f.broadcastArgs())
			for _, want := range test.wantErr {
				assert.ErrorIs(t, err, want)
			}
			assert.Empty(t, collect(t, f.sessions, day), "no session may exist after a failed provisioning")
			assert.Equal(t, test.deleted, f.streams.deleted)
		})
	}
}

// failingSaveStore fails every session insert.
type failingSaveStore struct {
	*memory.Store
}

func (failingSaveStore) SaveSession(context.Context, *model.Session) error {
	return errors.New("storage down")
}

func TestSessionService_ScheduleBroadcastPersistFailureTearsStreamDown(t *testing.T) {
	f := newSessionFixture(t)
	svc := NewSessionService(SessionServiceArgs{
		Sessions:   failingSaveStore{f.store},
		Slots:      f.store,
		Identities: f.store,
		Streams:    f.streams,
	})

	_, err := svc.ScheduleBroadcast(context.Background(), f.broadcastArgs())
	assert.ErrorContains(t, err, "storage down")
	assert.Equal(t, []string{"id-yoga"}, f.streams.deleted)
}

func TestSessionService_DeleteSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	session, err := f.sessions.ScheduleBroadcast(ctx, f.broadcastArgs())
	require.NoError(t, err)

	err = f.sessions.DeleteSession(ctx, model.DeleteSessionArgs{StreamKey: "unknown", ActorID: f.owner.ID})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	err = f.sessions.DeleteSession(ctx, model.DeleteSessionArgs{StreamKey: session.Stream.Key, ActorID: f.u2.ID})
	assert.ErrorIs(t, err, model.ErrNotOwner)

	f.streams.DeleteError = errors.New("provider unavailable")
	err = f.sessions.DeleteSession(ctx, model.DeleteSessionArgs{StreamKey: session.Stream.Key, ActorID: f.owner.ID})
	assert.ErrorIs(t, err, model.ErrStreamTeardownFailed)
	assert.Len(t, collect(t, f.sessions, day), 1, "a failed teardown keeps the session")

	f.streams.DeleteError = nil
	require.NoError(t, f.sessions.DeleteSession(ctx, model.DeleteSessionArgs{StreamKey: session.Stream.Key, ActorID: f.owner.ID}))
	assert.Empty(t, collect(t, f.sessions, day))
	assert.Equal(t, []string{"id-yoga", "id-yoga"}, f.streams.deleted)
}

func TestSessionService_ListSessionsByDate(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	late := f.broadcastArgs()
	late.SessionName = "late"
	late.StartTime = t0.Add(5 * time.Hour)
	_, err := f.sessions.ScheduleBroadcast(ctx, late)
	require.NoError(t, err)

	early := f.broadcastArgs()
	early.SessionName = "early"
	_, err = f.sessions.ScheduleBroadcast(ctx, early)
	require.NoError(t, err)

	other := f.broadcastArgs()
	other.SessionName = "tomorrow"
	other.Date = day.Add(24 * time.Hour)
	other.StartTime = t0.Add(24 * time.Hour)
	_, err = f.sessions.ScheduleBroadcast(ctx, other)
	require.NoError(t, err)

	booked, err := f.sessions.BookSlot(ctx, model.BookSlotArgs{SlotID: f.slot.ID, OwnerID: f.owner.ID})
	require.NoError(t, err)

	seq := f.sessions.ListSessionsByDate(ctx, day.Add(13*time.Hour))
	var names []string
	for session, err := range seq {
		require.NoError(t, err)
		names = append(names, session.SessionName)
	}
	assert.Equal(t, []string{"", "early", "late"}, names)

	// restartable: ranging again re-reads the store
	require.NoError(t, f.store.DeleteSession(ctx, booked.ID))
	names = names[:0]
	for session, err := range seq {
		require.NoError(t, err)
		names = append(names, session.SessionName)
	}
	assert.Equal(t, []string{"early", "late"}, names)
}

func TestSessionService_PublishesEvents(t *testing.T) {
	sender := &MockSender{t: t}
	f := newSessionFixture(t, WithSessionSender(sender))
	ctx := context.Background()

	session, err := f.sessions.ScheduleBroadcast(ctx, f.broadcastArgs())
	require.NoError(t, err)
	_, err = f.sessions.AddAttendee(ctx, session.ID, "u2")
	require.NoError(t, err)
	_, err = f.sessions.AddAttendee(ctx, session.ID, "u2")
	require.NoError(t, err, "a repeated add succeeds without an event")
	_, err = f.sessions.RemoveAttendee(ctx, session.ID, "u2")
	require.NoError(t, err)
	require.NoError(t, f.sessions.DeleteSession(ctx, model.DeleteSessionArgs{StreamKey: session.Stream.Key, ActorID: f.owner.ID}))

	var types []model.EventType
	for _, e := range sender.sent {
		types = append(types, e.Type)
	}
	assert.Equal(t, []model.EventType{
		model.EventSessionCreated,
		model.EventAttendeeAdded,
		model.EventAttendeeRemoved,
		model.EventSessionDeleted,
	}, types)
}
