package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_IdentityUniqueness(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveIdentity(ctx, &model.Identity{UUID: "u1", Email: "a@x.com"}))
	assert.ErrorIs(t, store.SaveIdentity(ctx, &model.Identity{UUID: "u1", Email: "b@x.com"}), model.ErrDuplicateUUID)
	assert.ErrorIs(t, store.SaveIdentity(ctx, &model.Identity{UUID: "u2", Email: "a@x.com"}), model.ErrDuplicateEmail)

	found, err := store.FindIdentity(ctx, ports.FindIdentityQuery{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "u1", found.UUID)

	_, err = store.FindIdentity(ctx, ports.FindIdentityQuery{ID: "missing"})
	assert.ErrorIs(t, err, model.ErrIdentityNotFound)
}

func TestStore_UpdateSlotKeepsOwner(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	store := NewStore(WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()

	slot := &model.Slot{Category: "A", UserID: "owner"}
	require.NoError(t, store.SaveSlot(ctx, slot))

	now = now.Add(time.Hour)
	update := &model.Slot{ID: slot.ID, Category: "B"}
	require.NoError(t, store.UpdateSlot(ctx, update))
	assert.Equal(t, "owner", update.UserID)
	assert.Equal(t, slot.CreatedAt, update.CreatedAt)
	assert.Equal(t, now, update.UpdatedAt)

	assert.ErrorIs(t, store.UpdateSlot(ctx, &model.Slot{ID: "missing"}), model.ErrSlotNotFound)
}

func TestStore_ReturnedSessionsAreCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	session := &model.Session{Kind: model.SessionKindSlot, Stream: &model.StreamHandle{Key: "k", ID: "i"}}
	require.NoError(t, store.SaveSession(ctx, session))

	found, err := store.FindSession(ctx, ports.FindSessionQuery{StreamKey: "k"})
	require.NoError(t, err)
	found.Attendees = append(found.Attendees, "intruder")
	found.Stream.Key = "changed"

	again, err := store.FindSession(ctx, ports.FindSessionQuery{ID: session.ID})
	require.NoError(t, err)
	assert.Empty(t, again.Attendees)
	assert.Equal(t, "k", again.Stream.Key)
}

func TestStore_ConcurrentAddAttendee(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	session := &model.Session{Kind: model.SessionKindSlot, Capacity: 10}
	require.NoError(t, store.SaveSession(ctx, session))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _ = store.AddAttendee(ctx, session.ID, string(rune('a'+i%20)))
		}(i)
	}
	wg.Wait()

	found, err := store.FindSession(ctx, ports.FindSessionQuery{ID: session.ID})
	require.NoError(t, err)
	assert.Len(t, found.Attendees, 10)
	assert.Equal(t, model.SessionStatusBooked, found.Status)

	seen := map[string]bool{}
	for _, a := range found.Attendees {
		assert.False(t, seen[a], "duplicate attendee %s", a)
		seen[a] = true
	}
}

func TestStore_RepeatedAddAttendeeWritesNothing(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithNowFunc(func() time.Time { return now }))
	ctx := context.Background()
	session := &model.Session{Kind: model.SessionKindSlot, Capacity: 1}
	require.NoError(t, store.SaveSession(ctx, session))

	updated, added, err := store.AddAttendee(ctx, session.ID, "a")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, model.SessionStatusBooked, updated.Status)

	now = now.Add(time.Hour)
	again, added, err := store.AddAttendee(ctx, session.ID, "a")
	require.NoError(t, err, "a present attendee of a full session is a no-op")
	assert.False(t, added)
	assert.Equal(t, []string{"a"}, again.Attendees)
	assert.Equal(t, updated.UpdatedAt, again.UpdatedAt)

	_, _, err = store.AddAttendee(ctx, session.ID, "b")
	assert.ErrorIs(t, err, model.ErrSessionFull)

	_, _, err = store.AddAttendee(ctx, "missing", "a")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestStore_ListSessionsByDateStopsEarly(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SaveSession(ctx, &model.Session{Kind: model.SessionKindSlot, Date: day}))
	}

	count := 0
	for _, err := range store.ListSessionsByDate(ctx, day) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}
