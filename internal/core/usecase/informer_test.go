package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSender is a mock implementation of the Sender interface.
type MockSender struct {
	t              *testing.T
	called         bool
	sent           []model.Event
	EventAssertion func(t *testing.T, event model.Event)
	SendError      error
}

func (m *MockSender) Send(ctx context.Context, event model.Event) error {
	m.called = true
	m.sent = append(m.sent, event)
	if m.EventAssertion != nil {
		m.EventAssertion(m.t, event)
	}
	return m.SendError
}

func TestInformer_Handle(t *testing.T) {
	sendingError := errors.New("sending error")
	feedbackID := int64(7)
	tests := []struct {
		name            string
		event           model.Event
		eventAssertion  func(t *testing.T, event model.Event)
		sendError       error
		callsSendMethod bool
		expectedError   func(t *testing.T, err error)
	}{
		{
			name: "identity registration hides contact data",
			event: model.Event{
				ID:   "1",
				Type: model.EventIdentityRegistered,
				Identity: &model.Identity{
					UUID:       "u1",
					UserName:   "bob",
					Email:      "a@x.com",
					FeedbackID: &feedbackID,
				},
			},
			eventAssertion: func(t *testing.T, event model.Event) {
				require.NotNil(t, event.Identity)
				require.Equal(t, "1", event.ID)
				require.Equal(t, "u1", event.Identity.UUID)
				require.Equal(t, "bob", event.Identity.UserName)
				require.Empty(t, event.Identity.Email)
				require.Nil(t, event.Identity.FeedbackID)
			},
			callsSendMethod: true,
		},
		{
			name: "broadcast creation hides the stream key",
			event: model.Event{
				ID:   "2",
				Type: model.EventSessionCreated,
				Session: &model.Session{
					Kind:        model.SessionKindBroadcast,
					SessionName: "yoga",
					Stream: &model.StreamHandle{
						Key:     "secret",
						ID:      "stream-1",
						Details: map[string]any{"streamKey": "secret"},
					},
				},
			},
			eventAssertion: func(t *testing.T, event model.Event) {
				require.NotNil(t, event.Session)
				require.NotNil(t, event.Session.Stream)
				require.Equal(t, "yoga", event.Session.SessionName)
				require.Equal(t, "stream-1", event.Session.Stream.ID)
				require.Empty(t, event.Session.Stream.Key)
				require.Nil(t, event.Session.Stream.Details)
			},
			callsSendMethod: true,
		},
		{
			name: "slot session is forwarded untouched",
			event: model.Event{
				ID:      "3",
				Type:    model.EventAttendeeAdded,
				Session: &model.Session{Kind: model.SessionKindSlot, Attendees: []string{"a"}},
			},
			eventAssertion: func(t *testing.T, event model.Event) {
				require.NotNil(t, event.Session)
				require.Nil(t, event.Session.Stream)
				require.Equal(t, []string{"a"}, event.Session.Attendees)
			},
			callsSendMethod: true,
		},
		{
			name:            "event without entity should not be sent",
			event:           model.Event{ID: "4", Type: model.EventSlotCreated},
			callsSendMethod: false,
		},
		{
			name:  "error in sending event triggers error in handler",
			event: model.Event{ID: "5", Type: model.EventSlotCreated, Slot: &model.Slot{Category: "A"}},
			eventAssertion: func(t *testing.T, event model.Event) {
				require.NotNil(t, event.Slot)
				require.Equal(t, "A", event.Slot.Category)
			},
			sendError:       sendingError,
			callsSendMethod: true,
			expectedError: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, sendingError)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sender := &MockSender{
				t:              t,
				EventAssertion: test.eventAssertion,
				SendError:      test.sendError,
			}
			informer := NewInformer(sender)
			err := informer.Handle(context.Background(), test.event)
			if test.expectedError != nil {
				test.expectedError(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, test.callsSendMethod, sender.called)
		})
	}
}

func TestInformer_HandleDoesNotMutateInput(t *testing.T) {
	sender := &MockSender{t: t}
	identity := &model.Identity{Email: "a@x.com"}
	session := &model.Session{Stream: &model.StreamHandle{Key: "k", ID: "id"}}

	require.NoError(t, NewInformer(sender).Handle(context.Background(), model.Event{Identity: identity, Session: session}))

	assert.Equal(t, "a@x.com", identity.Email)
	assert.Equal(t, "k", session.Stream.Key)
}
