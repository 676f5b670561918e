package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"

	log "github.com/sirupsen/logrus"
)

// SubscriberArgs contain the mandatory arguments to build a subscriber.
type SubscriberArgs struct {
	// Subscription is a pubsub subscription
	Subscription *pubsub.Subscription

	// EventHandler handles every decoded event
	EventHandler ports.EventHandler
}

// Subscriber is a pubsub async subscriber
type Subscriber struct {
	subscription *pubsub.Subscription
	eventHandler ports.EventHandler
}

// NewSubscriber creates a subscriber
func NewSubscriber(args SubscriberArgs) *Subscriber {
	return &Subscriber{
		subscription: args.Subscription,
		eventHandler: args.EventHandler,
	}
}

// Consume starts the subscriber. This is a blocking method and should be started in it's own go-routine.
// The way to terminate the method is to cancel the context in input.
func (s *Subscriber) Consume(ctx context.Context) error {
	if err := s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		event, err := decodeMsgIntoEvent(msg)
		if errors.Is(err, ErrIgnoreEvent) {
			log.WithField("message-id", msg.ID).Debug("ignoring message")
			msg.Ack()
			return
		}
		if err != nil {
			log.WithError(err).WithField("message-id", msg.ID).Error("error decoding message into event")
			msg.Nack()
			return
		}

		if err := s.eventHandler.Handle(ctx, *event); err != nil {
			log.WithError(err).WithField("event-id", event.ID).Error("error in event handler")
			msg.Nack()
		} else {
			msg.Ack()
		}
	}); err != nil {
		return fmt.Errorf("error receiving messages from subscription: %w", err)
	}
	return nil
}

var (
	// ErrIgnoreEvent marks well formed messages that carry nothing to handle.
	ErrIgnoreEvent = errors.New("event should be ignored")
)

func decodeMsgIntoEvent(msg *pubsub.Message) (*model.Event, error) {
	if msg == nil {
		return nil, errors.New("cannot decode nil pubsub msg")
	}
	event := new(model.Event)
	if err := json.Unmarshal(msg.Data, event); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	if event.Type == "" {
		return nil, ErrIgnoreEvent
	}
	if event.ID == "" {
		event.ID = msg.ID
	}
	return event, nil
}
