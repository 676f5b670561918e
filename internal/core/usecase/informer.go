package usecase

import (
	"context"
	"fmt"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
)

// NewInformer builds a new informer.
func NewInformer(sender ports.Sender) *Informer {
	return &Informer{sender: sender}
}

// Informer adapts internal domain events to public-facing ones. It publicly 'informs' about
// identity, slot and session changes.
type Informer struct {
	sender ports.Sender
}

// Handle redacts the event and forwards it. Events carrying no entity are dropped.
func (i *Informer) Handle(ctx context.Context, event model.Event) error {
	if event.Identity == nil && event.Slot == nil && event.Session == nil {
		return nil
	}

	// 1. contact data stays internal
	if event.Identity != nil {
		identity := *event.Identity
		identity.Email = ""
		identity.FeedbackID = nil
		event.Identity = &identity
	}

	// 2. the stream key grants publishing rights on the stream, the provider payload embeds it too
	if event.Session != nil && event.Session.Stream != nil {
		session := *event.Session
		session.Stream = &model.StreamHandle{ID: event.Session.Stream.ID}
		event.Session = &session
	}

	if err := i.sender.Send(ctx, event); err != nil {
		return fmt.Errorf("error sending event ID [%s]: %w", event.ID, err)
	}

	return nil
}
