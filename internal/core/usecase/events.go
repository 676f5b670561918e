package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// publisher emits domain events after a change is committed. Publishing is best-effort: the change
// is already durable, so a failure is logged and never surfaced to the caller.
type publisher struct {
	sender  ports.Sender
	nowFunc func() time.Time
}

func newPublisher() publisher {
	return publisher{nowFunc: func() time.Time { return time.Now().UTC() }}
}

func (p publisher) publish(ctx context.Context, event model.Event) {
	if p.sender == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = p.nowFunc()
	if err := p.sender.Send(ctx, event); err != nil {
		log.WithError(err).
			WithField("event-type", event.Type).
			WithField("event-id", event.ID).
			Warn("could not publish domain event")
	}
}
