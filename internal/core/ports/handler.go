package ports

import (
	"context"

	"github.com/rbroggi/slotcast/internal/core/model"
)

// EventHandler handles incoming domain events.
type EventHandler interface {
	// Handle will receive an incoming event and handle it.
	Handle(ctx context.Context, event model.Event) error
}
