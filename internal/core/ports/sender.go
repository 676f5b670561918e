package ports

import (
	"context"

	"github.com/rbroggi/slotcast/internal/core/model"
)

// Sender is the port for publishing outbound domain events.
type Sender interface {
	// Send sends event data.
	Send(ctx context.Context, event model.Event) error
}
