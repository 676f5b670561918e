package ports

import (
	"context"

	"github.com/rbroggi/slotcast/internal/core/model"
)

// StreamProvider is the port for the third-party live-streaming service.
type StreamProvider interface {
	// CreateStream provisions a remote stream named after the session.
	CreateStream(ctx context.Context, sessionName string) (*model.StreamHandle, error)

	// DeleteStream tears down the remote stream with the given provider id.
	DeleteStream(ctx context.Context, streamID string) error
}
