package ports

import "context"

// AvatarSource lists the candidate avatar images identities can be assigned at registration.
// Entries may be empty strings; callers skip those.
type AvatarSource interface {
	Candidates(ctx context.Context) ([]string, error)
}
