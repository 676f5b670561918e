// Package avatar serves the avatar images new identities are drawn from.
package avatar

import (
	"context"
	"strings"

	"github.com/rbroggi/slotcast/internal/core/ports"
)

// Static is an avatar source backed by a fixed list of image URLs.
type Static struct {
	images []string
}

// NewStatic creates a Static source. Entries are kept as given, empty ones included.
func NewStatic(images []string) *Static {
	return &Static{images: append([]string(nil), images...)}
}

// ParseList splits a comma separated list of image URLs, trimming blanks around each entry.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

var _ ports.AvatarSource = (*Static)(nil)

// Candidates returns a copy of the configured images.
func (s *Static) Candidates(context.Context) ([]string, error) {
	return append([]string(nil), s.images...), nil
}
