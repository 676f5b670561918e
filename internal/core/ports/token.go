package ports

import "github.com/rbroggi/slotcast/internal/core/model"

// TokenIssuer turns identity claims into a signed, time-limited bearer credential.
type TokenIssuer interface {
	Issue(claims model.Claims) (string, error)
}

// TokenVerifier checks a bearer credential and returns the claims it carries.
// Invalid or expired tokens yield model.ErrUnauthorized.
type TokenVerifier interface {
	Verify(token string) (*model.Claims, error)
}
