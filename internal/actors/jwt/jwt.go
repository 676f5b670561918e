package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
)

// DefaultTTL is the lifetime of every issued token.
const DefaultTTL = 3 * time.Hour

// Tokens issues and verifies HS256 signed access tokens.
type Tokens struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

// TokensArgs are the mandatory arguments for the creation of Tokens.
type TokensArgs struct {
	// Secret is the HMAC signing key.
	Secret string
}

// TokensOptArgs are the optional arguments for building Tokens.
type TokensOptArgs = func(*Tokens)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) TokensOptArgs {
	return func(t *Tokens) {
		t.nowFunc = nowFunc
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) TokensOptArgs {
	return func(t *Tokens) {
		t.ttl = ttl
	}
}

// NewTokens creates new Tokens.
func NewTokens(args TokensArgs, optArgs ...TokensOptArgs) (*Tokens, error) {
	if args.Secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	t := &Tokens{
		secret:  []byte(args.Secret),
		ttl:     DefaultTTL,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(t)
	}
	return t, nil
}

var (
	_ ports.TokenIssuer   = (*Tokens)(nil)
	_ ports.TokenVerifier = (*Tokens)(nil)
)

type claims struct {
	model.Claims
	jwtlib.RegisteredClaims
}

// Issue signs the claims. The token expires exactly ttl after its issue time.
func (t *Tokens) Issue(identity model.Claims) (string, error) {
	now := t.nowFunc().Truncate(time.Second)
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims{
		Claims: identity,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(t.ttl)),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry. Any failure is reported as model.ErrUnauthorized.
func (t *Tokens) Verify(token string) (*model.Claims, error) {
	parsed := new(claims)
	_, err := jwtlib.ParseWithClaims(token, parsed, func(*jwtlib.Token) (any, error) {
		return t.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(t.nowFunc),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrUnauthorized, err)
	}
	if parsed.Claims.ID == "" {
		return nil, fmt.Errorf("%w: token carries no identity", model.ErrUnauthorized)
	}
	return &parsed.Claims, nil
}
