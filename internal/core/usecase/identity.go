package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
)

// IdentityServiceArgs contains the mandatory arguments for the IdentityService.
type IdentityServiceArgs struct {
	// Repository is the repository for identity persistence.
	Repository ports.IdentityRepository

	// TokenIssuer signs the access tokens handed out on login and profile updates.
	TokenIssuer ports.TokenIssuer
}

// IdentityServiceOptArgs are the optional arguments for building an IdentityService.
type IdentityServiceOptArgs = func(*IdentityService)

// WithAvatarSource makes registration assign a random avatar when none is given.
func WithAvatarSource(source ports.AvatarSource) IdentityServiceOptArgs {
	return func(s *IdentityService) {
		s.avatars = source
	}
}

// WithIntN overrides the random index generator used for avatar draws. Useful for testing.
func WithIntN(intN func(n int) int) IdentityServiceOptArgs {
	return func(s *IdentityService) {
		s.intN = intN
	}
}

// WithIdentitySender publishes identity events through sender.
func WithIdentitySender(sender ports.Sender) IdentityServiceOptArgs {
	return func(s *IdentityService) {
		s.events.sender = sender
	}
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(args IdentityServiceArgs, optArgs ...IdentityServiceOptArgs) *IdentityService {
	s := &IdentityService{
		repository: args.Repository,
		tokens:     args.TokenIssuer,
		intN:       rand.IntN,
		events:     newPublisher(),
	}
	for _, opt := range optArgs {
		opt(s)
	}
	return s
}

// IdentityService gathers the functionality around the identity lifecycle.
type IdentityService struct {
	repository ports.IdentityRepository
	tokens     ports.TokenIssuer
	avatars    ports.AvatarSource
	intN       func(n int) int
	events     publisher
}

// avatarDrawsPerCandidate bounds the random draws before falling back to the first usable image.
const avatarDrawsPerCandidate = 64

// Register creates an identity. The uuid and email uniqueness checks run before the insert; the
// storage unique constraints remain the authoritative guard against concurrent registrations.
func (s *IdentityService) Register(ctx context.Context, args model.RegisterArgs) (*model.Identity, error) {
	verr := new(model.ValidationError)
	if args.UUID == "" {
		verr.Add("uuid", "UUID must be specified.")
	}
	if args.Email == "" {
		verr.Add("email", "Email must be specified.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.ensureAbsent(ctx, ports.FindIdentityQuery{UUID: args.UUID}, model.ErrDuplicateUUID); err != nil {
		return nil, err
	}
	if err := s.ensureAbsent(ctx, ports.FindIdentityQuery{Email: args.Email}, model.ErrDuplicateEmail); err != nil {
		return nil, err
	}

	image := args.Image
	if image == "" && s.avatars != nil {
		var err error
		if image, err = s.drawAvatar(ctx); err != nil {
			return nil, err
		}
	}

	identity := &model.Identity{
		UUID:     args.UUID,
		Email:    args.Email,
		UserName: args.UserName,
		Category: args.Category,
		Image:    image,
	}
	if err := s.repository.SaveIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("error saving identity in repository: %w", err)
	}

	s.events.publish(ctx, model.Event{Type: model.EventIdentityRegistered, Identity: identity})
	return identity, nil
}

func (s *IdentityService) ensureAbsent(ctx context.Context, query ports.FindIdentityQuery, dupErr error) error {
	_, err := s.repository.FindIdentity(ctx, query)
	switch {
	case err == nil:
		return dupErr
	case errors.Is(err, model.ErrIdentityNotFound):
		return nil
	default:
		return fmt.Errorf("error checking identity uniqueness: %w", err)
	}
}

// drawAvatar picks a uniformly random candidate, drawing again while it hits an empty entry.
func (s *IdentityService) drawAvatar(ctx context.Context) (string, error) {
	candidates, err := s.avatars.Candidates(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing avatar candidates: %w", err)
	}

	firstUsable := -1
	for i, c := range candidates {
		if c != "" {
			firstUsable = i
			break
		}
	}
	if firstUsable < 0 {
		return "", model.ErrNoAvailableAvatar
	}

	for attempt := 0; attempt < avatarDrawsPerCandidate*len(candidates); attempt++ {
		if c := candidates[s.intN(len(candidates))]; c != "" {
			return c, nil
		}
	}
	return candidates[firstUsable], nil
}

// FindByUUID resolves an identity by its external uuid.
func (s *IdentityService) FindByUUID(ctx context.Context, uuid string) (*model.Identity, error) {
	identity, err := s.repository.FindIdentity(ctx, ports.FindIdentityQuery{UUID: uuid})
	if err != nil {
		return nil, fmt.Errorf("error finding identity by uuid: %w", err)
	}
	return identity, nil
}

// Login resolves the identity by uuid and issues an access token for it.
// It returns model.ErrInvalidCredentials when the uuid is unknown.
func (s *IdentityService) Login(ctx context.Context, uuid string) (*model.LoginResponse, error) {
	if uuid == "" {
		return nil, model.NewValidationError("uuid", "UUID must be specified.")
	}
	identity, err := s.repository.FindIdentity(ctx, ports.FindIdentityQuery{UUID: uuid})
	if errors.Is(err, model.ErrIdentityNotFound) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("error finding identity by uuid: %w", err)
	}

	token, err := s.IssueToken(*identity)
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{Identity: *identity, AccessToken: token}, nil
}

// Status reports whether uuid is registered. When userName is given it must match as well.
func (s *IdentityService) Status(ctx context.Context, uuid, userName string) (bool, error) {
	identity, err := s.repository.FindIdentity(ctx, ports.FindIdentityQuery{UUID: uuid})
	if errors.Is(err, model.ErrIdentityNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error finding identity by uuid: %w", err)
	}
	if userName != "" && !strings.EqualFold(identity.UserName, userName) {
		return false, nil
	}
	return true, nil
}

// UpdateProfile applies the non-empty userName and category. It returns model.ErrNoFieldsProvided
// when both are empty, and model.ErrIdentityNotFound if the identity does not exist.
func (s *IdentityService) UpdateProfile(ctx context.Context, args model.UpdateProfileArgs) (*model.Identity, error) {
	if args.UserName == "" && args.Category == "" {
		return nil, model.ErrNoFieldsProvided
	}

	identity := &model.Identity{
		ID:       args.ID,
		UserName: args.UserName,
		Category: args.Category,
	}
	if err := s.repository.UpdateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("error updating identity: %w", err)
	}

	s.events.publish(ctx, model.Event{Type: model.EventIdentityUpdated, Identity: identity})
	return identity, nil
}

// IssueToken signs an access token carrying the identity claims.
func (s *IdentityService) IssueToken(identity model.Identity) (string, error) {
	token, err := s.tokens.Issue(model.ClaimsFor(identity))
	if err != nil {
		return "", fmt.Errorf("error issuing access token: %w", err)
	}
	return token, nil
}
