package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/infra/logger"
	"github.com/filograficos/identity-service/internal/infra/security"
	"github.com/filograficos/identity-service/internal/repository"
)

var (
	// ErrEmailTaken indicates the email already belongs to an identity.
	ErrEmailTaken = errors.New("email is already registered")
	// ErrInvalidRole indicates a role outside the closed set.
	ErrInvalidRole = errors.New("role is not recognized")
	// ErrVerificationTokenInvalid indicates an unknown or already consumed
	// verification token.
	ErrVerificationTokenInvalid = errors.New("verification token is invalid")
	// ErrVerificationTokenExpired indicates the token outlived its window.
	ErrVerificationTokenExpired = errors.New("verification token has expired")
	// ErrAlreadyVerified indicates the identity is no longer pending.
	ErrAlreadyVerified = errors.New("identity is already verified")
)

const verificationTokenBytes = 32

// RegisterInput carries a new registration.
type RegisterInput struct {
	Name       string
	Email      string
	Phone      *string
	Address    *domain.Address
	Password   string
	Role       domain.Role
	MFAEnabled bool
}

// RegisterResult reports the created identity and verification delivery.
type RegisterResult struct {
	Identity domain.Identity
	// VerificationExpiresAt bounds the window for redeeming the emailed link.
	VerificationExpiresAt time.Time
	VerificationSent      bool
}

// RegistrationService creates identities in the pending state and activates
// them when the emailed verification token is redeemed.
type RegistrationService struct {
	identities    port.IdentityRepository
	credentials   port.CredentialRepository
	verifications port.VerificationRepository
	policies      *PolicyService
	validator     *security.PasswordValidator
	notifier      port.Notifier
	events        port.EventPublisher
	logger        *zap.Logger
	now           func() time.Time
}

// NewRegistrationService wires the registration flow.
func NewRegistrationService(
	identities port.IdentityRepository,
	credentials port.CredentialRepository,
	verifications port.VerificationRepository,
	policies *PolicyService,
	validator *security.PasswordValidator,
	notifier port.Notifier,
	events port.EventPublisher,
	log *zap.Logger,
) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		identities:    identities,
		credentials:   credentials,
		verifications: verifications,
		policies:      policies,
		validator:     validator,
		notifier:      notifier,
		events:        events,
		logger:        log,
		now:           time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Register validates the input, persists the identity as pending with its
// credential, and emails a verification link. The identity cannot log in
// until the link is redeemed.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("name and a valid email are required")
	}

	role := input.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	if err := s.validator.Validate(input.Password); err != nil {
		return nil, err
	}

	if _, err := s.identities.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email availability: %w", err)
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	identity := domain.Identity{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Phone:        input.Phone,
		Address:      input.Address,
		Role:         role,
		Status:       domain.StatusPending,
		MFAEnabled:   input.MFAEnabled,
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("persist identity: %w", err)
	}

	credential := domain.Credential{
		ID:                 uuid.NewString(),
		IdentityID:         identity.ID,
		PasswordHash:       hash,
		LastPasswordChange: now,
		MFAKind:            domain.MFAKindOTP,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.credentials.Create(ctx, credential); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}

	result := &RegisterResult{Identity: identity}

	rawToken, expiresAt, err := s.issueVerification(ctx, identity.ID, now)
	if err != nil {
		return nil, err
	}
	result.VerificationExpiresAt = expiresAt

	if s.notifier != nil {
		vars := map[string]string{
			"token": rawToken,
			"name":  identity.Name,
		}
		if err := s.notifier.Send(ctx, identity.Email, port.TemplateVerificationLink, vars); err != nil {
			s.logger.Warn("failed to send verification email",
				zap.String("identity_id", identity.ID),
				zap.String("email", logger.MaskEmail(identity.Email)),
				zap.Error(err),
			)
		} else {
			result.VerificationSent = true
		}
	}

	if s.events != nil {
		event := domain.IdentityRegisteredEvent{
			EventID:    uuid.NewString(),
			IdentityID: identity.ID,
			Email:      identity.Email,
			Role:       identity.Role,
			OccurredAt: now,
		}
		if err := s.events.PublishIdentityRegistered(ctx, event); err != nil {
			s.logger.Warn("failed to publish registration event",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// VerifyEmail redeems a verification token and activates the identity. The
// token is single use; a second redemption fails as invalid.
func (s *RegistrationService) VerifyEmail(ctx context.Context, rawToken string) (*domain.Identity, error) {
	if rawToken == "" {
		return nil, ErrVerificationTokenInvalid
	}

	token, err := s.verifications.GetByHash(ctx, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVerificationTokenInvalid
		}
		return nil, fmt.Errorf("load verification token: %w", err)
	}

	now := s.now().UTC()
	if token.UsedAt != nil {
		return nil, ErrVerificationTokenInvalid
	}
	if !now.Before(token.ExpiresAt) {
		return nil, ErrVerificationTokenExpired
	}

	identity, err := s.identities.GetByID(ctx, token.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVerificationTokenInvalid
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	if identity.Status != domain.StatusPending {
		return nil, ErrAlreadyVerified
	}

	if err := s.identities.UpdateStatus(ctx, identity.ID, domain.StatusActive, now); err != nil {
		return nil, fmt.Errorf("activate identity: %w", err)
	}
	identity.Status = domain.StatusActive

	if err := s.verifications.Consume(ctx, token.ID, now); err != nil {
		s.logger.Warn("failed to consume verification token",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	if s.events != nil {
		event := domain.IdentityVerifiedEvent{
			EventID:    uuid.NewString(),
			IdentityID: identity.ID,
			OccurredAt: now,
		}
		if err := s.events.PublishIdentityVerified(ctx, event); err != nil {
			s.logger.Warn("failed to publish verification event",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
		}
	}

	return identity, nil
}

// ResendVerification issues a replacement token for a still-pending identity.
func (s *RegistrationService) ResendVerification(ctx context.Context, email string) (*RegisterResult, error) {
	identity, err := s.identities.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	if identity.Status != domain.StatusPending {
		return nil, ErrAlreadyVerified
	}

	now := s.now().UTC()
	rawToken, expiresAt, err := s.issueVerification(ctx, identity.ID, now)
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{Identity: *identity, VerificationExpiresAt: expiresAt}

	if s.notifier != nil {
		vars := map[string]string{
			"token": rawToken,
			"name":  identity.Name,
		}
		if err := s.notifier.Send(ctx, identity.Email, port.TemplateVerificationLink, vars); err != nil {
			s.logger.Warn("failed to resend verification email",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
		} else {
			result.VerificationSent = true
		}
	}

	return result, nil
}

func (s *RegistrationService) issueVerification(ctx context.Context, identityID string, now time.Time) (string, time.Time, error) {
	rawToken, err := security.GenerateSecureToken(verificationTokenBytes)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification token: %w", err)
	}

	expiresAt := now.Add(s.policies.Current().VerificationLifetime)
	token := domain.VerificationToken{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		TokenHash:  security.HashToken(rawToken),
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	}

	if err := s.verifications.Create(ctx, token); err != nil {
		return "", time.Time{}, fmt.Errorf("persist verification token: %w", err)
	}

	return rawToken, expiresAt, nil
}
