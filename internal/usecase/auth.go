package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/infra/logger"
	"github.com/filograficos/identity-service/internal/infra/security"
	"github.com/filograficos/identity-service/internal/repository"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIdentityNotFound indicates the referenced identity does not exist.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityBlocked indicates the identity is locked out.
	ErrIdentityBlocked = errors.New("identity is blocked")
	// ErrIdentityPermanentlyBlocked indicates the escalated lockout state.
	ErrIdentityPermanentlyBlocked = errors.New("identity is permanently blocked")
	// ErrIdentitySuspended indicates an administrative hold.
	ErrIdentitySuspended = errors.New("identity is suspended")
	// ErrIdentityInactive indicates a state that cannot authenticate, such as
	// an unverified registration.
	ErrIdentityInactive = errors.New("identity is not active")
	// ErrVerificationRequired indicates the email address is still unverified.
	ErrVerificationRequired = errors.New("email verification required")
	// ErrPasswordChangeRequired indicates the credential must be replaced
	// before a session can be issued.
	ErrPasswordChangeRequired = errors.New("password change required")
)

// LoginOutcome distinguishes a completed login from one awaiting a second
// factor.
type LoginOutcome string

const (
	OutcomeAuthenticated     LoginOutcome = "authenticated"
	OutcomeChallengeRequired LoginOutcome = "challenge_required"
)

// LoginInput carries the credentials and client metadata for a login attempt.
type LoginInput struct {
	Email    string
	Password string
	IP       *string
	Client   *string
}

// ChallengeInput completes a pending second-factor login.
type ChallengeInput struct {
	IdentityID string
	Code       string
	IP         *string
	Client     *string
}

// LoginResult is the outcome of a successful Login or CompleteChallenge.
type LoginResult struct {
	Outcome  LoginOutcome
	Identity domain.Identity
	Token    string
	Session  *domain.Session
	// RotationWarning is set when the credential enters its pre-expiry window.
	RotationWarning   bool
	RotationRemaining time.Duration
	// ChallengeExpiresAt is set when Outcome is OutcomeChallengeRequired.
	ChallengeExpiresAt time.Time
}

// AuthService orchestrates credential verification, lockout accounting,
// rotation checks, the optional second factor, and session issuance.
type AuthService struct {
	identities  port.IdentityRepository
	credentials port.CredentialRepository
	lockouts    *LockoutService
	sessions    *SessionService
	mfa         *MFAService
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService wires the login flow.
func NewAuthService(
	identities port.IdentityRepository,
	credentials port.CredentialRepository,
	lockouts *LockoutService,
	sessions *SessionService,
	mfa *MFAService,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		identities:  identities,
		credentials: credentials,
		lockouts:    lockouts,
		sessions:    sessions,
		mfa:         mfa,
		logger:      log,
		now:         time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login verifies the credentials and either issues a session or opens a
// second-factor challenge. Unknown emails burn the same hash verification as
// wrong passwords, so the failure is indistinguishable from outside.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnVerification(input.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	switch identity.Status {
	case domain.StatusActive:
	case domain.StatusPending:
		return nil, ErrVerificationRequired
	case domain.StatusBlocked:
		return nil, ErrIdentityBlocked
	case domain.StatusPermanentlyBlocked:
		return nil, ErrIdentityPermanentlyBlocked
	case domain.StatusSuspended:
		return nil, ErrIdentitySuspended
	default:
		return nil, ErrIdentityInactive
	}

	credential, err := s.credentials.GetByIdentity(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnVerification(input.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	match, err := security.VerifyPassword(input.Password, credential.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !match {
		outcome, recErr := s.lockouts.RecordFailure(ctx, identity.ID, input.IP)
		if recErr != nil {
			s.logger.Warn("failed to record login failure",
				zap.String("identity_id", identity.ID),
				zap.Error(recErr),
			)
			return nil, ErrInvalidCredentials
		}

		s.logger.Info("login failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Int("attempts", outcome.Attempts),
			zap.Bool("locked", outcome.Locked),
		)

		if outcome.Locked {
			if outcome.Permanent {
				return nil, ErrIdentityPermanentlyBlocked
			}
			return nil, ErrIdentityBlocked
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.lockouts.Clear(ctx, identity.ID); err != nil {
		s.logger.Warn("failed to clear failed attempts after login",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	now := s.now().UTC()
	rotation := domain.EvaluateRotation(credential.LastPasswordChange, now)
	if credential.RequireChange || rotation.MustChange {
		return nil, ErrPasswordChangeRequired
	}

	if identity.MFAEnabled {
		challenge, err := s.mfa.IssueChallenge(ctx, identity.ID, PurposeLogin)
		if err != nil {
			return nil, fmt.Errorf("issue login challenge: %w", err)
		}
		return &LoginResult{
			Outcome:            OutcomeChallengeRequired,
			Identity:           *identity,
			RotationWarning:    rotation.Warn,
			RotationRemaining:  rotation.Remaining,
			ChallengeExpiresAt: challenge.ExpiresAt,
		}, nil
	}

	return s.finishLogin(ctx, identity, rotation, input.IP, input.Client)
}

// CompleteChallenge verifies the second-factor code and issues the session
// the earlier Login deferred.
func (s *AuthService) CompleteChallenge(ctx context.Context, input ChallengeInput) (*LoginResult, error) {
	if input.IdentityID == "" || input.Code == "" {
		return nil, ErrOTPInvalid
	}

	identity, err := s.identities.GetByID(ctx, input.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOTPInvalid
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	if !identity.IsActive() {
		return nil, ErrIdentityInactive
	}

	if _, err := s.mfa.VerifySecondFactor(ctx, identity.ID, input.Code); err != nil {
		return nil, err
	}

	credential, err := s.credentials.GetByIdentity(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	rotation := domain.EvaluateRotation(credential.LastPasswordChange, s.now().UTC())
	return s.finishLogin(ctx, identity, rotation, input.IP, input.Client)
}

// Validate delegates bearer-token validation to the session manager.
func (s *AuthService) Validate(ctx context.Context, token string) (*SessionValidation, error) {
	return s.sessions.Validate(ctx, token)
}

// Logout revokes the session behind the presented token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.RevokeByToken(ctx, token, "user_logout")
}

func (s *AuthService) finishLogin(ctx context.Context, identity *domain.Identity, rotation domain.RotationStatus, ip, client *string) (*LoginResult, error) {
	issued, err := s.sessions.Create(ctx, identity, ip, client)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.identities.UpdateLastLogin(ctx, identity.ID, now); err != nil {
		s.logger.Warn("failed to update last login",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("login succeeded",
		zap.String("identity_id", identity.ID),
		zap.String("role", string(identity.Role)),
	)

	return &LoginResult{
		Outcome:           OutcomeAuthenticated,
		Identity:          *identity,
		Token:             issued.Token,
		Session:           &issued.Session,
		RotationWarning:   rotation.Warn,
		RotationRemaining: rotation.Remaining,
	}, nil
}

// burnVerification performs a hash verification against a decoy so missing
// accounts cost the same as wrong passwords.
func (s *AuthService) burnVerification(password string) {
	if _, err := security.VerifyPassword(password, security.DecoyHash); err != nil {
		s.logger.Warn("decoy verification failed", zap.Error(err))
	}
}
