package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/infra/security"
	"github.com/filograficos/identity-service/internal/repository"
)

// Challenge purposes. A login OTP can never be redeemed for a recovery and
// vice versa: the purpose is part of the storage key.
const (
	PurposeLogin    = "mfa_login"
	PurposeRecovery = "password_recovery"
)

var (
	// ErrOTPInvalid indicates the submitted code does not match the challenge.
	ErrOTPInvalid = errors.New("one-time code is invalid")
	// ErrOTPExpired indicates the challenge outlived its validity window.
	ErrOTPExpired = errors.New("one-time code has expired")
	// ErrOTPExhausted indicates the challenge burned all its attempts. Further
	// submissions are rejected even when the code is correct.
	ErrOTPExhausted = errors.New("one-time code attempts exhausted")
)

const otpCodeLength = 6

// MFAService issues and verifies one-time-code challenges for login and
// password recovery. Codes are delivered out of band; only hashes persist.
// Identities configured for an authenticator app verify through the pluggable
// second-factor verifier instead of a stored challenge.
type MFAService struct {
	identities   port.IdentityRepository
	credentials  port.CredentialRepository
	otps         port.OTPStore
	policies     *PolicyService
	notifier     port.Notifier
	events       port.EventPublisher
	secondFactor port.SecondFactorVerifier
	logger       *zap.Logger
	now          func() time.Time
}

// IssuedChallenge describes a freshly stored challenge.
type IssuedChallenge struct {
	IdentityID string
	Purpose    string
	ExpiresAt  time.Time
	// Delivered reports whether the out-of-band send succeeded. A false value
	// never aborts the flow; the caller may offer a resend.
	Delivered bool
}

// OTPVerification is the outcome of a successful code check.
type OTPVerification struct {
	IdentityID        string
	Purpose           string
	AttemptsRemaining int
}

// NewMFAService wires the challenge engine.
func NewMFAService(
	identities port.IdentityRepository,
	credentials port.CredentialRepository,
	otps port.OTPStore,
	policies *PolicyService,
	notifier port.Notifier,
	events port.EventPublisher,
	secondFactor port.SecondFactorVerifier,
	logger *zap.Logger,
) *MFAService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MFAService{
		identities:   identities,
		credentials:  credentials,
		otps:         otps,
		policies:     policies,
		notifier:     notifier,
		events:       events,
		secondFactor: secondFactor,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *MFAService) WithClock(now func() time.Time) *MFAService {
	if now != nil {
		s.now = now
	}
	return s
}

// IssueChallenge generates a fresh code for the identity, stores its hash,
// and dispatches it. Reissuing replaces any pending challenge and resets the
// attempt counter.
func (s *MFAService) IssueChallenge(ctx context.Context, identityID, purpose string) (*IssuedChallenge, error) {
	if identityID == "" || purpose == "" {
		return nil, fmt.Errorf("identity id and purpose are required")
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	code, err := security.GenerateNumericCode(otpCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate one-time code: %w", err)
	}

	now := s.now().UTC()
	ttl := s.policies.Current().OTPLifetime

	if err := s.otps.Store(ctx, purpose, identity.ID, security.HashToken(code), ttl, now); err != nil {
		return nil, fmt.Errorf("store one-time code: %w", err)
	}

	issued := &IssuedChallenge{
		IdentityID: identity.ID,
		Purpose:    purpose,
		ExpiresAt:  now.Add(ttl),
	}

	template := port.TemplateLoginOTP
	if purpose == PurposeRecovery {
		template = port.TemplateRecoveryOTP
	}

	if s.notifier != nil {
		vars := map[string]string{
			"code":    code,
			"minutes": fmt.Sprintf("%d", int(ttl.Minutes())),
		}
		if err := s.notifier.Send(ctx, identity.Email, template, vars); err != nil {
			s.logger.Warn("failed to deliver one-time code",
				zap.String("identity_id", identity.ID),
				zap.String("purpose", purpose),
				zap.Error(err),
			)
		} else {
			issued.Delivered = true
		}
	}

	if s.events != nil {
		event := domain.OTPIssuedEvent{
			EventID:    uuid.NewString(),
			IdentityID: identity.ID,
			Purpose:    purpose,
			ExpiresAt:  issued.ExpiresAt,
			OccurredAt: now,
		}
		if err := s.events.PublishOTPIssued(ctx, event); err != nil {
			s.logger.Warn("failed to publish otp issued event",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
		}
	}

	return issued, nil
}

// VerifyChallenge checks a submitted code against the pending challenge.
// Wrong submissions burn an attempt; after the configured maximum, the
// challenge stays rejected until it expires, correct code or not. A verified
// challenge is consumed and cannot be replayed.
func (s *MFAService) VerifyChallenge(ctx context.Context, identityID, purpose, code string) (*OTPVerification, error) {
	if identityID == "" || purpose == "" || code == "" {
		return nil, ErrOTPInvalid
	}

	challenge, err := s.otps.Fetch(ctx, purpose, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOTPInvalid
		}
		return nil, fmt.Errorf("load one-time code: %w", err)
	}

	now := s.now().UTC()
	if challenge.Expired(now) {
		if err := s.otps.Delete(ctx, purpose, identityID); err != nil {
			s.logger.Warn("failed to delete expired challenge",
				zap.String("identity_id", identityID),
				zap.Error(err),
			)
		}
		return nil, ErrOTPExpired
	}

	maxAttempts := s.policies.Current().OTPMaxAttempts
	if challenge.Attempts >= maxAttempts {
		return nil, ErrOTPExhausted
	}

	submitted := security.HashToken(code)
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(challenge.CodeHash)) != 1 {
		attempts, incErr := s.otps.IncrementAttempts(ctx, purpose, identityID)
		if incErr != nil {
			s.logger.Warn("failed to increment challenge attempts",
				zap.String("identity_id", identityID),
				zap.Error(incErr),
			)
			return nil, ErrOTPInvalid
		}
		if attempts >= maxAttempts {
			return nil, ErrOTPExhausted
		}
		return nil, ErrOTPInvalid
	}

	if err := s.otps.Delete(ctx, purpose, identityID); err != nil {
		s.logger.Warn("failed to consume verified challenge",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
	}

	return &OTPVerification{
		IdentityID:        identityID,
		Purpose:           purpose,
		AttemptsRemaining: maxAttempts - challenge.Attempts,
	}, nil
}

// VerifySecondFactor validates a login code for the identity. Authenticator
// configurations check against the stored secret; everything else falls back
// to the emailed challenge.
func (s *MFAService) VerifySecondFactor(ctx context.Context, identityID, code string) (*OTPVerification, error) {
	credential, err := s.credentials.GetByIdentity(ctx, identityID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if err == nil && credential.MFAKind == domain.MFAKindTOTP && credential.MFASecret != nil && s.secondFactor != nil {
		if s.secondFactor.Verify(code, *credential.MFASecret, s.now().UTC()) {
			return &OTPVerification{IdentityID: identityID, Purpose: PurposeLogin}, nil
		}
		return nil, ErrOTPInvalid
	}

	return s.VerifyChallenge(ctx, identityID, PurposeLogin, code)
}
