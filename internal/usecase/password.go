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
	// ErrPasswordReused indicates the new password matches the current one or
	// an entry in the bounded history.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrCurrentPasswordInvalid indicates the presented current password does
	// not match during an authenticated change.
	ErrCurrentPasswordInvalid = errors.New("current password is incorrect")
	// ErrRecoveryRateLimited indicates too many recovery requests inside the
	// window.
	ErrRecoveryRateLimited = errors.New("too many recovery requests")
)

const (
	recoveryRateScope  = "password_recovery"
	recoveryRateLimit  = 3
	recoveryRateWindow = time.Hour
)

// ChangeInput carries an authenticated password change.
type ChangeInput struct {
	IdentityID      string
	CurrentPassword string
	NewPassword     string
}

// ResetInput completes a recovery: the emailed code plus the new password.
type ResetInput struct {
	Email       string
	Code        string
	NewPassword string
}

// ChangeResult reports the side effects of an applied change.
type ChangeResult struct {
	IdentityID      string
	SessionsRevoked int
	Reactivated     bool
}

// RecoveryChallenge reports an opened recovery flow.
type RecoveryChallenge struct {
	IdentityID string
	ExpiresAt  time.Time
	Delivered  bool
}

// PasswordService applies credential changes and drives the recovery flow.
// Every applied change revokes the identity's sessions, clears its lockout
// counters, and appends the prior hash to the bounded history.
type PasswordService struct {
	identities  port.IdentityRepository
	credentials port.CredentialRepository
	lockouts    *LockoutService
	sessions    *SessionService
	mfa         *MFAService
	rateLimits  port.RateLimitStore
	policies    *PolicyService
	validator   *security.PasswordValidator
	notifier    port.Notifier
	events      port.EventPublisher
	locks       *KeyedMutex
	logger      *zap.Logger
	now         func() time.Time
}

// NewPasswordService wires the credential change engine.
func NewPasswordService(
	identities port.IdentityRepository,
	credentials port.CredentialRepository,
	lockouts *LockoutService,
	sessions *SessionService,
	mfa *MFAService,
	rateLimits port.RateLimitStore,
	policies *PolicyService,
	validator *security.PasswordValidator,
	notifier port.Notifier,
	events port.EventPublisher,
	locks *KeyedMutex,
	log *zap.Logger,
) *PasswordService {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordService{
		identities:  identities,
		credentials: credentials,
		lockouts:    lockouts,
		sessions:    sessions,
		mfa:         mfa,
		rateLimits:  rateLimits,
		policies:    policies,
		validator:   validator,
		notifier:    notifier,
		events:      events,
		locks:       locks,
		logger:      log,
		now:         time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *PasswordService) WithClock(now func() time.Time) *PasswordService {
	if now != nil {
		s.now = now
	}
	return s
}

// Change replaces the credential after verifying the current password. The
// whole sequence runs under the identity's lock so history writes and the
// mass revocation cannot interleave with a concurrent change.
func (s *PasswordService) Change(ctx context.Context, input ChangeInput) (*ChangeResult, error) {
	if input.IdentityID == "" {
		return nil, ErrIdentityNotFound
	}

	unlock := s.locks.Lock(input.IdentityID)
	defer unlock()

	identity, err := s.identities.GetByID(ctx, input.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	credential, err := s.credentials.GetByIdentity(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	match, err := security.VerifyPassword(input.CurrentPassword, credential.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify current password: %w", err)
	}
	if !match {
		return nil, ErrCurrentPasswordInvalid
	}

	return s.applyNewPassword(ctx, identity, credential, input.NewPassword, "password_change")
}

// RequestRecovery opens a recovery flow for the email. The request is rate
// limited per email to slow enumeration and abuse.
func (s *PasswordService) RequestRecovery(ctx context.Context, email string) (*RecoveryChallenge, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrIdentityNotFound
	}

	if err := s.enforceRecoveryRate(ctx, email); err != nil {
		return nil, err
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	if identity.Status == domain.StatusPermanentlyBlocked {
		return nil, ErrIdentityPermanentlyBlocked
	}

	issued, err := s.mfa.IssueChallenge(ctx, identity.ID, PurposeRecovery)
	if err != nil {
		return nil, err
	}

	s.logger.Info("password recovery requested",
		zap.String("identity_id", identity.ID),
		zap.String("email", logger.MaskEmail(email)),
	)

	return &RecoveryChallenge{
		IdentityID: identity.ID,
		ExpiresAt:  issued.ExpiresAt,
		Delivered:  issued.Delivered,
	}, nil
}

// Reset completes a recovery: the code is verified, the new password applied,
// and a blocked identity is reactivated. A permanent block is never lifted
// here.
func (s *PasswordService) Reset(ctx context.Context, input ResetInput) (*ChangeResult, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" {
		return nil, ErrIdentityNotFound
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOTPInvalid
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	if identity.Status == domain.StatusPermanentlyBlocked {
		return nil, ErrIdentityPermanentlyBlocked
	}

	if _, err := s.mfa.VerifyChallenge(ctx, identity.ID, PurposeRecovery, input.Code); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(identity.ID)
	defer unlock()

	credential, err := s.credentials.GetByIdentity(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	result, err := s.applyNewPassword(ctx, identity, credential, input.NewPassword, "password_reset")
	if err != nil {
		return nil, err
	}

	if identity.Status == domain.StatusBlocked {
		if err := s.identities.UpdateStatus(ctx, identity.ID, domain.StatusActive, s.now().UTC()); err != nil {
			return nil, fmt.Errorf("reactivate identity: %w", err)
		}
		result.Reactivated = true
	}

	return result, nil
}

// applyNewPassword is the shared tail of change and reset: validate, reject
// reuse, persist the new hash, append the prior hash to history, revoke all
// sessions, and clear lockout counters. Side-channel failures (notification,
// events) log warnings and never roll back the change.
func (s *PasswordService) applyNewPassword(ctx context.Context, identity *domain.Identity, credential *domain.Credential, newPassword, reason string) (*ChangeResult, error) {
	if err := s.validator.Validate(newPassword); err != nil {
		return nil, err
	}

	if reused, err := security.VerifyPassword(newPassword, credential.PasswordHash); err != nil {
		return nil, fmt.Errorf("compare against current password: %w", err)
	} else if reused {
		return nil, ErrPasswordReused
	}

	historyLimit := s.policies.Current().PasswordHistoryLimit
	history, err := s.credentials.ListHistory(ctx, identity.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load password history: %w", err)
	}
	for _, entry := range history {
		match, err := security.VerifyPassword(newPassword, entry.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("compare against password history: %w", err)
		}
		if match {
			return nil, ErrPasswordReused
		}
	}

	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash new password: %w", err)
	}

	now := s.now().UTC()
	priorHash := credential.PasswordHash

	if err := s.credentials.UpdatePassword(ctx, identity.ID, newHash, now); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	if err := s.credentials.AddHistory(ctx, domain.PasswordHistoryEntry{
		ID:           uuid.NewString(),
		CredentialID: credential.ID,
		PasswordHash: priorHash,
		SetAt:        now,
	}); err != nil {
		s.logger.Warn("failed to append password history",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	} else if err := s.credentials.TrimHistory(ctx, identity.ID, historyLimit); err != nil {
		s.logger.Warn("failed to trim password history",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	if err := s.credentials.SetRequireChange(ctx, identity.ID, false, now); err != nil {
		s.logger.Warn("failed to clear change requirement",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	revoked, err := s.sessions.RevokeAll(ctx, identity.ID, reason, identity.ID)
	if err != nil {
		s.logger.Warn("failed to revoke sessions after password change",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	if err := s.lockouts.Clear(ctx, identity.ID); err != nil {
		s.logger.Warn("failed to clear lockout counters after password change",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	if s.notifier != nil {
		vars := map[string]string{"name": identity.Name}
		if err := s.notifier.Send(ctx, identity.Email, port.TemplatePasswordChanged, vars); err != nil {
			s.logger.Warn("failed to send password changed notice",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
		}
	}

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:    uuid.NewString(),
			IdentityID: identity.ID,
			Reason:     reason,
			OccurredAt: now,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("failed to publish password changed event",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
		}
	}

	return &ChangeResult{IdentityID: identity.ID, SessionsRevoked: revoked}, nil
}

// enforceRecoveryRate applies the sliding window per email. Store failures
// fail open with a warning: recovery availability beats strictness here.
func (s *PasswordService) enforceRecoveryRate(ctx context.Context, email string) error {
	if s.rateLimits == nil {
		return nil
	}

	key := recoveryRateScope + ":" + security.HashToken(email)
	now := s.now().UTC()

	if err := s.rateLimits.TrimWindow(ctx, key, recoveryRateWindow, now); err != nil {
		s.logger.Warn("failed to trim recovery rate window", zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, key, recoveryRateWindow, now)
	if err != nil {
		s.logger.Warn("failed to count recovery attempts", zap.Error(err))
		return nil
	}
	if count >= recoveryRateLimit {
		return ErrRecoveryRateLimited
	}

	if err := s.rateLimits.RecordAttempt(ctx, key, now); err != nil {
		s.logger.Warn("failed to record recovery attempt", zap.Error(err))
	}
	return nil
}
