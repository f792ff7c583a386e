package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/repository"
)

// LockoutService counts failed login attempts and blocks identities at the
// configured threshold. Repeated lockouts within the rolling policy window
// escalate to a permanent block that only an administrator reverses.
type LockoutService struct {
	identities  port.IdentityRepository
	credentials port.CredentialRepository
	attempts    port.AttemptRepository
	sessions    port.SessionRepository
	policies    *PolicyService
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// FailureOutcome reports the effect of one recorded failure.
type FailureOutcome struct {
	Attempts          int
	AttemptsRemaining int
	Locked            bool
	Permanent         bool
}

// BlockStatus describes whether an identity is currently blocked.
type BlockStatus struct {
	Blocked   bool
	Permanent bool
	Status    domain.IdentityStatus
}

// NewLockoutService wires the lockout engine.
func NewLockoutService(
	identities port.IdentityRepository,
	credentials port.CredentialRepository,
	attempts port.AttemptRepository,
	sessions port.SessionRepository,
	policies *PolicyService,
	events port.EventPublisher,
	logger *zap.Logger,
) *LockoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockoutService{
		identities:  identities,
		credentials: credentials,
		attempts:    attempts,
		sessions:    sessions,
		policies:    policies,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *LockoutService) WithClock(now func() time.Time) *LockoutService {
	if now != nil {
		s.now = now
	}
	return s
}

// RecordFailure bumps the identity's failed-attempt counter and applies the
// lockout when the threshold is reached. The increment itself is atomic in
// the store, so concurrent failures never produce a lost update.
func (s *LockoutService) RecordFailure(ctx context.Context, identityID string, ip *string) (*FailureOutcome, error) {
	if identityID == "" {
		return nil, fmt.Errorf("identity id is required")
	}

	now := s.now().UTC()
	threshold := s.failureThreshold(ctx, identityID)

	attempts, err := s.attempts.IncrementUnresolved(ctx, identityID, ip, now)
	if err != nil {
		return nil, fmt.Errorf("increment failed attempts: %w", err)
	}

	outcome := &FailureOutcome{Attempts: attempts}
	if attempts < threshold {
		outcome.AttemptsRemaining = threshold - attempts
		return outcome, nil
	}

	outcome.Locked = true

	if err := s.identities.UpdateStatus(ctx, identityID, domain.StatusBlocked, now); err != nil {
		return nil, fmt.Errorf("block identity: %w", err)
	}

	if err := s.credentials.SetRequireChange(ctx, identityID, true, now); err != nil {
		s.logger.Warn("failed to flag credential for change after lockout",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
	}

	if err := s.attempts.RecordLockout(ctx, domain.LockoutRecord{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Attempts:   attempts,
		LockedAt:   now,
	}); err != nil {
		s.logger.Warn("failed to record lockout occurrence",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
	}

	outcome.Permanent = s.escalateIfRepeated(ctx, identityID, now)

	if revoked, err := s.sessions.RevokeAllForIdentity(ctx, identityID, "account_locked", now); err != nil {
		s.logger.Warn("failed to revoke sessions after lockout",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
	} else if len(revoked) > 0 {
		s.logger.Info("sessions revoked after lockout",
			zap.String("identity_id", identityID),
			zap.Int("count", len(revoked)),
		)
	}

	if s.events != nil {
		event := domain.IdentityLockedEvent{
			EventID:    uuid.NewString(),
			IdentityID: identityID,
			Attempts:   attempts,
			Permanent:  outcome.Permanent,
			OccurredAt: now,
		}
		if err := s.events.PublishIdentityLocked(ctx, event); err != nil {
			s.logger.Warn("failed to publish lockout event",
				zap.String("identity_id", identityID),
				zap.Error(err),
			)
		}
	}

	return outcome, nil
}

// Clear resolves every open failed-attempt counter for the identity. Clearing
// an identity with no counters is a no-op, so the operation is idempotent.
func (s *LockoutService) Clear(ctx context.Context, identityID string) error {
	if identityID == "" {
		return fmt.Errorf("identity id is required")
	}

	if _, err := s.attempts.ResolveAll(ctx, identityID, s.now().UTC()); err != nil {
		return fmt.Errorf("resolve failed attempts: %w", err)
	}
	return nil
}

// Status reports whether the identity is blocked, and if so whether the block
// is permanent.
func (s *LockoutService) Status(ctx context.Context, identityID string) (*BlockStatus, error) {
	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	status := &BlockStatus{Status: identity.Status}
	switch identity.Status {
	case domain.StatusBlocked:
		status.Blocked = true
	case domain.StatusPermanentlyBlocked:
		status.Blocked = true
		status.Permanent = true
	}
	return status, nil
}

// failureThreshold prefers the per-credential threshold when set, falling
// back to the policy default.
func (s *LockoutService) failureThreshold(ctx context.Context, identityID string) int {
	policy := s.policies.Current()
	threshold := policy.MaxFailedAttempts

	credential, err := s.credentials.GetByIdentity(ctx, identityID)
	if err == nil && credential.MaxFailedAttempts > 0 {
		threshold = credential.MaxFailedAttempts
	}
	return threshold
}

// escalateIfRepeated applies the permanent block when lockouts inside the
// rolling window reach the policy ceiling.
func (s *LockoutService) escalateIfRepeated(ctx context.Context, identityID string, now time.Time) bool {
	policy := s.policies.Current()
	if policy.MaxLockoutsInWindow <= 0 {
		return false
	}

	since := now.Add(-policy.LockoutWindow())
	count, err := s.attempts.CountLockoutsSince(ctx, identityID, since)
	if err != nil {
		s.logger.Warn("failed to count lockouts for escalation",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
		return false
	}

	if count < policy.MaxLockoutsInWindow {
		return false
	}

	if err := s.identities.UpdateStatus(ctx, identityID, domain.StatusPermanentlyBlocked, now); err != nil {
		s.logger.Warn("failed to apply permanent block",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
		return false
	}

	s.logger.Info("identity permanently blocked after repeated lockouts",
		zap.String("identity_id", identityID),
		zap.Int("lockouts_in_window", count),
	)
	return true
}
