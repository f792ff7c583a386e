package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/repository"
)

var (
	// ErrInvalidTransition indicates the requested lifecycle change is not
	// allowed from the identity's current state.
	ErrInvalidTransition = errors.New("disallowed state transition")
	// ErrSelfAction indicates an administrator targeting their own identity.
	ErrSelfAction = errors.New("administrators cannot target themselves")
	// ErrNotCustomer indicates a customer-only operation aimed elsewhere.
	ErrNotCustomer = errors.New("identity is not a customer")
)

// AdminAction is the closed set of administrative lifecycle operations.
type AdminAction string

const (
	ActionBlock    AdminAction = "block"
	ActionSuspend  AdminAction = "suspend"
	ActionActivate AdminAction = "activate"
)

var actionTargets = map[AdminAction]domain.IdentityStatus{
	ActionBlock:    domain.StatusBlocked,
	ActionSuspend:  domain.StatusSuspended,
	ActionActivate: domain.StatusActive,
}

// AdminService implements administrative identity management: unlocking,
// lifecycle transitions, customer removal, and listings.
type AdminService struct {
	identities    port.IdentityRepository
	credentials   port.CredentialRepository
	attempts      port.AttemptRepository
	verifications port.VerificationRepository
	sessionStore  port.SessionRepository
	lockouts      *LockoutService
	sessions      *SessionService
	logger        *zap.Logger
	now           func() time.Time
}

// NewAdminService wires the administrative operations.
func NewAdminService(
	identities port.IdentityRepository,
	credentials port.CredentialRepository,
	attempts port.AttemptRepository,
	verifications port.VerificationRepository,
	sessionStore port.SessionRepository,
	lockouts *LockoutService,
	sessions *SessionService,
	log *zap.Logger,
) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{
		identities:    identities,
		credentials:   credentials,
		attempts:      attempts,
		verifications: verifications,
		sessionStore:  sessionStore,
		lockouts:      lockouts,
		sessions:      sessions,
		logger:        log,
		now:           time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *AdminService) WithClock(now func() time.Time) *AdminService {
	if now != nil {
		s.now = now
	}
	return s
}

// Unlock reactivates a blocked or permanently blocked identity and clears its
// lockout counters. This is the only path that reverses a permanent block.
func (s *AdminService) Unlock(ctx context.Context, identityID, actorID string) error {
	identity, err := s.loadTarget(ctx, identityID, actorID)
	if err != nil {
		return err
	}

	switch identity.Status {
	case domain.StatusBlocked, domain.StatusPermanentlyBlocked:
	default:
		return ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.identities.UpdateStatus(ctx, identity.ID, domain.StatusActive, now); err != nil {
		return fmt.Errorf("unlock identity: %w", err)
	}

	if err := s.lockouts.Clear(ctx, identity.ID); err != nil {
		s.logger.Warn("failed to clear lockout counters on unlock",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	if err := s.credentials.SetRequireChange(ctx, identity.ID, false, now); err != nil {
		s.logger.Warn("failed to clear change requirement on unlock",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("identity unlocked",
		zap.String("identity_id", identity.ID),
		zap.String("actor_id", actorID),
	)
	return nil
}

// SetStatus applies one of the closed administrative actions after validating
// the lifecycle transition. Blocking or suspending also revokes the target's
// sessions.
func (s *AdminService) SetStatus(ctx context.Context, identityID, actorID string, action AdminAction) error {
	target, ok := actionTargets[action]
	if !ok {
		return fmt.Errorf("unknown action %q", action)
	}

	identity, err := s.loadTarget(ctx, identityID, actorID)
	if err != nil {
		return err
	}

	if identity.Status == target {
		return nil
	}
	if !identity.Status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.identities.UpdateStatus(ctx, identity.ID, target, now); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if target == domain.StatusBlocked || target == domain.StatusSuspended {
		if _, err := s.sessions.RevokeAll(ctx, identity.ID, "admin_"+string(action), actorID); err != nil {
			s.logger.Warn("failed to revoke sessions for administrative action",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
		}
	}

	if target == domain.StatusActive {
		if err := s.lockouts.Clear(ctx, identity.ID); err != nil {
			s.logger.Warn("failed to clear lockout counters on activation",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("identity status changed",
		zap.String("identity_id", identity.ID),
		zap.String("action", string(action)),
		zap.String("actor_id", actorID),
	)
	return nil
}

// DeleteCustomer removes a customer identity and all dependent records:
// sessions, attempt counters, verification tokens, credential and history.
// Administrators cannot be deleted through this path.
func (s *AdminService) DeleteCustomer(ctx context.Context, identityID, actorID string) error {
	identity, err := s.loadTarget(ctx, identityID, actorID)
	if err != nil {
		return err
	}

	if identity.Role != domain.RoleCustomer {
		return ErrNotCustomer
	}

	if _, err := s.sessions.RevokeAll(ctx, identity.ID, "account_deleted", actorID); err != nil {
		s.logger.Warn("failed to revoke sessions before deletion",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	if err := s.sessionStore.DeleteByIdentity(ctx, identity.ID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	if err := s.attempts.DeleteByIdentity(ctx, identity.ID); err != nil {
		return fmt.Errorf("delete attempt records: %w", err)
	}
	if err := s.verifications.DeleteByIdentity(ctx, identity.ID); err != nil {
		return fmt.Errorf("delete verification tokens: %w", err)
	}
	if err := s.credentials.DeleteByIdentity(ctx, identity.ID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if err := s.identities.Delete(ctx, identity.ID); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}

	s.logger.Info("customer deleted",
		zap.String("identity_id", identity.ID),
		zap.String("actor_id", actorID),
	)
	return nil
}

// ListIdentities returns identities matching the filter together with each
// one's most recent active session.
func (s *AdminService) ListIdentities(ctx context.Context, filter port.IdentityFilter) ([]domain.IdentityWithSession, error) {
	listed, err := s.identities.ListWithLatestSession(ctx, filter, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return listed, nil
}

func (s *AdminService) loadTarget(ctx context.Context, identityID, actorID string) (*domain.Identity, error) {
	if identityID == "" {
		return nil, ErrIdentityNotFound
	}
	if actorID != "" && identityID == actorID {
		return nil, ErrSelfAction
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return identity, nil
}
