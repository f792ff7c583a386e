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
	"github.com/filograficos/identity-service/internal/infra/security"
	"github.com/filograficos/identity-service/internal/repository"
)

var (
	// ErrSessionLimitReached indicates the identity is at its role's cap of
	// concurrently active sessions.
	ErrSessionLimitReached = errors.New("session limit reached for role")
	// ErrSessionNotFound indicates no session backs the presented token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked indicates the backing session was revoked.
	ErrSessionRevoked = errors.New("session has been revoked")
	// ErrSessionExpired indicates the backing session passed its expiry.
	ErrSessionExpired = errors.New("session has expired")
	// ErrTokenInvalid indicates a malformed or badly signed bearer token.
	ErrTokenInvalid = errors.New("bearer token is invalid")
	// ErrTokenExpired indicates the bearer token passed its expiry.
	ErrTokenExpired = errors.New("bearer token has expired")
)

// SessionService creates, validates, renews, and revokes sessions. Creation
// serializes per identity through the shared keyed mutex so the concurrency
// cap cannot be overshot by racing logins.
type SessionService struct {
	identities port.IdentityRepository
	sessions   port.SessionRepository
	signer     *security.TokenSigner
	policies   *PolicyService
	events     port.EventPublisher
	locks      *KeyedMutex
	logger     *zap.Logger
	now        func() time.Time
}

// IssuedSession pairs a signed bearer token with its backing session.
type IssuedSession struct {
	Token   string
	Session domain.Session
}

// SessionValidation is the outcome of validating a bearer token. When the
// token was close enough to expiry, Token carries a renewed replacement and
// Renewed is set; otherwise Token echoes the presented value.
type SessionValidation struct {
	Identity *domain.Identity
	Session  *domain.Session
	Token    string
	Renewed  bool
}

// NewSessionService wires the session manager.
func NewSessionService(
	identities port.IdentityRepository,
	sessions port.SessionRepository,
	signer *security.TokenSigner,
	policies *PolicyService,
	events port.EventPublisher,
	locks *KeyedMutex,
	logger *zap.Logger,
) *SessionService {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		identities: identities,
		sessions:   sessions,
		signer:     signer,
		policies:   policies,
		events:     events,
		locks:      locks,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source, primarily for tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// Create enforces the role's concurrency cap and issues a new session with a
// signed bearer token. The cap check and the insert run under the identity's
// lock so two concurrent logins at the cap cannot both succeed.
func (s *SessionService) Create(ctx context.Context, identity *domain.Identity, ip, client *string) (*IssuedSession, error) {
	if identity == nil || identity.ID == "" {
		return nil, fmt.Errorf("identity is required")
	}

	unlock := s.locks.Lock(identity.ID)
	defer unlock()

	now := s.now().UTC()

	cap := identity.Role.SessionCap()
	active, err := s.sessions.CountActiveByIdentity(ctx, identity.ID, now)
	if err != nil {
		return nil, fmt.Errorf("count active sessions: %w", err)
	}
	if active >= cap {
		return nil, ErrSessionLimitReached
	}

	policy := s.policies.Current()
	session := domain.Session{
		ID:           uuid.NewString(),
		IdentityID:   identity.ID,
		Role:         identity.Role,
		IP:           ip,
		Client:       client,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(policy.SessionLifetime),
	}

	token, err := s.signer.Sign(identity.ID, identity.Role, session.ID, now, policy.TokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("issue bearer token: %w", err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	return &IssuedSession{Token: token, Session: session}, nil
}

// Validate checks the token's signature and expiry, resolves the backing
// session, and verifies the identity may still authenticate. Tokens within
// the renewal threshold of expiry get a fresh replacement; the presented
// token stays valid until its own expiry.
func (s *SessionService) Validate(ctx context.Context, token string) (*SessionValidation, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	session, err := s.sessions.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := s.now().UTC()
	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	identity, err := s.identities.GetByID(ctx, session.IdentityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	switch identity.Status {
	case domain.StatusActive:
	case domain.StatusBlocked, domain.StatusPermanentlyBlocked:
		return nil, ErrIdentityBlocked
	default:
		return nil, ErrIdentityInactive
	}

	validation := &SessionValidation{
		Identity: identity,
		Session:  session,
		Token:    token,
	}

	policy := s.policies.Current()
	remaining := claims.ExpiresAt.Time.Sub(now)
	if remaining < policy.RenewThreshold {
		fresh, signErr := s.signer.Sign(identity.ID, identity.Role, session.ID, now, policy.TokenLifetime)
		if signErr != nil {
			s.logger.Warn("failed to renew bearer token",
				zap.String("session_id", session.ID),
				zap.Error(signErr),
			)
		} else {
			expiresAt := now.Add(policy.SessionLifetime)
			if err := s.sessions.ExtendExpiry(ctx, session.ID, expiresAt, now); err != nil {
				s.logger.Warn("failed to extend session expiry",
					zap.String("session_id", session.ID),
					zap.Error(err),
				)
			} else {
				session.ExpiresAt = expiresAt
				session.LastActivity = now
				validation.Token = fresh
				validation.Renewed = true
			}
		}
	}

	if !validation.Renewed {
		if err := s.sessions.Touch(ctx, session.ID, now, nil); err != nil {
			s.logger.Warn("failed to record session activity",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
		}
	}

	return validation, nil
}

// Revoke marks one session revoked. Revoking an already revoked or unknown
// session is not an error.
func (s *SessionService) Revoke(ctx context.Context, sessionID, reason, revokedBy string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	now := s.now().UTC()
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load session: %w", err)
	}
	if session.RevokedAt != nil {
		return nil
	}

	if err := s.sessions.Revoke(ctx, sessionID, reason, now); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.publishRevocation(ctx, session.IdentityID, sessionID, reason, revokedBy, now)
	return nil
}

// RevokeByToken resolves the presented token and revokes its session.
func (s *SessionService) RevokeByToken(ctx context.Context, token, reason string) error {
	claims, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return s.Revoke(ctx, claims.ID, reason, claims.IdentityID)
}

// RevokeAll revokes every active session for the identity and returns how
// many were affected.
func (s *SessionService) RevokeAll(ctx context.Context, identityID, reason, revokedBy string) (int, error) {
	if identityID == "" {
		return 0, fmt.Errorf("identity id is required")
	}

	now := s.now().UTC()
	revoked, err := s.sessions.RevokeAllForIdentity(ctx, identityID, reason, now)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	for _, sessionID := range revoked {
		s.publishRevocation(ctx, identityID, sessionID, reason, revokedBy, now)
	}
	return len(revoked), nil
}

// ListActive returns the identity's sessions that are neither revoked nor
// expired.
func (s *SessionService) ListActive(ctx context.Context, identityID string) ([]domain.Session, error) {
	sessions, err := s.sessions.ListActiveByIdentity(ctx, identityID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionService) publishRevocation(ctx context.Context, identityID, sessionID, reason, revokedBy string, at time.Time) {
	if s.events == nil {
		return
	}

	event := domain.SessionRevokedEvent{
		EventID:    uuid.NewString(),
		IdentityID: identityID,
		SessionID:  sessionID,
		Reason:     reason,
		RevokedBy:  revokedBy,
		OccurredAt: at,
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("failed to publish session revoked event",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
