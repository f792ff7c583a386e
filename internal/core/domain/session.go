package domain

import "time"

// Session is one authenticated presence for an identity. The session ID
// doubles as the JWT jti claim, so token validation resolves directly to the
// backing row.
type Session struct {
	ID           string
	IdentityID   string
	Role         Role
	IP           *string
	Client       *string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokeReason *string
}

// IsActive reports whether the session is neither revoked nor expired at the
// given instant.
func (s *Session) IsActive(at time.Time) bool {
	if s == nil || s.RevokedAt != nil {
		return false
	}
	return at.Before(s.ExpiresAt)
}

// Revoke marks the session revoked. Returns false when already revoked, so
// repeated revocations stay idempotent.
func (s *Session) Revoke(at time.Time, reason string) bool {
	if s == nil || s.RevokedAt != nil {
		return false
	}
	revokedAt := at
	s.RevokedAt = &revokedAt
	if reason != "" {
		s.RevokeReason = &reason
	}
	return true
}

// Touch records activity on the session.
func (s *Session) Touch(at time.Time, ip *string) {
	if s == nil {
		return
	}
	s.LastActivity = at
	if ip != nil {
		s.IP = ip
	}
}
