package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/filograficos/identity-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AddressPayload carries a postal address in API payloads.
type AddressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// IdentitySummary describes a minimal view of an identity returned by the API.
type IdentitySummary struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Email        string                `json:"email"`
	Phone        *string               `json:"phone,omitempty"`
	Address      *AddressPayload       `json:"address,omitempty"`
	Role         domain.Role           `json:"role"`
	Status       domain.IdentityStatus `json:"status"`
	MFAEnabled   bool                  `json:"mfa_enabled"`
	RegisteredAt time.Time             `json:"registered_at"`
	LastLogin    *time.Time            `json:"last_login,omitempty"`
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	Name       string          `json:"name" binding:"required"`
	Email      string          `json:"email" binding:"required,email"`
	Phone      string          `json:"phone"`
	Address    *AddressPayload `json:"address,omitempty"`
	Password   string          `json:"password" binding:"required,min=8"`
	Role       string          `json:"role"`
	MFAEnabled bool            `json:"mfa_enabled"`
}

// RegisterResponse contains registration results and next steps.
type RegisterResponse struct {
	Identity             IdentitySummary `json:"identity"`
	RequiresVerification bool            `json:"requires_verification"`
	Message              string          `json:"message,omitempty"`
	ExpiresAt            *time.Time      `json:"expires_at,omitempty"`
}

// VerifyEmailRequest holds the emailed verification token.
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyEmailResponse is returned after a successful verification.
type VerifyEmailResponse struct {
	Message  string          `json:"message"`
	Identity IdentitySummary `json:"identity"`
}

// ResendVerificationRequest asks for a fresh verification link.
type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SessionSummary provides a compact view of session context in login responses.
type SessionSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	AccessToken       string          `json:"access_token"`
	TokenType         string          `json:"token_type"`
	ExpiresIn         int             `json:"expires_in"`
	Identity          IdentitySummary `json:"identity"`
	Session           SessionSummary  `json:"session"`
	RotationWarning   bool            `json:"rotation_warning,omitempty"`
	RotationRemaining *int            `json:"rotation_remaining_days,omitempty"`
}

// ChallengePendingResponse is returned when a login requires a second factor.
type ChallengePendingResponse struct {
	Message    string    `json:"message"`
	IdentityID string    `json:"identity_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ChallengeRequest completes a pending second-factor login.
type ChallengeRequest struct {
	IdentityID string `json:"identity_id" binding:"required"`
	Code       string `json:"code" binding:"required"`
}

// ValidateResponse conveys bearer token validation results.
type ValidateResponse struct {
	Valid    bool            `json:"valid"`
	Identity IdentitySummary `json:"identity"`
	Session  SessionPayload  `json:"session"`
	// RenewedToken is set when the presented token was replaced in flight.
	RenewedToken string `json:"renewed_token,omitempty"`
}

// SessionPayload describes a session view in API responses.
type SessionPayload struct {
	ID           string     `json:"id"`
	IdentityID   string     `json:"identity_id"`
	IP           *string    `json:"ip,omitempty"`
	Client       *string    `json:"client,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason *string    `json:"revoke_reason,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsCurrent    bool       `json:"is_current,omitempty"`
}

// SessionListResponse wraps a list of sessions for an identity.
type SessionListResponse struct {
	Sessions []SessionPayload `json:"sessions"`
	Total    int              `json:"total"`
}

// SessionRevokeResponse indicates whether the session was revoked.
type SessionRevokeResponse struct {
	Revoked bool `json:"revoked"`
}

// SessionBulkRevokeResponse summarises bulk revocation operations.
type SessionBulkRevokeResponse struct {
	RevokedCount int `json:"revoked_count"`
}

// PasswordChangeRequest captures a password change request body.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// PasswordChangeResponse conveys the result of a password change.
type PasswordChangeResponse struct {
	Message         string    `json:"message"`
	ChangedAt       time.Time `json:"changed_at"`
	RevokedSessions int       `json:"revoked_sessions"`
}

// PasswordRecoveryRequest represents a recovery initiation payload.
type PasswordRecoveryRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordRecoveryResponse acknowledges the recovery request. The payload is
// identical whether or not the email is registered.
type PasswordRecoveryResponse struct {
	Message string `json:"message"`
}

// PasswordResetRequest captures a recovery confirmation payload.
type PasswordResetRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// PasswordResetResponse indicates that a recovery reset completed.
type PasswordResetResponse struct {
	Message         string    `json:"message"`
	ChangedAt       time.Time `json:"changed_at"`
	RevokedSessions int       `json:"revoked_sessions"`
	Reactivated     bool      `json:"reactivated,omitempty"`
}

// AdminStatusRequest changes an identity's lifecycle status.
type AdminStatusRequest struct {
	Action string `json:"action" binding:"required"`
}

// AdminIdentityView pairs an identity with its latest active session for
// administrative listings.
type AdminIdentityView struct {
	Identity      IdentitySummary `json:"identity"`
	LatestSession *SessionPayload `json:"latest_session,omitempty"`
}

// AdminIdentityListResponse wraps the administrative identity listing.
type AdminIdentityListResponse struct {
	Identities []AdminIdentityView `json:"identities"`
	Total      int                 `json:"total"`
}

// PolicyPayload mirrors the runtime policy configuration.
type PolicyPayload struct {
	TokenLifetimeSecs        int64     `json:"token_lifetime_secs"`
	SessionLifetimeSecs      int64     `json:"session_lifetime_secs"`
	RenewThresholdSecs       int64     `json:"renew_threshold_secs"`
	VerificationLifetimeSecs int64     `json:"verification_lifetime_secs"`
	OTPLifetimeSecs          int64     `json:"otp_lifetime_secs"`
	MaxFailedAttempts        int       `json:"max_failed_attempts"`
	OTPMaxAttempts           int       `json:"otp_max_attempts"`
	LockoutWindowDays        int       `json:"lockout_window_days"`
	MaxLockoutsInWindow      int       `json:"max_lockouts_in_window"`
	PasswordHistoryLimit     int       `json:"password_history_limit"`
	UpdatedAt                time.Time `json:"updated_at,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// newIdentitySummary converts a domain identity to an API summary.
func newIdentitySummary(identity domain.Identity) IdentitySummary {
	summary := IdentitySummary{
		ID:           identity.ID,
		Name:         identity.Name,
		Email:        identity.Email,
		Role:         identity.Role,
		Status:       identity.Status,
		MFAEnabled:   identity.MFAEnabled,
		RegisteredAt: identity.RegisteredAt,
		LastLogin:    identity.LastLogin,
	}

	if identity.Phone != nil {
		summary.Phone = identity.Phone
	}

	if identity.Address != nil {
		summary.Address = &AddressPayload{
			Street:     identity.Address.Street,
			City:       identity.Address.City,
			State:      identity.Address.State,
			PostalCode: identity.Address.PostalCode,
		}
	}

	return summary
}

// newSessionPayload converts a domain session to an API session payload.
func newSessionPayload(session domain.Session, at time.Time) SessionPayload {
	return SessionPayload{
		ID:           session.ID,
		IdentityID:   session.IdentityID,
		IP:           session.IP,
		Client:       session.Client,
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
		ExpiresAt:    session.ExpiresAt,
		RevokedAt:    session.RevokedAt,
		RevokeReason: session.RevokeReason,
		IsActive:     session.IsActive(at),
	}
}

func newSessionSummary(session domain.Session) SessionSummary {
	return SessionSummary{
		ID:           session.ID,
		CreatedAt:    session.CreatedAt,
		ExpiresAt:    session.ExpiresAt,
		LastActivity: session.LastActivity,
	}
}

func newPolicyPayload(cfg domain.PolicyConfig) PolicyPayload {
	return PolicyPayload{
		TokenLifetimeSecs:        int64(cfg.TokenLifetime.Seconds()),
		SessionLifetimeSecs:      int64(cfg.SessionLifetime.Seconds()),
		RenewThresholdSecs:       int64(cfg.RenewThreshold.Seconds()),
		VerificationLifetimeSecs: int64(cfg.VerificationLifetime.Seconds()),
		OTPLifetimeSecs:          int64(cfg.OTPLifetime.Seconds()),
		MaxFailedAttempts:        cfg.MaxFailedAttempts,
		OTPMaxAttempts:           cfg.OTPMaxAttempts,
		LockoutWindowDays:        cfg.LockoutWindowDays,
		MaxLockoutsInWindow:      cfg.MaxLockoutsInWindow,
		PasswordHistoryLimit:     cfg.PasswordHistoryLimit,
		UpdatedAt:                cfg.UpdatedAt,
	}
}
