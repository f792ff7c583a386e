package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/filograficos/identity-service/internal/transport/http/middleware"
	"github.com/filograficos/identity-service/internal/usecase"
)

// AuthHandler exposes login, challenge completion, validation, and logout.
type AuthHandler struct {
	auth     *usecase.AuthService
	policies *usecase.PolicyService
}

func NewAuthHandler(auth *usecase.AuthService, policies *usecase.PolicyService) *AuthHandler {
	return &AuthHandler{auth: auth, policies: policies}
}

var loginErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
	{Err: usecase.ErrVerificationRequired, Status: http.StatusForbidden, Message: "account pending verification"},
	{Err: usecase.ErrIdentityBlocked, Status: http.StatusForbidden, Message: "account is temporarily blocked"},
	{Err: usecase.ErrIdentityPermanentlyBlocked, Status: http.StatusForbidden, Message: "account is permanently blocked"},
	{Err: usecase.ErrIdentitySuspended, Status: http.StatusForbidden, Message: "account is suspended"},
	{Err: usecase.ErrIdentityInactive, Status: http.StatusForbidden, Message: "account is not active"},
	{Err: usecase.ErrPasswordChangeRequired, Status: http.StatusConflict, Message: "password change required"},
	{Err: usecase.ErrSessionLimitReached, Status: http.StatusConflict, Message: "active session limit reached"},
}

// Login authenticates an email/password pair. Depending on the identity's
// configuration the response is either a full session or a pending challenge.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	input := usecase.LoginInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	}
	if ip := c.ClientIP(); ip != "" {
		input.IP = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		input.Client = &ua
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, "login failed")
		return
	}

	if result.Outcome == usecase.OutcomeChallengeRequired {
		c.JSON(http.StatusAccepted, ChallengePendingResponse{
			Message:    "verification code sent",
			IdentityID: result.Identity.ID,
			ExpiresAt:  result.ChallengeExpiresAt,
		})
		return
	}

	c.JSON(http.StatusOK, h.loginResponse(result))
}

// Challenge completes a pending second-factor login.
func (h *AuthHandler) Challenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid challenge payload"))
		return
	}

	input := usecase.ChallengeInput{
		IdentityID: strings.TrimSpace(req.IdentityID),
		Code:       strings.TrimSpace(req.Code),
	}
	if ip := c.ClientIP(); ip != "" {
		input.IP = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		input.Client = &ua
	}

	result, err := h.auth.CompleteChallenge(c.Request.Context(), input)
	if err != nil {
		cases := append([]ErrorCase{
			{Err: usecase.ErrOTPInvalid, Status: http.StatusUnauthorized, Message: "verification code is invalid"},
			{Err: usecase.ErrOTPExpired, Status: http.StatusUnauthorized, Message: "verification code has expired"},
			{Err: usecase.ErrOTPExhausted, Status: http.StatusUnauthorized, Message: "verification attempts exhausted"},
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusUnauthorized, Message: "verification code is invalid"},
		}, loginErrorCases...)
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "challenge verification failed")
		return
	}

	c.JSON(http.StatusOK, h.loginResponse(result))
}

// Validate resolves the presented bearer token to its identity and session,
// renewing the token when it is close to expiry.
func (h *AuthHandler) Validate(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing bearer token"))
		return
	}

	validation, err := h.auth.Validate(c.Request.Context(), token)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "session expired"},
			{Err: usecase.ErrSessionExpired, Status: http.StatusUnauthorized, Message: "session expired"},
			{Err: usecase.ErrTokenInvalid, Status: http.StatusUnauthorized, Message: "invalid access token"},
			{Err: usecase.ErrSessionNotFound, Status: http.StatusUnauthorized, Message: "invalid access token"},
			{Err: usecase.ErrSessionRevoked, Status: http.StatusUnauthorized, Message: "session revoked"},
			{Err: usecase.ErrIdentityBlocked, Status: http.StatusForbidden, Message: "account is blocked"},
			{Err: usecase.ErrIdentityInactive, Status: http.StatusForbidden, Message: "account is not active"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "validation failed")
		return
	}

	resp := ValidateResponse{
		Valid:    true,
		Identity: newIdentitySummary(*validation.Identity),
		Session:  newSessionPayload(*validation.Session, time.Now().UTC()),
	}
	if validation.Renewed {
		resp.RenewedToken = validation.Token
		c.Header(middleware.RenewedTokenHeader, validation.Token)
	}

	c.JSON(http.StatusOK, resp)
}

// Logout revokes the session backing the presented bearer token.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing bearer token"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrTokenInvalid, Status: http.StatusUnauthorized, Message: "invalid access token"},
			{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "session expired"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session closed"})
}

func (h *AuthHandler) loginResponse(result *usecase.LoginResult) LoginResponse {
	policy := h.policies.Current()

	resp := LoginResponse{
		AccessToken:     result.Token,
		TokenType:       "Bearer",
		ExpiresIn:       int(policy.TokenLifetime.Seconds()),
		Identity:        newIdentitySummary(result.Identity),
		RotationWarning: result.RotationWarning,
	}

	if result.Session != nil {
		resp.Session = newSessionSummary(*result.Session)
	}

	if result.RotationWarning {
		days := int(result.RotationRemaining.Hours() / 24)
		resp.RotationRemaining = &days
	}

	return resp
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
