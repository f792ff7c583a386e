package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/filograficos/identity-service/internal/infra/security"
	"github.com/filograficos/identity-service/internal/transport/http/middleware"
	"github.com/filograficos/identity-service/internal/usecase"
)

// PasswordHandler exposes authenticated password change plus the two-step
// recovery flow.
type PasswordHandler struct {
	passwords *usecase.PasswordService
}

func NewPasswordHandler(passwords *usecase.PasswordService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

// Change replaces the caller's password after verifying the current one.
// All of the identity's sessions, including the current one, are revoked.
func (h *PasswordHandler) Change(c *gin.Context) {
	identityID, ok := middleware.GetAuthenticatedIdentityID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid password change payload"))
		return
	}

	result, err := h.passwords.Change(c.Request.Context(), usecase.ChangeInput{
		IdentityID:      identityID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Message))
			return
		}
		cases := []ErrorCase{
			{Err: usecase.ErrCurrentPasswordInvalid, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrPasswordReused, Status: http.StatusConflict, Message: "new password was used recently; choose a different one"},
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.JSON(http.StatusOK, PasswordChangeResponse{
		Message:         "password changed; sign in again",
		ChangedAt:       nowUTC(),
		RevokedSessions: result.SessionsRevoked,
	})
}

// Recover opens a recovery flow by emailing a one-time code. The response is
// identical whether or not the email belongs to an account.
func (h *PasswordHandler) Recover(c *gin.Context) {
	var req PasswordRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid recovery payload"))
		return
	}

	_, err := h.passwords.RequestRecovery(c.Request.Context(), strings.TrimSpace(req.Email))
	switch {
	case err == nil, errors.Is(err, usecase.ErrIdentityNotFound):
		// Deliberately indistinguishable outcomes.
	case errors.Is(err, usecase.ErrRecoveryRateLimited):
		c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, "too many recovery requests; try again later"))
		return
	case errors.Is(err, usecase.ErrIdentityPermanentlyBlocked):
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "account is permanently blocked"))
		return
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to start recovery"))
		return
	}

	c.JSON(http.StatusAccepted, PasswordRecoveryResponse{
		Message: "if the account exists, a recovery code has been sent",
	})
}

// Reset completes a recovery with the emailed code and the new password.
// A blocked identity is reactivated on success.
func (h *PasswordHandler) Reset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset payload"))
		return
	}

	result, err := h.passwords.Reset(c.Request.Context(), usecase.ResetInput{
		Email:       strings.TrimSpace(req.Email),
		Code:        strings.TrimSpace(req.Code),
		NewPassword: req.NewPassword,
	})
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Message))
			return
		}
		cases := []ErrorCase{
			{Err: usecase.ErrOTPInvalid, Status: http.StatusUnauthorized, Message: "recovery code is invalid"},
			{Err: usecase.ErrOTPExpired, Status: http.StatusUnauthorized, Message: "recovery code has expired"},
			{Err: usecase.ErrOTPExhausted, Status: http.StatusUnauthorized, Message: "recovery attempts exhausted"},
			{Err: usecase.ErrPasswordReused, Status: http.StatusConflict, Message: "new password was used recently; choose a different one"},
			{Err: usecase.ErrIdentityPermanentlyBlocked, Status: http.StatusForbidden, Message: "account is permanently blocked"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, PasswordResetResponse{
		Message:         "password reset; sign in again",
		ChangedAt:       nowUTC(),
		RevokedSessions: result.SessionsRevoked,
		Reactivated:     result.Reactivated,
	})
}
