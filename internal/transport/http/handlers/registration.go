package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/infra/security"
	"github.com/filograficos/identity-service/internal/usecase"
)

// RegistrationHandler exposes endpoints for account registration and email
// verification.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
}

func NewRegistrationHandler(registration *usecase.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// Register creates a pending identity and emails a verification link.
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	input := usecase.RegisterInput{
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
		Role:       domain.Role(strings.TrimSpace(req.Role)),
		MFAEnabled: req.MFAEnabled,
	}

	if phone := strings.TrimSpace(req.Phone); phone != "" {
		input.Phone = &phone
	}
	if req.Address != nil {
		input.Address = &domain.Address{
			Street:     strings.TrimSpace(req.Address.Street),
			City:       strings.TrimSpace(req.Address.City),
			State:      strings.TrimSpace(req.Address.State),
			PostalCode: strings.TrimSpace(req.Address.PostalCode),
		}
	}

	result, err := h.registration.Register(c.Request.Context(), input)
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Message))
			return
		}
		cases := []ErrorCase{
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
			{Err: usecase.ErrInvalidRole, Status: http.StatusBadRequest, Message: "invalid role"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to register account")
		return
	}

	resp := RegisterResponse{
		Identity:             newIdentitySummary(result.Identity),
		RequiresVerification: true,
		Message:              "verification required",
	}
	if !result.VerificationExpiresAt.IsZero() {
		expires := result.VerificationExpiresAt.UTC()
		resp.ExpiresAt = &expires
	}

	c.JSON(http.StatusCreated, resp)
}

// Verify redeems an emailed verification token, activating the identity.
func (h *RegistrationHandler) Verify(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	identity, err := h.registration.VerifyEmail(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrVerificationTokenInvalid, Status: http.StatusBadRequest, Message: "verification token is invalid"},
			{Err: usecase.ErrVerificationTokenExpired, Status: http.StatusBadRequest, Message: "verification token has expired"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusConflict, Message: "account already verified"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to verify account")
		return
	}

	c.JSON(http.StatusOK, VerifyEmailResponse{
		Message:  "account verified",
		Identity: newIdentitySummary(*identity),
	})
}

// ResendVerification issues a fresh verification link for a pending identity.
// The response does not reveal whether the email is registered.
func (h *RegistrationHandler) ResendVerification(c *gin.Context) {
	var req ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	_, err := h.registration.ResendVerification(c.Request.Context(), strings.TrimSpace(req.Email))
	switch {
	case err == nil, errors.Is(err, usecase.ErrIdentityNotFound):
		// Unknown emails get the same acknowledgement as known ones.
		c.JSON(http.StatusAccepted, MessageResponse{Message: "if the account exists, a verification link has been sent"})
	case errors.Is(err, usecase.ErrAlreadyVerified):
		c.JSON(http.StatusConflict, NewErrorResponse(c, "account already verified"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resend verification"))
	}
}
