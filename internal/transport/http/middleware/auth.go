package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/usecase"
)

// RenewedTokenHeader carries a replacement bearer token when the presented
// one was close enough to expiry to be renewed in place.
const RenewedTokenHeader = "X-Renewed-Token"

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireAuth validates the Authorization header, resolves the backing
// session, and transparently renews tokens nearing expiry.
func RequireAuth(authService *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		validation, err := authService.Validate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrTokenExpired), errors.Is(err, usecase.ErrSessionExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session expired"))
			case errors.Is(err, usecase.ErrTokenInvalid),
				errors.Is(err, usecase.ErrSessionNotFound),
				errors.Is(err, usecase.ErrSessionRevoked):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			case errors.Is(err, usecase.ErrIdentityBlocked),
				errors.Is(err, usecase.ErrIdentityPermanentlyBlocked):
				c.AbortWithStatusJSON(http.StatusForbidden,
					newErrorResponse(c, "account is blocked"))
			case errors.Is(err, usecase.ErrIdentityInactive):
				c.AbortWithStatusJSON(http.StatusForbidden,
					newErrorResponse(c, "account is not active"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		if validation.Renewed {
			c.Header(RenewedTokenHeader, validation.Token)
		}

		c.Set(IdentityIDKey, validation.Identity.ID)
		c.Set("identity", validation.Identity)
		c.Set("session", validation.Session)
		c.Set("role", validation.Identity.Role)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.IdentityID = validation.Identity.ID
		}

		c.Next()
	}
}

// RequireRole checks that the authenticated identity holds one of the given
// roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		role, ok := roleVal.(domain.Role)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "invalid role format"))
			return
		}

		for _, required := range roles {
			if role == required {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "insufficient permissions"))
	}
}

// GetAuthenticatedIdentityID retrieves the identity ID from context.
func GetAuthenticatedIdentityID(c *gin.Context) (string, bool) {
	identityID, exists := c.Get(IdentityIDKey)
	if !exists {
		return "", false
	}

	if id, ok := identityID.(string); ok {
		return id, true
	}

	return "", false
}

// GetAuthenticatedIdentity retrieves the resolved identity from context.
func GetAuthenticatedIdentity(c *gin.Context) (*domain.Identity, bool) {
	val, exists := c.Get("identity")
	if !exists {
		return nil, false
	}

	identity, ok := val.(*domain.Identity)
	return identity, ok
}

// GetAuthenticatedSession retrieves the resolved session from context.
func GetAuthenticatedSession(c *gin.Context) (*domain.Session, bool) {
	val, exists := c.Get("session")
	if !exists {
		return nil, false
	}

	session, ok := val.(*domain.Session)
	return session, ok
}
