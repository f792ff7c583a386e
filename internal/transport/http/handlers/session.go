package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/filograficos/identity-service/internal/transport/http/middleware"
	"github.com/filograficos/identity-service/internal/usecase"
)

// SessionHandler exposes the caller's session inventory and revocation.
type SessionHandler struct {
	sessions *usecase.SessionService
}

func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List returns the caller's active sessions, newest first.
func (h *SessionHandler) List(c *gin.Context) {
	identityID, ok := middleware.GetAuthenticatedIdentityID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.ListActive(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	current, _ := middleware.GetAuthenticatedSession(c)
	now := nowUTC()

	payloads := make([]SessionPayload, 0, len(sessions))
	for _, session := range sessions {
		payload := newSessionPayload(session, now)
		if current != nil && current.ID == session.ID {
			payload.IsCurrent = true
		}
		payloads = append(payloads, payload)
	}

	c.JSON(http.StatusOK, SessionListResponse{
		Sessions: payloads,
		Total:    len(payloads),
	})
}

// Revoke closes one of the caller's sessions by ID.
func (h *SessionHandler) Revoke(c *gin.Context) {
	identityID, ok := middleware.GetAuthenticatedIdentityID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	// Callers may only revoke their own sessions.
	sessions, err := h.sessions.ListActive(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		return
	}

	owned := false
	for _, session := range sessions {
		if session.ID == sessionID {
			owned = true
			break
		}
	}
	if !owned {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "session not found"))
		return
	}

	if err := h.sessions.Revoke(c.Request.Context(), sessionID, "user_revoked", identityID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		return
	}

	c.JSON(http.StatusOK, SessionRevokeResponse{Revoked: true})
}

// RevokeOthers closes every session except the one backing this request.
func (h *SessionHandler) RevokeOthers(c *gin.Context) {
	identityID, ok := middleware.GetAuthenticatedIdentityID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	current, _ := middleware.GetAuthenticatedSession(c)

	sessions, err := h.sessions.ListActive(c.Request.Context(), identityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
		return
	}

	revoked := 0
	for _, session := range sessions {
		if current != nil && session.ID == current.ID {
			continue
		}
		if err := h.sessions.Revoke(c.Request.Context(), session.ID, "user_revoked_others", identityID); err != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke sessions"))
			return
		}
		revoked++
	}

	c.JSON(http.StatusOK, SessionBulkRevokeResponse{RevokedCount: revoked})
}
