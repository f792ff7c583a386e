package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/filograficos/identity-service/internal/core/domain"
	"github.com/filograficos/identity-service/internal/core/port"
	"github.com/filograficos/identity-service/internal/transport/http/middleware"
	"github.com/filograficos/identity-service/internal/usecase"
)

// AdminHandler exposes identity administration: unlock, status changes,
// customer deletion, listings, and the runtime policy record.
type AdminHandler struct {
	admin    *usecase.AdminService
	policies *usecase.PolicyService
}

func NewAdminHandler(admin *usecase.AdminService, policies *usecase.PolicyService) *AdminHandler {
	return &AdminHandler{admin: admin, policies: policies}
}

var adminErrorCases = []ErrorCase{
	{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
	{Err: usecase.ErrSelfAction, Status: http.StatusConflict, Message: "operation cannot target your own account"},
	{Err: usecase.ErrInvalidTransition, Status: http.StatusConflict, Message: "disallowed status transition"},
	{Err: usecase.ErrNotCustomer, Status: http.StatusConflict, Message: "only customer accounts can be deleted"},
}

// Unlock clears an identity's block and its failed-attempt counters.
func (h *AdminHandler) Unlock(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedIdentityID(c)

	err := h.admin.Unlock(c.Request.Context(), strings.TrimSpace(c.Param("id")), actorID)
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases, http.StatusInternalServerError, "failed to unlock identity")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "identity unlocked"})
}

// SetStatus applies a block, suspend, or activate action to an identity.
func (h *AdminHandler) SetStatus(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedIdentityID(c)

	var req AdminStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid status payload"))
		return
	}

	action := usecase.AdminAction(strings.TrimSpace(strings.ToLower(req.Action)))
	switch action {
	case usecase.ActionBlock, usecase.ActionSuspend, usecase.ActionActivate:
	default:
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown action"))
		return
	}

	err := h.admin.SetStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")), actorID, action)
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases, http.StatusInternalServerError, "failed to change status")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "status updated"})
}

// DeleteCustomer removes a customer identity and all of its associated
// records.
func (h *AdminHandler) DeleteCustomer(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedIdentityID(c)

	err := h.admin.DeleteCustomer(c.Request.Context(), strings.TrimSpace(c.Param("id")), actorID)
	if err != nil {
		RespondWithMappedError(c, err, adminErrorCases, http.StatusInternalServerError, "failed to delete identity")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "identity deleted"})
}

// List returns identities with their most recent active session.
func (h *AdminHandler) List(c *gin.Context) {
	filter := port.IdentityFilter{Limit: 50}

	if raw := strings.TrimSpace(c.Query("role")); raw != "" {
		role := domain.Role(raw)
		if !role.Valid() {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role filter"))
			return
		}
		filter.Role = &role
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := domain.IdentityStatus(raw)
		filter.Status = &status
	}

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	results, err := h.admin.ListIdentities(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list identities"))
		return
	}

	now := nowUTC()
	views := make([]AdminIdentityView, 0, len(results))
	for _, item := range results {
		view := AdminIdentityView{Identity: newIdentitySummary(item.Identity)}
		if item.LatestSession != nil {
			payload := newSessionPayload(*item.LatestSession, now)
			view.LatestSession = &payload
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, AdminIdentityListResponse{
		Identities: views,
		Total:      len(views),
	})
}

// GetPolicy returns the effective runtime policy configuration.
func (h *AdminHandler) GetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, newPolicyPayload(h.policies.Current()))
}

// UpdatePolicy replaces the stored policy record. Zero fields fall back to
// defaults; the change takes effect immediately without a restart.
func (h *AdminHandler) UpdatePolicy(c *gin.Context) {
	var req PolicyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid policy payload"))
		return
	}

	cfg := domain.PolicyConfig{
		TokenLifetime:        time.Duration(req.TokenLifetimeSecs) * time.Second,
		SessionLifetime:      time.Duration(req.SessionLifetimeSecs) * time.Second,
		RenewThreshold:       time.Duration(req.RenewThresholdSecs) * time.Second,
		VerificationLifetime: time.Duration(req.VerificationLifetimeSecs) * time.Second,
		OTPLifetime:          time.Duration(req.OTPLifetimeSecs) * time.Second,
		MaxFailedAttempts:    req.MaxFailedAttempts,
		OTPMaxAttempts:       req.OTPMaxAttempts,
		LockoutWindowDays:    req.LockoutWindowDays,
		MaxLockoutsInWindow:  req.MaxLockoutsInWindow,
		PasswordHistoryLimit: req.PasswordHistoryLimit,
	}

	applied, err := h.policies.Update(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to update policy"))
		return
	}

	c.JSON(http.StatusOK, newPolicyPayload(applied))
}
