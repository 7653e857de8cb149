package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

// MaintenanceHandler exposes housekeeping operations normally driven by a
// scheduler.
type MaintenanceHandler struct {
	sessions *usecase.SessionService
	resets   *usecase.ResetService
}

// NewMaintenanceHandler constructs a maintenance handler.
func NewMaintenanceHandler(sessions *usecase.SessionService, resets *usecase.ResetService) *MaintenanceHandler {
	return &MaintenanceHandler{sessions: sessions, resets: resets}
}

// RegisterRoutes binds maintenance routes. The caller gates the group behind
// an admin check.
func (h *MaintenanceHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/sessions/cleanup", h.CleanupSessions)
	r.POST("/reset-tokens/cleanup", h.CleanupResetTokens)
}

// CleanupSessions deactivates expired sessions.
func (h *MaintenanceHandler) CleanupSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	count, err := h.sessions.CleanupExpired(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to clean up sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleaned": count})
}

// CleanupResetTokens deletes expired reset tokens.
func (h *MaintenanceHandler) CleanupResetTokens(c *gin.Context) {
	if h.resets == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	count, err := h.resets.CleanupExpired(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to clean up reset tokens")
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleaned": count})
}
