package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/WyiZhng/dense-platform-iam/internal/transport/http/middleware"
	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

// AuthHandler exposes login, logout, and session management endpoints.
type AuthHandler struct {
	auth     *usecase.AuthService
	sessions *usecase.SessionService
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(auth *usecase.AuthService, sessions *usecase.SessionService) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions}
}

// RegisterPublicRoutes binds routes that do not require authentication.
func (h *AuthHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/login", h.Login)
}

// RegisterProtectedRoutes binds routes that require an authenticated session.
func (h *AuthHandler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.POST("/logout", h.Logout)
	r.POST("/refresh", h.Refresh)
	r.GET("/session", h.CurrentSession)
	r.GET("/sessions", h.ListSessions)
	r.DELETE("/sessions", h.RevokeAllSessions)
}

// Login authenticates credentials and issues an opaque session token.
func (h *AuthHandler) Login(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication unavailable"))
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id and password are required"))
		return
	}

	rc := middleware.GetRequestContext(c)
	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		UserID:    req.UserID,
		Password:  req.Password,
		IP:        rc.IP,
		UserAgent: rc.UserAgent,
	})
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Message: "account is disabled"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "login failed")
		return
	}

	resp := LoginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		SessionID: result.SessionID,
		ExpiresAt: result.ExpiresAt,
		UserID:    result.User.ID,
		LastLogin: result.User.LastLogin,
	}

	c.JSON(http.StatusOK, resp)
}

// Logout revokes the session presented in the request. Revoking an already
// revoked or unknown token still returns success.
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "authentication unavailable"))
		return
	}

	token, ok := middleware.GetSessionToken(c)
	if !ok || token == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "logout failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// Refresh extends the current session's expiry without rotating the token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	token, ok := middleware.GetSessionToken(c)
	if !ok || token == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	result, err := h.sessions.RefreshSession(c.Request.Context(), token)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrSessionInvalid, Status: http.StatusUnauthorized, Message: "session is not valid"},
			{Err: usecase.ErrSessionExpired, Status: http.StatusUnauthorized, Message: "session expired"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to refresh session")
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{
		SessionID: result.SessionID,
		ExpiresAt: result.ExpiresAt,
	})
}

// CurrentSession reports the session the request authenticated with. Reaching
// this handler already proves validity; the body carries the resolved
// identifiers.
func (h *AuthHandler) CurrentSession(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	sessionID, _ := middleware.GetAuthenticatedSessionID(c)

	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"user_id":    userID,
		"session_id": sessionID,
	})
}

// ListSessions returns the active sessions of the authenticated user.
func (h *AuthHandler) ListSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.ListUserSessions(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	currentID, _ := middleware.GetAuthenticatedSessionID(c)
	resp := SessionListResponse{Sessions: make([]SessionSummary, 0, len(sessions))}
	for _, session := range sessions {
		resp.Sessions = append(resp.Sessions, newSessionPayload(session, currentID))
	}

	c.JSON(http.StatusOK, resp)
}

// RevokeAllSessions revokes every active session of the authenticated user,
// including the current one.
func (h *AuthHandler) RevokeAllSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	count, err := h.sessions.InvalidateAllForUser(c.Request.Context(), userID, "user_request")
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to revoke sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": count})
}
