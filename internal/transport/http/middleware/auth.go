package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

// legacyTokenHeader is still sent by older clients instead of a Bearer
// Authorization header.
const legacyTokenHeader = "token"

// sessionTokenKey stores the raw presented token so logout and refresh
// handlers can act on the current session.
const sessionTokenKey = "session_token"

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

// RequireAuth resolves the session token and stores the session context for
// downstream handlers. All failures collapse to a uniform 401 body so a
// caller cannot distinguish an unknown token from an expired one.
func RequireAuth(sessions *usecase.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		sctx, err := sessions.ValidateSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrSessionInvalid) || errors.Is(err, usecase.ErrSessionExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "authentication required"))
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "authentication failed"))
			return
		}

		c.Set(UserIDKey, sctx.UserID)
		c.Set(SessionIDKey, sctx.SessionID)
		c.Set(sessionTokenKey, token)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = sctx.UserID
			reqCtx.SessionID = sctx.SessionID
		}

		c.Next()
	}
}

// extractToken prefers the Authorization Bearer scheme and falls back to the
// legacy token header.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(c.GetHeader(legacyTokenHeader))
}

// GetAuthenticatedUserID retrieves the user ID placed by RequireAuth.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}
	if id, ok := userID.(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// GetSessionToken retrieves the raw token the current request authenticated
// with.
func GetSessionToken(c *gin.Context) (string, bool) {
	value, exists := c.Get(sessionTokenKey)
	if !exists {
		return "", false
	}
	if token, ok := value.(string); ok && token != "" {
		return token, true
	}
	return "", false
}

// GetAuthenticatedSessionID retrieves the session ID placed by RequireAuth.
func GetAuthenticatedSessionID(c *gin.Context) (string, bool) {
	sessionID, exists := c.Get(SessionIDKey)
	if !exists {
		return "", false
	}
	if id, ok := sessionID.(string); ok && id != "" {
		return id, true
	}
	return "", false
}
