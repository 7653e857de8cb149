package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

// RequirePermission authorizes the authenticated user for a resource and
// action. The decision is audited inside the RBAC service.
func RequirePermission(rbac *usecase.RBACService, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetAuthenticatedUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		sessionID, _ := GetAuthenticatedSessionID(c)
		allowed, err := rbac.CheckPermission(c.Request.Context(), usecase.CheckInput{
			UserID:    userID,
			Resource:  resource,
			Action:    action,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			SessionID: sessionID,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "authorization check failed"))
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// RequireAdmin authorizes through the admin role escape hatch.
func RequireAdmin(rbac *usecase.RBACService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetAuthenticatedUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		sessionID, _ := GetAuthenticatedSessionID(c)
		isAdmin, err := rbac.HasAdminRole(c.Request.Context(), usecase.CheckInput{
			UserID:    userID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			SessionID: sessionID,
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "authorization check failed"))
			return
		}
		if !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "admin access required"))
			return
		}

		c.Next()
	}
}
