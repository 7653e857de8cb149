package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/WyiZhng/dense-platform-iam/internal/transport/http/middleware"
	"github.com/WyiZhng/dense-platform-iam/internal/usecase"
)

// RBACHandler exposes role and permission administration endpoints.
type RBACHandler struct {
	rbac *usecase.RBACService
}

// NewRBACHandler constructs an RBAC handler.
func NewRBACHandler(rbac *usecase.RBACService) *RBACHandler {
	return &RBACHandler{rbac: rbac}
}

// RegisterRoutes binds RBAC administration routes. The caller is expected to
// gate the group with a roles:manage permission check.
func (h *RBACHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("/roles", h.ListRoles)
	r.POST("/roles", h.CreateRole)
	r.GET("/permissions", h.ListPermissions)
	r.POST("/permissions", h.CreatePermission)
	r.GET("/roles/:role_name/permissions", h.RolePermissions)
	r.POST("/roles/:role_name/permissions", h.GrantPermission)
	r.POST("/initialize", h.InitializeDefaults)
	r.POST("/users/:user_id/roles", h.AssignRole)
	r.DELETE("/users/:user_id/roles/:role_name", h.RemoveRole)
	r.GET("/users/:user_id/roles", h.UserRoles)
	r.GET("/users/:user_id/permissions", h.UserPermissions)
}

// RegisterSelfServiceRoutes binds read-only routes about the caller's own
// grants.
func (h *RBACHandler) RegisterSelfServiceRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("/roles", h.MyRoles)
	r.GET("/permissions", h.MyPermissions)
	r.GET("/check", h.CheckPermission)
}

var roleErrorCases = []ErrorCase{
	{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
	{Err: usecase.ErrRoleExists, Status: http.StatusConflict, Message: "role already exists"},
	{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
	{Err: usecase.ErrPermissionExists, Status: http.StatusConflict, Message: "permission already exists"},
}

// ListRoles returns the role catalog. Inactive roles are included when
// include_inactive=true.
func (h *RBACHandler) ListRoles(c *gin.Context) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	roles, err := h.rbac.ListRoles(c.Request.Context(), c.Query("include_inactive") == "true")
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list roles")
		return
	}

	payload := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, newRolePayload(role))
	}
	c.JSON(http.StatusOK, gin.H{"roles": payload})
}

// ListPermissions returns the permission catalog.
func (h *RBACHandler) ListPermissions(c *gin.Context) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	permissions, err := h.rbac.ListPermissions(c.Request.Context(), c.Query("include_inactive") == "true")
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list permissions")
		return
	}

	payload := make([]PermissionSummary, 0, len(permissions))
	for _, permission := range permissions {
		payload = append(payload, newPermissionPayload(permission))
	}
	c.JSON(http.StatusOK, gin.H{"permissions": payload})
}

// RolePermissions lists the permissions granted to a role.
func (h *RBACHandler) RolePermissions(c *gin.Context) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	permissions, err := h.rbac.GetRolePermissions(c.Request.Context(), c.Param("role_name"))
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to list role permissions")
		return
	}

	payload := make([]PermissionSummary, 0, len(permissions))
	for _, permission := range permissions {
		payload = append(payload, newPermissionPayload(permission))
	}
	c.JSON(http.StatusOK, gin.H{"permissions": payload})
}

// InitializeDefaults seeds the default role and permission taxonomy. Safe to
// invoke repeatedly.
func (h *RBACHandler) InitializeDefaults(c *gin.Context) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	if err := h.rbac.InitializeDefaults(c.Request.Context()); err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to initialize defaults")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "defaults initialized"})
}

// CreateRole registers a new role.
func (h *RBACHandler) CreateRole(c *gin.Context) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "name is required"))
		return
	}

	role, err := h.rbac.CreateRole(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, newRolePayload(*role))
}

// CreatePermission registers a new permission.
func (h *RBACHandler) CreatePermission(c *gin.Context) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	var req CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "name, resource, and action are required"))
		return
	}

	permission, err := h.rbac.CreatePermission(c.Request.Context(), req.Name, req.Resource, req.Action, req.Description)
	if err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to create permission")
		return
	}

	c.JSON(http.StatusCreated, newPermissionPayload(*permission))
}

// GrantPermission links a permission to a role.
func (h *RBACHandler) GrantPermission(c *gin.Context) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	roleName := c.Param("role_name")

	var req GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "resource and action are required"))
		return
	}

	if err := h.rbac.GrantPermissionToRole(c.Request.Context(), roleName, req.Resource, req.Action); err != nil {
		RespondWithMappedError(c, err, roleErrorCases, http.StatusInternalServerError, "failed to grant permission")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "permission granted"})
}

// AssignRole grants a role to the target user.
func (h *RBACHandler) AssignRole(c *gin.Context) {
	h.changeAssignment(c, true)
}

// RemoveRole revokes a role from the target user.
func (h *RBACHandler) RemoveRole(c *gin.Context) {
	h.changeAssignment(c, false)
}

func (h *RBACHandler) changeAssignment(c *gin.Context, assign bool) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	targetID := c.Param("user_id")
	roleName := c.Param("role_name")
	if assign {
		var req RoleAssignmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role_name is required"))
			return
		}
		roleName = req.RoleName
	}

	actorID, _ := middleware.GetAuthenticatedUserID(c)
	rc := middleware.GetRequestContext(c)
	input := usecase.AssignmentInput{
		UserID:    targetID,
		RoleName:  roleName,
		ActorID:   actorID,
		IP:        rc.IP,
		UserAgent: rc.UserAgent,
	}

	var err error
	if assign {
		err = h.rbac.AssignRole(c.Request.Context(), input)
	} else {
		err = h.rbac.RemoveRole(c.Request.Context(), input)
	}
	if err != nil {
		cases := append([]ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, roleErrorCases...)
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to update role assignment")
		return
	}

	if assign {
		c.JSON(http.StatusOK, MessageResponse{Message: "role assigned"})
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "role removed"})
}

// UserRoles lists the active roles of the target user.
func (h *RBACHandler) UserRoles(c *gin.Context) {
	h.respondRoles(c, c.Param("user_id"))
}

// UserPermissions lists the effective permissions of the target user.
func (h *RBACHandler) UserPermissions(c *gin.Context) {
	h.respondPermissions(c, c.Param("user_id"))
}

// MyRoles lists the authenticated user's own roles.
func (h *RBACHandler) MyRoles(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	h.respondRoles(c, userID)
}

// MyPermissions lists the authenticated user's own permissions.
func (h *RBACHandler) MyPermissions(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	h.respondPermissions(c, userID)
}

// CheckPermission evaluates whether the authenticated user holds the
// permission named by the resource and action query parameters. The decision
// is audited like any other.
func (h *RBACHandler) CheckPermission(c *gin.Context) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	resource := c.Query("resource")
	action := c.Query("action")
	if resource == "" || action == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "resource and action are required"))
		return
	}

	rc := middleware.GetRequestContext(c)
	sessionID, _ := middleware.GetAuthenticatedSessionID(c)
	allowed, err := h.rbac.CheckPermission(c.Request.Context(), usecase.CheckInput{
		UserID:    userID,
		Resource:  resource,
		Action:    action,
		IP:        rc.IP,
		UserAgent: rc.UserAgent,
		SessionID: sessionID,
	})
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to check permission")
		return
	}

	c.JSON(http.StatusOK, PermissionCheckResponse{
		Allowed:  allowed,
		Resource: resource,
		Action:   action,
	})
}

func (h *RBACHandler) respondRoles(c *gin.Context, userID string) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	roles, err := h.rbac.GetUserRoles(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list roles")
		return
	}

	payload := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, newRolePayload(role))
	}
	c.JSON(http.StatusOK, gin.H{"roles": payload})
}

func (h *RBACHandler) respondPermissions(c *gin.Context, userID string) {
	if h.rbac == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "rbac service unavailable"))
		return
	}

	permissions, err := h.rbac.GetUserPermissions(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list permissions")
		return
	}

	payload := make([]PermissionSummary, 0, len(permissions))
	for _, permission := range permissions {
		payload = append(payload, newPermissionPayload(permission))
	}
	c.JSON(http.StatusOK, gin.H{"permissions": payload})
}
