package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/WyiZhng/dense-platform-iam/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on a successful login. The session token appears
// here once and is never retrievable afterwards.
type LoginResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	SessionID string     `json:"session_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	UserID    string     `json:"user_id"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// SessionSummary is the sanitized per-session view in session listings. Token
// material is never included.
type SessionSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	ExpiresAt    time.Time `json:"expires_at"`
	IP           *string   `json:"ip,omitempty"`
	UserAgent    *string   `json:"user_agent,omitempty"`
	Current      bool      `json:"current"`
}

// SessionListResponse wraps the active sessions of the authenticated user.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// RefreshResponse is returned when a session is extended.
type RefreshResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChangePasswordRequest defines the payload for an authenticated password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ResetRequestRequest asks for a password reset token.
type ResetRequestRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ResetRequestResponse returns the freshly issued reset token. In a full
// deployment the token travels out of band; the API echoes it for clients
// that own their own delivery channel.
type ResetRequestResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResetConfirmRequest consumes a reset token.
type ResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ResetValidateRequest checks a reset token without consuming it.
type ResetValidateRequest struct {
	Token string `json:"token" binding:"required"`
}

// ResetValidateResponse reports the owner of a still-valid token.
type ResetValidateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
}

// RoleSummary is the API view of a role.
type RoleSummary struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	IsActive    bool    `json:"is_active"`
}

// PermissionSummary is the API view of a permission.
type PermissionSummary struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Resource    string  `json:"resource"`
	Action      string  `json:"action"`
	Description *string `json:"description,omitempty"`
	IsActive    bool    `json:"is_active"`
}

// CreateRoleRequest defines the payload for creating a role.
type CreateRoleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreatePermissionRequest defines the payload for creating a permission.
type CreatePermissionRequest struct {
	Name        string `json:"name" binding:"required"`
	Resource    string `json:"resource" binding:"required"`
	Action      string `json:"action" binding:"required"`
	Description string `json:"description"`
}

// RoleAssignmentRequest assigns or removes a role for a user.
type RoleAssignmentRequest struct {
	RoleName string `json:"role_name" binding:"required"`
}

// GrantPermissionRequest links a permission to a role.
type GrantPermissionRequest struct {
	Resource string `json:"resource" binding:"required"`
	Action   string `json:"action" binding:"required"`
}

// PermissionCheckResponse reports an authorization decision.
type PermissionCheckResponse struct {
	Allowed  bool   `json:"allowed"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// AuditEventPayload is the API view of an audit event.
type AuditEventPayload struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Severity     string         `json:"severity"`
	UserID       *string        `json:"user_id,omitempty"`
	SessionID    *string        `json:"session_id,omitempty"`
	IP           *string        `json:"ip,omitempty"`
	UserAgent    *string        `json:"user_agent,omitempty"`
	Resource     *string        `json:"resource,omitempty"`
	Action       *string        `json:"action,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse aggregates dependency checks.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func newRolePayload(role domain.Role) RoleSummary {
	return RoleSummary{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsActive:    role.IsActive,
	}
}

func newPermissionPayload(permission domain.Permission) PermissionSummary {
	return PermissionSummary{
		ID:          permission.ID,
		Name:        permission.Name,
		Resource:    permission.Resource,
		Action:      permission.Action,
		Description: permission.Description,
		IsActive:    permission.IsActive,
	}
}

func newAuditEventPayload(event domain.AuditEvent) AuditEventPayload {
	return AuditEventPayload{
		ID:           event.ID,
		Type:         string(event.Type),
		Severity:     string(event.Severity),
		UserID:       event.UserID,
		SessionID:    event.SessionID,
		IP:           event.IP,
		UserAgent:    event.UserAgent,
		Resource:     event.Resource,
		Action:       event.Action,
		Details:      event.Details,
		Success:      event.Success,
		ErrorMessage: event.ErrorMessage,
		CreatedAt:    event.CreatedAt,
	}
}

func newSessionPayload(session domain.Session, currentID string) SessionSummary {
	return SessionSummary{
		ID:           session.ID,
		CreatedAt:    session.CreatedAt,
		LastAccessed: session.LastAccessed,
		ExpiresAt:    session.ExpiresAt,
		IP:           session.IP,
		UserAgent:    session.UserAgent,
		Current:      currentID != "" && session.ID == currentID,
	}
}
